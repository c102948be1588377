package media

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/videobot/runtime/internal/errs"
	"github.com/videobot/runtime/internal/model"
	"github.com/videobot/runtime/internal/streams"
	"github.com/videobot/runtime/internal/util"
)

// Muxer abstracts the container write side a segmented file sink writes
// to. Open starts a new segment file; WritePacket remuxes one packet
// with pts already rebased to the segment's first packet.
type Muxer interface {
	Open(path string, codecName string, extradata []byte, width, height uint32) error
	WritePacket(data []byte, ptsMs int64, keyFrame bool) error
	Close() error
}

// SizeProber learns a stream's output image size from its codec
// parameters and one sample packet, standing in for the "stream decoder"
// spec section 4.4.5 spins up just to learn the segment's image size.
type SizeProber interface {
	Probe(codecName string, extradata, sample []byte) (width, height uint32, err error)
}

// FFprobeSizeProber shells out to ffprobe against a short-lived pipe of
// the sample packet, the same os/exec-command-building idiom the
// teacher uses for SvtAv1EncApp.
type FFprobeSizeProber struct{}

func (FFprobeSizeProber) Probe(codecName string, extradata, sample []byte) (uint32, uint32, error) {
	cmd := exec.Command("ffprobe",
		"-hide_banner", "-loglevel", "error",
		"-f", codecContainerFormat(codecName),
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "json",
		"pipe:0",
	)
	cmd.Stdin = bytes.NewReader(sample)
	out, err := cmd.Output()
	if err != nil {
		return 0, 0, errs.NewStreamInit("media.file_sink", err)
	}
	var parsed struct {
		Streams []struct {
			Width  uint32 `json:"width"`
			Height uint32 `json:"height"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(out, &parsed); err != nil || len(parsed.Streams) == 0 {
		return 0, 0, errs.NewStreamInit("media.file_sink", fmt.Errorf("ffprobe produced no video stream"))
	}
	return parsed.Streams[0].Width, parsed.Streams[0].Height, nil
}

// FileSinkConfig configures a segmented file sink.
type FileSinkConfig struct {
	// Dir is the parent directory; segments live at Dir, temp files at
	// Dir/temp-recordings.
	Dir string
	Stem string
	Ext  string
	// SegmentDuration closes the current segment once a key frame
	// arrives at or past this duration since the segment started.
	SegmentDuration time.Duration
	Prober          SizeProber
	NewMuxer        func() Muxer
	// Logger receives a warning when a new segment is about to open on a
	// volume below util.MinTempSpaceMB free. Nil disables the check.
	Logger *slog.Logger
}

// FileSink is a Subscriber[model.EncodedPacket] implementing the
// segmented file sink of spec section 4.4.5.
type FileSink struct {
	cfg FileSinkConfig

	codecName  string
	extradata  []byte
	width      uint32
	height     uint32
	sizeKnown  bool

	muxer       Muxer
	tempPath    string
	segStart    time.Time
	segFirstPTS int64
	haveFirst   bool
}

// NewFileSink returns a sink writing segments under cfg.Dir.
func NewFileSink(cfg FileSinkConfig) *FileSink {
	if cfg.Prober == nil {
		cfg.Prober = FFprobeSizeProber{}
	}
	return &FileSink{cfg: cfg}
}

func (s *FileSink) OnSubscribe(sub streams.Subscription) { sub.Request(1 << 62) }

func (s *FileSink) OnNext(p model.EncodedPacket) {
	switch {
	case p.Metadata != nil:
		s.onMetadata(p.Metadata)
	case p.Frame != nil:
		s.onFrame(p.Frame)
	}
}

func (s *FileSink) onMetadata(m *model.EncodedMetadata) {
	s.codecName = m.CodecName
	s.extradata = m.CodecBytes
	if m.ImageSize != nil {
		s.width, s.height = m.ImageSize.Width, m.ImageSize.Height
		s.sizeKnown = true
	}
}

func (s *FileSink) onFrame(f *model.EncodedFrame) {
	if !s.sizeKnown {
		w, h, err := s.cfg.Prober.Probe(s.codecName, s.extradata, f.Bytes)
		if err != nil {
			return
		}
		s.width, s.height = w, h
		s.sizeKnown = true
	}

	segmentExceeded := !s.segStart.IsZero() && time.Since(s.segStart) >= s.cfg.SegmentDuration
	if f.KeyFrame && (s.muxer == nil || segmentExceeded) {
		s.rotateSegment()
	}
	if s.muxer == nil {
		return
	}

	ptsMs := int64(f.PTS * 1000)
	if !s.haveFirst {
		s.segFirstPTS = ptsMs
		s.haveFirst = true
	}
	_ = s.muxer.WritePacket(f.Bytes, ptsMs-s.segFirstPTS, f.KeyFrame)
}

func (s *FileSink) rotateSegment() {
	startMs := int64(0)
	if s.haveFirst {
		startMs = s.segFirstPTS
	}
	s.closeSegment(startMs)

	if s.cfg.Logger != nil {
		util.CheckDiskSpace(s.cfg.Dir, func(format string, args ...any) {
			s.cfg.Logger.Warn(fmt.Sprintf(format, args...))
		})
	}

	tempDir := filepath.Join(s.cfg.Dir, "temp-recordings")
	tempPath, err := util.RandomTempFilePath(tempDir, s.cfg.Ext)
	if err != nil {
		return
	}
	muxer := s.cfg.NewMuxer()
	if err := muxer.Open(tempPath, s.codecName, s.extradata, s.width, s.height); err != nil {
		return
	}
	s.muxer = muxer
	s.tempPath = tempPath
	s.segStart = time.Now()
	s.haveFirst = false
}

func (s *FileSink) closeSegment(startMs int64) {
	if s.muxer == nil {
		return
	}
	endMs := startMs
	if s.haveFirst {
		endMs = s.segFirstPTS
	}
	_ = s.muxer.Close()
	finalPath := filepath.Join(s.cfg.Dir, fmt.Sprintf("%s-%d-%d%s", s.cfg.Stem, startMs, endMs, s.cfg.Ext))
	_ = os.Rename(s.tempPath, finalPath)
	s.muxer = nil
}

func (s *FileSink) OnComplete() {
	if s.muxer != nil {
		s.closeSegment(s.segFirstPTS)
	}
}

func (s *FileSink) OnError(error) {
	if s.muxer != nil {
		s.closeSegment(s.segFirstPTS)
	}
}
