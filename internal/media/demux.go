package media

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"

	"github.com/videobot/runtime/internal/errs"
)

// ivfHeaderSize is the fixed 32-byte IVF container header; ivfFrameHeaderSize
// is the 12-byte per-packet header (4-byte size, 8-byte timestamp).
const (
	ivfHeaderSize      = 32
	ivfFrameHeaderSize = 12
)

// FFmpegDemuxer is the concrete Demuxer for file/url/camera sources: it
// shells out to ffprobe once to learn the codec, then to ffmpeg in
// stream-copy mode remuxed to IVF on stdout, parsed frame by frame. Same
// process-pipe idiom as FFmpegDecoder/VPXEncoder, applied to demuxing.
type FFmpegDemuxer struct {
	path      string
	inputArgs []string // extra ffmpeg input args, e.g. "-f v4l2" for a camera device

	cmd       *exec.Cmd
	stdout    *bufio.Reader
	codecName string
	timebase  float64 // seconds per IVF timestamp tick
	pos       int64
}

// NewFFmpegDemuxer returns an unopened demuxer reading path (a file path
// or URL ffmpeg understands natively).
func NewFFmpegDemuxer(path string) *FFmpegDemuxer {
	return &FFmpegDemuxer{path: path}
}

// NewFFmpegCameraDemuxer returns an unopened demuxer reading a capture
// device through ffmpeg's v4l2 input.
func NewFFmpegCameraDemuxer(device string) *FFmpegDemuxer {
	return &FFmpegDemuxer{path: device, inputArgs: []string{"-f", "v4l2"}}
}

func (d *FFmpegDemuxer) Open() (string, []byte, error) {
	codecName, err := probeCodecName(d.path, d.inputArgs)
	if err != nil {
		return "", nil, err
	}
	if err := d.startRemux(); err != nil {
		return "", nil, err
	}
	d.codecName = codecName
	return codecName, nil, nil
}

func (d *FFmpegDemuxer) startRemux() error {
	args := append([]string{"-hide_banner", "-loglevel", "error"}, d.inputArgs...)
	args = append(args, "-i", d.path, "-c", "copy", "-f", "ivf", "pipe:1")
	cmd := exec.Command("ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errs.NewStreamInit("media.file_source", err)
	}
	if err := cmd.Start(); err != nil {
		return errs.NewStreamInit("media.file_source", err)
	}
	d.cmd = cmd
	d.stdout = bufio.NewReaderSize(stdout, 1<<20)
	d.pos = 0

	header := make([]byte, ivfHeaderSize)
	if _, err := io.ReadFull(d.stdout, header); err != nil {
		return errs.NewStreamInit("media.file_source", fmt.Errorf("reading ivf header: %w", err))
	}
	num := binary.LittleEndian.Uint32(header[16:20])
	den := binary.LittleEndian.Uint32(header[20:24])
	if num == 0 {
		num = 1
	}
	d.timebase = float64(den) / float64(num)
	return nil
}

func (d *FFmpegDemuxer) ReadPacket() (data []byte, pos int64, pts float64, keyFrame bool, err error) {
	if d.stdout == nil {
		return nil, 0, 0, false, errs.NewNotInitialized("media.file_source")
	}
	hdr := make([]byte, ivfFrameHeaderSize)
	if _, err := io.ReadFull(d.stdout, hdr); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, 0, 0, false, io.EOF
		}
		return nil, 0, 0, false, errs.NewFrameGeneration("media.file_source", err)
	}
	size := binary.LittleEndian.Uint32(hdr[0:4])
	ticks := int64(binary.LittleEndian.Uint64(hdr[4:12]))

	buf := make([]byte, size)
	if _, err := io.ReadFull(d.stdout, buf); err != nil {
		return nil, 0, 0, false, errs.NewFrameGeneration("media.file_source", err)
	}

	pos = d.pos
	d.pos += int64(size)
	pts = float64(ticks) * d.timebase
	return buf, pos, pts, isKeyFrameVP9(buf), nil
}

// SeekStart restarts the remux subprocess from the beginning, used for
// looping file/url sources.
func (d *FFmpegDemuxer) SeekStart() error {
	_ = d.closeProcess()
	return d.startRemux()
}

func (d *FFmpegDemuxer) Close() error { return d.closeProcess() }

func (d *FFmpegDemuxer) closeProcess() error {
	if d.cmd == nil {
		return nil
	}
	_ = d.cmd.Process.Kill()
	err := d.cmd.Wait()
	d.cmd = nil
	d.stdout = nil
	return err
}

func probeCodecName(path string, inputArgs []string) (string, error) {
	args := append([]string{"-hide_banner", "-loglevel", "error"}, inputArgs...)
	args = append(args,
		"-select_streams", "v:0",
		"-show_entries", "stream=codec_name",
		"-of", "json",
		"-i", path,
	)
	out, err := exec.Command("ffprobe", args...).Output()
	if err != nil {
		return "", errs.NewStreamInit("media.file_source", err)
	}
	var parsed struct {
		Streams []struct {
			CodecName string `json:"codec_name"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(out, &parsed); err != nil || len(parsed.Streams) == 0 {
		return "", errs.NewStreamInit("media.file_source", fmt.Errorf("ffprobe found no video stream in %s", path))
	}
	return parsed.Streams[0].CodecName, nil
}
