package media

import (
	"bufio"
	"io"
	"os/exec"
	"sync"

	"github.com/videobot/runtime/internal/errs"
	"github.com/videobot/runtime/internal/model"
)

// DecodedFrame is one raw frame a Decoder yields, with enough
// decoder-reported positional data to drive the id-resync rule in spec
// section 4.4.2.
type DecodedFrame struct {
	Planes         [model.MaxImagePlanes]model.ImagePlane
	Width, Height  uint32
	PacketPos      int64
	PacketDuration int64
	KeyFrame       bool
}

// Decoder abstracts the pixel-level decode work; the surrounding stage
// owns all protocol state (pending ids, resync, filter graph, counters).
// FFmpegDecoder is the concrete shell-out implementation; a test fake
// stands in for unit tests that don't need a real codec.
type Decoder interface {
	// Init (re)initializes the decoder for codecName with extradata and
	// the given output filter graph (built once per spec 4.4.2). outWidth
	// and outHeight are the post-filter frame dimensions, known from the
	// stage's bounding box before any frame is decoded.
	Init(codecName string, extradata []byte, filterGraph string, outWidth, outHeight int) error
	// Push feeds one encoded frame at ptsMillis and returns any raw
	// frames the decoder was ready to emit. Returns errs.FrameNotReady
	// (via errs.NewFrameNotReady) when it consumed input but has
	// nothing ready yet; that is not a failure.
	Push(data []byte, ptsMillis int64, keyFrame bool) ([]DecodedFrame, error)
	Close() error
}

// FFmpegDecoder drives an ffmpeg subprocess as a raw-frame pipe decoder:
// encoded Annex-B/IVF-ish packets go in on stdin, raw packed bgr0 frames
// (4 bytes per pixel, a single plane) come out on stdout. Matches the teacher's
// os/exec command-building style applied to
// decode instead of encode.
type FFmpegDecoder struct {
	mu          sync.Mutex
	cmd         *exec.Cmd
	stdin       io.WriteCloser
	stdout      *bufio.Reader
	frameBytes  int
	width       int
	height      int
	packetPos   int64
}

// NewFFmpegDecoder returns an unstarted decoder; call Init to start it.
func NewFFmpegDecoder() *FFmpegDecoder { return &FFmpegDecoder{} }

func (d *FFmpegDecoder) Init(codecName string, extradata []byte, filterGraph string, outWidth, outHeight int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cmd != nil {
		_ = d.closeLocked()
	}

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", codecContainerFormat(codecName),
		"-i", "pipe:0",
	}
	if filterGraph != "" {
		args = append(args, "-vf", filterGraph)
	}
	args = append(args, "-pix_fmt", "bgr0", "-f", "rawvideo", "pipe:1")

	cmd := exec.Command("ffmpeg", args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return errs.NewStreamInit("media.decode_image_frames", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errs.NewStreamInit("media.decode_image_frames", err)
	}
	if err := cmd.Start(); err != nil {
		return errs.NewStreamInit("media.decode_image_frames", err)
	}

	d.cmd = cmd
	d.stdin = stdin
	d.stdout = bufio.NewReaderSize(stdout, 1<<20)
	d.packetPos = 0
	d.width = outWidth
	d.height = outHeight
	d.frameBytes = outWidth * outHeight * 4
	return nil
}

func codecContainerFormat(codecName string) string {
	switch codecName {
	case "vp9":
		return "webm"
	case "vp8":
		return "webm"
	case "h264":
		return "h264"
	case "hevc", "h265":
		return "hevc"
	default:
		return codecName
	}
}

func (d *FFmpegDecoder) Push(data []byte, ptsMillis int64, keyFrame bool) ([]DecodedFrame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stdin == nil {
		return nil, errs.NewNotInitialized("media.decode_image_frames")
	}
	pos := d.packetPos
	d.packetPos += int64(len(data)) + 1

	if _, err := d.stdin.Write(data); err != nil {
		return nil, errs.NewFrameGeneration("media.decode_image_frames", err)
	}

	buf := make([]byte, d.frameBytes)
	if _, err := io.ReadFull(d.stdout, buf); err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return nil, errs.NewFrameNotReady("media.decode_image_frames")
		}
		return nil, errs.NewFrameGeneration("media.decode_image_frames", err)
	}

	frame := planarBGR0Frame(buf, uint32(d.width), uint32(d.height))
	frame.PacketPos = pos
	frame.PacketDuration = int64(len(data))
	frame.KeyFrame = keyFrame
	return []DecodedFrame{frame}, nil
}

func planarBGR0Frame(buf []byte, width, height uint32) DecodedFrame {
	stride := int(width) * 4
	var f DecodedFrame
	f.Width, f.Height = width, height
	f.Planes[0] = model.ImagePlane{Bytes: buf, Stride: stride}
	return f
}

func (d *FFmpegDecoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closeLocked()
}

func (d *FFmpegDecoder) closeLocked() error {
	if d.cmd == nil {
		return nil
	}
	if d.stdin != nil {
		_ = d.stdin.Close()
	}
	err := d.cmd.Wait()
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil
	if err != nil {
		return errs.NewStreamInit("media.decode_image_frames", err)
	}
	return nil
}
