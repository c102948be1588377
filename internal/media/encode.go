package media

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/videobot/runtime/internal/errs"
	"github.com/videobot/runtime/internal/model"
	"github.com/videobot/runtime/internal/streams"
)

// Encoder abstracts the pixel-to-bitstream work for encode_vp9; the
// concrete implementation shells out to vpxenc the way the teacher
// shells out to SvtAv1EncApp.
type Encoder interface {
	// Init starts the encoder for frames of the given size, returning
	// the codec name and codec extradata to publish as encoded_metadata.
	Init(width, height uint32, lagInFrames int) (codecName string, extradata []byte, err error)
	// Push feeds one raw frame and returns any packets the encoder
	// produced (lag-in-frames buffering means most pushes return none).
	Push(frame model.OwnedImageFrame) ([]EncodedPacket, error)
	Close() error
}

// EncodedPacket is one bitstream packet an Encoder yields.
type EncodedPacket struct {
	Bytes    []byte
	PTSMs    int64
	KeyFrame bool
}

// VPXEncoder drives a vpxenc subprocess with the fixed configuration
// spec section 4.4.3 mandates: threads=4, frame-parallel, tile-columns=6,
// auto-alt-ref=1, and a caller-supplied lag-in-frames. Packets are read
// back on a dedicated goroutine, since vpxenc buffers lag-in-frames
// worth of input before flushing any IVF packet.
type VPXEncoder struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	width  uint32
	height uint32

	packets chan EncodedPacket
	readErr chan error
}

// NewVPXEncoder returns an unstarted encoder; call Init to start it.
func NewVPXEncoder() *VPXEncoder { return &VPXEncoder{} }

func (e *VPXEncoder) Init(width, height uint32, lagInFrames int) (string, []byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cmd != nil {
		_ = e.closeLocked()
	}

	args := []string{
		"--codec=vp9",
		fmt.Sprintf("--width=%d", width),
		fmt.Sprintf("--height=%d", height),
		"--threads=4",
		"--frame-parallel=1",
		"--tile-columns=6",
		"--auto-alt-ref=1",
		fmt.Sprintf("--lag-in-frames=%d", lagInFrames),
		"-o", "-",
		"-",
	}
	cmd := exec.Command("vpxenc", args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return "", nil, errs.NewStreamInit("media.encode_vp9", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", nil, errs.NewStreamInit("media.encode_vp9", err)
	}
	if err := cmd.Start(); err != nil {
		return "", nil, errs.NewStreamInit("media.encode_vp9", err)
	}

	e.cmd = cmd
	e.stdin = stdin
	e.width, e.height = width, height
	e.packets = make(chan EncodedPacket, 64)
	e.readErr = make(chan error, 1)
	go e.readLoop(bufio.NewReaderSize(stdout, 1<<20))
	return "vp9", nil, nil
}

// readLoop parses the IVF file header once, then one 12-byte frame
// header plus payload per packet, forwarding each to e.packets.
func (e *VPXEncoder) readLoop(r *bufio.Reader) {
	fileHeader := make([]byte, 32)
	if _, err := io.ReadFull(r, fileHeader); err != nil {
		e.readErr <- err
		close(e.packets)
		return
	}
	for {
		hdr := make([]byte, ivfFrameHeaderSize)
		if _, err := io.ReadFull(r, hdr); err != nil {
			e.readErr <- err
			close(e.packets)
			return
		}
		size := uint32(hdr[0]) | uint32(hdr[1])<<8 | uint32(hdr[2])<<16 | uint32(hdr[3])<<24
		ptsMs := int64(hdr[4]) | int64(hdr[5])<<8 | int64(hdr[6])<<16 | int64(hdr[7])<<24 |
			int64(hdr[8])<<32 | int64(hdr[9])<<40 | int64(hdr[10])<<48 | int64(hdr[11])<<56
		payload := make([]byte, size)
		if _, err := io.ReadFull(r, payload); err != nil {
			e.readErr <- err
			close(e.packets)
			return
		}
		e.packets <- EncodedPacket{Bytes: payload, PTSMs: ptsMs, KeyFrame: isKeyFrameVP9(payload)}
	}
}

// isKeyFrameVP9 inspects the uncompressed VP9 frame-marker byte; bit 2
// (the "frame type" bit, 0 = key frame) tells key frames apart from
// inter frames without a full bitstream parse.
func isKeyFrameVP9(payload []byte) bool {
	if len(payload) == 0 {
		return false
	}
	return payload[0]&0x04 == 0
}

func (e *VPXEncoder) Push(frame model.OwnedImageFrame) ([]EncodedPacket, error) {
	e.mu.Lock()
	stdin := e.stdin
	e.mu.Unlock()
	if stdin == nil {
		return nil, errs.NewNotInitialized("media.encode_vp9")
	}
	for i := 0; i < len(frame.Planes) && frame.Planes[i].Bytes != nil; i++ {
		if _, err := stdin.Write(frame.Planes[i].Bytes); err != nil {
			return nil, errs.NewFrameGeneration("media.encode_vp9", err)
		}
	}

	var out []EncodedPacket
	for {
		select {
		case pkt, ok := <-e.packets:
			if !ok {
				return out, nil
			}
			out = append(out, pkt)
		default:
			if len(out) == 0 {
				return nil, errs.NewFrameNotReady("media.encode_vp9")
			}
			return out, nil
		}
	}
}

func (e *VPXEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closeLocked()
}

func (e *VPXEncoder) closeLocked() error {
	if e.cmd == nil {
		return nil
	}
	if e.stdin != nil {
		_ = e.stdin.Close()
	}
	err := e.cmd.Wait()
	e.cmd, e.stdin = nil, nil
	if err != nil {
		return errs.NewStreamInit("media.encode_vp9", err)
	}
	return nil
}

type vp9EncodeState struct {
	mu          sync.Mutex
	encoder     Encoder
	initialized bool
	lagInFrames int
}

// EncodeVP9 builds an encode_vp9 stage per spec section 4.4.3: on the
// first raw frame it initializes the encoder and emits one
// encoded_metadata, then emits one encoded_frame per packet the encoder
// produces thereafter.
func EncodeVP9(upstream streams.Publisher[model.OwnedImagePacket], lagInFrames int, encoder Encoder) streams.Publisher[model.EncodedPacket] {
	state := &vp9EncodeState{encoder: encoder, lagInFrames: lagInFrames}

	return streams.FlatMap(upstream, func(p model.OwnedImagePacket) streams.Publisher[model.EncodedPacket] {
		if p.Frame == nil {
			return streams.Empty[model.EncodedPacket]()
		}
		out, err := state.handle(p.Frame)
		if err != nil {
			return streams.Error[model.EncodedPacket](err)
		}
		return streams.Of(out...)
	})
}

func (s *vp9EncodeState) handle(f *model.OwnedImageFrame) ([]model.EncodedPacket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.EncodedPacket
	if !s.initialized {
		codecName, extradata, err := s.encoder.Init(f.Width, f.Height, s.lagInFrames)
		if err != nil {
			return nil, err
		}
		s.initialized = true
		out = append(out, model.EncodedPacket{Metadata: &model.EncodedMetadata{
			CodecName:  codecName,
			CodecBytes: extradata,
			ImageSize:  &model.ImageSize{Width: f.Width, Height: f.Height},
		}})
	}

	packets, err := s.encoder.Push(*f)
	if err != nil {
		if errs.IsFrameNotReady(err) {
			return out, nil
		}
		return out, err
	}
	for _, pkt := range packets {
		out = append(out, model.EncodedPacket{Frame: &model.EncodedFrame{
			Bytes:    pkt.Bytes,
			PTS:      float64(pkt.PTSMs) / 1000,
			KeyFrame: pkt.KeyFrame,
		}})
	}
	return out, nil
}
