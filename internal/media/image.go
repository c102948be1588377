package media

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/videobot/runtime/internal/errs"
	"github.com/videobot/runtime/internal/model"
	"github.com/videobot/runtime/internal/streams"
	"github.com/videobot/runtime/internal/telemetry"
)

// BoundingBox is the target decode size; Width/Height of -1 means
// "original" (no scaling).
type BoundingBox struct {
	Width, Height   int
	KeepAspectRatio bool
}

// ImageDecodeStats are the counters and histograms spec section 4.4.2
// names for decode_image_frames.
type ImageDecodeStats struct {
	ReceivedMessages atomic.Int64
	ReceivedBytes    atomic.Int64
	DroppedMessages  atomic.Int64
	ReceivedFrames   atomic.Int64

	SendPacketLatencyMs   prometheus.Observer
	ReceiveFrameLatencyMs prometheus.Observer
	errorCounter          func(code string)
}

// NewImageDecodeStats builds the counters/histograms for one
// decode_image_frames instance, registered under reg.
func NewImageDecodeStats(reg *telemetry.Registry) *ImageDecodeStats {
	s := &ImageDecodeStats{}
	if reg == nil {
		return s
	}
	s.SendPacketLatencyMs = reg.Histogram("media_decode_send_packet_latency_ms",
		"Latency from encoded_frame arrival to decoder push, in milliseconds.",
		telemetry.LatencyBucketsMillis, nil)
	s.ReceiveFrameLatencyMs = reg.Histogram("media_decode_receive_frame_latency_ms",
		"Latency from decoder push to raw frame yield, in milliseconds.",
		telemetry.LatencyBucketsMillis, nil)
	s.errorCounter = func(code string) {
		reg.Counter("media_decode_errors_total", "Decode errors by code.", []string{"code"}, code).Inc()
	}
	return s
}

type imageDecodeState struct {
	mu sync.Mutex

	box         BoundingBox
	pixelFormat model.PixelFormat
	decoder     Decoder

	currentCodec string
	currentBytes []byte
	filterGraph  string

	pendingIDs []model.FrameID
	stats      *ImageDecodeStats
}

// DecodeImageFrames decodes encoded_packets into owned image frames per
// spec section 4.4.2: decoder (re)initialization on metadata change, a
// filter graph built once per run from rotation/scale/pixel-format, and
// the pending-ids FIFO with key-frame resync.
func DecodeImageFrames(upstream streams.Publisher[model.EncodedPacket], box BoundingBox, pixelFormat model.PixelFormat, decoder Decoder, stats *ImageDecodeStats) streams.Publisher[model.OwnedImagePacket] {
	if stats == nil {
		stats = &ImageDecodeStats{}
	}
	state := &imageDecodeState{box: box, pixelFormat: pixelFormat, decoder: decoder, stats: stats}

	return streams.FlatMap(upstream, func(p model.EncodedPacket) streams.Publisher[model.OwnedImagePacket] {
		out, err := state.handle(p)
		if err != nil {
			return streams.Error[model.OwnedImagePacket](err)
		}
		return streams.Of(out...)
	})
}

func (s *imageDecodeState) handle(p model.EncodedPacket) ([]model.OwnedImagePacket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case p.Metadata != nil:
		return s.handleMetadataLocked(p.Metadata)
	case p.Frame != nil:
		return s.handleFrameLocked(p.Frame)
	default:
		return nil, nil
	}
}

func (s *imageDecodeState) handleMetadataLocked(m *model.EncodedMetadata) ([]model.OwnedImagePacket, error) {
	if s.currentCodec == m.CodecName && bytesEqual(s.currentBytes, m.CodecBytes) {
		return nil, nil
	}
	s.filterGraph = buildFilterGraph(s.box, s.pixelFormat, m.Extra)
	if err := s.decoder.Init(m.CodecName, m.CodecBytes, s.filterGraph, outputDims(s.box)); err != nil {
		return nil, err
	}
	s.currentCodec = m.CodecName
	s.currentBytes = append([]byte(nil), m.CodecBytes...)
	s.pendingIDs = nil
	return []model.OwnedImagePacket{{Metadata: &model.OwnedImageMetadata{
		PixelFormat: s.pixelFormat,
		Width:       uint32(boxDim(s.box.Width)),
		Height:      uint32(boxDim(s.box.Height)),
	}}}, nil
}

func outputDims(box BoundingBox) (int, int) { return boxDim(box.Width), boxDim(box.Height) }

func boxDim(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (s *imageDecodeState) handleFrameLocked(f *model.EncodedFrame) ([]model.OwnedImagePacket, error) {
	if s.currentCodec == "" {
		s.stats.DroppedMessages.Add(1)
		return nil, nil
	}
	s.stats.ReceivedMessages.Add(1)
	s.stats.ReceivedBytes.Add(int64(len(f.Bytes)))
	s.pendingIDs = append(s.pendingIDs, f.ID)

	raw, err := s.decoder.Push(f.Bytes, int64(f.PTS*1000), f.KeyFrame)
	if err != nil {
		if errs.IsFrameNotReady(err) {
			return nil, nil
		}
		s.stats.DroppedMessages.Add(1)
		if s.stats.errorCounter != nil {
			s.stats.errorCounter(errorCode(err))
		}
		return nil, nil
	}

	out := make([]model.OwnedImagePacket, 0, len(raw))
	for _, rf := range raw {
		id := s.resolveID(rf)
		s.stats.ReceivedFrames.Add(1)
		out = append(out, model.OwnedImagePacket{Frame: &model.OwnedImageFrame{
			ID:          id,
			PixelFormat: s.pixelFormat,
			Width:       rf.Width,
			Height:      rf.Height,
			PTS:         f.PTS,
			Planes:      rf.Planes,
		}})
	}
	return out, nil
}

// resolveID pops the head of pending_ids per spec's key-frame resync
// rule: on a key frame, pop until the head's I1 matches the decoder's
// reported packet position, or the FIFO drains. If empty, synthesize an
// id from (packet_pos, packet_pos+packet_duration).
func (s *imageDecodeState) resolveID(rf DecodedFrame) model.FrameID {
	if len(s.pendingIDs) == 0 {
		return model.FrameID{I1: rf.PacketPos, I2: rf.PacketPos + rf.PacketDuration}
	}
	if rf.KeyFrame {
		for len(s.pendingIDs) > 0 && s.pendingIDs[0].I1 != rf.PacketPos {
			s.pendingIDs = s.pendingIDs[1:]
		}
		if len(s.pendingIDs) == 0 {
			return model.FrameID{I1: rf.PacketPos, I2: rf.PacketPos + rf.PacketDuration}
		}
	}
	id := s.pendingIDs[0]
	s.pendingIDs = s.pendingIDs[1:]
	return id
}

// buildFilterGraph constructs the ffmpeg filter-graph string from an
// optional rotation hint, the bounding box, and the output pixel format,
// joined by commas, built once per decoder (re)initialization.
func buildFilterGraph(box BoundingBox, pf model.PixelFormat, extra map[string]any) string {
	var parts []string
	if rot, ok := extra["display_rotation"]; ok {
		parts = append(parts, rotationFilter(rot))
	}
	if box.Width > 0 && box.Height > 0 {
		scale := fmt.Sprintf("scale=w=%d:h=%d", box.Width, box.Height)
		if box.KeepAspectRatio {
			scale += ":force_original_aspect_ratio=decrease"
		}
		parts = append(parts, scale)
	}
	parts = append(parts, "format="+pixelFormatFilterName(pf))
	return strings.Join(parts, ",")
}

func rotationFilter(v any) string {
	var deg float64
	switch n := v.(type) {
	case int:
		deg = float64(n)
	case int64:
		deg = float64(n)
	case float64:
		deg = n
	default:
		return ""
	}
	switch deg {
	case 90:
		return "transpose=clock"
	case 180:
		return "hflip,vflip"
	case 270:
		return "transpose=cclock"
	default:
		return fmt.Sprintf("rotate=%g*PI/180", deg)
	}
}

func errorCode(err error) string {
	switch {
	case errs.IsTimeout(err):
		return "timeout"
	case errs.IsEndOfStream(err):
		return "end_of_stream"
	default:
		return "frame_generation"
	}
}

func pixelFormatFilterName(pf model.PixelFormat) string {
	switch pf {
	case model.PixelFormatBGR:
		return "bgr24"
	default:
		return "rgb0"
	}
}
