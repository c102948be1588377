package media

import (
	"testing"

	"github.com/videobot/runtime/internal/model"
	"github.com/videobot/runtime/internal/streams"
)

// fakeDecoder is a Decoder test double that decodes 1:1 and lets the
// test script control packet_pos/packet_duration per call, so the
// resync rule around key frames can be exercised deterministically.
type fakeDecoder struct {
	calls    int
	nextPos  []int64
	nextDur  []int64
	keyFrame []bool
}

func (f *fakeDecoder) Init(codecName string, extradata []byte, filterGraph string, w, h int) error {
	return nil
}

func (f *fakeDecoder) Push(data []byte, ptsMillis int64, keyFrame bool) ([]DecodedFrame, error) {
	i := f.calls
	f.calls++
	return []DecodedFrame{{
		Width: 4, Height: 4,
		PacketPos:      f.nextPos[i],
		PacketDuration: f.nextDur[i],
		KeyFrame:       keyFrame,
	}}, nil
}

func (f *fakeDecoder) Close() error { return nil }

func metaPacket(codec string) model.EncodedPacket {
	return model.EncodedPacket{Metadata: &model.EncodedMetadata{CodecName: codec, CodecBytes: []byte{}}}
}

func framePacket(id model.FrameID, key bool) model.EncodedPacket {
	return model.EncodedPacket{Frame: &model.EncodedFrame{Bytes: []byte{1, 2, 3}, ID: id, KeyFrame: key}}
}

// TestDecodeIDPreservation is invariant 6: ids fed in order come out in
// the same order, one-to-one, absent any resync gap.
func TestDecodeIDPreservation(t *testing.T) {
	fd := &fakeDecoder{
		nextPos: []int64{0, 10, 20},
		nextDur: []int64{10, 10, 10},
	}
	packets := []model.EncodedPacket{
		metaPacket("vp9"),
		framePacket(model.FrameID{I1: 0, I2: 10}, false),
		framePacket(model.FrameID{I1: 10, I2: 20}, false),
		framePacket(model.FrameID{I1: 20, I2: 30}, false),
	}
	out := DecodeImageFrames(streams.Of(packets...), BoundingBox{Width: 4, Height: 4}, model.PixelFormatRGB0, fd, nil)
	coll := streams.NewCollectingSubscriber[model.OwnedImagePacket](0)
	out.Subscribe(coll)
	coll.Wait()

	var ids []model.FrameID
	for _, item := range coll.Items() {
		if item.Frame != nil {
			ids = append(ids, item.Frame.ID)
		}
	}
	want := []model.FrameID{{I1: 0, I2: 10}, {I1: 10, I2: 20}, {I1: 20, I2: 30}}
	if len(ids) != len(want) {
		t.Fatalf("expected %d ids, got %d (%v)", len(want), len(ids), ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("id[%d] = %v, want %v", i, ids[i], want[i])
		}
	}
}

// TestDecodeKeyFrameResync exercises the resync rule: a key frame whose
// decoder-reported packet_pos doesn't match the FIFO head pops ids until
// it finds a match (or synthesizes one if the FIFO drains).
func TestDecodeKeyFrameResync(t *testing.T) {
	fd := &fakeDecoder{
		nextPos: []int64{0, 999},
		nextDur: []int64{10, 10},
	}
	packets := []model.EncodedPacket{
		metaPacket("vp9"),
		framePacket(model.FrameID{I1: 0, I2: 10}, false),
		framePacket(model.FrameID{I1: 10, I2: 20}, true), // stale id; decoder reports pos 999
	}
	out := DecodeImageFrames(streams.Of(packets...), BoundingBox{Width: 4, Height: 4}, model.PixelFormatRGB0, fd, nil)
	coll := streams.NewCollectingSubscriber[model.OwnedImagePacket](0)
	out.Subscribe(coll)
	coll.Wait()

	var ids []model.FrameID
	for _, item := range coll.Items() {
		if item.Frame != nil {
			ids = append(ids, item.Frame.ID)
		}
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 frames, got %d (%v)", len(ids), ids)
	}
	// The second frame's FIFO head (10,20) doesn't match packet_pos 999,
	// the FIFO drains, and a synthesized id (999,1009) is used instead.
	if ids[1] != (model.FrameID{I1: 999, I2: 1009}) {
		t.Fatalf("expected synthesized id (999,1009), got %v", ids[1])
	}
}
