package media

import (
	"testing"

	"github.com/videobot/runtime/internal/model"
	"github.com/videobot/runtime/internal/streams"
)

// TestChunkReassembly is scenario S1: three in-order chunks sharing id
// (0,10) reassemble into one encoded_frame, and the preceding metadata
// decodes to an empty codec_bytes slice.
func TestChunkReassembly(t *testing.T) {
	packets := []model.NetworkPacket{
		{Metadata: &model.NetworkMetadata{CodecName: "vp9", Base64Codec: ""}},
		{Frame: &model.NetworkFrame{Base64Data: "aGVs", ID: model.FrameID{I1: 0, I2: 10}, Chunk: 1, Chunks: 3}},
		{Frame: &model.NetworkFrame{Base64Data: "bG8g", Chunk: 2, Chunks: 3}},
		{Frame: &model.NetworkFrame{Base64Data: "d29ybGQ=", Chunk: 3, Chunks: 3}},
	}

	out, stats := DecodeNetworkStream(streams.Of(packets...))
	coll := streams.NewCollectingSubscriber[model.EncodedPacket](0)
	out.Subscribe(coll)
	coll.Wait()

	if !coll.Completed() {
		t.Fatalf("expected completion, got err %v", coll.Err())
	}
	items := coll.Items()
	if len(items) != 2 {
		t.Fatalf("expected 2 emitted packets (metadata + frame), got %d", len(items))
	}
	if items[0].Metadata == nil || items[0].Metadata.CodecName != "vp9" || len(items[0].Metadata.CodecBytes) != 0 {
		t.Fatalf("unexpected metadata packet: %+v", items[0])
	}
	frame := items[1].Frame
	if frame == nil {
		t.Fatalf("expected a frame packet, got %+v", items[1])
	}
	if string(frame.Bytes) != "hello world" {
		t.Fatalf("expected reassembled bytes %q, got %q", "hello world", frame.Bytes)
	}
	if frame.ID != (model.FrameID{I1: 0, I2: 10}) {
		t.Fatalf("expected id (0,10), got %v", frame.ID)
	}
	if stats.FramesEmitted.Load() != 1 {
		t.Fatalf("expected 1 frame emitted counter, got %d", stats.FramesEmitted.Load())
	}
	if stats.ChunksMismatch.Load() != 0 {
		t.Fatalf("expected 0 mismatches, got %d", stats.ChunksMismatch.Load())
	}
}

// TestOutOfOrderDrop is scenario S2: chunk 1 followed by chunk 3 (skipping
// chunk 2) increments chunks_mismatch exactly once and emits no frame.
func TestOutOfOrderDrop(t *testing.T) {
	packets := []model.NetworkPacket{
		{Frame: &model.NetworkFrame{Base64Data: "aGVs", Chunk: 1, Chunks: 3}},
		{Frame: &model.NetworkFrame{Base64Data: "d29ybGQ=", Chunk: 3, Chunks: 3}},
	}

	out, stats := DecodeNetworkStream(streams.Of(packets...))
	coll := streams.NewCollectingSubscriber[model.EncodedPacket](0)
	out.Subscribe(coll)
	coll.Wait()

	if !coll.Completed() {
		t.Fatalf("expected completion, got err %v", coll.Err())
	}
	if len(coll.Items()) != 0 {
		t.Fatalf("expected no encoded_frame emitted, got %d items", len(coll.Items()))
	}
	if stats.ChunksMismatch.Load() != 1 {
		t.Fatalf("expected exactly 1 chunks_mismatch increment, got %d", stats.ChunksMismatch.Load())
	}
}

// TestChunkReassemblyArbitraryLength exercises invariant 5 beyond the
// fixed S1 fixture: any in-order chunk sequence reassembles to the
// base64-decoded concatenation of its payloads.
func TestChunkReassemblyArbitraryLength(t *testing.T) {
	packets := []model.NetworkPacket{
		{Frame: &model.NetworkFrame{Base64Data: "Zm9v", ID: model.FrameID{I1: 3, I2: 4}, Chunk: 1, Chunks: 4}},
		{Frame: &model.NetworkFrame{Base64Data: "YmFy", Chunk: 2, Chunks: 4}},
		{Frame: &model.NetworkFrame{Base64Data: "YmF6", Chunk: 3, Chunks: 4}},
		{Frame: &model.NetworkFrame{Base64Data: "cXV4", Chunk: 4, Chunks: 4}},
	}
	out, _ := DecodeNetworkStream(streams.Of(packets...))
	coll := streams.NewCollectingSubscriber[model.EncodedPacket](0)
	out.Subscribe(coll)
	coll.Wait()

	items := coll.Items()
	if len(items) != 1 || items[0].Frame == nil {
		t.Fatalf("expected exactly one frame packet, got %+v", items)
	}
	if got := string(items[0].Frame.Bytes); got != "foobarbazqux" {
		t.Fatalf("expected %q, got %q", "foobarbazqux", got)
	}
}

// TestChunkReassemblyUnalignedSplit covers a chunk split at raw byte
// offsets that don't land on a 4-character base64 quantum boundary, the
// shape chunkString produces once a frame crosses the wire chunk limit.
// Decoding must happen once on the concatenated string, not per chunk.
func TestChunkReassemblyUnalignedSplit(t *testing.T) {
	// base64("hello world") == "aGVsbG8gd29ybGQ=", split 5/5/6 so no
	// chunk boundary falls on a multiple of 4.
	packets := []model.NetworkPacket{
		{Frame: &model.NetworkFrame{Base64Data: "aGVsb", ID: model.FrameID{I1: 1, I2: 1}, Chunk: 1, Chunks: 3}},
		{Frame: &model.NetworkFrame{Base64Data: "G8gd2", Chunk: 2, Chunks: 3}},
		{Frame: &model.NetworkFrame{Base64Data: "9ybGQ=", Chunk: 3, Chunks: 3}},
	}
	out, stats := DecodeNetworkStream(streams.Of(packets...))
	coll := streams.NewCollectingSubscriber[model.EncodedPacket](0)
	out.Subscribe(coll)
	coll.Wait()

	items := coll.Items()
	if len(items) != 1 || items[0].Frame == nil {
		t.Fatalf("expected exactly one frame packet, got %+v", items)
	}
	if got := string(items[0].Frame.Bytes); got != "hello world" {
		t.Fatalf("expected %q, got %q", "hello world", got)
	}
	if stats.ChunksMismatch.Load() != 0 {
		t.Fatalf("expected 0 mismatches, got %d", stats.ChunksMismatch.Load())
	}
}
