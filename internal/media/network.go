// Package media implements the stages between the broker/file transport
// and the bot runtime: chunk reassembly, codec decode/encode, and the
// file/url/camera sources and sinks.
package media

import (
	"strings"
	"sync/atomic"

	"github.com/videobot/runtime/internal/model"
	"github.com/videobot/runtime/internal/streams"
	"github.com/videobot/runtime/internal/wire"
)

// NetworkDecodeStats accumulates counters for a decode_network_stream
// instance; fields are read with atomic loads so a reporter can sample
// them concurrently with the stage's own goroutine.
type NetworkDecodeStats struct {
	ChunksMismatch atomic.Int64
	FramesEmitted  atomic.Int64
}

type networkAccum struct {
	expectedChunk int
	chunks        int
	id            model.FrameID
	pts           float64
	keyFrame      bool
	accum         strings.Builder
}

func (a *networkAccum) reset() {
	a.expectedChunk = 1
	a.chunks = 1
	a.id = model.ZeroID
	a.accum.Reset()
}

// DecodeNetworkStream reassembles chunked network_frame packets into
// whole encoded_frame packets and base64-decodes network_metadata into
// encoded_metadata, per spec section 4.4.1.
func DecodeNetworkStream(upstream streams.Publisher[model.NetworkPacket]) (streams.Publisher[model.EncodedPacket], *NetworkDecodeStats) {
	stats := &NetworkDecodeStats{}
	state := &networkAccum{expectedChunk: 1, chunks: 1, id: model.ZeroID}

	out := streams.FilterMap(upstream, func(p model.NetworkPacket) (model.EncodedPacket, bool) {
		switch {
		case p.Metadata != nil:
			decoded, err := wire.Base64Decode(p.Metadata.Base64Codec)
			if err != nil {
				return model.EncodedPacket{}, false
			}
			return model.EncodedPacket{Metadata: &model.EncodedMetadata{
				CodecName:  p.Metadata.CodecName,
				CodecBytes: decoded,
				Extra:      p.Metadata.Extra,
			}}, true

		case p.Frame != nil:
			f := p.Frame
			if f.Chunk != state.expectedChunk {
				stats.ChunksMismatch.Add(1)
				state.reset()
				return model.EncodedPacket{}, false
			}
			if f.Chunk == 1 {
				state.id = f.ID
				state.pts = f.PTS
				state.keyFrame = f.KeyFrame
				state.chunks = f.Chunks
				state.accum.Reset()
			}
			// Chunks are raw byte-offset slices of one base64 string, so a
			// chunk boundary can fall mid base64-quantum; decode only once,
			// after every chunk of the frame has been concatenated.
			state.accum.WriteString(f.Base64Data)
			if f.Chunk == state.chunks {
				decoded, err := wire.Base64Decode(state.accum.String())
				if err != nil {
					stats.ChunksMismatch.Add(1)
					state.reset()
					return model.EncodedPacket{}, false
				}
				frame := model.EncodedFrame{
					Bytes:    decoded,
					ID:       state.id,
					PTS:      state.pts,
					KeyFrame: state.keyFrame,
				}
				state.reset()
				stats.FramesEmitted.Add(1)
				return model.EncodedPacket{Frame: &frame}, true
			}
			state.expectedChunk++
			return model.EncodedPacket{}, false

		default:
			return model.EncodedPacket{}, false
		}
	})

	return out, stats
}
