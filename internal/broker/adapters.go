package broker

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/videobot/runtime/internal/model"
	"github.com/videobot/runtime/internal/streams"
	"github.com/videobot/runtime/internal/wire"
)

// ChannelData is one subscription/data delivery: the raw messages a
// broker channel produced.
type ChannelData struct {
	Channel  string
	Messages []json.RawMessage
}

// ChannelStream turns a held subscription into a Publisher[ChannelData]
// via an async generator that holds the subscription for its lifetime and
// unsubscribes on cancel.
func ChannelStream(client Client, name string, opts *SubscribeOptions) streams.Publisher[ChannelData] {
	pub, emitter := streams.NewEmitter[ChannelData]()
	handle := uuid.NewString()
	emitter.OnCancel(func() { _ = client.Unsubscribe(handle) })

	return streams.PublisherFunc[ChannelData](func(down streams.Subscriber[ChannelData]) {
		err := client.Subscribe(name, handle, SubscribeCallbacks{
			OnData: func(messages []json.RawMessage) {
				emitter.Push(ChannelData{Channel: name, Messages: messages})
			},
			OnError: func(err error) { emitter.Fail(err) },
		}, opts)
		if err != nil {
			emitter.Fail(err)
		}
		pub.Subscribe(down)
	})
}

// frameWire is the wire shape of a network_frame (spec §6).
type frameWire struct {
	D  string  `json:"d"`
	I  [2]int64 `json:"i"`
	T  float64 `json:"t"`
	Dt float64 `json:"dt"`
	C  int     `json:"c"`
	L  int     `json:"l"`
	K  bool    `json:"k"`
}

// metadataWire is the wire shape of a network_metadata (spec §6), plus any
// additional fields carried under Extra.
type metadataWire struct {
	CodecName string `json:"codecName"`
	CodecData string `json:"codecData"`
}

// RTMSource merges a history-age-1 metadata sub-channel ("<name>/metadata")
// with the frames channel ("<name>") into a single Publisher[NetworkPacket].
func RTMSource(client Client, name string) streams.Publisher[model.NetworkPacket] {
	metaOpts := &SubscribeOptions{HistoryAge: 1}
	metaPackets := streams.Map(ChannelStream(client, name+SuffixMetadata, metaOpts), parseMetadataPackets)
	framePackets := streams.Map(ChannelStream(client, name, nil), parseFramePackets)

	return streams.Merge[model.NetworkPacket](
		streams.Flatten(metaPackets),
		streams.Flatten(framePackets),
	)
}

func parseMetadataPackets(d ChannelData) []model.NetworkPacket {
	out := make([]model.NetworkPacket, 0, len(d.Messages))
	for _, raw := range d.Messages {
		var mw metadataWire
		extra := map[string]any{}
		if err := json.Unmarshal(raw, &mw); err != nil {
			continue
		}
		_ = json.Unmarshal(raw, &extra)
		delete(extra, "codecName")
		delete(extra, "codecData")
		out = append(out, model.NetworkPacket{Metadata: &model.NetworkMetadata{
			CodecName:   mw.CodecName,
			Base64Codec: mw.CodecData,
			Extra:       extra,
		}})
	}
	return out
}

func parseFramePackets(d ChannelData) []model.NetworkPacket {
	out := make([]model.NetworkPacket, 0, len(d.Messages))
	for _, raw := range d.Messages {
		var fw frameWire
		if err := json.Unmarshal(raw, &fw); err != nil {
			continue
		}
		out = append(out, model.NetworkPacket{Frame: &model.NetworkFrame{
			Base64Data:  fw.D,
			ID:          model.FrameID{I1: fw.I[0], I2: fw.I[1]},
			PTS:         fw.T,
			DepartureTS: fw.Dt,
			Chunk:       fw.C,
			Chunks:      fw.L,
			KeyFrame:    fw.K,
		}})
	}
	return out
}

// RTMSink publishes an encoded_packet stream to the broker: metadata to
// the metadata sub-channel, and each chunked network_frame of an
// encoded_frame to the frames channel. The per-message size limit (spec
// GLOSSARY: 65000 bytes) determines the chunk count.
type RTMSink struct {
	client      Client
	name        string
	chunkLimit  int
}

const defaultChunkLimit = 65000

// NewRTMSink returns a subscriber that publishes encoded packets to the
// broker under name.
func NewRTMSink(client Client, name string) *RTMSink {
	return &RTMSink{client: client, name: name, chunkLimit: defaultChunkLimit}
}

func (s *RTMSink) OnSubscribe(sub streams.Subscription) { sub.Request(1 << 62) }

func (s *RTMSink) OnNext(p model.EncodedPacket) {
	switch {
	case p.Metadata != nil:
		s.publishMetadata(p.Metadata)
	case p.Frame != nil:
		s.publishFrame(p.Frame)
	}
}

func (s *RTMSink) OnComplete() {}
func (s *RTMSink) OnError(error) {}

func (s *RTMSink) publishMetadata(m *model.EncodedMetadata) {
	msg := map[string]any{
		"codecName": m.CodecName,
		"codecData": wire.Base64Encode(m.CodecBytes),
	}
	for k, v := range m.Extra {
		msg[k] = v
	}
	s.client.Publish(s.name+SuffixMetadata, msg, nil)
}

func (s *RTMSink) publishFrame(f *model.EncodedFrame) {
	encoded := wire.Base64Encode(f.Bytes)
	chunks := chunkString(encoded, s.chunkLimit)
	total := len(chunks)
	for i, chunk := range chunks {
		msg := frameWire{
			D: chunk,
			I: [2]int64{f.ID.I1, f.ID.I2},
			T: f.PTS,
			C: i + 1,
			L: total,
			K: f.KeyFrame,
		}
		s.client.Publish(s.name, msg, nil)
	}
}

func chunkString(s string, limit int) []string {
	if limit <= 0 || len(s) <= limit {
		return []string{s}
	}
	var chunks []string
	for len(s) > limit {
		chunks = append(chunks, s[:limit])
		s = s[limit:]
	}
	if len(s) > 0 {
		chunks = append(chunks, s)
	}
	return chunks
}
