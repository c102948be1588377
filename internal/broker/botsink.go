package broker

import (
	"github.com/videobot/runtime/internal/model"
	"github.com/videobot/runtime/internal/streams"
)

// BotSink publishes the message half of a bot_output stream to a broker,
// fanning out by message kind: analysis to "<name>/analysis", debug to
// "<name>/debug", and control responses to the literal "control" channel.
// The frame half is consumed by the encode/sink side of the pipeline
// instead, so BotSink ignores it.
type BotSink struct {
	client Client
	name   string
}

// NewBotSink returns a subscriber publishing bot messages under name.
func NewBotSink(client Client, name string) *BotSink {
	return &BotSink{client: client, name: name}
}

func (s *BotSink) OnSubscribe(sub streams.Subscription) { sub.Request(1 << 62) }

func (s *BotSink) OnNext(o model.BotOutput) {
	if o.Message == nil {
		return
	}
	s.client.Publish(s.channelFor(o.Message.Kind), messageWire(o.Message), nil)
}

func (s *BotSink) channelFor(kind model.MessageKind) string {
	switch kind {
	case model.MessageKindDebug:
		return s.name + SuffixDebug
	case model.MessageKindControl:
		return ChannelControl
	default:
		return s.name + SuffixAnalysis
	}
}

func (s *BotSink) OnComplete() {}
func (s *BotSink) OnError(error) {}

// messageWire builds the wire shape for a bot message: from and kind are
// always present, i is a two-element array present only when the id is
// non-negative, and request_id is present only for control responses
// that carry one.
func messageWire(m *model.BotMessage) map[string]any {
	out := map[string]any{
		"from":    m.From,
		"kind":    m.Kind.String(),
		"payload": m.Payload,
	}
	if !m.ID.IsNegative() {
		out["i"] = [2]int64{m.ID.I1, m.ID.I2}
	}
	if m.RequestID != "" {
		out["request_id"] = m.RequestID
	}
	return out
}
