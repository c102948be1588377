package bot

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/videobot/runtime/internal/model"
	"github.com/videobot/runtime/internal/streams"
	"github.com/videobot/runtime/internal/telemetry"
)

type frameMetrics struct {
	duration      prometheus.Observer
	framesTotal   prometheus.Counter
	messagesTotal map[model.MessageKind]prometheus.Counter
	controlSent   prometheus.Counter
	controlRecv   prometheus.Counter
}

func newFrameMetrics(reg *telemetry.Registry, botID string) *frameMetrics {
	if reg == nil {
		return nil
	}
	m := &frameMetrics{
		duration:    reg.Histogram("bot_frame_duration_ms", "bot image-callback duration", telemetry.LatencyBucketsMillis, []string{"bot_id"}, botID),
		framesTotal: reg.Counter("bot_frames_processed_total", "frames processed by a bot instance", []string{"bot_id"}, botID),
		controlSent: reg.Counter("bot_control_messages_total", "control messages sent/received by a bot instance", []string{"bot_id", "direction"}, botID, "sent"),
		controlRecv: reg.Counter("bot_control_messages_total", "control messages sent/received by a bot instance", []string{"bot_id", "direction"}, botID, "received"),
	}
	m.messagesTotal = map[model.MessageKind]prometheus.Counter{
		model.MessageKindAnalysis: reg.Counter("bot_messages_sent_total", "messages queued by a bot instance, per kind", []string{"bot_id", "kind"}, botID, model.MessageKindAnalysis.String()),
		model.MessageKindDebug:    reg.Counter("bot_messages_sent_total", "messages queued by a bot instance, per kind", []string{"bot_id", "kind"}, botID, model.MessageKindDebug.String()),
		model.MessageKindControl:  reg.Counter("bot_messages_sent_total", "messages queued by a bot instance, per kind", []string{"bot_id", "kind"}, botID, model.MessageKindControl.String()),
	}
	return m
}

// Stage wraps upstream into the image path of spec section 4.5: a
// metadata packet updates the tracked image_metadata; a frame packet runs
// the image callback, then emits the frame followed by each message the
// callback queued, enriched per enrich.
func (b *Instance) Stage(upstream streams.Publisher[model.OwnedImagePacket]) streams.Publisher[model.BotOutput] {
	if b.metrics == nil {
		b.metrics = newFrameMetrics(b.ctx.Metrics, b.BotID)
	}
	return streams.FlatMap(upstream, func(p model.OwnedImagePacket) streams.Publisher[model.BotOutput] {
		switch {
		case p.Metadata != nil:
			b.ctx.ImageMeta = p.Metadata
			return streams.Empty[model.BotOutput]()
		case p.Frame != nil:
			return streams.Of(b.handleFrame(p.Frame)...)
		default:
			return streams.Empty[model.BotOutput]()
		}
	})
}

func (b *Instance) handleFrame(frame *model.OwnedImageFrame) []model.BotOutput {
	start := time.Now()
	b.ctx.currentID = frame.ID

	if b.Desc.ImageCallback != nil {
		b.Desc.ImageCallback(b.ctx, frame)
	}
	queued := b.ctx.takeQueued()

	out := make([]model.BotOutput, 0, 1+len(queued))
	out = append(out, model.BotOutput{Frame: frame})
	for i := range queued {
		msg := b.enrich(&queued[i])
		out = append(out, model.BotOutput{Message: msg})
		if b.metrics != nil {
			if c, ok := b.metrics.messagesTotal[msg.Kind]; ok {
				c.Inc()
			}
		}
	}

	if b.metrics != nil {
		b.metrics.duration.Observe(float64(time.Since(start).Milliseconds()))
		b.metrics.framesTotal.Inc()
	}
	return out
}

// enrich fills in the fields a callback is allowed to leave blank: From
// is always the bot id, and a zero ID inherits the current frame's id in
// full (both components) rather than just its first half.
func (b *Instance) enrich(m *model.BotMessage) *model.BotMessage {
	if m.ID.IsZero() {
		m.ID = b.ctx.currentID
	}
	m.From = b.BotID
	return m
}

// HandleControl processes one control payload per spec section 4.5: an
// array is iterated and each element re-entered; a map addressed to this
// bot (its "to" field) is forwarded to the control callback, and any
// response is queued as a CONTROL message carrying the request's
// request_id, if present.
func (b *Instance) HandleControl(ctx context.Context, payload any) []model.BotMessage {
	if b.metrics == nil {
		b.metrics = newFrameMetrics(b.ctx.Metrics, b.BotID)
	}
	switch v := payload.(type) {
	case []any:
		var out []model.BotMessage
		for _, item := range v {
			out = append(out, b.HandleControl(ctx, item)...)
		}
		return out
	case map[string]any:
		return b.handleControlObject(ctx, v)
	default:
		return nil
	}
}

func (b *Instance) handleControlObject(ctx context.Context, v map[string]any) []model.BotMessage {
	to, _ := v["to"].(string)
	if to != b.BotID || b.Desc.ControlCallback == nil {
		return nil
	}
	if b.metrics != nil {
		b.metrics.controlRecv.Inc()
	}
	resp, err := b.Desc.ControlCallback(ctx, v)
	if err != nil || resp == nil {
		return nil
	}
	requestID, _ := v["request_id"].(string)
	if b.metrics != nil {
		b.metrics.controlSent.Inc()
		b.metrics.messagesTotal[model.MessageKindControl].Inc()
	}
	return []model.BotMessage{{
		Kind:      model.MessageKindControl,
		Payload:   resp,
		From:      b.BotID,
		RequestID: requestID,
	}}
}

// ControlStage wraps a raw decoded control-channel publisher (each item
// being a map[string]any or []any, per the broker's JSON decoding) into
// the bot output the stream publishes downstream.
func (b *Instance) ControlStage(ctx context.Context, upstream streams.Publisher[any]) streams.Publisher[model.BotOutput] {
	return streams.FlatMap(upstream, func(payload any) streams.Publisher[model.BotOutput] {
		msgs := b.HandleControl(ctx, payload)
		out := make([]model.BotOutput, len(msgs))
		for i := range msgs {
			out[i] = model.BotOutput{Message: &msgs[i]}
		}
		return streams.Of(out...)
	})
}
