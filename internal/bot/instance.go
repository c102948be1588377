// Package bot implements the user-facing bot runtime: a builder that wires
// a pixel format and a pair of callbacks into an Instance, and a pipeline
// stage that drives the image and control paths described in the data
// model's bot instance section.
package bot

import (
	"context"

	"github.com/videobot/runtime/internal/model"
	"github.com/videobot/runtime/internal/telemetry"
)

// Mode is the bot's execution mode.
type Mode int

const (
	ModeLive Mode = iota
	ModeBatch
)

func (m Mode) String() string {
	if m == ModeBatch {
		return "BATCH"
	}
	return "LIVE"
}

// ImageCallback processes one decoded frame and queues zero or more
// messages on ctx for enrichment and emission.
type ImageCallback func(ctx *Context, frame *model.OwnedImageFrame)

// ControlCallback handles one control payload addressed to this bot and
// may return a response object to be queued as a CONTROL message.
type ControlCallback func(ctx context.Context, payload map[string]any) (any, error)

// Descriptor is the user-supplied configuration a Builder assembles.
type Descriptor struct {
	PixelFormat     model.PixelFormat
	Mode            Mode
	ImageCallback   ImageCallback
	ControlCallback ControlCallback
}

// Context is threaded through both the image and control paths. It
// exposes the bot's instance data slot, the current image metadata, the
// execution mode, and the process-wide metrics registry, and accumulates
// the messages a callback queues during one invocation.
type Context struct {
	BotID        string
	Mode         Mode
	InstanceData any
	ImageMeta    *model.OwnedImageMetadata
	Metrics      *telemetry.Registry

	currentID model.FrameID
	queued    []model.BotMessage
}

// Queue appends a message for enrichment and emission after the current
// callback returns. Callers do not need to set ID/From; enrich fills them
// in according to the current frame.
func (c *Context) Queue(kind model.MessageKind, payload any, id model.FrameID) {
	c.queued = append(c.queued, model.BotMessage{Kind: kind, Payload: payload, ID: id})
}

// QueueControlResponse is a convenience for the control path: it queues a
// CONTROL message carrying requestID, which enrich preserves verbatim.
func (c *Context) QueueControlResponse(payload any, requestID string) {
	c.queued = append(c.queued, model.BotMessage{
		Kind: model.MessageKindControl, Payload: payload, RequestID: requestID,
	})
}

func (c *Context) takeQueued() []model.BotMessage {
	out := c.queued
	c.queued = nil
	return out
}

// Instance owns a bot's identity, descriptor, and per-invocation context.
// Stage wraps it into a pipeline adapter.
type Instance struct {
	BotID   string
	Desc    Descriptor
	ctx     *Context
	metrics *frameMetrics
}

// NewInstance constructs an Instance with a fresh Context.
func NewInstance(botID string, desc Descriptor, metrics *telemetry.Registry) *Instance {
	return &Instance{
		BotID: botID,
		Desc:  desc,
		ctx: &Context{
			BotID:   botID,
			Mode:    desc.Mode,
			Metrics: metrics,
		},
	}
}

// Configure invokes the control callback with a synthetic configure
// action, even when cfg is empty, and queues any returned object as a
// DEBUG message. The caller drains the returned messages (e.g. publishing
// them) before the pipeline starts delivering frames.
func (b *Instance) Configure(ctx context.Context, cfg map[string]any) []model.BotMessage {
	if cfg == nil {
		cfg = map[string]any{}
	}
	if b.Desc.ControlCallback == nil {
		return nil
	}
	resp, err := b.Desc.ControlCallback(ctx, map[string]any{"action": "configure", "body": cfg})
	if err != nil || resp == nil {
		return nil
	}
	return []model.BotMessage{{Kind: model.MessageKindDebug, Payload: resp, From: b.BotID}}
}
