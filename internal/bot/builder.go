package bot

import (
	"github.com/videobot/runtime/internal/model"
	"github.com/videobot/runtime/internal/telemetry"
)

// Option configures a Descriptor, following the functional-option facade
// reel.New uses for its Encoder options.
type Option func(*Descriptor)

// Builder accumulates Options and produces an Instance.
type Builder struct {
	opts []Option
}

// New starts a Builder.
func New(opts ...Option) *Builder {
	return &Builder{opts: opts}
}

// WithPixelFormat selects the pixel format frames are decoded into before
// reaching the image callback.
func WithPixelFormat(format model.PixelFormat) Option {
	return func(d *Descriptor) { d.PixelFormat = format }
}

// WithImageCallback sets the per-frame callback.
func WithImageCallback(cb ImageCallback) Option {
	return func(d *Descriptor) { d.ImageCallback = cb }
}

// WithControlCallback sets the control-path callback.
func WithControlCallback(cb ControlCallback) Option {
	return func(d *Descriptor) { d.ControlCallback = cb }
}

// WithMode selects LIVE or BATCH execution.
func WithMode(mode Mode) Option {
	return func(d *Descriptor) { d.Mode = mode }
}

// Build applies the accumulated options and returns a new Instance bound
// to botID.
func (b *Builder) Build(botID string, metrics *telemetry.Registry) *Instance {
	var desc Descriptor
	for _, opt := range b.opts {
		opt(&desc)
	}
	return NewInstance(botID, desc, metrics)
}
