// Package errs defines the closed set of tagged error kinds that flow
// through the pipeline, broker client, and bot runtime.
package errs

import (
	stdErrors "errors"
	"fmt"
)

// pipelineMarker is implemented by every pipeline-stage error so callers can
// classify an error chain with IsPipelineError without a type switch.
type pipelineMarker interface {
	error
	isPipeline()
}

// StreamInitError indicates source or decoder setup failed. The stage that
// raises it dies; it is always surfaced as OnError.
type StreamInitError struct {
	Op  string
	Err error
}

func (e *StreamInitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("stream init: %s", e.Op)
	}
	return fmt.Sprintf("stream init: %s: %v", e.Op, e.Err)
}
func (e *StreamInitError) Unwrap() error { return e.Err }
func (e *StreamInitError) isPipeline()   {}

// FrameGenerationError indicates a packet or frame read/decode failed. The
// stage surfaces it as OnError unless it can skip the frame, in which case
// the caller counts the drop instead of constructing this error.
type FrameGenerationError struct {
	Op  string
	Err error
}

func (e *FrameGenerationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("frame generation: %s", e.Op)
	}
	return fmt.Sprintf("frame generation: %s: %v", e.Op, e.Err)
}
func (e *FrameGenerationError) Unwrap() error { return e.Err }
func (e *FrameGenerationError) isPipeline()   {}

// FrameNotReady signals a decoder needs more input before it can yield a
// frame. Internal only: callers use it to decide to request another
// upstream item, never deliver it downstream.
type FrameNotReady struct{ Op string }

func (e *FrameNotReady) Error() string { return fmt.Sprintf("frame not ready: %s", e.Op) }
func (e *FrameNotReady) isPipeline()    {}

// EndOfStream signals a clean EOF. Callers convert it to OnComplete rather
// than forwarding it as an error.
type EndOfStream struct{ Op string }

func (e *EndOfStream) Error() string { return fmt.Sprintf("end of stream: %s", e.Op) }
func (e *EndOfStream) isPipeline()    {}

// ValueMovedError indicates an error_or-style result cell was read after its
// value was moved out. Programmer error; callers may treat it as fatal.
type ValueMovedError struct{ Op string }

func (e *ValueMovedError) Error() string { return fmt.Sprintf("value already moved: %s", e.Op) }
func (e *ValueMovedError) isPipeline()   {}

// NotInitializedError indicates a Deferred was read before it resolved.
// Programmer error.
type NotInitializedError struct{ Op string }

func (e *NotInitializedError) Error() string { return fmt.Sprintf("not initialized: %s", e.Op) }
func (e *NotInitializedError) isPipeline()   {}

// TimeoutError indicates a timer-driven abort (timer_breaker, deadline).
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("timeout: %s", e.Op)
	}
	return fmt.Sprintf("timeout: %s: %v", e.Op, e.Err)
}
func (e *TimeoutError) Unwrap() error { return e.Err }
func (e *TimeoutError) isPipeline()   {}

// AsioError indicates a transport failure. The broker client signals it;
// the resilient wrapper reconnects rather than propagating it to the user.
type AsioError struct {
	Op  string
	Err error
}

func (e *AsioError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("transport error: %s", e.Op)
	}
	return fmt.Sprintf("transport error: %s: %v", e.Op, e.Err)
}
func (e *AsioError) Unwrap() error { return e.Err }
func (e *AsioError) isPipeline()   {}

// BrokerErrorKind enumerates the protocol-level failures the broker client
// exposes to error callbacks.
type BrokerErrorKind int

const (
	NotConnected BrokerErrorKind = iota
	InvalidResponse
	SubscribeError
	UnsubscribeError
	SubscriptionError
	PublishError
	InvalidMessage
)

func (k BrokerErrorKind) String() string {
	switch k {
	case NotConnected:
		return "not_connected"
	case InvalidResponse:
		return "invalid_response"
	case SubscribeError:
		return "subscribe_error"
	case UnsubscribeError:
		return "unsubscribe_error"
	case SubscriptionError:
		return "subscription_error"
	case PublishError:
		return "publish_error"
	case InvalidMessage:
		return "invalid_message"
	default:
		return "unknown"
	}
}

// BrokerError is a protocol-level broker client error.
type BrokerError struct {
	Kind    BrokerErrorKind
	Channel string
	Err     error
}

func (e *BrokerError) Error() string {
	if e.Channel != "" {
		return fmt.Sprintf("broker: %s (channel=%s): %v", e.Kind, e.Channel, e.Err)
	}
	return fmt.Sprintf("broker: %s: %v", e.Kind, e.Err)
}
func (e *BrokerError) Unwrap() error { return e.Err }
func (e *BrokerError) isPipeline()   {}

// IsPipelineError reports whether err's chain contains any tagged kind
// defined in this package.
func IsPipelineError(err error) bool {
	if err == nil {
		return false
	}
	var pm pipelineMarker
	return stdErrors.As(err, &pm)
}

// IsTimeout reports whether err's chain is a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return stdErrors.As(err, &te)
}

// IsEndOfStream reports whether err's chain is an EndOfStream marker.
func IsEndOfStream(err error) bool {
	var eos *EndOfStream
	return stdErrors.As(err, &eos)
}

// IsFrameNotReady reports whether err's chain is a FrameNotReady marker.
func IsFrameNotReady(err error) bool {
	var fnr *FrameNotReady
	return stdErrors.As(err, &fnr)
}

// Constructors, mirroring the contextual-wrapping style used throughout the
// pipeline: callers add operation context, wrap causes with %w upstream of
// these where useful.
func NewStreamInit(op string, cause error) error      { return &StreamInitError{Op: op, Err: cause} }
func NewFrameGeneration(op string, cause error) error { return &FrameGenerationError{Op: op, Err: cause} }
func NewFrameNotReady(op string) error                { return &FrameNotReady{Op: op} }
func NewEndOfStream(op string) error                  { return &EndOfStream{Op: op} }
func NewValueMoved(op string) error                   { return &ValueMovedError{Op: op} }
func NewNotInitialized(op string) error                { return &NotInitializedError{Op: op} }
func NewTimeout(op string, cause error) error         { return &TimeoutError{Op: op, Err: cause} }
func NewAsio(op string, cause error) error            { return &AsioError{Op: op, Err: cause} }
func NewBroker(kind BrokerErrorKind, channel string, cause error) error {
	return &BrokerError{Kind: kind, Channel: channel, Err: cause}
}
