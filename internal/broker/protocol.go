// Package broker implements the WebSocket publish/subscribe client: wire
// framing, an auto-reconnecting resilient wrapper, a thread-pinning
// wrapper that routes calls onto a single I/O goroutine, and streams
// adapters that expose broker channels as publishers and subscribers.
package broker

import "encoding/json"

// outgoingEnvelope is the shape of every request this client sends.
type outgoingEnvelope struct {
	Action string          `json:"action"`
	ID     *int64          `json:"id,omitempty"`
	Body   json.RawMessage `json:"body"`
}

// incomingEnvelope is the shape of every frame this client receives.
type incomingEnvelope struct {
	Action string          `json:"action"`
	ID     *int64          `json:"id,omitempty"`
	Body   json.RawMessage `json:"body"`
}

type historySpec struct {
	Age   int `json:"age"`
	Count int `json:"count"`
}

type subscribeBody struct {
	Channel        string       `json:"channel"`
	SubscriptionID string       `json:"subscription_id"`
	History        *historySpec `json:"history,omitempty"`
}

type unsubscribeBody struct {
	SubscriptionID string `json:"subscription_id"`
}

type publishBody struct {
	Channel string          `json:"channel"`
	Message json.RawMessage `json:"message"`
}

type subscriptionDataBody struct {
	SubscriptionID string            `json:"subscription_id"`
	Messages       []json.RawMessage `json:"messages"`
}

// Channel suffixes, fixed per the wire protocol.
const (
	SuffixFrames   = ""
	SuffixMetadata = "/metadata"
	SuffixAnalysis = "/analysis"
	SuffixDebug    = "/debug"
	ChannelControl = "control"
)

const (
	actionSubscribe       = "rtm/subscribe"
	actionSubscribeOK     = "rtm/subscribe/ok"
	actionSubscribeErr    = "rtm/subscribe/error"
	actionUnsubscribe     = "rtm/unsubscribe"
	actionUnsubscribeOK   = "rtm/unsubscribe/ok"
	actionUnsubscribeErr  = "rtm/unsubscribe/error"
	actionPublish         = "rtm/publish"
	actionPublishOK       = "rtm/publish/ok"
	actionPublishErr      = "rtm/publish/error"
	actionSubData         = "rtm/subscription/data"
	actionSubErr          = "rtm/subscription/error"
)
