package broker

import (
	"context"
	"testing"

	"github.com/videobot/runtime/internal/model"
	"github.com/videobot/runtime/internal/streams"
)

// recordingClient is a minimal Client test double that only records
// published (channel, message) pairs; nothing in BotSink needs Subscribe.
type recordingClient struct {
	published []publishedMsg
}

type publishedMsg struct {
	channel string
	message any
}

func (c *recordingClient) Start(context.Context) *streams.Deferred[streams.Void] {
	return nil
}
func (c *recordingClient) Stop() *streams.Deferred[streams.Void] { return nil }
func (c *recordingClient) Publish(channel string, message any, cb func(error)) {
	c.published = append(c.published, publishedMsg{channel: channel, message: message})
}
func (c *recordingClient) Subscribe(string, string, SubscribeCallbacks, *SubscribeOptions) error {
	return nil
}
func (c *recordingClient) Unsubscribe(string) error { return nil }

// TestBotSinkFansOutByKind covers the routing spec section 4.3 calls for:
// analysis/debug messages go to the name-scoped sub-channel, control
// responses go to the bare "control" channel.
func TestBotSinkFansOutByKind(t *testing.T) {
	client := &recordingClient{}
	sink := NewBotSink(client, "bot/cam")

	sink.OnNext(model.BotOutput{Message: &model.BotMessage{Kind: model.MessageKindAnalysis, From: "bot"}})
	sink.OnNext(model.BotOutput{Message: &model.BotMessage{Kind: model.MessageKindDebug, From: "bot"}})
	sink.OnNext(model.BotOutput{Message: &model.BotMessage{Kind: model.MessageKindControl, From: "bot"}})
	sink.OnNext(model.BotOutput{Frame: &model.OwnedImageFrame{}})

	if len(client.published) != 3 {
		t.Fatalf("expected 3 published messages (frame ignored), got %d", len(client.published))
	}
	want := []string{"bot/cam" + SuffixAnalysis, "bot/cam" + SuffixDebug, ChannelControl}
	for i, w := range want {
		if client.published[i].channel != w {
			t.Fatalf("message %d: expected channel %q, got %q", i, w, client.published[i].channel)
		}
	}
}
