package bot

import (
	"context"
	"testing"

	"github.com/videobot/runtime/internal/model"
	"github.com/videobot/runtime/internal/streams"
)

// TestMessageEnrichment is scenario S5: a message queued with the (0,0)
// sentinel id inherits the current frame's full id, and From is always
// set to the bot's id regardless of what the callback left there.
func TestMessageEnrichment(t *testing.T) {
	inst := NewInstance("b1", Descriptor{
		ImageCallback: func(ctx *Context, frame *model.OwnedImageFrame) {
			ctx.Queue(model.MessageKindAnalysis, map[string]any{"msg": "x"}, model.ZeroID)
		},
	}, nil)

	upstream := streams.Of(model.OwnedImagePacket{
		Frame: &model.OwnedImageFrame{ID: model.FrameID{I1: 7, I2: 9}},
	})
	coll := streams.NewCollectingSubscriber[model.BotOutput](0)
	inst.Stage(upstream).Subscribe(coll)
	coll.Wait()

	var msg *model.BotMessage
	for _, item := range coll.Items() {
		if item.Message != nil {
			msg = item.Message
		}
	}
	if msg == nil {
		t.Fatal("expected a queued message in the output")
	}
	if msg.From != "b1" {
		t.Fatalf("From = %q, want b1", msg.From)
	}
	if msg.ID != (model.FrameID{I1: 7, I2: 9}) {
		t.Fatalf("ID = %v, want (7,9)", msg.ID)
	}
}

// TestFramePassesThroughBeforeMessages checks the emission order: the
// frame itself, then each queued message, per spec step 5 of the image
// path.
func TestFramePassesThroughBeforeMessages(t *testing.T) {
	inst := NewInstance("b1", Descriptor{
		ImageCallback: func(ctx *Context, frame *model.OwnedImageFrame) {
			ctx.Queue(model.MessageKindDebug, "first", model.ZeroID)
			ctx.Queue(model.MessageKindDebug, "second", model.ZeroID)
		},
	}, nil)

	upstream := streams.Of(model.OwnedImagePacket{Frame: &model.OwnedImageFrame{ID: model.FrameID{I1: 1, I2: 2}}})
	coll := streams.NewCollectingSubscriber[model.BotOutput](0)
	inst.Stage(upstream).Subscribe(coll)
	coll.Wait()

	items := coll.Items()
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	if items[0].Frame == nil {
		t.Fatal("first item should be the frame")
	}
	if items[1].Message == nil || items[1].Message.Payload != "first" {
		t.Fatalf("second item should be the first queued message, got %+v", items[1])
	}
	if items[2].Message == nil || items[2].Message.Payload != "second" {
		t.Fatalf("third item should be the second queued message, got %+v", items[2])
	}
}

// TestControlPathRouting covers array iteration, to-field routing, and
// request_id propagation on the control path.
func TestControlPathRouting(t *testing.T) {
	var seenAction string
	inst := NewInstance("b1", Descriptor{
		ControlCallback: func(ctx context.Context, payload map[string]any) (any, error) {
			seenAction, _ = payload["action"].(string)
			return map[string]any{"ok": true}, nil
		},
	}, nil)

	payload := []any{
		map[string]any{"action": "configure", "to": "other-bot", "request_id": "r0"},
		map[string]any{"action": "ping", "to": "b1", "request_id": "r1"},
	}
	msgs := inst.HandleControl(context.Background(), payload)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 response (the other message isn't addressed to b1), got %d", len(msgs))
	}
	if seenAction != "ping" {
		t.Fatalf("callback should only run for messages addressed to b1, saw action %q", seenAction)
	}
	if msgs[0].RequestID != "r1" {
		t.Fatalf("RequestID = %q, want r1", msgs[0].RequestID)
	}
	if msgs[0].Kind != model.MessageKindControl {
		t.Fatalf("Kind = %v, want CONTROL", msgs[0].Kind)
	}
}

// TestConfigureAlwaysInvokesCallback checks that Configure calls through
// even with an empty config map.
func TestConfigureAlwaysInvokesCallback(t *testing.T) {
	called := false
	var gotBody any
	inst := NewInstance("b1", Descriptor{
		ControlCallback: func(ctx context.Context, payload map[string]any) (any, error) {
			called = true
			gotBody = payload["body"]
			return "debug-response", nil
		},
	}, nil)

	msgs := inst.Configure(context.Background(), nil)
	if !called {
		t.Fatal("Configure should invoke the control callback even with a nil config")
	}
	if gotBody == nil {
		t.Fatal("expected an empty map, not nil, to be passed as body")
	}
	if len(msgs) != 1 || msgs[0].Kind != model.MessageKindDebug || msgs[0].Payload != "debug-response" {
		t.Fatalf("expected one DEBUG message wrapping the response, got %+v", msgs)
	}
}
