package pool

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/videobot/runtime/internal/broker"
	"github.com/videobot/runtime/internal/streams"
)

// fakeClient is a minimal broker.Client test double recording published
// messages and letting the test drive subscription callbacks directly.
type fakeClient struct {
	mu        sync.Mutex
	published []map[string]any
	cb        broker.SubscribeCallbacks
}

func (c *fakeClient) Start(ctx context.Context) *streams.Deferred[streams.Void] {
	d := streams.NewDeferred[streams.Void]()
	d.Resolve(streams.Void{})
	return d
}
func (c *fakeClient) Stop() *streams.Deferred[streams.Void] {
	d := streams.NewDeferred[streams.Void]()
	d.Resolve(streams.Void{})
	return d
}

func (c *fakeClient) Publish(channel string, message any, cb func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, _ := json.Marshal(message)
	var m map[string]any
	_ = json.Unmarshal(raw, &m)
	c.published = append(c.published, m)
}

func (c *fakeClient) Subscribe(channel, subHandle string, cb broker.SubscribeCallbacks, opts *broker.SubscribeOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cb = cb
	return nil
}

func (c *fakeClient) Unsubscribe(subHandle string) error { return nil }

func (c *fakeClient) deliver(t *testing.T, msgs ...any) {
	var raw []json.RawMessage
	for _, m := range msgs {
		b, err := json.Marshal(m)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		raw = append(raw, b)
	}
	c.mu.Lock()
	cb := c.cb
	c.mu.Unlock()
	cb.OnData(raw)
}

func (c *fakeClient) lastPublished() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.published) == 0 {
		return nil
	}
	return c.published[len(c.published)-1]
}

func TestRunnerDispatchesStartAndStopJob(t *testing.T) {
	controller := NewInMemoryController(map[string]int{"analysis": 2})
	client := &fakeClient{}
	runner := NewRunner(client, controller, "pool/node-1", "node-1", nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := runner.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	client.deliver(t, map[string]any{
		"action": "start_job", "to": "node-1",
		"body": map[string]any{"id": "j1", "type": "analysis"},
	})
	jobs := controller.ListJobs()
	if len(jobs) != 1 || jobs[0].ID != "j1" {
		t.Fatalf("expected job j1 to be running, got %+v", jobs)
	}

	client.deliver(t, map[string]any{
		"action": "stop_job", "to": "node-1",
		"body": map[string]any{"id": "j1"},
	})
	if len(controller.ListJobs()) != 0 {
		t.Fatalf("expected job j1 to have been removed")
	}
}

func TestRunnerIgnoresMessagesForOtherNodes(t *testing.T) {
	controller := NewInMemoryController(map[string]int{"analysis": 2})
	client := &fakeClient{}
	runner := NewRunner(client, controller, "pool/node-1", "node-1", nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := runner.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	client.deliver(t, map[string]any{
		"action": "start_job", "to": "node-2",
		"body": map[string]any{"id": "j1", "type": "analysis"},
	})
	if len(controller.ListJobs()) != 0 {
		t.Fatal("job addressed to a different node should not be started here")
	}
}

func TestHeartbeatPublishesActiveJobsAndCapacity(t *testing.T) {
	controller := NewInMemoryController(map[string]int{"analysis": 3})
	_ = controller.AddJob(Job{ID: "j1", Type: "analysis"})
	client := &fakeClient{}
	runner := NewRunner(client, controller, "pool/node-1", "node-1", nil)

	runner.publishHeartbeat()
	msg := client.lastPublished()
	if msg == nil {
		t.Fatal("expected a published heartbeat")
	}
	if msg["from"] != "node-1" {
		t.Fatalf("from = %v, want node-1", msg["from"])
	}
	cap, ok := msg["available_capacity"].(map[string]any)
	if !ok {
		t.Fatalf("available_capacity missing or wrong shape: %+v", msg)
	}
	if cap["analysis"] != float64(2) {
		t.Fatalf("available_capacity[analysis] = %v, want 2", cap["analysis"])
	}
}

func TestNodeIDPrefersEnvOverride(t *testing.T) {
	t.Setenv("NODE_ID", "explicit-node")
	if got := NodeID(); got != "explicit-node" {
		t.Fatalf("NodeID() = %q, want explicit-node", got)
	}
}
