package pool

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/videobot/runtime/internal/broker"
)

const heartbeatPeriod = time.Second

// jobRequest is the wire shape of a start_job/stop_job message addressed
// to a node.
type jobRequest struct {
	Action string `json:"action"`
	To     string `json:"to"`
	Body   struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	} `json:"body"`
}

// Runner subscribes a Controller to a pool channel: it dispatches
// start_job/stop_job messages addressed to this node and publishes a
// 1-second heartbeat advertising active jobs and available capacity.
type Runner struct {
	client     broker.Client
	controller Controller
	channel    string
	nodeID     string
	logger     *slog.Logger
}

// NewRunner returns a Runner that will subscribe to channel once Start is
// called.
func NewRunner(client broker.Client, controller Controller, channel, nodeID string, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{client: client, controller: controller, channel: channel, nodeID: nodeID, logger: logger}
}

// Start subscribes to the pool channel and begins the heartbeat ticker.
// It returns once the subscription is registered; the heartbeat and
// dispatch loops run until ctx is done.
func (r *Runner) Start(ctx context.Context) error {
	handle := uuid.NewString()
	err := r.client.Subscribe(r.channel, handle, broker.SubscribeCallbacks{
		OnData:  r.handleData,
		OnError: func(err error) { r.logger.Error("pool subscription error", "err", err) },
	}, nil)
	if err != nil {
		return err
	}
	go r.heartbeatLoop(ctx)
	return nil
}

func (r *Runner) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(heartbeatPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.publishHeartbeat()
		}
	}
}

func (r *Runner) publishHeartbeat() {
	jobs := r.controller.ListJobs()
	ids := make([]string, len(jobs))
	for i, j := range jobs {
		ids[i] = j.ID
	}
	r.client.Publish(r.channel, map[string]any{
		"from":               r.nodeID,
		"active_jobs":        ids,
		"available_capacity": r.controller.AvailableCapacity(),
	}, nil)
}

func (r *Runner) handleData(messages []json.RawMessage) {
	for _, raw := range messages {
		var req jobRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			continue
		}
		if req.To != r.nodeID {
			continue
		}
		switch req.Action {
		case "start_job":
			if err := r.controller.AddJob(Job{ID: req.Body.ID, Type: req.Body.Type}); err != nil {
				r.logger.Warn("pool start_job failed", "job_id", req.Body.ID, "err", err)
			}
		case "stop_job":
			if err := r.controller.RemoveJob(req.Body.ID); err != nil {
				r.logger.Warn("pool stop_job failed", "job_id", req.Body.ID, "err", err)
			}
		}
	}
}
