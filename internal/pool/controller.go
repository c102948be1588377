// Package pool implements the pool job controller: a small control plane
// that lets a node advertise capacity and accept start/stop job requests
// over a broker channel.
package pool

import (
	"fmt"
	"os"
	"sync"
)

// Job is one unit of work a node is currently running.
type Job struct {
	ID   string
	Type string
}

// Controller tracks running jobs for one node and the per-type capacity
// it has available to advertise over a heartbeat.
type Controller interface {
	AddJob(job Job) error
	RemoveJob(id string) error
	ListJobs() []Job
	AvailableCapacity() map[string]int
}

// InMemoryController is a Controller backed by a map, sized by a fixed
// per-job-type capacity given at construction.
type InMemoryController struct {
	mu       sync.Mutex
	capacity map[string]int
	jobs     map[string]Job
}

// NewInMemoryController returns a controller advertising capacity[type]
// concurrent jobs of each type.
func NewInMemoryController(capacity map[string]int) *InMemoryController {
	c := make(map[string]int, len(capacity))
	for k, v := range capacity {
		c[k] = v
	}
	return &InMemoryController{capacity: c, jobs: map[string]Job{}}
}

func (c *InMemoryController) AddJob(job Job) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.jobs[job.ID]; exists {
		return fmt.Errorf("pool: job %q already running", job.ID)
	}
	running := c.runningOfTypeLocked(job.Type)
	if limit, ok := c.capacity[job.Type]; ok && running >= limit {
		return fmt.Errorf("pool: no available capacity for job type %q", job.Type)
	}
	c.jobs[job.ID] = job
	return nil
}

func (c *InMemoryController) RemoveJob(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.jobs[id]; !ok {
		return fmt.Errorf("pool: job %q not running", id)
	}
	delete(c.jobs, id)
	return nil
}

func (c *InMemoryController) ListJobs() []Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Job, 0, len(c.jobs))
	for _, j := range c.jobs {
		out = append(out, j)
	}
	return out
}

func (c *InMemoryController) AvailableCapacity() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.capacity))
	for jobType, limit := range c.capacity {
		out[jobType] = limit - c.runningOfTypeLocked(jobType)
	}
	return out
}

func (c *InMemoryController) runningOfTypeLocked(jobType string) int {
	n := 0
	for _, j := range c.jobs {
		if j.Type == jobType {
			n++
		}
	}
	return n
}

// NodeID resolves the identifier the pool controller advertises itself
// under: the NODE_ID environment variable when set, otherwise the host
// name, per spec section 6.
func NodeID() string {
	if v := os.Getenv("NODE_ID"); v != "" {
		return v
	}
	if h, err := os.Hostname(); err == nil {
		return h
	}
	return "unknown-node"
}
