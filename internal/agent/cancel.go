package agent

import (
	"sync"
	"sync/atomic"
)

// StopToken is the cooperative stop handle of one run. It is checked between
// steps and never interrupts a tool that is already running.
type StopToken struct {
	stopped atomic.Bool
	reason  atomic.Value
}

func NewStopToken() *StopToken {
	return &StopToken{}
}

// Stop requests the run to halt at its next checkpoint. The first reason wins.
func (t *StopToken) Stop(reason string) {
	if t.stopped.CompareAndSwap(false, true) {
		t.reason.Store(reason)
	}
}

func (t *StopToken) Stopped() bool {
	return t != nil && t.stopped.Load()
}

func (t *StopToken) Reason() string {
	if t == nil {
		return ""
	}
	r, _ := t.reason.Load().(string)
	return r
}

// Controller tracks the stop tokens of active runs.
type Controller struct {
	mu   sync.Mutex
	runs map[string]*StopToken
}

func NewController() *Controller {
	return &Controller{runs: make(map[string]*StopToken)}
}

// Register creates the token for runID. Call Done when the run ends.
func (c *Controller) Register(runID string) *StopToken {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := NewStopToken()
	c.runs[runID] = t
	return t
}

func (c *Controller) Done(runID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.runs, runID)
}

// Stop halts one run. It reports whether the run was active.
func (c *Controller) Stop(runID, reason string) bool {
	c.mu.Lock()
	t, ok := c.runs[runID]
	c.mu.Unlock()
	if ok {
		t.Stop(reason)
	}
	return ok
}

// StopAll halts every active run and returns how many were signalled.
func (c *Controller) StopAll(reason string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.runs {
		t.Stop(reason)
	}
	return len(c.runs)
}

// Active returns the ids of runs in progress.
func (c *Controller) Active() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.runs))
	for id := range c.runs {
		ids = append(ids, id)
	}
	return ids
}
