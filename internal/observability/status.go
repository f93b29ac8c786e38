package observability

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rahul/lexigpt/internal/events"
)

type Phase string

const (
	PhaseIdle      Phase = "IDLE"
	PhasePlanning  Phase = "PLANNING"
	PhaseExecuting Phase = "EXECUTING"
	PhaseIngesting Phase = "INGESTING"
)

// Snapshot is a copy of the board at one instant.
type Snapshot struct {
	Phase         Phase
	ActiveRuns    int
	CurrentStep   string
	CompletedRuns int
	FailedRuns    int
	LastEvent     time.Time
}

// Status keeps a live summary of agent activity for the terminal dashboard
// and the health endpoint. It is fed from the event stream.
type Status struct {
	mu        sync.RWMutex
	active    map[string]string // run id -> current step title
	ingesting bool
	completed int
	failed    int
	lastEvent time.Time
}

var _ events.Emitter = (*Status)(nil)

func NewStatus() *Status {
	return &Status{active: make(map[string]string)}
}

// Emit updates the board from one event.
func (s *Status) Emit(evt events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastEvent = time.Now()
	switch p := evt.Payload.(type) {
	case events.RunStarted:
		s.active[evt.RunID] = ""
	case events.StepStarted:
		if _, ok := s.active[evt.RunID]; ok {
			s.active[evt.RunID] = p.Title
		}
	case events.RunComplete:
		if _, ok := s.active[evt.RunID]; !ok {
			return
		}
		delete(s.active, evt.RunID)
		if p.Success {
			s.completed++
		} else {
			s.failed++
		}
	case events.Ingest:
		switch p.Action {
		case "agent_start", "process_start":
			s.ingesting = true
		case "agent_stop", "process_end", "idle":
			s.ingesting = false
		}
	}
}

// Follow feeds the board from a live subscription until ctx ends or the
// subscription closes.
func (s *Status) Follow(ctx context.Context, sub *events.Subscription) error {
	defer sub.Close()
	for {
		evt, ok, err := sub.Next(ctx, 0)
		if err != nil {
			if errors.Is(err, events.ErrSubscriptionClosed) {
				return nil
			}
			return err
		}
		if ok {
			s.Emit(evt)
		}
	}
}

func (s *Status) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		ActiveRuns:    len(s.active),
		CompletedRuns: s.completed,
		FailedRuns:    s.failed,
		LastEvent:     s.lastEvent,
	}
	for _, title := range s.active {
		if title != "" {
			snap.CurrentStep = title
			break
		}
	}
	switch {
	case len(s.active) > 0 && snap.CurrentStep != "":
		snap.Phase = PhaseExecuting
	case len(s.active) > 0:
		snap.Phase = PhasePlanning
	case s.ingesting:
		snap.Phase = PhaseIngesting
	default:
		snap.Phase = PhaseIdle
	}
	return snap
}
