package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rahul/lexigpt/internal/events"
	"github.com/rahul/lexigpt/internal/store"
)

// RunState is the service's view of a run, active or finished.
type RunState struct {
	RunID     string    `json:"run_id"`
	Goal      string    `json:"goal"`
	Status    string    `json:"status"` // running, completed, stopped, needs_input, failed
	Outcome   *Outcome  `json:"outcome,omitempty"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

const (
	stateRunning = "running"
	stateFailed  = "failed"
)

// defaultRetain bounds how many finished runs that never reached the archive
// stay readable through Get.
const defaultRetain = 100

// RunArchive persists finished runs.
type RunArchive interface {
	SaveRun(ctx context.Context, rec store.RunRecord) error
	GetRun(ctx context.Context, runID string) (*store.RunRecord, error)
}

// Service is the facade hosts use: plan, execute, follow up.
type Service struct {
	planner    *Planner
	executor   *Executor
	events     events.Emitter
	controller *Controller
	archive    RunArchive
	logger     *slog.Logger

	mu       sync.RWMutex
	runs     map[string]*RunState
	finished []string // unarchived finished runs, oldest first
	retain   int
	wg       sync.WaitGroup
}

type ServiceOption func(*Service)

func WithArchive(a RunArchive) ServiceOption {
	return func(s *Service) { s.archive = a }
}

func WithController(c *Controller) ServiceOption {
	return func(s *Service) { s.controller = c }
}

func NewService(planner *Planner, executor *Executor, emitter events.Emitter, logger *slog.Logger, opts ...ServiceOption) *Service {
	if emitter == nil {
		emitter = events.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		planner:    planner,
		executor:   executor,
		events:     emitter,
		controller: NewController(),
		logger:     logger,
		runs:       make(map[string]*RunState),
		retain:     defaultRetain,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlanAndRun plans and executes goal on the calling goroutine. Only planning
// failures are returned as errors; everything after planning is reported in
// the Outcome.
func (s *Service) PlanAndRun(ctx context.Context, goal string) (*Outcome, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return nil, &PlanningError{Err: ErrEmptyGoal}
	}
	runID := uuid.NewString()
	return s.run(ctx, runID, goal, s.controller.Register(runID))
}

// Start launches PlanAndRun on its own goroutine and returns the run id at
// once. The run outlives ctx cancellation; use Stop to end it.
func (s *Service) Start(ctx context.Context, goal string) (string, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return "", &PlanningError{Err: ErrEmptyGoal}
	}
	runID := uuid.NewString()
	// Registered before returning so an immediate Stop(runID) is not lost.
	token := s.controller.Register(runID)
	s.track(runID, goal)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.run(context.WithoutCancel(ctx), runID, goal, token); err != nil {
			s.logger.Warn("background run failed", "run_id", runID, "error", err)
		}
	}()
	return runID, nil
}

// Wait blocks until every run launched with Start has returned.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Stop asks one run to halt at its next checkpoint.
func (s *Service) Stop(runID string) bool {
	return s.controller.Stop(runID, "stop requested")
}

// StopAll halts every active run.
func (s *Service) StopAll() int {
	return s.controller.StopAll("stop requested")
}

// Active lists runs that are planning or executing.
func (s *Service) Active() []string {
	return s.controller.Active()
}

// Get returns the state of a run, consulting the archive for runs that
// finished before this process started.
func (s *Service) Get(ctx context.Context, runID string) (*RunState, bool) {
	s.mu.RLock()
	st, ok := s.runs[runID]
	if ok {
		cp := *st
		s.mu.RUnlock()
		return &cp, true
	}
	s.mu.RUnlock()

	if s.archive == nil {
		return nil, false
	}
	rec, err := s.archive.GetRun(ctx, runID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("failed to load archived run", "run_id", runID, "error", err)
		}
		return nil, false
	}
	var result RunResult
	if err := json.Unmarshal(rec.Result, &result); err != nil {
		s.logger.Warn("archived run is unreadable", "run_id", runID, "error", err)
		return nil, false
	}
	return &RunState{
		RunID:     rec.RunID,
		Goal:      rec.Goal,
		Status:    rec.Status,
		Outcome:   &Outcome{RunID: rec.RunID, Plan: result.Plan, Result: &result},
		StartedAt: rec.CreatedAt,
	}, true
}

func (s *Service) run(ctx context.Context, runID, goal string, token *StopToken) (*Outcome, error) {
	ctx = events.WithRunID(ctx, runID)
	defer s.controller.Done(runID)
	s.track(runID, goal)

	s.events.Emit(events.New(runID, events.RunStarted{Goal: goal}))
	s.logger.Info("run started", "run_id", runID)

	plan, err := s.planner.DraftPlan(ctx, goal)
	if err != nil {
		s.events.Emit(events.New(runID, events.RunComplete{Success: false, Summary: err.Error(), Status: stateFailed}))
		s.finish(runID, stateFailed, nil, err)
		s.release(runID, false)
		return nil, err
	}

	result := s.executor.Execute(ctx, plan, token)

	if len(plan.NextSteps) == 0 {
		plan.NextSteps = fallbackNextSteps(goal)
	}
	s.events.Emit(events.New(runID, events.NextSteps{NextSteps: plan.NextSteps}))
	s.events.Emit(events.New(runID, events.RunComplete{
		Success: result.Success,
		Summary: result.Summary,
		Status:  string(result.Status),
	}))

	outcome := &Outcome{RunID: runID, Plan: plan, Result: result}
	s.finish(runID, string(result.Status), outcome, nil)
	s.release(runID, s.save(ctx, runID, goal, result))
	return outcome, nil
}

func (s *Service) track(runID, goal string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[runID]; ok {
		return
	}
	s.runs[runID] = &RunState{RunID: runID, Goal: goal, Status: stateRunning, StartedAt: time.Now()}
}

func (s *Service) finish(runID, status string, outcome *Outcome, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.runs[runID]
	if !ok {
		return
	}
	st.Status = status
	st.Outcome = outcome
	if err != nil {
		st.Error = err.Error()
	}
}

// release drops a finished run from memory once the archive holds it.
// Unarchived runs are kept, up to retain, so Get can still answer for them.
func (s *Service) release(runID string, archived bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if archived {
		delete(s.runs, runID)
		return
	}
	s.finished = append(s.finished, runID)
	for len(s.finished) > s.retain {
		delete(s.runs, s.finished[0])
		s.finished = s.finished[1:]
	}
}

// save archives a finished run and reports whether it was stored.
func (s *Service) save(ctx context.Context, runID, goal string, result *RunResult) bool {
	if s.archive == nil {
		return false
	}
	data, err := json.Marshal(result)
	if err != nil {
		s.logger.Warn("failed to encode run", "run_id", runID, "error", err)
		return false
	}
	rec := store.RunRecord{
		RunID:   runID,
		Goal:    goal,
		Status:  string(result.Status),
		Success: result.Success,
		Summary: result.Summary,
		Result:  data,
	}
	s.mu.RLock()
	if st, ok := s.runs[runID]; ok {
		rec.CreatedAt = st.StartedAt
	}
	s.mu.RUnlock()
	if err := s.archive.SaveRun(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.Warn("failed to archive run", "run_id", runID, "error", err)
		return false
	}
	return true
}

func fallbackNextSteps(goal string) []string {
	return []string{
		fmt.Sprintf("Review the findings for %q", goal),
		"Verify the cited provisions against the official text",
		"Ask a follow-up question to narrow the issue",
	}
}
