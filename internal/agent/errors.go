package agent

import (
	"errors"
	"fmt"
)

// ErrEmptyGoal is wrapped by the PlanningError returned for a blank goal.
var ErrEmptyGoal = errors.New("no goal provided")

// PlanningError reports that no valid plan could be produced. Raw1 and Raw2
// hold the completion responses of the first attempt and the retry.
type PlanningError struct {
	Raw1 string
	Raw2 string
	Err  error
}

func (e *PlanningError) Error() string {
	if e.Raw1 == "" && e.Raw2 == "" {
		return fmt.Sprintf("planning failed: %v", e.Err)
	}
	return fmt.Sprintf("planner failed to produce valid JSON: %v\nRaw1: %s\nRaw2: %s", e.Err, e.Raw1, e.Raw2)
}

func (e *PlanningError) Unwrap() error {
	return e.Err
}
