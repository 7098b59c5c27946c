package pipeline

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// ErrPrecondition is wrapped by every failure detected before a stage runs:
// missing store, missing output directory, or missing input table.
var ErrPrecondition = eris.New("pipeline: precondition failed")

// StepError records which stage, step, and table a failure came from.
type StepError struct {
	Stage Stage
	Step  string
	Table string
	Err   error
}

func (e *StepError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("pipeline: %s/%s: %v", e.Stage, e.Step, e.Err)
	}
	return fmt.Sprintf("pipeline: %s/%s (%s): %v", e.Stage, e.Step, e.Table, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// errSkipped marks steps not run because a step they need failed.
var errSkipped = eris.New("pipeline: skipped, a required step failed")
