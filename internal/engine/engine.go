// Package engine describes the geoprocessing overlays the broadband pipeline
// depends on. Overlays are computed outside this program; an Engine either
// runs them or confirms their outputs are already in the store.
package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Op is a geoprocessing overlay operation.
type Op string

// Overlay operations.
const (
	OpUnion             Op = "union"
	OpErase             Op = "erase"
	OpDissolve          Op = "dissolve"
	OpPairwiseIntersect Op = "pairwise_intersect"
	OpIdentity          Op = "identity"
)

// Task is one overlay: Op applied to Inputs, written to Output.
type Task struct {
	Op     Op       `json:"op" yaml:"op"`
	Inputs []string `json:"inputs" yaml:"inputs"`
	Output string   `json:"output" yaml:"output"`
	// By names the dissolve field.
	By string `json:"by,omitempty" yaml:"by,omitempty"`
}

func (t Task) String() string {
	return fmt.Sprintf("%s(%s) -> %s", t.Op, strings.Join(t.Inputs, ", "), t.Output)
}

// Error reports an overlay that failed or whose output is absent.
type Error struct {
	Task Task
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("engine: %s: %v", e.Task, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrOutputMissing is wrapped by *Error when a task's output table does not
// exist after the engine reported success.
var ErrOutputMissing = eris.New("engine: output table missing")

// ErrInputMissing is wrapped by *Error when a task input is absent.
var ErrInputMissing = eris.New("engine: input table missing")

// Engine runs overlay tasks.
type Engine interface {
	Run(ctx context.Context, task Task) error
}

// Exister reports whether a table exists.
type Exister interface {
	Exists(ctx context.Context, name string) (bool, error)
}

// Materialized is an Engine for stores populated ahead of time by an external
// GIS. It computes nothing; Run succeeds when the task's inputs and output are
// present.
type Materialized struct {
	tables Exister
}

// NewMaterialized returns an Engine that checks tables in st.
func NewMaterialized(st Exister) *Materialized {
	return &Materialized{tables: st}
}

// Run checks that every input and the output of task exist.
func (m *Materialized) Run(ctx context.Context, task Task) error {
	if task.Output == "" {
		return &Error{Task: task, Err: eris.New("no output named")}
	}
	for _, in := range task.Inputs {
		if err := m.require(ctx, task, in, ErrInputMissing); err != nil {
			return err
		}
	}
	if err := m.require(ctx, task, task.Output, ErrOutputMissing); err != nil {
		return err
	}
	zap.L().Debug("engine: overlay output present",
		zap.String("op", string(task.Op)),
		zap.String("output", task.Output),
	)
	return nil
}

func (m *Materialized) require(ctx context.Context, task Task, name string, missing error) error {
	ok, err := m.tables.Exists(ctx, name)
	if err != nil {
		return &Error{Task: task, Err: eris.Wrapf(err, "check %s", name)}
	}
	if !ok {
		return &Error{Task: task, Err: eris.Wrapf(missing, "%s", name)}
	}
	return nil
}
