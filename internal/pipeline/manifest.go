package pipeline

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// ManifestName is the run manifest written to the output directory.
const ManifestName = "manifest.yaml"

// Status is the outcome of one step.
type Status string

// Step outcomes.
const (
	StatusOK      Status = "ok"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// StepResult records one executed or skipped step.
type StepResult struct {
	Stage      Stage  `yaml:"stage"`
	Step       string `yaml:"step"`
	Table      string `yaml:"table,omitempty"`
	Status     Status `yaml:"status"`
	DurationMs int64  `yaml:"duration_ms"`
	Error      string `yaml:"error,omitempty"`
}

// Summary describes a pipeline run.
type Summary struct {
	RunID      string       `yaml:"run_id"`
	Stages     []Stage      `yaml:"stages"`
	StartedAt  time.Time    `yaml:"started_at"`
	FinishedAt time.Time    `yaml:"finished_at"`
	Steps      []StepResult `yaml:"steps"`
	Warnings   []string     `yaml:"warnings,omitempty"`
	Reports    []string     `yaml:"reports,omitempty"`
}

// Failed returns the number of failed steps.
func (s *Summary) Failed() int {
	var n int
	for _, st := range s.Steps {
		if st.Status == StatusFailed {
			n++
		}
	}
	return n
}

// WriteManifest writes s to path as YAML.
func WriteManifest(path string, s *Summary) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return eris.Wrap(err, "pipeline: marshal manifest")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "pipeline: write manifest %s", path)
	}
	return nil
}

// ReadManifest loads a manifest written by WriteManifest.
func ReadManifest(path string) (*Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: read manifest %s", path)
	}
	var s Summary
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, eris.Wrap(err, "pipeline: parse manifest")
	}
	return &s, nil
}
