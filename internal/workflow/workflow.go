// Package workflow turns classified utterances into executable plans. A
// simple command passes through untouched; anything with connective
// structure ("do X then Y", "if A do B") becomes a multi-step workflow
// whose steps the engine drives through the tool broker one at a time.
package workflow

import (
	"fmt"
	"time"

	"github.com/jmolinaso/voxbridge/internal/classify"
)

// Complexity classifies the connective structure of an utterance.
type Complexity string

const (
	ComplexitySimple      Complexity = "simple"
	ComplexityCompound    Complexity = "compound"
	ComplexitySequential  Complexity = "sequential"
	ComplexityConditional Complexity = "conditional"
	ComplexityIterative   Complexity = "iterative"
)

// Status applies to both steps and whole workflows.
type Status string

const (
	StatusPending      Status = "pending"
	StatusRunning      Status = "running"
	StatusWaitingInput Status = "waiting_input"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusCancelled    Status = "cancelled"
)

// terminal reports whether no further transitions are allowed from s,
// except failed→pending on retry.
func (s Status) terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Source tags where a resolved parameter value came from.
type Source string

const (
	SourceLiteral    Source = "literal"
	SourceContextual Source = "contextual"
	SourceInferred   Source = "inferred"
	SourcePrompted   Source = "prompted"
	SourceDefault    Source = "default"
)

// Parameter is a resolved workflow parameter with provenance. A required
// parameter with an empty value and source prompted means the user must be
// asked before the consuming step can run.
type Parameter struct {
	Name        string  `json:"name"`
	Value       string  `json:"value,omitempty"`
	Source      Source  `json:"source"`
	Confidence  float64 `json:"confidence"`
	Required    bool    `json:"required"`
	Description string  `json:"description,omitempty"`
}

// Unresolved reports whether the parameter still needs user input.
func (p Parameter) Unresolved() bool {
	return p.Required && p.Value == "" && p.Source == SourcePrompted
}

// Step is one unit of workflow execution.
type Step struct {
	ID         string            `json:"step_id"`
	Command    string            `json:"command"`
	Category   classify.Category `json:"category"`
	Parameters []Parameter       `json:"parameters,omitempty"`
	DependsOn  []string          `json:"depends_on,omitempty"`
	Status     Status            `json:"status"`
	Retries    int               `json:"retries"`
	Timeout    time.Duration     `json:"timeout_ns"`

	StartedAt   time.Time      `json:"started_at,omitzero"`
	CompletedAt time.Time      `json:"completed_at,omitzero"`
	Result      map[string]any `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// setStatus enforces the step state machine: status only advances, except
// waiting_input→running and failed→pending (retry).
func (s *Step) setStatus(next Status) error {
	if s.Status == next {
		return nil
	}
	if s.Status.terminal() {
		return fmt.Errorf("step %s: illegal transition %s -> %s", s.ID, s.Status, next)
	}
	switch {
	case s.Status == StatusWaitingInput && next == StatusRunning:
	case s.Status == StatusFailed && next == StatusPending:
	case rank(next) > rank(s.Status):
	default:
		return fmt.Errorf("step %s: illegal transition %s -> %s", s.ID, s.Status, next)
	}
	s.Status = next
	return nil
}

func rank(s Status) int {
	switch s {
	case StatusPending:
		return 0
	case StatusRunning:
		return 1
	case StatusWaitingInput:
		return 2
	case StatusCompleted, StatusFailed, StatusCancelled:
		return 3
	}
	return -1
}

// firstUnresolved returns the first parameter still awaiting user input.
func (s *Step) firstUnresolved() *Parameter {
	for i := range s.Parameters {
		if s.Parameters[i].Unresolved() {
			return &s.Parameters[i]
		}
	}
	return nil
}

// paramValues flattens resolved parameters to the map a tool receives.
func (s *Step) paramValues() map[string]string {
	out := make(map[string]string, len(s.Parameters))
	for _, p := range s.Parameters {
		if p.Value != "" {
			out[p.Name] = p.Value
		}
	}
	return out
}

// Workflow is an ordered multi-step plan owned by one (user, session).
type Workflow struct {
	ID          string     `json:"workflow_id"`
	User        string     `json:"user_id"`
	Session     string     `json:"session_id"`
	Original    string     `json:"original_command"`
	Complexity  Complexity `json:"complexity"`
	Template    string     `json:"template,omitempty"`
	Steps       []*Step    `json:"steps"`
	CurrentStep int        `json:"current_step"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// EstimatedSeconds is a coarse planning figure of 30s per step.
	EstimatedSeconds float64 `json:"estimated_time_seconds"`
}

// currentStep returns the step at the cursor, nil when past the end.
func (w *Workflow) currentStep() *Step {
	if w.CurrentStep < 0 || w.CurrentStep >= len(w.Steps) {
		return nil
	}
	return w.Steps[w.CurrentStep]
}

// Progress returns completed/total as a percentage.
func (w *Workflow) Progress() float64 {
	if len(w.Steps) == 0 {
		return 0
	}
	completed := 0
	for _, s := range w.Steps {
		if s.Status == StatusCompleted {
			completed++
		}
	}
	return float64(completed) / float64(len(w.Steps)) * 100
}

// allCompleted reports whether every step reached completed.
func (w *Workflow) allCompleted() bool {
	for _, s := range w.Steps {
		if s.Status != StatusCompleted {
			return false
		}
	}
	return len(w.Steps) > 0
}

// Descriptor is the externally visible summary of a workflow.
type Descriptor struct {
	ID          string     `json:"workflow_id"`
	Original    string     `json:"original_command"`
	Status      Status     `json:"status"`
	Complexity  Complexity `json:"complexity"`
	Template    string     `json:"template,omitempty"`
	Progress    float64    `json:"completion_percentage"`
	CurrentStep int        `json:"current_step"`
	TotalSteps  int        `json:"total_steps"`
	CreatedAt   time.Time  `json:"created_at"`
	Estimated   float64    `json:"estimated_time_seconds"`
}

func (w *Workflow) descriptor() Descriptor {
	return Descriptor{
		ID:          w.ID,
		Original:    w.Original,
		Status:      w.Status,
		Complexity:  w.Complexity,
		Template:    w.Template,
		Progress:    w.Progress(),
		CurrentStep: w.CurrentStep,
		TotalSteps:  len(w.Steps),
		CreatedAt:   w.CreatedAt,
		Estimated:   w.EstimatedSeconds,
	}
}
