package run

import (
	"encoding/json"
	"maps"
	"time"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/stream"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether s is a final status.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a run in status s may move to next.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusQueued:
		return next == StatusRunning || next == StatusFailed || next == StatusCancelled
	case StatusRunning:
		return next.Terminal()
	default:
		return false
	}
}

// TriggerType says what started a run.
type TriggerType string

const (
	TriggerManual    TriggerType = "manual"
	TriggerSource    TriggerType = "source"
	TriggerScheduled TriggerType = "scheduled"
)

// Trigger is recorded on the run. The cron expression is an opaque tag; the
// scheduler that fires it lives outside this module.
type Trigger struct {
	Type     TriggerType `json:"type"`
	Cron     string      `json:"cron,omitempty"`
	Timezone string      `json:"timezone,omitempty"`
}

// Validate checks the trigger. An empty type means manual.
func (t Trigger) Validate() error {
	switch t.Type {
	case "", TriggerManual, TriggerSource:
		return nil
	case TriggerScheduled:
		if t.Cron == "" {
			return errors.InvalidParams("scheduled trigger needs a cron expression")
		}
		if t.Timezone != "" {
			if _, err := time.LoadLocation(t.Timezone); err != nil {
				return errors.InvalidParams("unknown trigger timezone " + t.Timezone).WithCause(err)
			}
		}
		return nil
	default:
		return errors.InvalidParams("unknown trigger type " + string(t.Type))
	}
}

// ErrorRecord describes why a run failed. It never carries payloads.
type ErrorRecord struct {
	NodeID  string `json:"node_id,omitempty"`
	Class   string `json:"class"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Cursor  string `json:"cursor,omitempty"`
}

// Metrics are per-node item counts.
type Metrics struct {
	ItemsRead    map[string]int64 `json:"items_read,omitempty"`
	ItemsWritten map[string]int64 `json:"items_written,omitempty"`
}

// Run is one execution of a workflow.
type Run struct {
	ID          string                   `json:"id"`
	WorkflowID  string                   `json:"workflow_id"`
	Trigger     Trigger                  `json:"trigger"`
	Status      Status                   `json:"status"`
	Snapshot    json.RawMessage          `json:"snapshot,omitempty"`
	Checkpoints map[string]stream.Cursor `json:"checkpoints,omitempty"`
	Error       *ErrorRecord             `json:"error,omitempty"`
	Metrics     Metrics                  `json:"metrics"`
	CreatedAt   time.Time                `json:"created_at"`
	StartedAt   time.Time                `json:"started_at,omitzero"`
	CompletedAt time.Time                `json:"completed_at,omitzero"`
}

// Clone returns a deep copy of r.
func (r *Run) Clone() *Run {
	out := *r
	out.Snapshot = append(json.RawMessage(nil), r.Snapshot...)
	out.Checkpoints = maps.Clone(r.Checkpoints)
	out.Metrics = Metrics{
		ItemsRead:    maps.Clone(r.Metrics.ItemsRead),
		ItemsWritten: maps.Clone(r.Metrics.ItemsWritten),
	}
	if r.Error != nil {
		e := *r.Error
		out.Error = &e
	}
	return &out
}

// Transition moves a run to a new status.
type Transition struct {
	To      Status
	At      time.Time
	Error   *ErrorRecord
	Metrics *Metrics
}

// Apply validates tr against r and updates r in place. Stores call it so
// that every backend enforces the same state machine.
func (tr Transition) Apply(r *Run) error {
	if r.Status.Terminal() {
		return errors.Conflict("run " + r.ID + " is already " + string(r.Status)).
			WithDetails(map[string]any{"run_id": r.ID, "status": string(r.Status)})
	}
	if !r.Status.CanTransition(tr.To) {
		return errors.Conflict("run " + r.ID + " cannot move from " + string(r.Status) + " to " + string(tr.To)).
			WithDetail("run_id", r.ID)
	}
	at := tr.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	r.Status = tr.To
	switch {
	case tr.To == StatusRunning:
		r.StartedAt = at
	case tr.To.Terminal():
		r.CompletedAt = at
	}
	if tr.Error != nil {
		e := *tr.Error
		r.Error = &e
	}
	if tr.Metrics != nil {
		r.Metrics = Metrics{
			ItemsRead:    maps.Clone(tr.Metrics.ItemsRead),
			ItemsWritten: maps.Clone(tr.Metrics.ItemsWritten),
		}
	}
	return nil
}

// SetCheckpoint records cursor for sourceID on r, rejecting terminal runs.
func SetCheckpoint(r *Run, sourceID string, cursor stream.Cursor) error {
	if r.Status.Terminal() {
		return errors.Conflict("run " + r.ID + " is already " + string(r.Status)).
			WithDetails(map[string]any{"run_id": r.ID, "status": string(r.Status)})
	}
	if r.Checkpoints == nil {
		r.Checkpoints = make(map[string]stream.Cursor)
	}
	r.Checkpoints[sourceID] = cursor
	return nil
}
