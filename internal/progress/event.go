package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/venue-crawler/internal/crawler"
)

// Type names what an Event reports.
type Type string

// Event types. Task events come from workers; run events from the pipeline.
const (
	TypeProgress Type = "progress"
	TypeComplete Type = "complete"
	TypeError    Type = "error"
	TypeRunStart Type = "run_start"
	TypeRunDone  Type = "run_done"
	TypeRunError Type = "run_error"
)

// Event is one progress message. Events from one worker arrive in order;
// nothing orders events across workers.
type Event struct {
	RunID    uuid.UUID
	TS       time.Time
	Type     Type
	WorkerID int
	Kind     crawler.TaskKind
	URL      string
	Message  string
	// Data is the worker's payload, forwarded unmodified.
	Data any
	// Dur is set on run completion events.
	Dur time.Duration
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == uuid.Nil {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Type {
	case TypeRunStart, TypeRunDone, TypeRunError:
	case TypeProgress, TypeComplete, TypeError:
		if e.WorkerID <= 0 {
			return errors.New("task events require a worker id")
		}
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// Terminal reports whether the event ends a task.
func (e Event) Terminal() bool {
	return e.Type == TypeComplete || e.Type == TypeError
}

// State returns the worker state carried in Data, if any.
func (e Event) State() string {
	if m, ok := e.Data.(map[string]any); ok {
		if s, ok := m["state"].(string); ok {
			return s
		}
	}
	return ""
}
