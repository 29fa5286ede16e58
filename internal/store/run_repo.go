package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/venue-crawler/internal/aggregate"
)

// ErrNotFound signals that the requested run does not exist.
var ErrNotFound = errors.New("run not found")

// RunStatus is the lifecycle status of a pipeline run.
type RunStatus string

// Run statuses.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// Run is one pipeline run as seen by the API.
type Run struct {
	ID         uuid.UUID
	SeedURL    string
	Status     RunStatus
	StartedAt  time.Time
	FinishedAt *time.Time
	// ErrorMessage is set when the run itself failed, not when pages did.
	ErrorMessage *string
	TasksDone    int64
	TasksFailed  int64
	Report       *aggregate.Report
}

// EventRecord is a stored task progress event.
type EventRecord struct {
	TS       time.Time
	Type     string
	WorkerID int
	Kind     string
	URL      string
	State    string
	Message  string
}

// RunRepository persists run progress.
type RunRepository interface {
	// StartRun records a run as running. Repeated calls are no-ops.
	StartRun(ctx context.Context, runID uuid.UUID, seedURL string, startedAt time.Time) error
	// CompleteRun marks the run finished.
	CompleteRun(ctx context.Context, runID uuid.UUID, finishedAt time.Time, status RunStatus, errMsg *string) error
	// RecordTasks applies finished-task deltas.
	RecordTasks(ctx context.Context, runID uuid.UUID, deltaDone, deltaFailed int64) error
	// AppendEvents stores task events in arrival order.
	AppendEvents(ctx context.Context, runID uuid.UUID, events []EventRecord) error
	// SaveReport attaches the aggregated report.
	SaveReport(ctx context.Context, runID uuid.UUID, report aggregate.Report) error

	// GetRun loads one run or returns ErrNotFound.
	GetRun(ctx context.Context, runID uuid.UUID) (Run, error)
	// ListRuns returns runs newest first, filtered by optional status.
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]Run, error)
	// ListEvents returns stored events for one run.
	ListEvents(ctx context.Context, runID uuid.UUID, limit, offset int) ([]EventRecord, error)
}
