// Package sink hands aggregated records to whatever consumes them downstream.
package sink

import (
	"context"

	"github.com/google/uuid"

	"github.com/JakeFAU/venue-crawler/internal/aggregate"
)

// Batch is one run's output as handed to a RecordSink.
type Batch struct {
	RunID   uuid.UUID        `json:"runId"`
	SeedURL string           `json:"seedUrl"`
	Report  aggregate.Report `json:"report"`
}

// RecordSink persists or forwards a Batch and returns where it went.
type RecordSink interface {
	Put(ctx context.Context, batch Batch) (string, error)
}

// Noop discards every batch.
type Noop struct{}

// Put implements RecordSink.
func (Noop) Put(ctx context.Context, _ Batch) (string, error) {
	return "", ctx.Err()
}
