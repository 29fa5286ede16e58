package sinks

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/venue-crawler/internal/aggregate"
	"github.com/JakeFAU/venue-crawler/internal/progress"
	"github.com/JakeFAU/venue-crawler/internal/store"
)

// StoreSink persists progress through a store.RunRepository. Task counters
// are collapsed per run before they are written.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for repo.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

type taskDelta struct {
	done   int64
	failed int64
}

// Consume writes the batch and returns the first repository error.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	deltas := make(map[uuid.UUID]*taskDelta)
	events := make(map[uuid.UUID][]store.EventRecord)
	var order []uuid.UUID

	for _, evt := range batch {
		switch evt.Type {
		case progress.TypeRunStart, progress.TypeRunDone, progress.TypeRunError:
			if err := s.handleRunEvent(ctx, evt); err != nil {
				return err
			}
			continue
		}
		if _, ok := events[evt.RunID]; !ok {
			order = append(order, evt.RunID)
		}
		events[evt.RunID] = append(events[evt.RunID], store.EventRecord{
			TS:       evt.TS,
			Type:     string(evt.Type),
			WorkerID: evt.WorkerID,
			Kind:     string(evt.Kind),
			URL:      evt.URL,
			State:    evt.State(),
			Message:  evt.Message,
		})
		if !evt.Terminal() {
			continue
		}
		d := deltas[evt.RunID]
		if d == nil {
			d = &taskDelta{}
			deltas[evt.RunID] = d
		}
		if evt.Type == progress.TypeError {
			d.failed++
		} else {
			d.done++
		}
	}

	for _, runID := range order {
		if err := s.repo.AppendEvents(ctx, runID, events[runID]); err != nil {
			return fmt.Errorf("append events: %w", err)
		}
		if d := deltas[runID]; d != nil {
			if err := s.repo.RecordTasks(ctx, runID, d.done, d.failed); err != nil {
				return fmt.Errorf("record tasks: %w", err)
			}
		}
	}
	return nil
}

func (s *StoreSink) handleRunEvent(ctx context.Context, evt progress.Event) error {
	switch evt.Type {
	case progress.TypeRunStart:
		if err := s.repo.StartRun(ctx, evt.RunID, evt.URL, evt.TS); err != nil {
			return fmt.Errorf("start run: %w", err)
		}
	case progress.TypeRunDone:
		if report, ok := evt.Data.(aggregate.Report); ok {
			if err := s.repo.SaveReport(ctx, evt.RunID, report); err != nil {
				return fmt.Errorf("save report: %w", err)
			}
		}
		if err := s.repo.CompleteRun(ctx, evt.RunID, evt.TS, store.RunSuccess, nil); err != nil {
			return fmt.Errorf("complete run: %w", err)
		}
	case progress.TypeRunError:
		// A run can fail before it starts; record it so the failure is visible.
		if err := s.repo.StartRun(ctx, evt.RunID, evt.URL, evt.TS); err != nil {
			return fmt.Errorf("start run: %w", err)
		}
		var note *string
		if evt.Message != "" {
			msg := evt.Message
			note = &msg
		}
		if err := s.repo.CompleteRun(ctx, evt.RunID, evt.TS, store.RunError, note); err != nil {
			return fmt.Errorf("complete run: %w", err)
		}
	}
	return nil
}

// Close implements progress.Sink.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
