package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/venue-crawler/internal/progress"
)

// LogSink writes each event as a structured log line.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs the batch. Task failures log at warn level.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID.String()),
			zap.String("type", string(evt.Type)),
			zap.Int("worker_id", evt.WorkerID),
			zap.String("kind", string(evt.Kind)),
			zap.String("url", evt.URL),
			zap.String("state", evt.State()),
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		switch evt.Type {
		case progress.TypeError, progress.TypeRunError:
			s.logger.Warn(evt.Message, fields...)
		default:
			s.logger.Info(evt.Message, fields...)
		}
	}
	return nil
}

// Close implements progress.Sink.
func (s *LogSink) Close(context.Context) error {
	return nil
}
