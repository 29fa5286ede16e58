package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/venue-crawler/internal/aggregate"
	"github.com/JakeFAU/venue-crawler/internal/store"
)

func TestRunStoreLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewRunStore(0)
	id := uuid.New()
	start := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.StartRun(ctx, id, "https://bar.com/", start))
	require.NoError(t, s.StartRun(ctx, id, "https://other.com/", start.Add(time.Hour)))
	require.NoError(t, s.RecordTasks(ctx, id, 3, 1))
	require.NoError(t, s.RecordTasks(ctx, id, 1, 0))
	require.NoError(t, s.SaveReport(ctx, id, aggregate.Report{TotalPages: 5}))
	msg := "browser launch failed"
	require.NoError(t, s.CompleteRun(ctx, id, start.Add(time.Minute), store.RunError, &msg))

	run, err := s.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "https://bar.com/", run.SeedURL)
	assert.Equal(t, store.RunError, run.Status)
	assert.Equal(t, int64(4), run.TasksDone)
	assert.Equal(t, int64(1), run.TasksFailed)
	require.NotNil(t, run.FinishedAt)
	require.NotNil(t, run.ErrorMessage)
	assert.Equal(t, msg, *run.ErrorMessage)
	require.NotNil(t, run.Report)
	assert.Equal(t, 5, run.Report.TotalPages)
}

func TestRunStoreUnknownRun(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewRunStore(0)
	id := uuid.New()

	_, err := s.GetRun(ctx, id)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.ErrorIs(t, s.RecordTasks(ctx, id, 1, 0), store.ErrNotFound)
	require.ErrorIs(t, s.AppendEvents(ctx, id, nil), store.ErrNotFound)
	require.ErrorIs(t, s.CompleteRun(ctx, id, time.Now(), store.RunSuccess, nil), store.ErrNotFound)
	_, err = s.ListEvents(ctx, id, 10, 0)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRunStoreListRuns(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewRunStore(0)
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for i, id := range ids {
		require.NoError(t, s.StartRun(ctx, id, "https://bar.com/", base.Add(time.Duration(i)*time.Minute)))
	}
	require.NoError(t, s.CompleteRun(ctx, ids[0], base.Add(time.Hour), store.RunSuccess, nil))

	all, err := s.ListRuns(ctx, nil, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].ID)
	assert.Equal(t, ids[0], all[2].ID)

	running := store.RunRunning
	filtered, err := s.ListRuns(ctx, &running, 1, 1)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, ids[1], filtered[0].ID)

	empty, err := s.ListRuns(ctx, nil, 10, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRunStoreTrimsEvents(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewRunStore(3)
	id := uuid.New()
	require.NoError(t, s.StartRun(ctx, id, "https://bar.com/", time.Now()))
	for i := 1; i <= 5; i++ {
		require.NoError(t, s.AppendEvents(ctx, id, []store.EventRecord{{WorkerID: i}}))
	}
	events, err := s.ListEvents(ctx, id, 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, 3, events[0].WorkerID)
	assert.Equal(t, 5, events[2].WorkerID)
}
