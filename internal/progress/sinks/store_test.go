package sinks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/venue-crawler/internal/aggregate"
	"github.com/JakeFAU/venue-crawler/internal/crawler"
	"github.com/JakeFAU/venue-crawler/internal/progress"
	"github.com/JakeFAU/venue-crawler/internal/store"
	"github.com/JakeFAU/venue-crawler/internal/store/memory"
)

func TestStoreSinkPersistsRun(t *testing.T) {
	t.Parallel()

	repo := memory.NewRunStore(0)
	sink := NewStoreSink(repo, nil)
	runID := uuid.New()
	now := time.Now()
	task := func(typ progress.Type, state string) progress.Event {
		return progress.Event{
			RunID: runID, TS: now, Type: typ, WorkerID: 2, Kind: crawler.KindPageExtraction,
			URL: "https://bar.com/events", Message: state, Data: map[string]any{"state": state},
		}
	}

	ctx := context.Background()
	require.NoError(t, sink.Consume(ctx, []progress.Event{
		{RunID: runID, TS: now, Type: progress.TypeRunStart, URL: "https://bar.com/"},
		task(progress.TypeProgress, "loading"),
		task(progress.TypeComplete, "done"),
		task(progress.TypeError, "failed"),
		task(progress.TypeComplete, "done"),
	}))
	require.NoError(t, sink.Consume(ctx, []progress.Event{
		{RunID: runID, TS: now.Add(time.Second), Type: progress.TypeRunError, Message: "launch failed"},
	}))

	run, err := repo.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, "https://bar.com/", run.SeedURL)
	assert.Equal(t, int64(2), run.TasksDone)
	assert.Equal(t, int64(1), run.TasksFailed)
	assert.Equal(t, store.RunError, run.Status)
	require.NotNil(t, run.ErrorMessage)
	assert.Equal(t, "launch failed", *run.ErrorMessage)

	events, err := repo.ListEvents(ctx, runID, 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, "loading", events[0].State)
	assert.Equal(t, 2, events[0].WorkerID)
	assert.Equal(t, "page_extraction", events[0].Kind)
}

func TestStoreSinkSavesReport(t *testing.T) {
	t.Parallel()

	repo := memory.NewRunStore(0)
	sink := NewStoreSink(repo, nil)
	runID := uuid.New()
	now := time.Now()
	report := aggregate.Report{TotalPages: 3, Records: []aggregate.Record{}}

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: now, Type: progress.TypeRunStart, URL: "https://bar.com/"},
		{RunID: runID, TS: now, Type: progress.TypeRunDone, Data: report},
	}))

	run, err := repo.GetRun(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, store.RunSuccess, run.Status)
	require.NotNil(t, run.Report)
	assert.Equal(t, 3, run.Report.TotalPages)
}

func TestStoreSinkRecordsFailureBeforeStart(t *testing.T) {
	t.Parallel()

	repo := memory.NewRunStore(0)
	sink := NewStoreSink(repo, nil)
	runID := uuid.New()

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: time.Now(), Type: progress.TypeRunError, URL: "not a url", Message: "build scope"},
	}))

	run, err := repo.GetRun(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, store.RunError, run.Status)
	assert.Equal(t, "not a url", run.SeedURL)
}

func TestStoreSinkSurfacesRepositoryErrors(t *testing.T) {
	t.Parallel()

	sink := NewStoreSink(memory.NewRunStore(0), nil)
	err := sink.Consume(context.Background(), []progress.Event{
		{RunID: uuid.New(), TS: time.Now(), Type: progress.TypeComplete, WorkerID: 1},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestStoreSinkNilRepo(t *testing.T) {
	t.Parallel()

	var sink *StoreSink
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{{Type: progress.TypeRunStart}}))
}
