package sinks

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/venue-crawler/internal/crawler"
	"github.com/JakeFAU/venue-crawler/internal/progress"
)

func TestLogSinkLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	sink := NewLogSink(zap.New(core))
	runID := uuid.New()
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: time.Now(), Type: progress.TypeProgress, WorkerID: 1, Message: "opening browser", Data: map[string]any{"state": "loading"}},
		{RunID: runID, TS: time.Now(), Type: progress.TypeError, WorkerID: 1, Message: "WorkerTimeout"},
	}))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zap.InfoLevel, entries[0].Level)
	assert.Equal(t, "loading", entries[0].ContextMap()["state"])
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
	assert.Equal(t, runID.String(), entries[1].ContextMap()["run_id"])
}

func TestBarSinkCountsFinishedPages(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	sink := NewBarSink(&out, "extracting")
	sink.SetTotal(3)
	runID := uuid.New()
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, Type: progress.TypeProgress, Kind: crawler.KindPageExtraction},
		{RunID: runID, Type: progress.TypeComplete, Kind: crawler.KindPageExtraction},
		{RunID: runID, Type: progress.TypeComplete, Kind: crawler.KindDiscovery},
		{RunID: runID, Type: progress.TypeError, Kind: crawler.KindPageExtraction},
	}))
	assert.Equal(t, int64(2), sink.Current())
	require.NoError(t, sink.Close(context.Background()))
}

func TestBarSinkTakesTotalFromDiscovery(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	sink := NewBarSink(&out, "extracting")
	runID := uuid.New()
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, Type: progress.TypeComplete, Kind: crawler.KindDiscovery, Data: map[string]any{"state": "done", "urls": 4}},
		{RunID: runID, Type: progress.TypeComplete, Kind: crawler.KindPageExtraction},
	}))
	assert.Equal(t, int64(1), sink.Current())
	assert.Equal(t, int64(4), sink.bar.GetMax64())
}
