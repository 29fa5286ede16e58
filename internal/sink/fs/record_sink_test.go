package fs

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/venue-crawler/internal/aggregate"
	"github.com/JakeFAU/venue-crawler/internal/crawler"
	"github.com/JakeFAU/venue-crawler/internal/sink"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		s, err := New(Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, s)
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := New(Config{})
		assert.Error(t, err)
	})

	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "out")
		_, err := New(Config{BaseDir: dir})
		require.NoError(t, err)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := New(Config{BaseDir: file})
		assert.ErrorContains(t, err, "not a directory")
	})
}

func TestPutWritesBatch(t *testing.T) {
	dir := t.TempDir()
	s, err := New(Config{BaseDir: dir, Indent: true})
	require.NoError(t, err)

	runID := uuid.New()
	batch := sink.Batch{
		RunID:   runID,
		SeedURL: "https://bar.com",
		Report: aggregate.Report{
			Records: []aggregate.Record{{
				StructuredRecord: crawler.StructuredRecord{
					Success:   true,
					SourceURL: "https://bar.com/karaoke",
					Show:      &crawler.Show{Venue: "O'Nelly's", DayOfWeek: "Tuesday", Time: "9pm"},
				},
				Sources: []string{"https://bar.com/karaoke"},
			}},
			TotalPages: 1,
		},
	}

	loc, err := s.Put(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, "file://"+filepath.Join(dir, runID.String()+".json"), loc)

	data, err := os.ReadFile(strings.TrimPrefix(loc, "file://"))
	require.NoError(t, err)
	var got sink.Batch
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, runID, got.RunID)
	require.Len(t, got.Report.Records, 1)
	assert.Equal(t, "O'Nelly's", got.Report.Records[0].Show.Venue)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not remain")
}

func TestPutCanceledContext(t *testing.T) {
	s, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Put(ctx, sink.Batch{RunID: uuid.New()})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPathTraversal(t *testing.T) {
	s, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = s.path("../escape.json")
	assert.ErrorContains(t, err, "path traversal detected")
	_, err = s.path(" ")
	assert.ErrorContains(t, err, "path is required")
}
