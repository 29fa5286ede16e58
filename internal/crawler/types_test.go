package crawler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructuredRecordValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, StructuredRecord{Success: true, Show: &Show{Venue: "O'Nelly's"}}.Validate())
	require.NoError(t, StructuredRecord{Success: false, Error: "no schedule"}.Validate())
	require.Error(t, StructuredRecord{Success: true}.Validate())
	require.Error(t, StructuredRecord{Success: true, Show: &Show{Venue: "  "}}.Validate())
	require.Error(t, StructuredRecord{Success: false, Show: &Show{Venue: "x"}}.Validate())
}

func TestPopulatedOptional(t *testing.T) {
	t.Parallel()

	lat := 40.1
	show := &Show{Venue: "A", DayOfWeek: "friday", Time: "9pm", Lat: &lat, City: " "}
	assert.Equal(t, 3, show.PopulatedOptional())

	var none *Show
	assert.Zero(t, none.PopulatedOptional())
}

func TestFailedResult(t *testing.T) {
	t.Parallel()

	page := FailedResult(Task{URL: "https://bar.com/a", Kind: KindPageExtraction}, 2, ErrWorkerTimeout)
	assert.True(t, page.Failed())
	require.NotNil(t, page.Page)
	assert.Nil(t, page.Discovery)
	assert.Equal(t, "WorkerTimeout", page.Page.ErrorCategory)
	assert.Equal(t, 2, page.Page.WorkerID)
	assert.Nil(t, page.Page.Show)
	require.NoError(t, page.Page.Record().Validate())

	disc := FailedResult(Task{URL: "https://bar.com/", Kind: KindDiscovery}, 0, errors.New("boom"))
	require.NotNil(t, disc.Discovery)
	assert.False(t, disc.Discovery.Success)
	assert.Empty(t, disc.Discovery.URLs)
	assert.Equal(t, "boom", disc.Discovery.Error)
}
