package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/venue-crawler/internal/crawler"
	"github.com/JakeFAU/venue-crawler/internal/pool"
	"github.com/JakeFAU/venue-crawler/internal/progress"
	"github.com/JakeFAU/venue-crawler/internal/sink"
)

type fakeTasks struct {
	mu      sync.Mutex
	batches [][]crawler.Task
	run     func(tasks []crawler.Task) ([]crawler.WorkerResult, error)
}

func (f *fakeTasks) Run(_ context.Context, _ uuid.UUID, tasks []crawler.Task) ([]crawler.WorkerResult, error) {
	f.mu.Lock()
	f.batches = append(f.batches, tasks)
	f.mu.Unlock()
	return f.run(tasks)
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) types() []progress.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]progress.Type, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type fixedID struct{ id uuid.UUID }

func (f fixedID) NewID() (uuid.UUID, error) { return f.id, nil }

type memorySink struct {
	batches []sink.Batch
	err     error
}

func (m *memorySink) Put(_ context.Context, b sink.Batch) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.batches = append(m.batches, b)
	return "mem://" + b.RunID.String(), nil
}

func discoveryOK(urls ...string) crawler.WorkerResult {
	return crawler.WorkerResult{
		Kind:      crawler.ResultComplete,
		WorkerID:  1,
		Discovery: &crawler.DiscoveryResult{Success: true, URLs: urls, SiteName: "Bar"},
	}
}

func pageFor(task crawler.Task, workerID int) crawler.WorkerResult {
	if task.URL == "https://bar.com/events" {
		return crawler.FailedResult(task, workerID, crawler.ErrBlockedPage)
	}
	return crawler.WorkerResult{
		Kind:     crawler.ResultComplete,
		Task:     task,
		WorkerID: workerID,
		Page: &crawler.PageResult{
			URL:      task.URL,
			WorkerID: workerID,
			Success:  true,
			Source:   task.URL,
			Show:     &crawler.Show{Venue: "O'Nelly's", DayOfWeek: "friday", Time: "9pm-2am"},
		},
	}
}

func TestRunEndToEnd(t *testing.T) {
	t.Parallel()

	runID := uuid.MustParse("01890a5d-ac96-774b-bcce-b302099a8057")
	tasks := &fakeTasks{run: func(batch []crawler.Task) ([]crawler.WorkerResult, error) {
		if batch[0].Kind == crawler.KindDiscovery {
			return []crawler.WorkerResult{discoveryOK("https://bar.com/", "https://bar.com/karaoke", "https://bar.com/events")}, nil
		}
		out := make([]crawler.WorkerResult, len(batch))
		for i, task := range batch {
			out[i] = pageFor(task, i+1)
		}
		return out, nil
	}}
	emitter := &recordingEmitter{}
	records := &memorySink{}

	r := New(tasks, WithEmitter(emitter), WithSink(records), WithIDGenerator(fixedID{runID}))
	res, err := r.Run(context.Background(), "https://Bar.com", false)
	require.NoError(t, err)

	assert.Equal(t, runID, res.RunID)
	assert.Equal(t, "https://bar.com/", res.SeedURL)
	assert.Equal(t, "mem://"+runID.String(), res.Location)
	require.Len(t, tasks.batches, 2)
	assert.Equal(t, crawler.KindDiscovery, tasks.batches[0][0].Kind)
	require.Len(t, tasks.batches[1], 3)
	for _, task := range tasks.batches[1] {
		assert.Equal(t, crawler.KindPageExtraction, task.Kind)
		assert.Equal(t, "bar.com", task.Scope.BaseDomain)
	}

	assert.Equal(t, 3, res.Report.TotalPages)
	require.Len(t, res.Report.Records, 1, "duplicate show collapses to one record")
	assert.ElementsMatch(t, []string{"https://bar.com/", "https://bar.com/karaoke"}, res.Report.Records[0].Sources)
	assert.Equal(t, 1, res.Report.Diagnostics.FailedCount)
	assert.Equal(t, map[string]int{"BlockedOrErrorPage": 1}, res.Report.Diagnostics.Reasons)

	require.Len(t, records.batches, 1)
	assert.Equal(t, []progress.Type{progress.TypeRunStart, progress.TypeRunDone}, emitter.types())
}

func TestRunDiscoveryFailureIsReported(t *testing.T) {
	t.Parallel()

	navErr := &crawler.NavigationError{Kind: crawler.NavDNS, URL: "https://nowhere.invalid/", Err: errors.New("no such host")}
	tasks := &fakeTasks{run: func(batch []crawler.Task) ([]crawler.WorkerResult, error) {
		return []crawler.WorkerResult{crawler.FailedResult(batch[0], 1, navErr)}, nil
	}}

	res, err := New(tasks).Run(context.Background(), "https://nowhere.invalid", true)
	require.NoError(t, err)
	require.Len(t, tasks.batches, 1, "no page stage after failed discovery")
	assert.False(t, res.Discovery.Success)
	assert.Equal(t, 1, res.Report.Diagnostics.FailedCount)
	assert.Equal(t, []string{"https://nowhere.invalid/"}, res.Report.Diagnostics.FailedURLs)
	assert.Equal(t, map[string]int{"NavigationError:DNSResolutionFailed": 1}, res.Report.Diagnostics.Reasons)
}

func TestRunLaunchFailureIsAnError(t *testing.T) {
	t.Parallel()

	launchErr := &pool.LaunchError{URL: "https://bar.com/", Err: fmt.Errorf("%w: no chrome", crawler.ErrLaunchFailure)}
	tasks := &fakeTasks{run: func(batch []crawler.Task) ([]crawler.WorkerResult, error) {
		return []crawler.WorkerResult{crawler.FailedResult(batch[0], 1, launchErr)}, launchErr
	}}
	emitter := &recordingEmitter{}
	records := &memorySink{}

	_, err := New(tasks, WithEmitter(emitter), WithSink(records)).Run(context.Background(), "https://bar.com", false)
	var got *pool.LaunchError
	require.ErrorAs(t, err, &got)
	assert.ErrorIs(t, err, crawler.ErrLaunchFailure)
	assert.Empty(t, records.batches)
	assert.Equal(t, []progress.Type{progress.TypeRunStart, progress.TypeRunError}, emitter.types())
}

func TestRunInvalidSeed(t *testing.T) {
	t.Parallel()

	tasks := &fakeTasks{run: func([]crawler.Task) ([]crawler.WorkerResult, error) {
		t.Fatal("no tasks expected")
		return nil, nil
	}}
	emitter := &recordingEmitter{}
	_, err := New(tasks, WithEmitter(emitter)).Run(context.Background(), "not a url", false)
	require.ErrorContains(t, err, "build scope")
	assert.Equal(t, []progress.Type{progress.TypeRunError}, emitter.types())
}

func TestRunSinkFailure(t *testing.T) {
	t.Parallel()

	tasks := &fakeTasks{run: func(batch []crawler.Task) ([]crawler.WorkerResult, error) {
		if batch[0].Kind == crawler.KindDiscovery {
			return []crawler.WorkerResult{discoveryOK("https://bar.com/")}, nil
		}
		return []crawler.WorkerResult{pageFor(batch[0], 1)}, nil
	}}
	_, err := New(tasks, WithSink(&memorySink{err: errors.New("disk full")})).Run(context.Background(), "https://bar.com", false)
	require.ErrorContains(t, err, "hand off records: disk full")
}

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func TestRunDurationUsesClock(t *testing.T) {
	t.Parallel()

	tasks := &fakeTasks{run: func(batch []crawler.Task) ([]crawler.WorkerResult, error) {
		if batch[0].Kind == crawler.KindDiscovery {
			return []crawler.WorkerResult{discoveryOK()}, nil
		}
		return nil, nil
	}}
	res, err := New(tasks, WithClock(&stepClock{now: time.Unix(0, 0)})).Run(context.Background(), "https://bar.com", false)
	require.NoError(t, err)
	assert.Equal(t, time.Second, res.Duration)
	assert.Zero(t, res.Report.TotalPages)
}
