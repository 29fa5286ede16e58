package crawler

import (
	"errors"
	"strings"
)

// TaskKind selects which worker executes a Task.
type TaskKind string

// Supported task kinds.
const (
	KindDiscovery      TaskKind = "discovery"
	KindPageExtraction TaskKind = "page_extraction"
)

// Task is a unit of work for exactly one worker. It is never mutated after creation.
type Task struct {
	URL   string
	Scope *ScopeConfig
	Kind  TaskKind
}

// CandidateURL is a URL found during discovery that may contain extractable data.
type CandidateURL struct {
	URL      string `json:"url"`
	Priority int    `json:"priority"`
}

// StrategyName identifies a content extraction strategy.
type StrategyName string

// Strategies in ladder order.
const (
	StrategyFast   StrategyName = "fast"
	StrategyMedium StrategyName = "medium"
	StrategySlow   StrategyName = "slow"
	StrategyRaw    StrategyName = "raw"
)

// ExtractedText is readable page text produced by one ladder strategy.
type ExtractedText struct {
	Text      string
	Strategy  StrategyName
	CharCount int
}

// Show describes one recurring event at a venue.
type Show struct {
	Venue        string   `json:"venue"`
	Address      string   `json:"address,omitempty"`
	City         string   `json:"city,omitempty"`
	State        string   `json:"state,omitempty"`
	Zip          string   `json:"zip,omitempty"`
	DayOfWeek    string   `json:"dayOfWeek,omitempty"`
	Time         string   `json:"time,omitempty"`
	DJName       string   `json:"djName,omitempty"`
	Description  string   `json:"description,omitempty"`
	Lat          *float64 `json:"lat,omitempty"`
	Lng          *float64 `json:"lng,omitempty"`
	VenuePhone   string   `json:"venuePhone,omitempty"`
	VenueWebsite string   `json:"venueWebsite,omitempty"`
}

// PopulatedOptional counts the optional fields that carry a value.
func (s *Show) PopulatedOptional() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, v := range []string{
		s.Address, s.City, s.State, s.Zip, s.DayOfWeek, s.Time,
		s.DJName, s.Description, s.VenuePhone, s.VenueWebsite,
	} {
		if strings.TrimSpace(v) != "" {
			n++
		}
	}
	if s.Lat != nil {
		n++
	}
	if s.Lng != nil {
		n++
	}
	return n
}

// StructuredRecord is the validated output of page extraction.
type StructuredRecord struct {
	VendorName string `json:"vendor,omitempty"`
	DJName     string `json:"dj,omitempty"`
	Show       *Show  `json:"show,omitempty"`
	SourceURL  string `json:"source"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// Validate enforces the success/show invariants consumers rely on.
func (r StructuredRecord) Validate() error {
	if !r.Success && r.Show != nil {
		return errors.New("unsuccessful record must not carry show data")
	}
	if r.Success {
		if r.Show == nil {
			return errors.New("successful record requires show")
		}
		if strings.TrimSpace(r.Show.Venue) == "" {
			return errors.New("successful record requires show.venue")
		}
	}
	return nil
}

// NavigationOutcome reports what happened when a session navigated. It never
// represents HTTP error statuses as errors; Err is set only for network failures.
// A Recoverable Err leaves the session on whatever document has loaded.
type NavigationOutcome struct {
	Status   int
	FinalURL string
	Err      *NavigationError
}

// PageResult is the page-extraction output for one URL.
type PageResult struct {
	URL           string `json:"url"`
	WorkerID      int    `json:"workerId"`
	Success       bool   `json:"success"`
	Vendor        string `json:"vendor,omitempty"`
	DJ            string `json:"dj,omitempty"`
	Show          *Show  `json:"show,omitempty"`
	Source        string `json:"source"`
	Error         string `json:"error,omitempty"`
	ErrorCategory string `json:"errorCategory,omitempty"`
	Strategy      string `json:"strategy,omitempty"`
}

// Record returns the StructuredRecord view of the result.
func (p PageResult) Record() StructuredRecord {
	return StructuredRecord{
		VendorName: p.Vendor,
		DJName:     p.DJ,
		Show:       p.Show,
		SourceURL:  p.Source,
		Success:    p.Success,
		Error:      p.Error,
	}
}

// DiscoveryResult is the discovery output for one seed URL.
type DiscoveryResult struct {
	Success         bool           `json:"success"`
	URLs            []string       `json:"urls"`
	Candidates      []CandidateURL `json:"-"`
	SiteName        string         `json:"siteName"`
	Error           string         `json:"error,omitempty"`
	DiscoveryTimeMs int64          `json:"discoveryTimeMs"`
	UsedFallback    bool           `json:"usedFallback"`
}

// ResultKind tags a WorkerResult.
type ResultKind string

// WorkerResult variants.
const (
	ResultComplete ResultKind = "complete"
	ResultError    ResultKind = "error"
)

// WorkerResult is the tagged result of one task. Exactly one of Page or
// Discovery is set, matching the task kind; Err is set for ResultError.
type WorkerResult struct {
	Kind      ResultKind
	Task      Task
	WorkerID  int
	Page      *PageResult
	Discovery *DiscoveryResult
	Err       error
}

// Failed reports whether the result is the Error variant.
func (w WorkerResult) Failed() bool {
	return w.Kind == ResultError
}

// FailedResult builds the Error variant for a task, filling the kind-specific
// payload so callers always get a result for every submitted URL.
func FailedResult(task Task, workerID int, err error) WorkerResult {
	res := WorkerResult{Kind: ResultError, Task: task, WorkerID: workerID, Err: err}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	switch task.Kind {
	case KindDiscovery:
		res.Discovery = &DiscoveryResult{Success: false, URLs: []string{}, Error: msg}
	default:
		res.Page = &PageResult{
			URL:           task.URL,
			WorkerID:      workerID,
			Success:       false,
			Source:        task.URL,
			Error:         msg,
			ErrorCategory: Category(err),
		}
	}
	return res
}
