// Package aggregate merges page results into a deduplicated record set and
// keeps failures as diagnostics rather than dropping them.
package aggregate

import (
	"sort"
	"strings"
	"unicode"

	"github.com/JakeFAU/venue-crawler/internal/crawler"
)

// ReasonNoShow labels pages that extracted cleanly but held no show.
const ReasonNoShow = "NoShowFound"

// Record is a usable structured record with every URL it was seen on.
type Record struct {
	crawler.StructuredRecord
	Sources []string `json:"sources"`
}

// Diagnostics summarizes the pages that yielded no usable record. Each failed
// URL is counted once, under the reason of its first failure.
type Diagnostics struct {
	FailedCount int            `json:"failedCount"`
	FailedURLs  []string       `json:"failedUrls"`
	Reasons     map[string]int `json:"reasons"`
}

// Report is the aggregator output.
type Report struct {
	Records     []Record    `json:"records"`
	Diagnostics Diagnostics `json:"diagnostics"`
	TotalPages  int         `json:"totalPages"`
}

// Key identifies a show for deduplication.
type Key struct {
	Venue     string
	DayOfWeek string
	Time      string
}

// KeyOf builds the dedupe key for a show.
func KeyOf(show *crawler.Show) Key {
	return Key{
		Venue:     NormalizeVenue(show.Venue),
		DayOfWeek: strings.ToLower(strings.TrimSpace(show.DayOfWeek)),
		Time:      strings.ToLower(strings.Join(strings.Fields(show.Time), "")),
	}
}

// NormalizeVenue folds case, punctuation and spacing so "O'Nelly's" and
// "ONELLYS" compare equal.
func NormalizeVenue(venue string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(venue) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case unicode.IsSpace(r):
			space = true
		}
	}
	return b.String()
}

// Aggregate deduplicates successful records and tallies the rest. On a key
// collision the record with more populated optional fields wins and ties keep
// the earliest seen. Running it over the same input twice, or over the input
// repeated, yields the same records.
func Aggregate(results []crawler.PageResult) Report {
	report := Report{
		Records:     []Record{},
		Diagnostics: Diagnostics{FailedURLs: []string{}, Reasons: map[string]int{}},
		TotalPages:  len(results),
	}
	index := make(map[Key]int)
	failed := make(map[string]struct{})

	for _, res := range results {
		rec := res.Record()
		if !res.Success || rec.Validate() != nil {
			reason := res.ErrorCategory
			if reason == "" {
				reason = ReasonNoShow
			}
			if _, seen := failed[res.URL]; seen {
				continue
			}
			failed[res.URL] = struct{}{}
			report.Diagnostics.FailedURLs = append(report.Diagnostics.FailedURLs, res.URL)
			report.Diagnostics.Reasons[reason]++
			report.Diagnostics.FailedCount++
			continue
		}

		key := KeyOf(rec.Show)
		i, ok := index[key]
		if !ok {
			index[key] = len(report.Records)
			report.Records = append(report.Records, Record{StructuredRecord: rec, Sources: []string{rec.SourceURL}})
			continue
		}
		existing := &report.Records[i]
		existing.Sources = addSource(existing.Sources, rec.SourceURL)
		if rec.Show.PopulatedOptional() > existing.Show.PopulatedOptional() {
			existing.StructuredRecord = rec
		}
	}
	return report
}

func addSource(sources []string, src string) []string {
	for _, s := range sources {
		if s == src {
			return sources
		}
	}
	return append(sources, src)
}

// ReasonCounts returns the histogram sorted by count, then name.
func (d Diagnostics) ReasonCounts() []ReasonCount {
	out := make([]ReasonCount, 0, len(d.Reasons))
	for reason, n := range d.Reasons {
		out = append(out, ReasonCount{Reason: reason, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Reason < out[j].Reason
	})
	return out
}

// ReasonCount is one histogram bucket.
type ReasonCount struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}
