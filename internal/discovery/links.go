package discovery

import (
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/venue-crawler/internal/crawler"
)

// DefaultMaxCandidates bounds the URLs returned per seed.
const DefaultMaxCandidates = 50

var skippedSchemes = []string{"mailto:", "tel:", "javascript:", "data:", "sms:", "ftp:"}

var skippedExtensions = map[string]struct{}{
	".pdf": {}, ".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".svg": {}, ".webp": {},
	".css": {}, ".js": {}, ".zip": {}, ".mp3": {}, ".mp4": {}, ".ico": {}, ".xml": {},
	".json": {}, ".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {},
}

// venueKeywords earn priority 1; karaoke earns 2.
var venueKeywords = []string{
	"venue", "event", "location", "schedule", "calendar", "show", "dj", "night", "bar", "entertainment", "music",
}

// Candidate priorities.
const (
	PriorityNone    = 0
	PriorityVenue   = 1
	PriorityKaraoke = 2
)

type link struct {
	href string
	text string
}

// FallbackLinks extracts in-scope candidate URLs from every href on the page.
// It performs no network access and returns the same result for the same input.
func FallbackLinks(pageURL, pageHTML string, scope *crawler.ScopeConfig, limit int) ([]crawler.CandidateURL, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if ref, err := url.Parse(strings.TrimSpace(href)); err == nil {
			base = base.ResolveReference(ref)
		}
	}

	var links []link
	doc.Find("[href]").Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "base" {
			return
		}
		href, _ := s.Attr("href")
		links = append(links, link{href: href, text: strings.TrimSpace(s.Text())})
	})
	return rank(base, links, scope, limit), nil
}

// FilterCandidates applies the fallback rules to URLs returned by the link
// extraction service so every result is absolute, in scope and unique.
func FilterCandidates(urls []string, pageURL string, scope *crawler.ScopeConfig, limit int) []crawler.CandidateURL {
	base, err := url.Parse(pageURL)
	if err != nil {
		base = nil
	}
	links := make([]link, 0, len(urls))
	for _, u := range urls {
		links = append(links, link{href: u})
	}
	return rank(base, links, scope, limit)
}

func rank(base *url.URL, links []link, scope *crawler.ScopeConfig, limit int) []crawler.CandidateURL {
	if limit <= 0 {
		limit = DefaultMaxCandidates
	}
	seen := make(map[string]struct{}, len(links))
	out := make([]crawler.CandidateURL, 0, len(links))
	for _, l := range links {
		normalized, ok := acceptable(base, l.href, scope)
		if !ok {
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, crawler.CandidateURL{URL: normalized, Priority: Priority(normalized, l.text)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func acceptable(base *url.URL, href string, scope *crawler.ScopeConfig) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	lower := strings.ToLower(href)
	for _, scheme := range skippedSchemes {
		if strings.HasPrefix(lower, scheme) {
			return "", false
		}
	}
	normalized, err := crawler.ResolveURL(base, href)
	if err != nil {
		return "", false
	}
	u, err := url.Parse(normalized)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}
	if _, skip := skippedExtensions[strings.ToLower(path.Ext(u.Path))]; skip {
		return "", false
	}
	if !scope.Contains(normalized) {
		return "", false
	}
	return normalized, true
}

// Priority ranks a candidate from its path, query and anchor text. The host
// is ignored so a domain like "bar.com" does not lift every link.
func Priority(rawURL, anchorText string) int {
	hay := anchorText
	if u, err := url.Parse(rawURL); err == nil {
		hay = u.Path + " " + u.RawQuery + " " + anchorText
	}
	hay = strings.ToLower(hay)
	if strings.Contains(hay, "karaoke") {
		return PriorityKaraoke
	}
	for _, kw := range venueKeywords {
		if strings.Contains(hay, kw) {
			return PriorityVenue
		}
	}
	return PriorityNone
}

// URLs flattens candidates to their URLs, keeping order.
func URLs(candidates []crawler.CandidateURL) []string {
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.URL)
	}
	return out
}
