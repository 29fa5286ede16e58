package discovery

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// DefaultMaxPayloadBytes caps the markup sent for link extraction.
const DefaultMaxPayloadBytes = 30000

const navSelector = "nav, header, footer, [role=navigation], .menu, .nav, .navbar, .breadcrumb, .pagination"

// Payload is the condensed markup for link extraction.
type Payload struct {
	HTML          string
	OriginalBytes int
	Truncated     bool
	NavRegions    int
	KeywordLinks  int
	OtherLinks    int
}

// BuildPayload extracts navigation regions and anchors from pageHTML. Over
// maxBytes it keeps navigation first, then keyword anchors, then a prefix of
// the remaining anchors, never cutting inside a tag.
func BuildPayload(pageHTML string, maxBytes int) (Payload, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxPayloadBytes
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return Payload{}, fmt.Errorf("parse page: %w", err)
	}
	doc.Find("script, style, noscript, template, svg").Remove()

	var navParts, keywordParts, otherParts []string
	doc.Find(navSelector).Each(func(_ int, s *goquery.Selection) {
		if s.ParentsFiltered(navSelector).Length() > 0 {
			return
		}
		if markup, err := goquery.OuterHtml(s); err == nil {
			navParts = append(navParts, markup)
		}
	})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if s.ParentsFiltered(navSelector).Length() > 0 {
			return
		}
		markup, err := goquery.OuterHtml(s)
		if err != nil {
			return
		}
		href, _ := s.Attr("href")
		if Priority(href, s.Text()) > PriorityNone {
			keywordParts = append(keywordParts, markup)
			return
		}
		otherParts = append(otherParts, markup)
	})

	sections := []string{
		strings.Join(navParts, "\n"),
		strings.Join(keywordParts, "\n"),
		strings.Join(otherParts, "\n"),
	}
	p := Payload{
		NavRegions:   len(navParts),
		KeywordLinks: len(keywordParts),
		OtherLinks:   len(otherParts),
	}
	full := joinNonEmpty(sections)
	p.OriginalBytes = len(full)
	if len(full) <= maxBytes {
		p.HTML = full
		return p, nil
	}

	p.Truncated = true
	var b strings.Builder
	for _, sec := range sections {
		if sec == "" {
			continue
		}
		sep := 0
		if b.Len() > 0 {
			sep = 1
		}
		remaining := maxBytes - b.Len() - sep
		if remaining <= 0 {
			break
		}
		if sep == 1 {
			b.WriteByte('\n')
		}
		if len(sec) <= remaining {
			b.WriteString(sec)
			continue
		}
		b.WriteString(SafeTruncate(sec, remaining))
		break
	}
	p.HTML = strings.TrimRight(b.String(), "\n")
	return p, nil
}

// SafeTruncate cuts s to at most n bytes on a rune boundary without leaving a
// partial tag at the end.
func SafeTruncate(s string, n int) string {
	if n >= len(s) {
		return s
	}
	if n <= 0 {
		return ""
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	cut := s[:n]
	if open := strings.LastIndexByte(cut, '<'); open > strings.LastIndexByte(cut, '>') {
		cut = cut[:open]
	}
	return cut
}

func joinNonEmpty(parts []string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n")
}
