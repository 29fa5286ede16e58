package content

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// regionSelectors are tried in order; the first region with enough text wins.
var regionSelectors = []string{
	"main",
	"article",
	"[role=main]",
	"#content",
	".content",
	"#main",
	".main",
	".entry-content",
	".post-content",
}

// blockKeywords weight candidate blocks toward show schedules.
var blockKeywords = []string{
	"karaoke", "dj", "venue", "night", "schedule", "weekly", "host", "event", "pm",
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
}

const noiseSelector = "script, style, noscript, template, svg, iframe"

// RegionText extracts readable text from the content region of a page. It
// prefers well-known content containers, then the keyword-weighted largest
// block, then the whole body.
func RegionText(pageHTML string, minChars int) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return "", err
	}
	doc.Find(noiseSelector).Remove()

	for _, sel := range regionSelectors {
		var parts []string
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			if text := collapseSpace(s.Text()); text != "" {
				parts = append(parts, text)
			}
		})
		text := strings.Join(parts, "\n")
		if MeaningfulChars(text) >= minChars {
			return text, nil
		}
	}

	if best := weightedBlock(doc); MeaningfulChars(best) >= minChars {
		return best, nil
	}
	return collapseSpace(doc.Find("body").Text()), nil
}

func weightedBlock(doc *goquery.Document) string {
	var (
		best      string
		bestScore int
	)
	doc.Find("div, section").Each(func(_ int, s *goquery.Selection) {
		text := collapseSpace(s.Text())
		if text == "" {
			return
		}
		score := len(text) * (1 + keywordHits(strings.ToLower(text)))
		if score > bestScore {
			best, bestScore = text, score
		}
	})
	return best
}

func keywordHits(lower string) int {
	hits := 0
	for _, kw := range blockKeywords {
		hits += strings.Count(lower, kw)
	}
	return hits
}

// StripHTML returns the text content of a document with scripts, styles and
// tags removed. It never fails; malformed markup yields whatever text was read.
func StripHTML(pageHTML string) string {
	z := html.NewTokenizer(strings.NewReader(pageHTML))
	var (
		b    strings.Builder
		skip int
	)
	for {
		switch z.Next() {
		case html.ErrorToken:
			return collapseSpace(b.String())
		case html.StartTagToken:
			name, _ := z.TagName()
			if isSkippedTag(atom.Lookup(name)) {
				skip++
			}
			b.WriteByte(' ')
		case html.EndTagToken:
			name, _ := z.TagName()
			if isSkippedTag(atom.Lookup(name)) && skip > 0 {
				skip--
			}
			b.WriteByte(' ')
		case html.SelfClosingTagToken:
			b.WriteByte(' ')
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

func isSkippedTag(a atom.Atom) bool {
	switch a {
	case atom.Script, atom.Style, atom.Noscript, atom.Template, atom.Svg:
		return true
	}
	return false
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
