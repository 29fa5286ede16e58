package content

import (
	"strings"
	"unicode"
)

// Status is the terminal assessment of extracted text.
type Status string

// Assessment results.
const (
	StatusSufficient   Status = "Sufficient"
	StatusInsufficient Status = "InsufficientContent"
	StatusBlocked      Status = "Blocked"
)

// Detector defaults.
const (
	DefaultMinChars       = 200
	DefaultShortPageChars = 2000
)

// blockSignatures appear on error, bot-check and block pages. They are only
// trusted on short pages since long pages mention them in passing.
var blockSignatures = []string{
	"403 forbidden",
	"error 403",
	"access denied",
	"not found",
	"just a moment",
	"checking your browser",
	"attention required",
	"captcha",
	"are you a robot",
	"are you human",
	"request blocked",
	"enable javascript and cookies",
}

// Detector decides whether text is worth sending to structured extraction.
type Detector struct {
	MinChars       int
	ShortPageChars int
}

// NewDetector creates a detector; zero values use the defaults.
func NewDetector(minChars, shortPageChars int) *Detector {
	if minChars <= 0 {
		minChars = DefaultMinChars
	}
	if shortPageChars <= 0 {
		shortPageChars = DefaultShortPageChars
	}
	return &Detector{MinChars: minChars, ShortPageChars: shortPageChars}
}

// Assess classifies text as sufficient, insufficient or a block page.
func (d *Detector) Assess(text string) Status {
	meaningful := MeaningfulChars(text)
	if meaningful < d.ShortPageChars && HasBlockSignature(text) {
		return StatusBlocked
	}
	if meaningful < d.MinChars {
		return StatusInsufficient
	}
	return StatusSufficient
}

// HasBlockSignature reports whether text contains a known block or error phrase.
func HasBlockSignature(text string) bool {
	lower := strings.ToLower(text)
	for _, sig := range blockSignatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}

// MeaningfulChars counts non-whitespace, non-control runes.
func MeaningfulChars(text string) int {
	n := 0
	for _, r := range text {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			continue
		}
		n++
	}
	return n
}
