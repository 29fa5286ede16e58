package extraction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/JakeFAU/venue-crawler/internal/crawler"
)

// Versioned instruction sets. Bump the version whenever the text changes.
const (
	RecordSchemaVersion = "venue-record/v1"
	LinksSchemaVersion  = "site-links/v1"
)

const recordInstructions = `You extract recurring karaoke or DJ show listings from web page text.
Return only a JSON object with these fields:
  "success": boolean, true only when the text describes a specific recurring show.
  "vendor": the company or host business running the show, if stated.
  "dj": the DJ or host name, if stated.
  "show": object with "venue" (required when success is true), "address", "city", "state", "zip",
          "dayOfWeek" (lowercase English weekday), "time" (as written, e.g. "9pm-2am"), "djName",
          "description", "lat", "lng", "venuePhone", "venueWebsite".
  "error": short reason when success is false.
Never invent values that are not present in the text. Omit unknown fields.`

const linksInstructions = `You select links that likely lead to venue, event or show schedule pages.
The content is navigation and link markup from one website.
Return only a JSON object: {"urls": [absolute or site-relative URLs], "siteName": "the site's display name"}.
Prefer pages about karaoke, venues, locations, schedules, calendars and events.
Exclude social media, login, cart, privacy and legal pages.`

type request struct {
	Instructions   string `json:"instructions"`
	Content        string `json:"content"`
	SourceURL      string `json:"sourceUrl"`
	SchemaVersion  string `json:"schemaVersion"`
	ResponseFormat string `json:"responseFormat"`
}

type envelope struct {
	Content json.RawMessage `json:"content"`
}

type wireShow struct {
	Venue        string          `json:"venue"`
	Address      string          `json:"address"`
	City         string          `json:"city"`
	State        string          `json:"state"`
	Zip          json.RawMessage `json:"zip"`
	DayOfWeek    string          `json:"dayOfWeek"`
	Time         string          `json:"time"`
	DJName       string          `json:"djName"`
	Description  string          `json:"description"`
	Lat          json.RawMessage `json:"lat"`
	Lng          json.RawMessage `json:"lng"`
	VenuePhone   string          `json:"venuePhone"`
	VenueWebsite string          `json:"venueWebsite"`
}

type wireRecord struct {
	Success *bool     `json:"success"`
	Vendor  string    `json:"vendor"`
	DJ      string    `json:"dj"`
	Show    *wireShow `json:"show"`
	Error   string    `json:"error"`
}

type wireLinks struct {
	URLs     *[]string `json:"urls"`
	SiteName string    `json:"siteName"`
}

// LinkResult is the validated link extraction response.
type LinkResult struct {
	URLs     []string
	SiteName string
}

// DecodeRecord validates raw service output into a StructuredRecord. Nothing
// in raw is trusted until it passes here.
func DecodeRecord(raw []byte, sourceURL string) (crawler.StructuredRecord, error) {
	var wire wireRecord
	if err := json.Unmarshal(raw, &wire); err != nil {
		return crawler.StructuredRecord{}, fmt.Errorf("decode record: %w", err)
	}
	if wire.Success == nil {
		return crawler.StructuredRecord{}, &SchemaViolation{Field: "success", Reason: "is required"}
	}
	rec := crawler.StructuredRecord{
		VendorName: strings.TrimSpace(wire.Vendor),
		DJName:     strings.TrimSpace(wire.DJ),
		SourceURL:  sourceURL,
		Success:    *wire.Success,
	}
	if !rec.Success {
		rec.Error = strings.TrimSpace(wire.Error)
		return rec, nil
	}
	if wire.Show == nil {
		return crawler.StructuredRecord{}, &SchemaViolation{Field: "show", Reason: "is required when success is true"}
	}
	show, err := wire.Show.normalize()
	if err != nil {
		return crawler.StructuredRecord{}, err
	}
	if show.Venue == "" {
		return crawler.StructuredRecord{}, &SchemaViolation{Field: "show.venue", Reason: "is required when success is true"}
	}
	rec.Show = show
	if rec.DJName == "" {
		rec.DJName = show.DJName
	}
	return rec, rec.Validate()
}

// DecodeLinks validates raw link extraction output.
func DecodeLinks(raw []byte) (LinkResult, error) {
	var wire wireLinks
	if err := json.Unmarshal(raw, &wire); err != nil {
		return LinkResult{}, fmt.Errorf("decode links: %w", err)
	}
	if wire.URLs == nil {
		return LinkResult{}, &SchemaViolation{Field: "urls", Reason: "is required"}
	}
	out := LinkResult{SiteName: strings.TrimSpace(wire.SiteName), URLs: make([]string, 0, len(*wire.URLs))}
	for _, u := range *wire.URLs {
		if u = strings.TrimSpace(u); u != "" {
			out.URLs = append(out.URLs, u)
		}
	}
	return out, nil
}

func (w *wireShow) normalize() (*crawler.Show, error) {
	zip, err := flexString("show.zip", w.Zip)
	if err != nil {
		return nil, err
	}
	lat, err := flexFloat("show.lat", w.Lat)
	if err != nil {
		return nil, err
	}
	lng, err := flexFloat("show.lng", w.Lng)
	if err != nil {
		return nil, err
	}
	return &crawler.Show{
		Venue:        strings.TrimSpace(w.Venue),
		Address:      strings.TrimSpace(w.Address),
		City:         strings.TrimSpace(w.City),
		State:        strings.TrimSpace(w.State),
		Zip:          zip,
		DayOfWeek:    strings.ToLower(strings.TrimSpace(w.DayOfWeek)),
		Time:         strings.TrimSpace(w.Time),
		DJName:       strings.TrimSpace(w.DJName),
		Description:  strings.TrimSpace(w.Description),
		Lat:          lat,
		Lng:          lng,
		VenuePhone:   strings.TrimSpace(w.VenuePhone),
		VenueWebsite: strings.TrimSpace(w.VenueWebsite),
	}, nil
}

// flexFloat accepts null, a JSON number or a numeric string. Any other value
// is a SchemaViolation for field.
func flexFloat(field string, raw json.RawMessage) (*float64, error) {
	s, err := flexString(field, raw)
	if err != nil || s == "" {
		return nil, err
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, &SchemaViolation{Field: field, Reason: fmt.Sprintf("must be a number, got %q", s)}
	}
	return &f, nil
}

// flexString accepts null, a JSON string or a number. Any other value is a
// SchemaViolation for field.
func flexString(field string, raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", &SchemaViolation{Field: field, Reason: "must be a string or number"}
}

// unwrapContent returns the JSON document carried in the envelope. The
// content may be a JSON string, optionally fenced as markdown, or an object.
func unwrapContent(raw json.RawMessage) ([]byte, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, &SchemaViolation{Field: "content", Reason: "is missing"}
	}
	if raw[0] != '"' {
		return raw, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}
	s = stripFences(s)
	if s == "" {
		return nil, &SchemaViolation{Field: "content", Reason: "is empty"}
	}
	return []byte(s), nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
