// Package discovery finds candidate venue pages on a site.
//
// BuildPayload condenses a rendered page into the navigation and link markup
// sent to the link extraction service. FallbackLinks is the deterministic,
// offline alternative used when that service fails. Both paths end in the
// same scope, dedupe and ranking rules.
package discovery
