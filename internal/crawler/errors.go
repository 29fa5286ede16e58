package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the pipeline failure taxonomy.
var (
	ErrInsufficientContent = errors.New("InsufficientContent")
	ErrBlockedPage         = errors.New("BlockedOrErrorPage")
	ErrWorkerTimeout       = errors.New("WorkerTimeout")
	ErrLaunchFailure       = errors.New("OrchestratorLaunchFailure")
)

// NavigationKind classifies a navigation failure.
type NavigationKind string

// Navigation failure kinds.
const (
	NavDNS               NavigationKind = "DNSResolutionFailed"
	NavConnectionRefused NavigationKind = "ConnectionRefused"
	NavTimeout           NavigationKind = "Timeout"
	NavEmptyResponse     NavigationKind = "EmptyResponse"
	NavOther             NavigationKind = "Other"
)

// Label returns the operator-facing name of the kind.
func (k NavigationKind) Label() string {
	switch k {
	case NavDNS:
		return "DNS Resolution Failed"
	case NavConnectionRefused:
		return "Connection Refused"
	case NavTimeout:
		return "Navigation Timeout"
	case NavEmptyResponse:
		return "Empty Response"
	default:
		return "Navigation Failed"
	}
}

// NavigationError is a classified network-level navigation failure.
type NavigationError struct {
	Kind NavigationKind
	URL  string
	Err  error
}

func (e *NavigationError) Error() string {
	detail := ""
	if e.Err != nil {
		detail = e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Label(), detail)
}

func (e *NavigationError) Unwrap() error {
	return e.Err
}

// Recoverable reports whether the page may still hold a usable document.
// A timed out navigation leaves the tab open on whatever has loaded, so the
// content ladder gets to decide; network failures leave nothing to read.
func (e *NavigationError) Recoverable() bool {
	return e != nil && e.Kind == NavTimeout
}

// ClassifyNavigation maps a raw navigation error (Chrome net:: codes, Go net
// errors, context deadlines) onto a NavigationError.
func ClassifyNavigation(rawURL string, err error) *NavigationError {
	if err == nil {
		return nil
	}
	var navErr *NavigationError
	if errors.As(err, &navErr) {
		return navErr
	}
	return &NavigationError{Kind: navigationKind(err), URL: rawURL, Err: err}
}

func navigationKind(err error) NavigationKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return NavTimeout
	}
	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "err_name_not_resolved", "no such host", "name resolution", "err_name_resolution_failed"):
		return NavDNS
	case containsAny(msg, "err_connection_refused", "connection refused"):
		return NavConnectionRefused
	case containsAny(msg, "err_timed_out", "err_connection_timed_out", "timeout", "deadline exceeded"):
		return NavTimeout
	case containsAny(msg, "err_empty_response", "empty response", "eof"):
		return NavEmptyResponse
	default:
		return NavOther
	}
}

// Category returns the specific operator-facing category for an error.
func Category(err error) string {
	if err == nil {
		return ""
	}
	var navErr *NavigationError
	var categorized interface{ Category() string }
	switch {
	case errors.Is(err, ErrLaunchFailure):
		return "OrchestratorLaunchFailure"
	case errors.Is(err, ErrWorkerTimeout):
		return "WorkerTimeout"
	case errors.As(err, &navErr):
		return "NavigationError:" + string(navErr.Kind)
	case errors.Is(err, ErrBlockedPage):
		return "BlockedOrErrorPage"
	case errors.Is(err, ErrInsufficientContent):
		return "InsufficientContent"
	case errors.As(err, &categorized):
		return categorized.Category()
	default:
		return "Unknown"
	}
}

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
