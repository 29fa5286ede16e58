// Package browser provides the isolated browser sessions used by task workers.
//
// Two engines implement crawler.Launcher: ChromeLauncher drives one headless
// Chrome process per session through chromedp, and StaticLauncher performs a
// plain HTTP fetch through colly for environments without Chrome. Both report
// navigation as a crawler.NavigationOutcome so HTTP error statuses never fail
// a task on their own.
package browser
