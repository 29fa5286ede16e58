// Package crawler holds the shared vocabulary of the venue crawl pipeline:
// tasks, scope rules, candidate URLs, structured records, worker results, and
// the error taxonomy every stage reports through.
package crawler
