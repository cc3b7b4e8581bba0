package model

import (
	"time"

	"github.com/google/uuid"
)

// Index is the result of one crawl run for one site.
// It carries everything the reports and the history database need.
//
// Design decision: We use a single struct per run rather than passing the
// write-up URLs and records around separately because:
//  1. Pipeline steps can enrich it one after another
//  2. It serializes to JSON as-is for reports and storage
//  3. Errors of a step are kept next to the partial results
type Index struct {
	// RunID uniquely identifies the run (random UUID).
	RunID string `json:"run_id"`

	// Site is the configured site name (e.g. "ayweth20").
	Site string `json:"site"`

	// BaseURL is the URL prefix every collected write-up starts with.
	BaseURL string `json:"base_url"`

	// Seeds are the URLs the traversal started from.
	Seeds []string `json:"seeds"`

	// StartedAt is when the run started.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the last pipeline step finished.
	FinishedAt time.Time `json:"finished_at"`

	// WriteupURLs are the write-up URLs found, in discovery order.
	WriteupURLs []string `json:"writeup_urls"`

	// Records are the classified write-ups, sorted.
	Records []Record `json:"records"`

	// PagesVisited is the number of URLs fetched (successfully or not).
	PagesVisited int `json:"pages_visited"`

	// Visits lists every fetched URL with its outcome.
	Visits []Visit `json:"visits,omitempty"`

	// FetchFailures lists the URLs that could not be fetched.
	FetchFailures []FetchFailure `json:"fetch_failures,omitempty"`

	// PerformedSteps are the names of the pipeline steps that ran.
	PerformedSteps []string `json:"performed_steps,omitempty"`

	// Error is the last step error, if any.
	Error error `json:"-"`

	// ErrorMessage is the string form of Error for serialization.
	ErrorMessage string `json:"error,omitempty"`

	// TimedOut is true when the run was cancelled before completion.
	TimedOut bool `json:"timed_out,omitempty"`
}

// Visit is the outcome of fetching one URL during traversal.
type Visit struct {
	URL        string `json:"url"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Failed reports whether the fetch did not produce a usable page.
func (v Visit) Failed() bool {
	return v.Error != ""
}

// FetchFailure records a URL whose content could not be retrieved.
type FetchFailure struct {
	URL     string `json:"url"`
	Message string `json:"message"`
}

// NewIndex creates an Index for a site with a fresh run ID.
func NewIndex(site, baseURL string, seeds []string) *Index {
	return &Index{
		RunID:       uuid.NewString(),
		Site:        site,
		BaseURL:     baseURL,
		Seeds:       append([]string(nil), seeds...),
		StartedAt:   time.Now(),
		WriteupURLs: make([]string, 0),
		Records:     make([]Record, 0),
	}
}

// WriteupCount returns the number of write-ups found.
func (idx *Index) WriteupCount() int {
	return len(idx.WriteupURLs)
}

// Summary returns the (Year, CTF) counts of the index records.
func (idx *Index) Summary() []GroupCount {
	return Summarize(idx.Records)
}

// Preview returns up to n records in sorted order.
func (idx *Index) Preview(n int) []Record {
	sorted := SortedRecords(idx.Records)
	if n >= 0 && len(sorted) > n {
		return sorted[:n]
	}
	return sorted
}

// Duration returns how long the run took, or zero if it has not finished.
func (idx *Index) Duration() time.Duration {
	if idx.FinishedAt.IsZero() {
		return 0
	}
	return idx.FinishedAt.Sub(idx.StartedAt)
}

// Status returns a short human readable run status.
func (idx *Index) Status() string {
	switch {
	case idx.TimedOut:
		return "cancelled (partial results)"
	case idx.ErrorMessage != "":
		return "error: " + idx.ErrorMessage
	default:
		return "complete"
	}
}
