package model

import (
	"cmp"
	"slices"
)

// NotAvailable is the value used for record fields that could not be derived
// from the write-up URL.
const NotAvailable = "N/A"

// Record is a single classified write-up.
// It is created once per write-up URL and never modified afterwards.
type Record struct {
	// Year is the first path segment of the write-up URL (e.g. "2022").
	Year string `json:"year"`

	// CTF is the competition name. It is either one of the well-known
	// competitions or the second path segment taken verbatim.
	CTF string `json:"ctf"`

	// Category is the challenge category (e.g. "pwn", "crypto"),
	// or NotAvailable when the URL path is too short to contain one.
	Category string `json:"category"`

	// Title is the human readable challenge title derived from the last
	// path segment.
	Title string `json:"title"`

	// URL is the write-up URL the record was built from.
	URL string `json:"url"`

	// Placeholder is true when the URL could not be classified and every
	// field except URL holds NotAvailable.
	//
	// Design decision: We keep an explicit flag instead of relying on the
	// "N/A" strings because:
	//  1. A real fallback record may legitimately have Category "N/A"
	//  2. Callers can filter degraded rows without string comparisons
	Placeholder bool `json:"placeholder,omitempty"`
}

// NewPlaceholderRecord returns the degraded record used when a write-up URL
// cannot be classified. Only the URL is preserved.
func NewPlaceholderRecord(url string) Record {
	return Record{
		Year:        NotAvailable,
		CTF:         NotAvailable,
		Category:    NotAvailable,
		Title:       NotAvailable,
		URL:         url,
		Placeholder: true,
	}
}

// Fields returns the record values in column order: Year, CTF, Category, Title, URL.
func (r Record) Fields() []string {
	return []string{r.Year, r.CTF, r.Category, r.Title, r.URL}
}

// RecordColumns are the column headers matching Record.Fields.
var RecordColumns = []string{"Year", "CTF", "Category", "Title", "URL"}

// compareRecords orders records by Year, CTF, Category and Title.
// URL is the final tie breaker so the order is total.
func compareRecords(a, b Record) int {
	return cmp.Or(
		cmp.Compare(a.Year, b.Year),
		cmp.Compare(a.CTF, b.CTF),
		cmp.Compare(a.Category, b.Category),
		cmp.Compare(a.Title, b.Title),
		cmp.Compare(a.URL, b.URL),
	)
}

// SortRecords sorts records in place by Year, CTF, Category and Title.
func SortRecords(records []Record) {
	slices.SortStableFunc(records, compareRecords)
}

// SortedRecords returns a sorted copy of records, leaving the input untouched.
func SortedRecords(records []Record) []Record {
	sorted := slices.Clone(records)
	SortRecords(sorted)
	return sorted
}

// CountPlaceholders returns how many records are degraded placeholders.
func CountPlaceholders(records []Record) int {
	n := 0
	for _, r := range records {
		if r.Placeholder {
			n++
		}
	}
	return n
}

// GroupCount is the number of write-ups for one (Year, CTF) pair.
type GroupCount struct {
	Year  string `json:"year"`
	CTF   string `json:"ctf"`
	Count int    `json:"count"`
}

// Summarize counts records grouped by (Year, CTF).
// Groups are returned sorted by Year then CTF.
func Summarize(records []Record) []GroupCount {
	type key struct{ year, ctf string }

	counts := make(map[key]int)
	for _, r := range records {
		counts[key{r.Year, r.CTF}]++
	}

	groups := make([]GroupCount, 0, len(counts))
	for k, n := range counts {
		groups = append(groups, GroupCount{Year: k.year, CTF: k.ctf, Count: n})
	}

	slices.SortFunc(groups, func(a, b GroupCount) int {
		return cmp.Or(cmp.Compare(a.Year, b.Year), cmp.Compare(a.CTF, b.CTF))
	})
	return groups
}

// CountByCTF counts records per competition name, ignoring the year.
// Groups are returned sorted by CTF; the Year field is left empty.
func CountByCTF(records []Record) []GroupCount {
	counts := make(map[string]int)
	for _, r := range records {
		counts[r.CTF]++
	}

	groups := make([]GroupCount, 0, len(counts))
	for ctf, n := range counts {
		groups = append(groups, GroupCount{CTF: ctf, Count: n})
	}
	slices.SortFunc(groups, func(a, b GroupCount) int {
		return cmp.Compare(a.CTF, b.CTF)
	})
	return groups
}
