// Package writeup turns write-up URLs into structured records.
//
// A write-up URL has the shape
//
//	<base>/<year>/<competition>/.../<category>/<challenge-slug>
//
// The Classifier resolves the competition name with an ordered list of rules
// (first match wins), then derives the category and title from the URL path.
//
// # Degradation
//
// Parse never fails. URLs that cannot be classified become placeholder records
// (see model.NewPlaceholderRecord) and the problem is logged. Classify is the
// strict variant that returns the error instead, for callers and tests that
// need to know why.
package writeup
