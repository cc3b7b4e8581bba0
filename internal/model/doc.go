// Package model defines the core data structures used throughout ctfindex.
//
// This package contains the following main types:
//   - Record: One classified write-up (Year, CTF, Category, Title, URL)
//   - Index: The result of one crawl run for one site
//   - GroupCount: Number of write-ups per (Year, CTF) pair
//
// Design decision: We separate models into their own package to avoid circular
// dependencies. The crawler, the classifier, the reports and the database all
// need these types, so centralizing them prevents import cycles.
//
// The models are designed to be serializable to JSON for report output and
// database storage.
package model
