// Package database provides SQLite-based storage of crawl runs for ctfindex.
//
// This package implements the IndexDB, which stores:
//   - One row per run with its status and counters, plus the full index as JSON
//   - The classified write-ups of each run, queryable by year and competition
//   - The pages fetched during each run with their outcome
//
// Stored runs let `ctfindex compare` report the write-ups that appeared or
// disappeared between two crawls of the same site.
//
// Design decision: We use SQLite (via modernc.org/sqlite) instead of other
// databases because:
//  1. No external dependencies - the database is a single file
//  2. CGO-free implementation allows easy cross-compilation
//  3. Sufficient performance for a few thousand write-ups per run
package database
