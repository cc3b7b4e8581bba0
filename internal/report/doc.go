// Package report writes the results of crawl runs.
//
// This package contains writers for different output formats:
//   - XLSXWriter: spreadsheet with the sorted write-ups and a summary sheet (excelize)
//   - SimpleWriter: terminal tables with a preview and per-competition counts (go-pretty)
//   - MarkdownWriter: GitHub flavored Markdown with a pie chart (nao1215/markdown)
//   - JSONWriter: the complete indexes for tool integration
//
// Every writer orders records by year, competition, category and title.
//
// Design decision: We separate report writing from the run data (in the
// model package) so new output formats don't touch the crawler.
package report
