package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/nao1215/ctfindex/internal/config"
	"github.com/nao1215/ctfindex/internal/database"
	"github.com/nao1215/ctfindex/internal/model"
	"github.com/nao1215/ctfindex/internal/report"
	"github.com/spf13/cobra"
)

// dateLayout is how run dates are displayed.
const dateLayout = "2006-01-02 15:04:05"

// NewCompareCmd creates the compare command.
// This command compares crawl results with historical data stored in the database.
func NewCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare [site]",
		Short: "Compare the latest crawl of a site with an earlier one",
		Long: `Compare displays the write-ups that appeared or disappeared between two
crawls of the same site.

By default the latest run is compared with the run before it. The site
defaults to the built-in ayweth20 blog; ad hoc sites are named after their
host (e.g. blog.example.com).

Examples:
  # Compare the latest two crawls of the built-in blog
  ctfindex compare

  # List the crawl history of a site
  ctfindex compare --list myblog

  # Compare with a specific run by ID
  ctfindex compare --with-run-id 5 myblog

  # Output the comparison in JSON format
  ctfindex compare --json myblog

  # List all crawled sites in the database
  ctfindex compare --list-sites

  # Show the pages a run could not fetch
  ctfindex compare --failed 5

  # Remove a run from the history
  ctfindex compare --delete-run 5`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCompareCmd,
	}

	// History listing flags
	cmd.Flags().BoolP("list", "l", false,
		"List crawl history for the site")
	cmd.Flags().BoolP("list-sites", "L", false,
		"List all crawled sites in the database")
	cmd.Flags().Int64P("failed", "f", 0,
		"List the pages a run could not fetch")

	// History maintenance flags
	cmd.Flags().Int64("delete-run", 0,
		"Delete a run and its write-ups from the database")

	// Comparison target flags
	cmd.Flags().Int64P("with-run-id", "i", 0,
		"Compare with a specific run by ID (use --list to see available IDs)")

	// Output format flags
	cmd.Flags().BoolP("json", "j", false,
		"Output comparison result in JSON format")

	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the history database")

	return cmd
}

// runCompareCmd executes the compare command.
func runCompareCmd(cmd *cobra.Command, args []string) error {
	listSites, err := cmd.Flags().GetBool("list-sites")
	if err != nil {
		return err
	}
	listHistory, err := cmd.Flags().GetBool("list")
	if err != nil {
		return err
	}
	withRunID, err := cmd.Flags().GetInt64("with-run-id")
	if err != nil {
		return err
	}
	failedRunID, err := cmd.Flags().GetInt64("failed")
	if err != nil {
		return err
	}
	deleteRunID, err := cmd.Flags().GetInt64("delete-run")
	if err != nil {
		return err
	}
	for _, id := range []int64{withRunID, failedRunID, deleteRunID} {
		if id < 0 {
			return fmt.Errorf("invalid run ID %d", id)
		}
	}
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return err
	}

	site := config.DefaultSiteName
	if len(args) > 0 {
		site = args[0]
	}

	// Comparing never creates a database.
	db, err := database.Open(dbDir, database.Options{EnableWAL: true})
	if err != nil {
		return fmt.Errorf("failed to open database (run 'ctfindex crawl' first): %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	switch {
	case listSites:
		return listCrawledSites(ctx, db, out)
	case listHistory:
		return listRunHistory(ctx, db, site, out)
	case failedRunID > 0:
		return listFailedPages(ctx, db, failedRunID, out)
	case deleteRunID > 0:
		return deleteRun(ctx, db, deleteRunID, out)
	}

	result, err := runComparison(ctx, db, site, withRunID)
	if err != nil {
		return err
	}
	if jsonOutput {
		return outputComparisonJSON(out, result)
	}
	return outputComparisonText(out, result)
}

// listCrawledSites lists all sites that have runs in the database.
func listCrawledSites(ctx context.Context, db *database.IndexDB, out io.Writer) error {
	sites, err := db.ListSites(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sites: %w", err)
	}

	if len(sites) == 0 {
		fmt.Fprintln(out, "No crawled sites found in the database.")
		fmt.Fprintln(out, "\nUse 'ctfindex crawl' to crawl a site.")
		return nil
	}

	fmt.Fprintf(out, "Crawled sites (%d):\n\n", len(sites))
	for _, site := range sites {
		fmt.Fprintf(out, "  • %s\n", site)
	}
	fmt.Fprintln(out, "\nUse 'ctfindex compare --list <site>' to see the crawl history of a site.")

	return nil
}

// listRunHistory lists all runs of a site, newest first.
func listRunHistory(ctx context.Context, db *database.IndexDB, site string, out io.Writer) error {
	history, err := db.GetRunHistory(ctx, site)
	if err != nil {
		return fmt.Errorf("failed to get run history: %w", err)
	}

	if len(history) == 0 {
		fmt.Fprintf(out, "No crawl history found for %s\n", site)
		fmt.Fprintln(out, "\nUse 'ctfindex crawl' to crawl this site.")
		return nil
	}

	fmt.Fprintf(out, "Crawl history for %s (%d runs):\n\n", site, len(history))

	t := newCompareTable(out)
	t.AppendHeader(table.Row{"ID", "Date", "Write-ups", "Pages", "Failures", "Status", "Competitions"})
	for _, meta := range history {
		groups, err := db.SummarizeRun(ctx, meta.ID)
		if err != nil {
			return err
		}
		t.AppendRow(table.Row{
			meta.ID,
			meta.StartedAt.Local().Format(dateLayout),
			meta.WriteupCount,
			meta.PagesVisited,
			meta.FailureCount,
			meta.Status,
			formatGroups(groups),
		})
	}
	t.Render()

	fmt.Fprintln(out, "\nUse 'ctfindex compare <site>' to compare the latest two runs.")
	fmt.Fprintln(out, "Use 'ctfindex compare --with-run-id <id> <site>' to compare with a specific run.")

	return nil
}

// formatGroups renders per-competition counts as "2022 404 CTF: 3, ...".
func formatGroups(groups []model.GroupCount) string {
	parts := make([]string, 0, len(groups))
	for _, g := range groups {
		parts = append(parts, fmt.Sprintf("%s %s: %d", g.Year, g.CTF, g.Count))
	}
	return strings.Join(parts, ", ")
}

// listFailedPages lists the pages of a run that could not be fetched.
func listFailedPages(ctx context.Context, db *database.IndexDB, id int64, out io.Writer) error {
	idx, err := loadRun(ctx, db, id)
	if err != nil {
		return err
	}
	pages, err := db.GetFailedPages(ctx, id)
	if err != nil {
		return err
	}

	if len(pages) == 0 {
		fmt.Fprintf(out, "No failed pages in run %d of %s\n", id, idx.Site)
		return nil
	}

	fmt.Fprintf(out, "Failed pages in run %d of %s (%d):\n\n", id, idx.Site, len(pages))

	t := newCompareTable(out)
	t.AppendHeader(table.Row{"URL", "Status", "Error"})
	for _, page := range pages {
		status := "-"
		if page.StatusCode != 0 {
			status = strconv.Itoa(page.StatusCode)
		}
		t.AppendRow(table.Row{page.URL, status, page.Error})
	}
	t.Render()

	return nil
}

// deleteRun removes a run from the history.
func deleteRun(ctx context.Context, db *database.IndexDB, id int64, out io.Writer) error {
	idx, err := loadRun(ctx, db, id)
	if err != nil {
		return err
	}
	if err := db.DeleteRun(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(out, "Deleted run %d of %s (%s, %d write-ups)\n",
		id, idx.Site, idx.StartedAt.Local().Format(dateLayout), idx.WriteupCount())
	return nil
}

// runComparison loads the latest run of site and the run to compare it
// with: the one given by withRunID, or the run before the latest.
func runComparison(ctx context.Context, db *database.IndexDB, site string, withRunID int64) (*ComparisonResult, error) {
	history, err := db.GetRunHistory(ctx, site)
	if err != nil {
		return nil, fmt.Errorf("failed to get run history: %w", err)
	}

	if len(history) == 0 {
		return nil, fmt.Errorf("no crawl history found for %s", site)
	}
	if len(history) < 2 && withRunID == 0 {
		return nil, fmt.Errorf("at least 2 runs are required for comparison (found %d)", len(history))
	}

	previousID := withRunID
	if previousID == 0 {
		previousID = history[1].ID
	}

	current, err := loadRun(ctx, db, history[0].ID)
	if err != nil {
		return nil, err
	}
	previous, err := loadRun(ctx, db, previousID)
	if err != nil {
		return nil, err
	}
	if previous.Site != site {
		return nil, fmt.Errorf("run ID %d belongs to %s, not %s", previousID, previous.Site, site)
	}

	return compareIndexes(previous, current), nil
}

// loadRun returns the stored index of a run. Its records are read from the
// write-ups table.
func loadRun(ctx context.Context, db *database.IndexDB, id int64) (*model.Index, error) {
	idx, err := db.GetIndexByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get run with ID %d: %w", id, err)
	}
	if idx == nil {
		return nil, fmt.Errorf("run with ID %d not found", id)
	}
	idx.Records, err = db.GetWriteups(ctx, id)
	if err != nil {
		return nil, err
	}
	return idx, nil
}

// ComparisonResult holds the result of comparing two runs of a site.
type ComparisonResult struct {
	// Site is the crawled site name.
	Site string `json:"site"`

	// PreviousRun contains metadata about the earlier run.
	PreviousRun RunSummary `json:"previous_run"`

	// CurrentRun contains metadata about the later run.
	CurrentRun RunSummary `json:"current_run"`

	// NewWriteups are the write-ups found only by the current run.
	NewWriteups []model.Record `json:"new_writeups,omitempty"`

	// RemovedWriteups are the write-ups found only by the previous run.
	RemovedWriteups []model.Record `json:"removed_writeups,omitempty"`

	// UnchangedCount is the number of write-ups found by both runs.
	UnchangedCount int `json:"unchanged_count"`
}

// RunSummary describes one side of a comparison.
type RunSummary struct {
	RunID        string    `json:"run_id"`
	StartedAt    time.Time `json:"started_at"`
	WriteupCount int       `json:"writeup_count"`
	Status       string    `json:"status"`
}

func summarizeRun(idx *model.Index) RunSummary {
	return RunSummary{
		RunID:        idx.RunID,
		StartedAt:    idx.StartedAt,
		WriteupCount: idx.WriteupCount(),
		Status:       idx.Status(),
	}
}

// compareIndexes compares two runs by write-up URL. The returned record
// lists are sorted.
func compareIndexes(previous, current *model.Index) *ComparisonResult {
	result := &ComparisonResult{
		Site:        current.Site,
		PreviousRun: summarizeRun(previous),
		CurrentRun:  summarizeRun(current),
	}

	previousByURL := make(map[string]model.Record, len(previous.Records))
	for _, r := range previous.Records {
		previousByURL[r.URL] = r
	}
	currentByURL := make(map[string]model.Record, len(current.Records))
	for _, r := range current.Records {
		currentByURL[r.URL] = r
	}

	for url, r := range currentByURL {
		if _, ok := previousByURL[url]; !ok {
			result.NewWriteups = append(result.NewWriteups, r)
		}
	}
	for url, r := range previousByURL {
		if _, ok := currentByURL[url]; ok {
			result.UnchangedCount++
		} else {
			result.RemovedWriteups = append(result.RemovedWriteups, r)
		}
	}

	model.SortRecords(result.NewWriteups)
	model.SortRecords(result.RemovedWriteups)

	return result
}

// outputComparisonJSON outputs the comparison result in JSON format.
func outputComparisonJSON(out io.Writer, result *ComparisonResult) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

// outputComparisonText outputs the comparison result in human-readable text format.
func outputComparisonText(out io.Writer, result *ComparisonResult) error {
	fmt.Fprintf(out, "Run Comparison: %s\n", result.Site)
	fmt.Fprintln(out, strings.Repeat("=", 60))

	fmt.Fprintf(out, "\nPrevious run: %s  %d write-ups  (%s)\n",
		result.PreviousRun.StartedAt.Local().Format(dateLayout),
		result.PreviousRun.WriteupCount, result.PreviousRun.Status)
	fmt.Fprintf(out, "Current run:  %s  %d write-ups  (%s)\n",
		result.CurrentRun.StartedAt.Local().Format(dateLayout),
		result.CurrentRun.WriteupCount, result.CurrentRun.Status)
	fmt.Fprintf(out, "Change:       %s\n",
		formatDelta(result.CurrentRun.WriteupCount-result.PreviousRun.WriteupCount))

	writeRecordTable(out, "New Write-ups", "+", result.NewWriteups)
	writeRecordTable(out, "Removed Write-ups", "-", result.RemovedWriteups)

	if len(result.NewWriteups) == 0 && len(result.RemovedWriteups) == 0 {
		fmt.Fprintln(out, "\nNo write-ups added or removed.")
	}
	if result.UnchangedCount > 0 {
		fmt.Fprintf(out, "\nUnchanged: %d write-ups\n", result.UnchangedCount)
	}

	return nil
}

// writeRecordTable prints records under a titled table, nothing if empty.
func writeRecordTable(out io.Writer, title, marker string, records []model.Record) {
	if len(records) == 0 {
		return
	}

	fmt.Fprintf(out, "\n%s (%d):\n", title, len(records))

	t := newCompareTable(out)
	header := table.Row{""}
	for _, column := range model.RecordColumns {
		header = append(header, column)
	}
	t.AppendHeader(header)
	for _, r := range records {
		row := table.Row{marker}
		for _, field := range r.Fields() {
			row = append(row, field)
		}
		t.AppendRow(row)
	}
	t.Render()
}

func newCompareTable(out io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(report.TableStyle)
	return t
}

// formatDelta formats a numeric delta with sign for display.
func formatDelta(delta int) string {
	if delta > 0 {
		return fmt.Sprintf("+%d", delta)
	}
	return fmt.Sprintf("%d", delta)
}
