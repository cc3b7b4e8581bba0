package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/nao1215/ctfindex/internal/model"
)

// DefaultPreviewRows is the number of write-ups shown in the text preview.
const DefaultPreviewRows = 5

// SimpleWriter outputs human-readable text reports.
// This format is designed for terminal display: a run header, a preview of
// the first write-ups, the number of write-ups per (Year, CTF) and the pages
// that could not be fetched.
//
// Design decision: We render tables with go-pretty rather than padding
// columns by hand because:
// 1. Titles and URLs vary widely in length
// 2. Wide (CJK) characters are measured correctly
// 3. The same table style is shared with the compare command
type SimpleWriter struct {
	baseWriter

	// previewRows is the number of records in the preview table.
	// A negative value shows every record.
	previewRows int

	// verbose enables additional detail in the output.
	verbose bool
}

// TableStyle is the go-pretty style of every table ctfindex prints.
var TableStyle = table.StyleRounded

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithPreviewRows sets the number of write-ups in the preview table.
// A negative value lists every write-up.
func WithPreviewRows(n int) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.previewRows = n
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter:  newBaseWriter(output),
		previewRows: DefaultPreviewRows,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs every run in human-readable format, followed by a total
// when more than one run is given.
func (w *SimpleWriter) Write(indexes ...*model.Index) (int, error) {
	var sb strings.Builder

	runs := 0
	for _, idx := range indexes {
		if idx == nil {
			continue
		}
		w.writeHeader(&sb, idx)
		w.writePreview(&sb, idx)
		w.writeSummary(&sb, idx)
		w.writeFailures(&sb, idx)
		runs++
	}

	if runs > 1 {
		w.writeTotal(&sb, indexes)
	}
	w.writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

// writeHeader writes the run information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, idx *model.Index) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("CTF WRITE-UP INDEX: %s\n", idx.Site))
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("Base URL:       %s\n", idx.BaseURL))
	sb.WriteString(fmt.Sprintf("Started:        %s\n", idx.StartedAt.Format("2006-01-02 15:04:05 MST")))
	if d := idx.Duration(); d > 0 {
		sb.WriteString(fmt.Sprintf("Duration:       %s\n", d.Round(time.Millisecond)))
	}
	sb.WriteString(fmt.Sprintf("Pages Visited:  %d\n", idx.PagesVisited))
	sb.WriteString(fmt.Sprintf("Status:         %s\n", idx.Status()))
	if w.verbose {
		sb.WriteString(fmt.Sprintf("Run ID:         %s\n", idx.RunID))
		sb.WriteString(fmt.Sprintf("Seeds:          %s\n", strings.Join(idx.Seeds, ", ")))
	}
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Number of write-ups found: %d\n", idx.WriteupCount()))
	if n := model.CountPlaceholders(idx.Records); n > 0 {
		sb.WriteString(fmt.Sprintf("Unclassified write-ups:    %d\n", n))
	}
	sb.WriteString("\n")
}

// writePreview writes the first write-ups in sorted order.
func (w *SimpleWriter) writePreview(sb *strings.Builder, idx *model.Index) {
	if len(idx.Records) == 0 {
		sb.WriteString("  No write-ups found\n\n")
		return
	}

	t := w.newTable()
	t.AppendHeader(table.Row{"Year", "CTF", "Category", "Title", "URL"})
	preview := idx.Preview(w.previewRows)
	for _, r := range preview {
		t.AppendRow(table.Row{r.Year, r.CTF, r.Category, truncateString(r.Title, 40), r.URL})
	}
	if rest := len(idx.Records) - len(preview); rest > 0 {
		t.AppendFooter(table.Row{"", "", "", fmt.Sprintf("... %d more", rest), ""})
	}

	sb.WriteString(t.Render())
	sb.WriteString("\n\n")
}

// writeSummary writes the number of write-ups per (Year, CTF).
func (w *SimpleWriter) writeSummary(sb *strings.Builder, idx *model.Index) {
	groups := idx.Summary()
	if len(groups) == 0 {
		return
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("WRITE-UPS BY YEAR AND CTF\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	sb.WriteString(w.renderGroups(groups))
	sb.WriteString("\n\n")
}

// writeFailures writes the URLs that could not be fetched.
func (w *SimpleWriter) writeFailures(sb *strings.Builder, idx *model.Index) {
	if len(idx.FetchFailures) == 0 {
		return
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("FETCH FAILURES (%d)\n", len(idx.FetchFailures)))
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	for _, f := range idx.FetchFailures {
		sb.WriteString(fmt.Sprintf("  [-] %s\n", f.URL))
		if w.verbose && f.Message != "" {
			sb.WriteString(fmt.Sprintf("      %s\n", f.Message))
		}
	}
	sb.WriteString("\n")
}

// writeTotal writes the combined summary of several runs.
func (w *SimpleWriter) writeTotal(sb *strings.Builder, indexes []*model.Index) {
	records := allRecords(indexes)

	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("TOTAL: %d write-ups\n", len(records)))
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	if len(records) > 0 {
		sb.WriteString(w.renderGroups(model.Summarize(records)))
		sb.WriteString("\n\n")
	}
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by ctfindex\n")
	sb.WriteString("https://github.com/nao1215/ctfindex\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}

// renderGroups renders (Year, CTF) counts as a table with a total row.
func (w *SimpleWriter) renderGroups(groups []model.GroupCount) string {
	t := w.newTable()
	t.AppendHeader(table.Row{"Year", "CTF", "Write-ups"})
	total := 0
	for _, g := range groups {
		t.AppendRow(table.Row{g.Year, g.CTF, strconv.Itoa(g.Count)})
		total += g.Count
	}
	t.AppendFooter(table.Row{"", "Total", strconv.Itoa(total)})
	return t.Render()
}

func (w *SimpleWriter) newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(TableStyle)
	return t
}
