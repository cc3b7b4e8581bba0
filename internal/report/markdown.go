package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/ctfindex/internal/model"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
)

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for publishing the index, for example as a
// README of a write-up collection.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation which provides:
// 1. Type-safe markdown generation
// 2. Support for tables, lists, and mermaid charts
// 3. GitHub-flavored markdown alerts
type MarkdownWriter struct {
	baseWriter

	// version is printed in the report footer.
	version string
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer, version string) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
		version:    version,
	}
}

// Write outputs the runs in Markdown format.
func (w *MarkdownWriter) Write(indexes ...*model.Index) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("CTF Write-up Index")
	md.PlainText("")

	for _, idx := range indexes {
		if idx == nil {
			continue
		}
		w.writeHeader(md, idx)
		w.writeSummary(md, idx)
		w.writeWriteups(md, idx)
		w.writeFailures(md, idx)
	}

	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the run information table.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, idx *model.Index) {
	md.H2(idx.Site)
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Base URL", idx.BaseURL},
			{"Crawl Date", idx.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Pages Visited", strconv.Itoa(idx.PagesVisited)},
			{"Write-ups", strconv.Itoa(idx.WriteupCount())},
			{"Status", w.getStatusText(idx)},
		},
	})
	md.PlainText("")

	w.writeAlert(md, idx)
}

// getStatusText returns the status text based on run state.
func (w *MarkdownWriter) getStatusText(idx *model.Index) string {
	if idx.TimedOut {
		return "⚠️ Cancelled (partial results)"
	}
	if idx.ErrorMessage != "" {
		return "❌ Error - " + idx.ErrorMessage
	}
	return "✅ Complete"
}

// writeAlert writes an alert when the run is incomplete.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, idx *model.Index) {
	switch {
	case idx.TimedOut:
		md.Warningf("The crawl was cancelled. The index lists the %d write-up(s) found before cancellation.",
			idx.WriteupCount())
	case len(idx.FetchFailures) > 0:
		md.Importantf("%d page(s) could not be fetched. Write-ups only reachable through them are missing.",
			len(idx.FetchFailures))
	case idx.WriteupCount() == 0:
		md.Note("No write-ups were found. Check the base URL and seeds.")
	default:
		return
	}
	md.PlainText("")
}

// writeSummary writes the (Year, CTF) table and the per-CTF pie chart.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, idx *model.Index) {
	groups := idx.Summary()
	if len(groups) == 0 {
		return
	}

	md.H3("Summary")
	md.PlainText("")

	rows := make([][]string, 0, len(groups)+1)
	total := 0
	for _, g := range groups {
		rows = append(rows, []string{g.Year, escapeCell(g.CTF), strconv.Itoa(g.Count)})
		total += g.Count
	}
	rows = append(rows, []string{"", "**Total**", "**" + strconv.Itoa(total) + "**"})

	md.Table(markdown.TableSet{
		Header: []string{"Year", "CTF", "Write-ups"},
		Rows:   rows,
	})
	md.PlainText("")

	w.writePieChart(md, idx)
}

// writePieChart writes a mermaid pie chart of write-ups per competition.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, idx *model.Index) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Write-ups per CTF"),
		piechart.WithShowData(true),
	)

	for _, g := range model.CountByCTF(idx.Records) {
		chart.LabelAndIntValue(g.CTF, uint64(g.Count))
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeWriteups writes every write-up as a sorted table with links.
func (w *MarkdownWriter) writeWriteups(md *markdown.Markdown, idx *model.Index) {
	md.H3("Write-ups")
	md.PlainText("")

	if len(idx.Records) == 0 {
		md.PlainText("No write-ups found.")
		md.PlainText("")
		return
	}

	records := model.SortedRecords(idx.Records)
	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = []string{
			r.Year,
			escapeCell(r.CTF),
			escapeCell(r.Category),
			fmt.Sprintf("[%s](%s)", escapeCell(r.Title), r.URL),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"Year", "CTF", "Category", "Title"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeFailures writes the pages that could not be fetched in a collapsed block.
func (w *MarkdownWriter) writeFailures(md *markdown.Markdown, idx *model.Index) {
	if len(idx.FetchFailures) == 0 {
		return
	}

	items := make([]string, len(idx.FetchFailures))
	for i, f := range idx.FetchFailures {
		items[i] = fmt.Sprintf("- `%s`: %s", f.URL, truncateString(f.Message, 80))
	}

	md.Details(
		fmt.Sprintf("Fetch failures (%d)", len(idx.FetchFailures)),
		strings.Join(items, "\n"),
	)
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	if w.version != "" {
		md.PlainTextf("*Generated by [ctfindex](https://github.com/nao1215/ctfindex) %s*", w.version)
		return
	}
	md.PlainText("*Generated by [ctfindex](https://github.com/nao1215/ctfindex)*")
}

// escapeCell escapes characters that break a Markdown table cell.
func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
