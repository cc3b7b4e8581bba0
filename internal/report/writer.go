package report

import (
	"errors"
	"fmt"
	"io"

	"github.com/nao1215/ctfindex/internal/model"
)

// Report format names, as accepted by New.
const (
	FormatText     = "text"
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
	FormatXLSX     = "xlsx"
)

// ErrUnknownFormat is returned by New for an unsupported format.
var ErrUnknownFormat = errors.New("unknown report format")

// Writer defines the interface for report output.
//
// Design decision: We use an interface to allow different output formats
// and destinations. This enables writing to files or stdout with the same API.
type Writer interface {
	// Write outputs the report of one or more runs.
	// Returns the number of bytes written and any error encountered.
	Write(indexes ...*model.Index) (int, error)
}

// New returns the writer for format, writing to output.
// version is embedded in the JSON and Markdown reports.
func New(format string, output io.Writer, version string) (Writer, error) {
	switch format {
	case FormatText:
		return NewSimpleWriter(output), nil
	case FormatJSON:
		return NewJSONWriter(output, WithPrettyPrint(), WithVersion(version)), nil
	case FormatMarkdown:
		return NewMarkdownWriter(output, version), nil
	case FormatXLSX:
		return NewXLSXWriter(output), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// MultiWriter writes to multiple Writers one after another.
// This is used to write the spreadsheet and print a summary in one go.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all configured Writers and returns the total
// bytes written. It stops on the first error.
func (m *MultiWriter) Write(indexes ...*model.Index) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(indexes...)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// allRecords merges the records of every index, sorted.
func allRecords(indexes []*model.Index) []model.Record {
	var records []model.Record
	for _, idx := range indexes {
		if idx == nil {
			continue
		}
		records = append(records, idx.Records...)
	}
	model.SortRecords(records)
	return records
}

// truncateString truncates a string to maxLen runes with an ellipsis.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
