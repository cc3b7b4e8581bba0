package report

import (
	"encoding/json"
	"io"
	"time"

	"github.com/nao1215/ctfindex/internal/model"
)

// JSONWriter outputs reports in JSON format.
// This format is designed for tool integration and programmatic processing.
//
// Design decision: We use standard encoding/json rather than a third-party
// JSON library because:
// 1. The model types already carry json tags used by the history database
// 2. It's sufficient for our needs
// 3. It provides consistent behavior across Go versions
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	// When false, output is compact (no extra whitespace).
	indent bool

	// indentPrefix is the prefix for each line in indented output.
	indentPrefix string

	// indentString is the indentation string (typically "  " or "\t").
	indentString string

	// version is the ctfindex version recorded in the output.
	version string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with default indentation.
// This is a convenience wrapper for WithIndent("", "  ").
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// WithVersion sets the version string recorded in the report.
func WithVersion(version string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.version = version
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// JSONReport is the document written by JSONWriter.
//
// Design decision: We wrap the indexes rather than adding fields to
// model.Index because output-specific metadata (version, generation time,
// merged summary) does not belong in the stored run data.
type JSONReport struct {
	// Version is the ctfindex version that generated this report.
	Version string `json:"version,omitempty"`

	// GeneratedAt is when the report was written.
	GeneratedAt time.Time `json:"generated_at"`

	// WriteupCount is the total number of write-ups across all runs.
	WriteupCount int `json:"writeup_count"`

	// Summary counts the write-ups of all runs by (Year, CTF).
	Summary []model.GroupCount `json:"summary"`

	// Runs are the complete indexes, records sorted.
	Runs []*model.Index `json:"runs"`
}

// NewJSONReport builds the report document for the given indexes.
// The indexes are copied so sorting their records does not modify the callers' data.
func NewJSONReport(version string, indexes ...*model.Index) *JSONReport {
	report := &JSONReport{
		Version:     version,
		GeneratedAt: time.Now().UTC(),
		Runs:        make([]*model.Index, 0, len(indexes)),
	}

	for _, idx := range indexes {
		if idx == nil {
			continue
		}
		run := *idx
		run.Records = model.SortedRecords(idx.Records)
		report.Runs = append(report.Runs, &run)
		report.WriteupCount += len(run.Records)
	}
	report.Summary = model.Summarize(allRecords(indexes))

	return report
}

// Write outputs the indexes wrapped in a JSONReport.
func (w *JSONWriter) Write(indexes ...*model.Index) (int, error) {
	return w.writeJSON(NewJSONReport(w.version, indexes...))
}

// writeJSON marshals the given value to JSON and writes it to the output.
func (w *JSONWriter) writeJSON(v any) (int, error) {
	var data []byte
	var err error

	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}

	if err != nil {
		return 0, err
	}

	// Add trailing newline for better terminal output
	data = append(data, '\n')

	return w.output.Write(data)
}
