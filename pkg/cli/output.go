package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// OutputFormat represents the output format for command results.
type OutputFormat string

const (
	// FormatText renders tables (default).
	FormatText OutputFormat = "text"
	// FormatJSON is indented JSON output.
	FormatJSON OutputFormat = "json"
)

// ParseFormat validates a --output value.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", NewConfigError("output", fmt.Sprintf("unknown format %q, expected text or json", s))
	}
}

// Table is the text rendering of a result.
type Table struct {
	Title  string
	Header table.Row
	Rows   []table.Row
	Footer string
}

// Append adds a row.
func (t *Table) Append(cells ...any) {
	t.Rows = append(t.Rows, table.Row(cells))
}

// KeyValues builds a two-column table from alternating keys and values.
func KeyValues(title string, pairs ...any) *Table {
	t := &Table{Title: title, Header: table.Row{"KEY", "VALUE"}}
	for i := 0; i+1 < len(pairs); i += 2 {
		t.Append(pairs[i], pairs[i+1])
	}
	return t
}

// Print writes data as JSON, or for text output renders tbl. A nil tbl
// falls back to JSON.
func Print(w io.Writer, format OutputFormat, data any, tbl *Table) error {
	if format == FormatJSON || tbl == nil {
		return WriteJSON(w, data)
	}
	return tbl.Render(w)
}

// WriteJSON writes data as indented JSON.
func WriteJSON(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// Render writes the table to w.
func (t *Table) Render(w io.Writer) error {
	if len(t.Rows) == 0 {
		_, err := fmt.Fprintln(w, text.FgYellow.Sprint("No results"))
		return err
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	if t.Title != "" {
		tw.SetTitle("%s", t.Title)
	}
	if len(t.Header) > 0 {
		tw.AppendHeader(t.Header)
	}
	tw.AppendRows(t.Rows)
	if t.Footer != "" {
		tw.SetCaption("%s", t.Footer)
	}
	tw.Render()
	return nil
}
