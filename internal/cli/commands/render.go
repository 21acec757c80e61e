package commands

import (
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/fieldbook-labs/fieldbook/internal/eval"
	"github.com/fieldbook-labs/fieldbook/pkg/rulebook"
)

// englishPrinter formats counts in CLI summaries.
var englishPrinter = message.NewPrinter(language.English)

// formatCell renders one value for tabular output.
func formatCell(v rulebook.Value) string {
	switch v.Kind {
	case rulebook.KindBool:
		return strconv.FormatBool(v.Bool)
	case rulebook.KindInt:
		return strconv.FormatInt(v.Int, 10)
	case rulebook.KindString:
		return v.Str
	default:
		return "NULL"
	}
}

// renderRows prints the table's fields across the evaluated rows,
// followed by a row count and any per-field evaluation errors.
func renderRows(w io.Writer, tbl *rulebook.Table, results []eval.Result) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	header := make(table.Row, len(tbl.Fields))
	for i, f := range tbl.Fields {
		name := f.Name
		if f.Origin == rulebook.OriginDerived {
			name += "*"
		}
		header[i] = name
	}
	t.AppendHeader(header)

	for _, res := range results {
		row := make(table.Row, len(tbl.Fields))
		for i, f := range tbl.Fields {
			row[i] = formatCell(res.Values[f.Name])
		}
		t.AppendRow(row)
	}
	t.Render()
	_, _ = englishPrinter.Fprintf(w, "(%d rows, * derived)\n", len(results))

	for i, res := range results {
		for field, err := range res.Errors {
			_, _ = fmt.Fprintf(w, "row %d field %s: %v\n", i, field, err)
		}
	}
}
