package sqlview

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/fieldbook-labs/fieldbook/internal/plan"
	"github.com/fieldbook-labs/fieldbook/pkg/rulebook"
)

// Execute runs a compiled view artifact against a fresh in-memory
// SQLite database: create the base table, insert the plan's rows,
// create the view, select everything back. The result rows carry both
// raw and derived values, typed per the table's declarations.
func Execute(p *plan.Plan, viewSQL string) ([]rulebook.Row, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()
	return ExecuteOn(db, p, viewSQL)
}

// ExecuteOn runs the view against an existing database handle.
func ExecuteOn(db *sql.DB, p *plan.Plan, viewSQL string) ([]rulebook.Row, error) {
	if _, err := db.Exec(createTableSQL(p.Table)); err != nil {
		return nil, fmt.Errorf("creating base table: %w", err)
	}

	insert, params := insertSQL(p.Table)
	for i, row := range p.Table.Rows {
		args := make([]any, len(params))
		for j, name := range params {
			args[j] = driverValue(row[name])
		}
		if _, err := db.Exec(insert, args...); err != nil {
			return nil, fmt.Errorf("inserting row %d: %w", i, err)
		}
	}

	if _, err := db.Exec(viewSQL); err != nil {
		return nil, fmt.Errorf("creating view: %w", err)
	}

	rows, err := db.Query(fmt.Sprintf("SELECT * FROM %s", quoteIdent(ViewName(p.Table.Name))))
	if err != nil {
		return nil, fmt.Errorf("querying view: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []rulebook.Row
	for rows.Next() {
		scan := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range scan {
			ptrs[i] = &scan[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning view row: %w", err)
		}

		record := make(rulebook.Row, len(columns))
		for i, col := range columns {
			v, err := recordValue(p.Table, col, scan[i])
			if err != nil {
				return nil, err
			}
			if !v.IsNull() {
				record[col] = v
			}
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

// createTableSQL renders the base table: raw columns only, derived
// columns come from the view.
func createTableSQL(t *rulebook.Table) string {
	var cols []string
	for _, f := range t.RawFields() {
		cols = append(cols, quoteIdent(f.Name)+" "+columnType(f.Type))
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(t.Name), strings.Join(cols, ", "))
}

func insertSQL(t *rulebook.Table) (string, []string) {
	var names []string
	var cols []string
	var marks []string
	for _, f := range t.RawFields() {
		names = append(names, f.Name)
		cols = append(cols, quoteIdent(f.Name))
		marks = append(marks, "?")
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(t.Name), strings.Join(cols, ", "), strings.Join(marks, ", ")), names
}

func columnType(t rulebook.FieldType) string {
	switch t {
	case rulebook.TypeBool, rulebook.TypeInt:
		return "INTEGER"
	default:
		return "TEXT"
	}
}

// driverValue converts a Value to its SQL parameter form.
func driverValue(v rulebook.Value) any {
	switch v.Kind {
	case rulebook.KindBool:
		if v.Bool {
			return int64(1)
		}
		return int64(0)
	case rulebook.KindInt:
		return v.Int
	case rulebook.KindString:
		return v.Str
	}
	return nil
}

// recordValue converts a scanned column back to a typed Value using
// the field's declaration.
func recordValue(t *rulebook.Table, col string, raw any) (rulebook.Value, error) {
	f, ok := t.Field(col)
	if !ok {
		return rulebook.Null(), fmt.Errorf("view returned unknown column %q", col)
	}
	if raw == nil {
		return rulebook.Null(), nil
	}

	switch f.Type {
	case rulebook.TypeBool:
		n, ok := raw.(int64)
		if !ok {
			return rulebook.Null(), fmt.Errorf("column %q: expected integer, got %T", col, raw)
		}
		return rulebook.BoolValue(n != 0), nil
	case rulebook.TypeInt:
		n, ok := raw.(int64)
		if !ok {
			return rulebook.Null(), fmt.Errorf("column %q: expected integer, got %T", col, raw)
		}
		return rulebook.IntValue(n), nil
	default:
		switch s := raw.(type) {
		case string:
			return rulebook.StringValue(s), nil
		case []byte:
			return rulebook.StringValue(string(s)), nil
		}
		return rulebook.Null(), fmt.Errorf("column %q: expected text, got %T", col, raw)
	}
}
