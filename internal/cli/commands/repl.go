package commands

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/fieldbook-labs/fieldbook/internal/eval"
	"github.com/fieldbook-labs/fieldbook/internal/plan"
	"github.com/fieldbook-labs/fieldbook/pkg/formula"
	"github.com/fieldbook-labs/fieldbook/pkg/rulebook"
)

// replScratchField is the synthetic derived field a typed formula is
// evaluated under. The name cannot collide with user fields because
// {{...}} references never carry a leading underscore in practice and
// the field is rebuilt per expression.
const replScratchField = "_repl"

// NewREPLCommand creates the repl command.
func NewREPLCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "repl [table]",
		Short: "Interactively evaluate formulas against a table",
		Long: `Start an interactive session that evaluates formulas against the
rows of a table. Type a formula such as {{Votes}} >= 10 and see the
result per row. Defaults to the rulebook's first table; switch with
.table <name>.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runREPL(cmd, args)
		},
	}
}

func runREPL(cmd *cobra.Command, args []string) error {
	eng, cfg, cleanup, err := newEngine(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	rb, err := eng.LoadRulebook()
	if err != nil {
		return err
	}

	current := rb.Tables[0]
	if len(args) == 1 {
		t, ok := rb.Table(args[0])
		if !ok {
			return fmt.Errorf("table %q not found in rulebook", args[0])
		}
		current = t
	}

	historyFile := filepath.Join(filepath.Dir(cfg.StatePath), ".fieldbook_history")
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "fieldbook> ",
		HistoryFile:     historyFile,
		AutoComplete:    newREPLCompleter(rb),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Fieldbook formula REPL (table: %s)\n", current.Name)
	_, _ = fmt.Fprintln(out, "Type a formula, .help for commands, .quit to exit")
	_, _ = fmt.Fprintln(out)

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, ".") {
			quit, next := handleDotCommand(cmd, rb, current, line)
			if quit {
				break
			}
			if next != nil {
				current = next
			}
			continue
		}

		if err := evalFormula(out, current, line); err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
		_, _ = fmt.Fprintln(out)
	}
	return nil
}

// evalFormula evaluates one formula against every row of the table. It
// plants the expression as a synthetic derived field so the regular
// planner and evaluator do the work, dependency scheduling included.
func evalFormula(w io.Writer, tbl *rulebook.Table, src string) error {
	ast, err := formula.Parse(src)
	if err != nil {
		return err
	}

	base, err := plan.Build(tbl)
	if err != nil {
		return err
	}

	scratch := cloneWithField(tbl, rulebook.FieldDefinition{
		Name:    replScratchField,
		Type:    base.TypeOf(ast),
		Origin:  rulebook.OriginDerived,
		Formula: src,
	})
	p, err := plan.Build(scratch)
	if err != nil {
		return err
	}

	results := eval.New(p).Table()
	for i, res := range results {
		if err, failed := res.Errors[replScratchField]; failed {
			_, _ = fmt.Fprintf(w, "row %d: error: %v\n", i, err)
			continue
		}
		_, _ = fmt.Fprintf(w, "row %d: %s\n", i, formatCell(res.Values[replScratchField]))
	}
	return nil
}

func cloneWithField(tbl *rulebook.Table, f rulebook.FieldDefinition) *rulebook.Table {
	c := &rulebook.Table{Name: tbl.Name, Rows: tbl.Rows}
	c.Fields = append(append([]rulebook.FieldDefinition{}, tbl.Fields...), f)
	return c
}

func handleDotCommand(cmd *cobra.Command, rb *rulebook.Rulebook, current *rulebook.Table, line string) (quit bool, next *rulebook.Table) {
	out := cmd.OutOrStdout()
	parts := strings.Fields(line)

	switch strings.ToLower(parts[0]) {
	case ".quit", ".exit":
		return true, nil

	case ".help":
		printREPLHelp(out)

	case ".tables":
		for _, t := range rb.Tables {
			marker := " "
			if t.Name == current.Name {
				marker = "*"
			}
			_, _ = fmt.Fprintf(out, "%s %s\n", marker, t.Name)
		}

	case ".fields":
		for _, f := range current.Fields {
			if f.Origin == rulebook.OriginDerived {
				_, _ = fmt.Fprintf(out, "  %-20s %-8s = %s\n", f.Name, f.Type, f.Formula)
			} else {
				_, _ = fmt.Fprintf(out, "  %-20s %s\n", f.Name, f.Type)
			}
		}

	case ".table":
		if len(parts) < 2 {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "Usage: .table <name>")
			return false, nil
		}
		t, ok := rb.Table(parts[1])
		if !ok {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "table %q not found\n", parts[1])
			return false, nil
		}
		_, _ = fmt.Fprintf(out, "Switched to table %s\n", t.Name)
		return false, t

	default:
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Unknown command: %s (type .help for commands)\n", parts[0])
	}
	return false, nil
}

func printREPLHelp(w io.Writer) {
	help := `
Commands:
  .help           Show this help message
  .tables         List tables (* marks the current one)
  .fields         List the current table's fields and formulas
  .table <name>   Switch to another table
  .quit / .exit   Exit the REPL

Tips:
  - Reference fields as {{Name}}, e.g. {{Votes}} >= 10
  - Derived fields may be referenced; they are computed first
  - Tab completion works for field references and dot-commands
`
	_, _ = fmt.Fprintln(w, help)
}

// newREPLCompleter completes dot-commands, table names, and {{Field}}
// references.
func newREPLCompleter(rb *rulebook.Rulebook) *readline.PrefixCompleter {
	var tables []readline.PrefixCompleterInterface
	seen := make(map[string]bool)
	var refs []readline.PrefixCompleterInterface
	for _, t := range rb.Tables {
		tables = append(tables, readline.PcItem(t.Name))
		for _, f := range t.Fields {
			if !seen[f.Name] {
				seen[f.Name] = true
				refs = append(refs, readline.PcItem("{{"+f.Name+"}}"))
			}
		}
	}

	items := []readline.PrefixCompleterInterface{
		readline.PcItem(".help"),
		readline.PcItem(".tables"),
		readline.PcItem(".fields"),
		readline.PcItem(".table", tables...),
		readline.PcItem(".quit"),
		readline.PcItem(".exit"),
	}
	items = append(items, refs...)
	return readline.NewPrefixCompleter(items...)
}
