package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewDAGCommand creates the dag command.
func NewDAGCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dag <table>",
		Short: "Show a table's field dependency graph",
		Long: `Display the derived fields of a table grouped by evaluation level.
Fields in the same level have no dependencies on each other and could
be computed in parallel.`,
		Example: `  # Show the DAG for one table
  fieldbook dag Answers

  # Output as JSON
  fieldbook dag Answers --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			return runDAG(cmd, args[0], asJSON)
		},
	}
	cmd.Flags().Bool("json", false, "output as JSON")
	return cmd
}

type dagLevel struct {
	Level  int        `json:"level"`
	Fields []dagField `json:"fields"`
}

type dagField struct {
	Name      string   `json:"name"`
	Formula   string   `json:"formula"`
	DependsOn []string `json:"depends_on,omitempty"`
}

func runDAG(cmd *cobra.Command, tableName string, asJSON bool) error {
	eng, _, cleanup, err := newEngine(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	p, err := eng.Plan(tableName)
	if err != nil {
		return err
	}
	levels, err := p.Levels()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		dag := make([]dagLevel, 0, len(levels))
		for i, level := range levels {
			dl := dagLevel{Level: i, Fields: make([]dagField, 0, len(level))}
			for _, name := range level {
				f, _ := p.Table.Field(name)
				dl.Fields = append(dl.Fields, dagField{
					Name:      name,
					Formula:   f.Formula,
					DependsOn: p.Dependencies(name),
				})
			}
			dag = append(dag, dl)
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(dag)
	}

	_, _ = fmt.Fprintf(out, "Table %s (evaluation order: %s)\n\n",
		tableName, strings.Join(p.Order, ", "))
	for i, level := range levels {
		_, _ = fmt.Fprintf(out, "Level %d:\n", i)
		for _, name := range level {
			f, _ := p.Table.Field(name)
			_, _ = fmt.Fprintf(out, "  %s = %s\n", name, f.Formula)
			if deps := p.Dependencies(name); len(deps) > 0 {
				_, _ = fmt.Fprintf(out, "    depends on: %s\n", strings.Join(deps, ", "))
			}
		}
		_, _ = fmt.Fprintln(out)
	}
	_, _ = englishPrinter.Fprintf(out, "Total: %d derived fields in %d levels\n",
		len(p.Order), len(levels))
	return nil
}
