package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewEvalCommand creates the eval command.
func NewEvalCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "eval [table]",
		Short: "Evaluate derived fields over the rulebook's rows",
		Long: `Run the reference evaluator over a table's sample rows and print
the raw and derived values side by side. With no argument every table
is evaluated in turn.`,
		Example: `  # Evaluate one table
  fieldbook eval Answers

  # Evaluate every table
  fieldbook eval`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(cmd, args)
		},
	}
}

func runEval(cmd *cobra.Command, args []string) error {
	eng, _, cleanup, err := newEngine(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	var tables []string
	if len(args) == 1 {
		tables = args
	} else {
		rb, err := eng.LoadRulebook()
		if err != nil {
			return err
		}
		for _, t := range rb.Tables {
			tables = append(tables, t.Name)
		}
	}

	out := cmd.OutOrStdout()
	for _, name := range tables {
		p, results, err := eng.Evaluate(name)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "Table: %s\n", name)
		renderRows(out, p.Table, results)
		_, _ = fmt.Fprintln(out)
	}
	return nil
}
