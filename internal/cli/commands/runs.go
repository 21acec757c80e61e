package commands

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// NewRunsCommand creates the runs command.
func NewRunsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "Show compile run history",
		Long: `List recent compile runs from the state database, or show the
artifacts of one run when a run ID is given.`,
		Example: `  # List recent runs
  fieldbook runs

  # Show the artifacts of one run
  fieldbook runs 6a1f0c2e-...`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			if len(args) == 1 {
				return showRun(cmd, args[0])
			}
			return listRuns(cmd, limit)
		},
	}
	cmd.Flags().Int("limit", 20, "maximum number of runs to list")
	return cmd
}

func listRuns(cmd *cobra.Command, limit int) error {
	eng, _, cleanup, err := newEngine(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	runs, err := eng.Store().ListRuns(limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(out, "No runs recorded")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Run", "Rulebook", "Status", "Started", "Error"})
	for _, run := range runs {
		t.AppendRow(table.Row{
			run.ID, run.Rulebook, run.Status,
			run.StartedAt.Format(time.RFC3339), run.Error,
		})
	}
	t.Render()
	_, _ = englishPrinter.Fprintf(out, "(%d runs)\n", len(runs))
	return nil
}

func showRun(cmd *cobra.Command, runID string) error {
	eng, _, cleanup, err := newEngine(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	run, err := eng.Store().GetRun(runID)
	if err != nil {
		return err
	}
	artifacts, err := eng.Store().ListArtifacts(runID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Run %s: %s (%s)\n", run.ID, run.Status, run.Rulebook)
	if run.Error != "" {
		_, _ = fmt.Fprintf(out, "Error: %s\n", run.Error)
	}

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Table", "Backend", "Artifact", "Size", "Digest"})
	for _, a := range artifacts {
		t.AppendRow(table.Row{a.Table, a.Backend, a.Name, a.SizeBytes, a.Digest[:12]})
	}
	t.Render()
	_, _ = englishPrinter.Fprintf(out, "(%d artifacts)\n", len(artifacts))
	return nil
}
