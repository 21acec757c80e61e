package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fieldbook-labs/fieldbook/pkg/rulebook"
)

// NewRenameCommand creates the rename command.
func NewRenameCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rename <table> <old> <new>",
		Short: "Rename a field and every formula reference to it",
		Long: `Rename a field across the rulebook: the schema entry, the row
values, and every {{reference}} inside the table's formulas. The
rewritten rulebook is written back in place unless --dry-run is set.`,
		Example: `  # Rename Votes to Score in the Answers table
  fieldbook rename Answers Votes Score

  # Preview the rewritten rulebook without saving
  fieldbook rename Answers Votes Score --dry-run`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			return runRename(cmd, args[0], args[1], args[2], dryRun)
		},
	}
	cmd.Flags().Bool("dry-run", false, "print the rewritten rulebook instead of saving")
	return cmd
}

func runRename(cmd *cobra.Command, tableName, oldName, newName string, dryRun bool) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	rb, err := rulebook.Load(cfg.Rulebook)
	if err != nil {
		return err
	}

	renamed, err := rulebook.Rename(rb, tableName, oldName, newName)
	if err != nil {
		return err
	}

	if dryRun {
		data, err := rulebook.Marshal(renamed)
		if err != nil {
			return err
		}
		_, _ = cmd.OutOrStdout().Write(data)
		return nil
	}

	if err := rulebook.Save(cfg.Rulebook, renamed); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s.%s to %s in %s\n",
		tableName, oldName, newName, cfg.Rulebook)
	return nil
}
