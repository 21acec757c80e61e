// Package cli provides the command-line interface for Fieldbook.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fieldbook-labs/fieldbook/internal/cli/commands"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fieldbook",
		Short: "Fieldbook - Formula Compiler",
		Long: `Fieldbook compiles spreadsheet-style formulas into runnable code.

A rulebook declares tables whose derived fields carry formulas over
sibling fields. Fieldbook parses the formulas, schedules them by
dependency, evaluates them against sample rows, and generates
equivalent code for Go, Python, SQL views, GraphQL resolvers, and a
native bytecode module.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
`)

	// Global persistent flags; each overrides the matching config key.
	rootCmd.PersistentFlags().String("config", "", "config file (default: ./fieldbook.yaml)")
	rootCmd.PersistentFlags().String("rulebook", "", "path to the rulebook YAML")
	rootCmd.PersistentFlags().String("output-dir", "", "directory for generated artifacts")
	rootCmd.PersistentFlags().String("state", "", "path to the run-history database")
	rootCmd.PersistentFlags().StringSlice("backend", nil, "backends to enable (repeatable)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")

	_ = rootCmd.RegisterFlagCompletionFunc("backend", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"golang", "graphql", "native", "python", "sqlview"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(commands.NewCompileCommand())
	rootCmd.AddCommand(commands.NewEvalCommand())
	rootCmd.AddCommand(commands.NewDAGCommand())
	rootCmd.AddCommand(commands.NewREPLCommand())
	rootCmd.AddCommand(commands.NewRenameCommand())
	rootCmd.AddCommand(commands.NewRunsCommand())
	rootCmd.AddCommand(commands.NewVersionCommand(Version, BuildDate, GitCommit))

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
