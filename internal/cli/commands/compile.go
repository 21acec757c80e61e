package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/fieldbook-labs/fieldbook/internal/engine"
)

// NewCompileCommand creates the compile command.
func NewCompileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "compile",
		Short: "Generate code for every table and backend",
		Long: `Compile the rulebook: parse every derived formula, schedule it by
dependency, and generate artifacts for each enabled backend under the
output directory.

Tables compile independently; a bad table fails alone and the rest of
the run completes.`,
		Example: `  # Compile with the project configuration
  fieldbook compile

  # Compile only the SQL view and Go backends
  fieldbook compile --backend sqlview --backend golang`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCompile(cmd)
		},
	}
}

func runCompile(cmd *cobra.Command) error {
	eng, cfg, cleanup, err := newEngine(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	report, err := eng.Compile(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Table", "Backend", "Artifact", "Size", "Digest"})

	var totalBytes int64
	var artifactCount int
	for _, tr := range report.Tables {
		if tr.Err != nil {
			continue
		}
		for _, a := range tr.Artifacts {
			t.AppendRow(table.Row{tr.Table, a.Backend, a.Name, a.Size, a.Digest[:12]})
			totalBytes += a.Size
			artifactCount++
		}
	}
	if artifactCount > 0 {
		t.Render()
	}

	for _, tr := range report.Tables {
		printSkipped(cmd, tr)
	}

	p := message.NewPrinter(language.English)
	_, _ = p.Fprintf(out, "Run %s: %d artifacts, %d bytes -> %s\n",
		report.RunID, artifactCount, totalBytes, cfg.OutputDir)

	if report.Failed() {
		for _, tr := range report.Tables {
			if tr.Err != nil {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "table %s: %v\n", tr.Table, tr.Err)
			}
		}
		return fmt.Errorf("compile failed")
	}
	return nil
}

func printSkipped(cmd *cobra.Command, tr engine.TableResult) {
	backends := make([]string, 0, len(tr.Skipped))
	for name := range tr.Skipped {
		backends = append(backends, name)
	}
	sort.Strings(backends)
	for _, name := range backends {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "table %s: backend %s skipped fields: %s\n",
			tr.Table, name, strings.Join(tr.Skipped[name], ", "))
	}
}
