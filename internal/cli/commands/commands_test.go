package commands_test

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldbook-labs/fieldbook/internal/cli"
)

const testRulebook = `tables:
  - name: Answers
    fields:
      - name: Text
        type: string
      - name: Votes
        type: int
      - name: Popular
        type: bool
        formula: "{{Votes}} >= 10"
      - name: Summary
        type: string
        formula: "{{Text}} & \" (\" & {{Votes}} & \")\""
    rows:
      - {Text: "Go", Votes: 12}
      - {Text: "SQL", Votes: 3}
`

// writeProject lays out a throwaway project directory and returns the
// path of its config file.
func writeProject(t *testing.T) (cfgPath, dir string) {
	t.Helper()
	dir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rulebook.yaml"), []byte(testRulebook), 0o644))

	cfgPath = filepath.Join(dir, "fieldbook.yaml")
	cfg := fmt.Sprintf("rulebook: rulebook.yaml\noutput_dir: build\nstate_path: %s\n",
		filepath.Join(dir, "state.db"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	return cfgPath, dir
}

// execute runs the CLI with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := cli.NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String() + errOut.String(), err
}

func TestCompileCommand(t *testing.T) {
	cfgPath, dir := writeProject(t)

	out, err := execute(t, "compile", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "artifacts")
	assert.Contains(t, out, "answers_view.sql")

	for _, rel := range []string{
		"build/golang/answers_calc.go",
		"build/python/answers_calc.py",
		"build/sqlview/answers_view.sql",
		"build/graphql/answers.graphql",
		"build/native/answers.fbmod",
	} {
		_, err := os.Stat(filepath.Join(dir, rel))
		assert.NoError(t, err, rel)
	}
}

func TestCompileCommandBackendSelection(t *testing.T) {
	cfgPath, dir := writeProject(t)

	_, err := execute(t, "compile", "--config", cfgPath, "--backend", "sqlview")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "build", "sqlview", "answers_view.sql"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "build", "golang"))
	assert.True(t, os.IsNotExist(err))
}

func TestEvalCommand(t *testing.T) {
	cfgPath, _ := writeProject(t)

	out, err := execute(t, "eval", "Answers", "--config", cfgPath)
	require.NoError(t, err)
	// go-pretty upper-cases headers
	assert.Contains(t, out, "POPULAR*")
	assert.Contains(t, out, "Go (12)")
	assert.Contains(t, out, "(2 rows")
}

func TestEvalCommandUnknownTable(t *testing.T) {
	cfgPath, _ := writeProject(t)

	_, err := execute(t, "eval", "Nope", "--config", cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"Nope" not found`)
}

func TestDAGCommand(t *testing.T) {
	cfgPath, _ := writeProject(t)

	out, err := execute(t, "dag", "Answers", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Level 0:")
	assert.Contains(t, out, "Popular = {{Votes}} >= 10")
	assert.Contains(t, out, "2 derived fields")
}

func TestDAGCommandJSON(t *testing.T) {
	cfgPath, _ := writeProject(t)

	out, err := execute(t, "dag", "Answers", "--json", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, `"level": 0`)
	assert.Contains(t, out, `"name": "Popular"`)
}

func TestRenameCommandDryRun(t *testing.T) {
	cfgPath, dir := writeProject(t)

	out, err := execute(t, "rename", "Answers", "Votes", "Score", "--dry-run", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "{{Score}} >= 10")

	// untouched on disk
	data, err := os.ReadFile(filepath.Join(dir, "rulebook.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "{{Votes}}")
}

func TestRenameCommandWritesBack(t *testing.T) {
	cfgPath, dir := writeProject(t)

	out, err := execute(t, "rename", "Answers", "Votes", "Score", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Renamed Answers.Votes to Score")

	data, err := os.ReadFile(filepath.Join(dir, "rulebook.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "name: Score")
	assert.Contains(t, string(data), "{{Score}} >= 10")
	assert.NotContains(t, string(data), "{{Votes}}")

	// the rewritten rulebook still compiles
	_, err = execute(t, "compile", "--config", cfgPath)
	require.NoError(t, err)
}

func TestRunsCommand(t *testing.T) {
	cfgPath, _ := writeProject(t)

	_, err := execute(t, "compile", "--config", cfgPath)
	require.NoError(t, err)

	out, err := execute(t, "runs", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "(1 runs)")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "fieldbook")
}
