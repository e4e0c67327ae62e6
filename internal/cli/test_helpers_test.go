package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testConfig = `
types:
  page:
    aliases: [page_proxy]
    fields:
      - {name: id, kind: int, id: true}
      - {name: title, kind: string}
      - {name: rank, kind: int}
      - {name: summary, kind: string, nullable: true}
  folder:
    fields:
      - {name: uuid, kind: string, id: true}
      - {name: name, kind: string, nodename: true}
  note:
    fields:
      - {name: uuid, kind: string, id: true}
      - {name: name, kind: string, nodename: true}
      - {name: parent, parent: true}
      - {name: body, kind: string}
  tag:
    fields:
      - {name: id, kind: string, id: true}
      - {name: label, kind: string}
sql:
  path: data.db
  create_schema: true
  types: [page]
document:
  workspace: workspace.yaml
  types: [folder, note]
memory:
  fixtures: fixtures.yaml
  types: [tag]
  capabilities:
    supported_comparators: [eq, in]
`

const testFixtures = `
tag:
  - {id: go, label: Go}
  - {id: sql, label: SQL}
`

// writeFiles writes name/content pairs into a fresh directory and returns it.
func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

// testWorkspace returns a directory holding the test config and fixtures.
func testWorkspace(t *testing.T) string {
	t.Helper()
	return writeFiles(t, map[string]string{
		"objectagent.yaml": testConfig,
		"fixtures.yaml":    testFixtures,
	})
}

// execute runs the root command with the config of dir and returns stdout.
func execute(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(append([]string{"--config", filepath.Join(dir, "objectagent.yaml")}, args...))
	err := cmd.Execute()
	return out.String(), err
}
