package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spboyer/promptbench/internal/execution"
	"github.com/spboyer/promptbench/internal/projectconfig"
	"github.com/stretchr/testify/require"
)

const mockConfig = `backend:
  type: mock
catalog:
  models: [alpha, beta]
`

// setupProject writes config into a fresh project directory and makes it
// the working directory.
func setupProject(t *testing.T, config string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, projectconfig.FileName), []byte(config), 0o644))
	t.Chdir(dir)
	return dir
}

func writePrompt(t *testing.T, dir, content string) string {
	t.Helper()
	p := filepath.Join(dir, "prompt.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

// useInvoker replaces the configured backend with inv.
func useInvoker(t *testing.T, inv *execution.MockInvoker) {
	t.Helper()
	orig := newBackend
	newBackend = func(*projectconfig.ProjectConfig) (*backend, error) {
		return &backend{invoker: inv, lister: inv}, nil
	}
	t.Cleanup(func() { newBackend = orig })
}

func executeRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}
