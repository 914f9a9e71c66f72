package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetflow/internal/config"
)

func runCLI(t *testing.T, args ...string) string {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	require.NoError(t, root.Execute())
	return out.String()
}

func TestSheetsCommand(t *testing.T) {
	t.Setenv(config.FolderEnvVar, t.TempDir())
	path := filepath.Join(t.TempDir(), "cities.csv")
	require.NoError(t, os.WriteFile(path,
		[]byte("City,Pop\nOslo,1\nLima,2\n"), 0o644))

	out := runCLI(t, "sheets", path)
	assert.Contains(t, out, "cities")
	assert.Contains(t, out, "Oslo")
	assert.Contains(t, out, "2 rows")
}

func TestCodeCommand(t *testing.T) {
	t.Setenv(config.FolderEnvVar, t.TempDir())
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte("A\n1\n2\n"), 0o644))

	out := runCLI(t, "code", path)
	assert.Contains(t, out, "import pandas as pd")
	assert.Contains(t, out, "pd.read_csv")
}

func TestAnalysesCommandEmpty(t *testing.T) {
	t.Setenv(config.FolderEnvVar, t.TempDir())
	out := runCLI(t, "analyses")
	assert.Contains(t, out, "no saved analyses")
}

func TestShowCommandMissing(t *testing.T) {
	t.Setenv(config.FolderEnvVar, t.TempDir())
	root := newRootCmd()
	root.SetOut(new(bytes.Buffer))
	root.SetErr(new(bytes.Buffer))
	root.SetArgs([]string{"show", "ghost"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "analysis_not_found")
}
