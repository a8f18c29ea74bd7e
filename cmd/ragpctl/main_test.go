package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) string {
	t.Helper()
	rootCmd.SetArgs(args)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestInitThenStatus(t *testing.T) {
	dir := t.TempDir()
	rootCmd.PersistentFlags().Set("dir", dir)

	out := runCLI(t, "init", "--dir", dir, "1", "2", "3")
	require.Contains(t, out, "Nodes=3")

	out = runCLI(t, "status", "--dir", dir)
	require.Contains(t, out, "Nodes=3")
}

func TestSpreadAndConsolidate(t *testing.T) {
	dir := t.TempDir()
	runCLI(t, "init", "--dir", dir, "1", "2")

	out := runCLI(t, "spread", "--dir", dir, "--seed", "1", "--strength", "1.0")
	require.Contains(t, out, "active nodes:")

	out = runCLI(t, "consolidate", "--dir", dir)
	require.Contains(t, out, "merged")
}
