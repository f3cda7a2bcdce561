package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCheck(t *testing.T) {
	out, err := execute(t, "check", "--from", "json", "--to", "msgpack")
	require.NoError(t, err)
	assert.Contains(t, out, "config ok")

	_, err = execute(t, "check", "--to", "xml")
	assert.Error(t, err)
}

func TestConvertFiles(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.jsonl")
	out := filepath.Join(dir, "out.jsonl")
	cfg := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, os.WriteFile(in, []byte("{\"id\":1,\"ssn\":\"x\"}\nbroken\n"), 0o600))
	require.NoError(t, os.WriteFile(cfg, []byte("pipeline:\n  null: [ssn]\n"), 0o600))

	report, err := execute(t, "convert", "--config", cfg, "--in", in, "--out", out, "--from", "json", "--to", "json")
	require.NoError(t, err)
	assert.Contains(t, report, "2 records, 1 written, 1 dropped")
	assert.Contains(t, report, "[decode-json]: decode json: ")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "{\"id\":1,\"ssn\":null}\n", string(data))
}

func TestConvertMissingConfig(t *testing.T) {
	_, err := execute(t, "convert", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to load config")
}
