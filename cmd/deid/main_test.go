package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"document-deidentifier/internal/config"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out, _, err := runLogged(t, args...)
	return out, err
}

// runLogged returns stdout and the log output separately.
func runLogged(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "none.yaml"), "--env-file", ""}, args...))
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestDeidentifyThenReidentify(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "memo.txt")
	const content = "Reach bob@example.org, SSN 123-45-6789.\n"
	require.NoError(t, os.WriteFile(in, []byte(content), 0o600))
	outDir := filepath.Join(dir, "out")

	out, err := run(t, "deidentify", in, "--output-dir", outDir)
	require.NoError(t, err)
	assert.Contains(t, out, "memo_processed.txt")
	assert.Contains(t, out, "memo_mappings.json")

	masked, err := os.ReadFile(filepath.Join(outDir, "memo_processed.txt"))
	require.NoError(t, err)
	assert.NotContains(t, string(masked), "bob@example.org")

	_, err = run(t, "reidentify", filepath.Join(outDir, "memo_processed.txt"),
		"--map", filepath.Join(outDir, "memo_mappings.json"), "--output-dir", outDir)
	require.NoError(t, err)
	restored, err := os.ReadFile(filepath.Join(outDir, "memo_processed_processed.txt"))
	require.NoError(t, err)
	assert.Equal(t, content, string(restored))
}

func TestDeidentify_MemoryStoreHidesRunID(t *testing.T) {
	t.Setenv("DEID_MAP_STORE_PATH", "")
	dir := t.TempDir()
	in := filepath.Join(dir, "memo.txt")
	require.NoError(t, os.WriteFile(in, []byte("mail bob@example.org"), 0o600))

	out, logs, err := runLogged(t, "deidentify", in, "--output-dir", filepath.Join(dir, "out"))
	require.NoError(t, err)
	assert.Contains(t, out, "memo_mappings.json")
	assert.NotContains(t, out, "run:")
	assert.Contains(t, logs, "run IDs are not kept")
}

func TestDeidentify_FormatFlag(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "people.csv")
	require.NoError(t, os.WriteFile(in, []byte("name,email\nBob,bob@example.org\n"), 0o600))
	outDir := filepath.Join(dir, "out")

	out, err := run(t, "deidentify", in, "--output-dir", outDir, "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, "people_processed.json")

	data, err := os.ReadFile(filepath.Join(outDir, "people_processed.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"rows"`)
	assert.NotContains(t, string(data), "bob@example.org")

	_, err = run(t, "reidentify", filepath.Join(outDir, "people_processed.json"),
		"--map", filepath.Join(outDir, "people_mappings.json"), "--output-dir", outDir, "-f", "txt")
	require.NoError(t, err)
	restored, err := os.ReadFile(filepath.Join(outDir, "people_processed_processed.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(restored), "bob@example.org")
}

func TestReidentify_RequiresMap(t *testing.T) {
	_, err := run(t, "reidentify", "x.txt")
	assert.Error(t, err)
}

func TestMapsWithBoltStore(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DEID_MAP_STORE_PATH", filepath.Join(dir, "maps.db"))
	in := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(in, []byte("ip 10.1.2.3"), 0o600))

	out, err := run(t, "deidentify", in, "--output-dir", filepath.Join(dir, "out"))
	require.NoError(t, err)
	var runID string
	for _, line := range strings.Split(out, "\n") {
		if id, ok := strings.CutPrefix(strings.TrimSpace(line), "run: "); ok {
			runID = id
		}
	}
	require.NotEmpty(t, runID)

	out, err = run(t, "maps", "list")
	require.NoError(t, err)
	assert.Contains(t, out, runID)
	assert.Contains(t, out, in)

	out, err = run(t, "maps", "show", runID)
	require.NoError(t, err)
	assert.Contains(t, out, `"10.1.2.3"`)
}

func TestEnvFileLoaded(t *testing.T) {
	t.Setenv("DEID_DETECTOR", "")
	require.NoError(t, os.Unsetenv("DEID_DETECTOR"))
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("DEID_DETECTOR=bogus\n"), 0o600))

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", "", "--env-file", envFile, "maps", "list"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus")
}

func TestPrintBanner(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	var buf bytes.Buffer
	printBanner(&buf, cfg)
	assert.Contains(t, buf.String(), "regex")
	assert.Contains(t, buf.String(), "memory")
	assert.Contains(t, buf.String(), ".pdf")
}
