package main

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/tango/cmd"
)

// TestMain lets the test binary double as the tango CLI: tests re-exec
// themselves with TANGO_RUN_MAIN set, so every invocation gets a fresh
// process, fresh flag state, and a real exit code.
func TestMain(m *testing.M) {
	if os.Getenv("TANGO_RUN_MAIN") == "1" {
		if err := cmd.Execute(); err != nil {
			os.Exit(1)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func runCLI(t *testing.T, dir string, args ...string) (stdout, stderr string, exitCode int) {
	t.Helper()
	bin, err := os.Executable()
	require.NoError(t, err)

	command := exec.Command(bin, args...)
	command.Dir = dir
	command.Env = append(os.Environ(), "TANGO_RUN_MAIN=1")

	var out, errOut strings.Builder
	command.Stdout = &out
	command.Stderr = &errOut

	runErr := command.Run()
	code := 0
	if runErr != nil {
		exitErr, ok := runErr.(*exec.ExitError)
		require.True(t, ok, "running CLI: %v", runErr)
		code = exitErr.ExitCode()
	}
	return out.String(), errOut.String(), code
}

func writeFile(t *testing.T, dir, name, src string) {
	t.Helper()
	full := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(src), 0o644))
}

func TestCLIRender(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "page.html", "Hello {{ name|upper }}!")

	stdout, stderr, code := runCLI(t, dir, "render", "page.html", "--set", "name=world")
	assert.Equal(t, 0, code, "stderr: %s", stderr)
	assert.Equal(t, "Hello WORLD!", stdout)
}

func TestCLIRenderWithDirFlag(t *testing.T) {
	work := t.TempDir()
	templates := t.TempDir()
	writeFile(t, templates, "page.html", "{{ greeting }}")

	stdout, stderr, code := runCLI(t, work,
		"render", "page.html", "--dir", templates, "--set", "greeting=hi")
	assert.Equal(t, 0, code, "stderr: %s", stderr)
	assert.Equal(t, "hi", stdout)
}

func TestCLIRenderToFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "page.html", "{% for x in items %}{{ x }}{% endfor %}")
	writeFile(t, dir, "ctx.yaml", "items: [a, b, c]\n")

	stdout, stderr, code := runCLI(t, dir,
		"render", "page.html", "--context", "ctx.yaml", "--out", filepath.Join("build", "page.html"))
	assert.Equal(t, 0, code, "stderr: %s", stderr)
	assert.Empty(t, stdout)

	data, err := os.ReadFile(filepath.Join(dir, "build", "page.html"))
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))
}

func TestCLIRenderMissingTemplate(t *testing.T) {
	dir := t.TempDir()

	_, stderr, code := runCLI(t, dir, "render", "nope.html")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "loading template")
}

func TestCLICheckFailsOnBrokenTemplate(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "good.html", "fine")
	writeFile(t, dir, "bad.html", "{% bogus %}")

	stdout, stderr, code := runCLI(t, dir, "check", ".")
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "Invalid block tag on line 1: 'bogus'")
	assert.Contains(t, stdout, "2 templates checked, 1 problems")
	assert.Contains(t, stderr, "check failed")
}

func TestCLICheckClean(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "page.html", "{% if on %}yes{% endif %}")

	stdout, stderr, code := runCLI(t, dir, "check", ".")
	assert.Equal(t, 0, code, "stderr: %s", stderr)
	assert.Contains(t, stdout, "1 templates checked, 0 problems")
}

func TestCLIListJSON(t *testing.T) {
	stdout, stderr, code := runCLI(t, t.TempDir(), "list", "-o", "json")
	assert.Equal(t, 0, code, "stderr: %s", stderr)

	var listing map[string][]string
	require.NoError(t, json.Unmarshal([]byte(stdout), &listing))
	assert.Contains(t, listing["tags"], "for")
	assert.Contains(t, listing["filters"], "upper")
}

func TestCLIVersion(t *testing.T) {
	stdout, stderr, code := runCLI(t, t.TempDir(), "version", "--short")
	assert.Equal(t, 0, code, "stderr: %s", stderr)
	assert.NotEmpty(t, strings.TrimSpace(stdout))
}

func TestCLIConfigFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".tango.yml", "string_if_invalid: \"???\"\n")
	writeFile(t, dir, "page.html", "[{{ missing }}]")

	stdout, stderr, code := runCLI(t, dir, "render", "page.html")
	assert.Equal(t, 0, code, "stderr: %s", stderr)
	assert.Equal(t, "[???]", stdout)
	assert.Contains(t, stderr, "Using config file:")
}

func TestCLIUnknownCommand(t *testing.T) {
	_, stderr, code := runCLI(t, t.TempDir(), "frobnicate")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "unknown command")
}
