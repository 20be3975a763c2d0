package cmd

import (
	"encoding/json"
	"io"
	"os"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/tango/internal/config"
)

// setupConfig gives a test a clean viper state with defaults loaded,
// optionally pointing the template search path at the given directories.
func setupConfig(t *testing.T, dirs ...string) {
	t.Helper()
	viper.Reset()
	config.SetDefaults()
	if len(dirs) > 0 {
		viper.Set("dirs", dirs)
	}
	t.Cleanup(viper.Reset)
}

// captureStdout collects what fn writes to os.Stdout. Commands that
// stream through encoders write there directly rather than through
// cobra's out.
func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	runErr := fn()

	require.NoError(t, w.Close())
	os.Stdout = old
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(data), runErr
}

func TestRunListText(t *testing.T) {
	listFormat = "text"
	defer func() { listFormat = "text" }()

	out, err := captureStdout(t, func() error {
		return runList(&cobra.Command{}, nil)
	})
	require.NoError(t, err)

	assert.Contains(t, out, "KIND")
	assert.Contains(t, out, "for")
	assert.Contains(t, out, "upper")
	assert.Contains(t, out, "Total:")
}

func TestRunListTagsOnly(t *testing.T) {
	listFormat = "text"
	defer func() { listFormat = "text" }()

	out, err := captureStdout(t, func() error {
		return runList(&cobra.Command{}, []string{"tags"})
	})
	require.NoError(t, err)

	assert.Contains(t, out, "for")
	assert.NotContains(t, out, "upper")
}

func TestRunListJSON(t *testing.T) {
	listFormat = "json"
	defer func() { listFormat = "text" }()

	out, err := captureStdout(t, func() error {
		return runList(&cobra.Command{}, nil)
	})
	require.NoError(t, err)

	var listing map[string][]string
	require.NoError(t, json.Unmarshal([]byte(out), &listing))
	assert.Contains(t, listing["tags"], "for")
	assert.Contains(t, listing["filters"], "upper")
}

func TestRunListYAML(t *testing.T) {
	listFormat = "yaml"
	defer func() { listFormat = "text" }()

	out, err := captureStdout(t, func() error {
		return runList(&cobra.Command{}, []string{"filters"})
	})
	require.NoError(t, err)

	var listing map[string][]string
	require.NoError(t, yaml.Unmarshal([]byte(out), &listing))
	assert.Contains(t, listing["filters"], "upper")
	assert.NotContains(t, listing, "tags")
}

func TestRunListUnsupportedFormat(t *testing.T) {
	listFormat = "xml"
	defer func() { listFormat = "text" }()

	err := runList(&cobra.Command{}, nil)
	assert.EqualError(t, err, "unsupported format: xml")
}

func TestRunVersionText(t *testing.T) {
	versionFormat = "text"
	versionShort = false
	defer func() { versionFormat = "text"; versionShort = false }()

	out, err := captureStdout(t, func() error {
		return runVersionCommand(&cobra.Command{}, nil)
	})
	require.NoError(t, err)
	assert.Contains(t, out, "tango ")
	assert.Contains(t, out, "Go: ")
	assert.Contains(t, out, "Platform: ")
}

func TestRunVersionShort(t *testing.T) {
	versionFormat = "text"
	versionShort = true
	defer func() { versionFormat = "text"; versionShort = false }()

	out, err := captureStdout(t, func() error {
		return runVersionCommand(&cobra.Command{}, nil)
	})
	require.NoError(t, err)
	assert.NotContains(t, out, "tango ")
	assert.NotEmpty(t, out)
}

func TestRunVersionJSON(t *testing.T) {
	versionFormat = "json"
	defer func() { versionFormat = "text" }()

	out, err := captureStdout(t, func() error {
		return runVersionCommand(&cobra.Command{}, nil)
	})
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	assert.NotEmpty(t, payload["version"])
	assert.NotEmpty(t, payload["go_version"])
	assert.NotEmpty(t, payload["platform"])
}

func TestRunVersionUnsupportedFormat(t *testing.T) {
	versionFormat = "bad"
	defer func() { versionFormat = "text" }()

	err := runVersionCommand(&cobra.Command{}, nil)
	assert.EqualError(t, err, "unsupported format: bad (supported: text, json)")
}
