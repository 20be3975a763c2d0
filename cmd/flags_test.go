package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFormat(t *testing.T) {
	allowed := []string{"text", "json", "yaml"}

	assert.NoError(t, ValidateFormat("text", allowed))
	assert.NoError(t, ValidateFormat("JSON", allowed))
	assert.EqualError(t, ValidateFormat("xml", allowed),
		`invalid format "xml", must be one of: text, json, yaml`)
}

func TestValidateFileExists(t *testing.T) {
	file := filepath.Join(t.TempDir(), "data.yaml")
	require.NoError(t, os.WriteFile(file, []byte("a: 1\n"), 0o644))

	assert.NoError(t, ValidateFileExists(file))
	assert.NoError(t, ValidateFileExists(""))

	missing := filepath.Join(t.TempDir(), "nope.yaml")
	assert.EqualError(t, ValidateFileExists(missing), "file does not exist: "+missing)
}

func TestAddFlagValidation(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().String("output", "text", "")
	AddFlagValidation(cmd, "output", func(format string) error {
		return ValidateFormat(format, []string{"text", "json"})
	})

	assert.EqualError(t, cmd.Flags().Set("output", "xml"),
		`invalid format "xml", must be one of: text, json`)

	require.NoError(t, cmd.Flags().Set("output", "json"))
	value, err := cmd.Flags().GetString("output")
	require.NoError(t, err)
	assert.Equal(t, "json", value)
}

func TestAddFlagValidationUnknownFlag(t *testing.T) {
	cmd := &cobra.Command{}
	assert.NotPanics(t, func() {
		AddFlagValidation(cmd, "missing", func(string) error { return nil })
	})
}

func TestLoadContextFileYAML(t *testing.T) {
	file := filepath.Join(t.TempDir(), "ctx.yaml")
	require.NoError(t, os.WriteFile(file, []byte("title: Hello\ncount: 2\nnested:\n  key: v\n"), 0o644))

	values, err := LoadContextFile(file)
	require.NoError(t, err)
	assert.Equal(t, "Hello", values["title"])
	assert.Equal(t, 2, values["count"])
	assert.Equal(t, map[string]any{"key": "v"}, values["nested"])
}

func TestLoadContextFileJSON(t *testing.T) {
	file := filepath.Join(t.TempDir(), "ctx.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"name": "World", "n": 3}`), 0o644))

	values, err := LoadContextFile(file)
	require.NoError(t, err)
	assert.Equal(t, "World", values["name"])
	assert.Equal(t, float64(3), values["n"])
}

func TestLoadContextFileErrors(t *testing.T) {
	dir := t.TempDir()

	badYAML := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(badYAML, []byte("a: [1,\n"), 0o644))
	_, err := LoadContextFile(badYAML)
	assert.ErrorContains(t, err, "invalid YAML in "+badYAML)

	badJSON := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(badJSON, []byte("{"), 0o644))
	_, err = LoadContextFile(badJSON)
	assert.ErrorContains(t, err, "invalid JSON in "+badJSON)

	_, err = LoadContextFile(filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "reading context file")
}

func TestParseSetValues(t *testing.T) {
	values, err := ParseSetValues([]string{"name=World", "empty=", "pair=a=b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"name":  "World",
		"empty": "",
		"pair":  "a=b",
	}, values)
}

func TestParseSetValuesEmpty(t *testing.T) {
	values, err := ParseSetValues(nil)
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestParseSetValuesErrors(t *testing.T) {
	_, err := ParseSetValues([]string{"noequals"})
	assert.EqualError(t, err, `invalid --set value "noequals", want key=value`)

	_, err = ParseSetValues([]string{"=value"})
	assert.EqualError(t, err, `invalid --set value "=value", want key=value`)
}
