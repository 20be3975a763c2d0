package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// AddFlagValidation wraps a flag's value so bad input is rejected at
// parse time with a useful message instead of surfacing later.
func AddFlagValidation(cmd *cobra.Command, flagName string, validator func(string) error) {
	flag := cmd.Flags().Lookup(flagName)
	if flag == nil {
		return
	}
	flag.Value = &validatingValue{Value: flag.Value, validator: validator}
}

type validatingValue struct {
	pflag.Value
	validator func(string) error
}

func (v *validatingValue) Set(val string) error {
	if v.validator != nil {
		if err := v.validator(val); err != nil {
			return err
		}
	}
	return v.Value.Set(val)
}

// ValidateFormat checks an output format against the allowed set,
// suggesting the valid choices on mismatch.
func ValidateFormat(format string, allowed []string) error {
	for _, want := range allowed {
		if strings.EqualFold(format, want) {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q, must be one of: %s", format, strings.Join(allowed, ", "))
}

// ValidateFileExists rejects flags naming files that are not there.
// Empty values pass so optional flags stay optional.
func ValidateFileExists(filename string) error {
	if filename == "" {
		return nil
	}
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return fmt.Errorf("file does not exist: %s", filename)
	}
	return nil
}

// LoadContextFile reads template context values from a YAML or JSON
// file, chosen by extension. YAML is the default since .tango.yml
// projects tend to keep their fixtures in YAML too.
func LoadContextFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading context file: %w", err)
	}

	values := make(map[string]any)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &values); err != nil {
			return nil, fmt.Errorf("invalid JSON in %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, &values); err != nil {
			return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
		}
	}
	return values, nil
}

// ParseSetValues turns repeated --set key=value flags into context
// values. Values stay strings; dotted keys are not expanded.
func ParseSetValues(pairs []string) (map[string]any, error) {
	values := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set value %q, want key=value", pair)
		}
		values[key] = value
	}
	return values, nil
}
