package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/conneroisu/tango/internal/config"
	"github.com/conneroisu/tango/template"
)

var renderCmd = &cobra.Command{
	Use:   "render FILE",
	Short: "Render a template to stdout or a file",
	Long: `Render compiles one template and renders it against context values
assembled from --context files and --set overrides.

The template is looked up in the configured template directories
(--dir, the dirs setting, or the current directory). An absolute FILE
path is rendered directly.

Examples:
  tango render page.html                          # empty context
  tango render page.html --context data.yaml      # context from YAML
  tango render page.html --set title=Hello        # inline values
  tango render page.html --out build/page.html    # write to a file`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

var (
	renderContextFile string
	renderSetValues   []string
	renderOut         string
	renderDirs        []string
)

func init() {
	rootCmd.AddCommand(renderCmd)

	renderCmd.Flags().StringVarP(&renderContextFile, "context", "c", "", "context file (YAML or JSON)")
	renderCmd.Flags().StringArrayVar(&renderSetValues, "set", nil, "context value as key=value (repeatable)")
	renderCmd.Flags().StringVarP(&renderOut, "out", "o", "", "write output to a file instead of stdout")
	renderCmd.Flags().StringArrayVar(&renderDirs, "dir", nil, "template search directory (repeatable)")

	AddFlagValidation(renderCmd, "context", ValidateFileExists)
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if len(renderDirs) > 0 {
		cfg.Dirs = renderDirs
	}

	name := args[0]
	if filepath.IsAbs(name) {
		dir, base := filepath.Split(name)
		cfg.Dirs = []string{dir}
		name = base
	}

	logger := newLogger(cfg)
	engine := newEngine(cfg, logger)

	values := make(map[string]any)
	if renderContextFile != "" {
		fileValues, err := LoadContextFile(renderContextFile)
		if err != nil {
			return err
		}
		for k, v := range fileValues {
			values[k] = v
		}
	}
	setValues, err := ParseSetValues(renderSetValues)
	if err != nil {
		return err
	}
	for k, v := range setValues {
		values[k] = v
	}

	t, err := engine.FromFile(name)
	if err != nil {
		return fmt.Errorf("loading template: %w", err)
	}

	out, err := t.Render(template.NewContext(values))
	if err != nil {
		return fmt.Errorf("rendering %s: %w", name, err)
	}

	if renderOut != "" {
		if err := os.MkdirAll(filepath.Dir(renderOut), 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
		if err := os.WriteFile(renderOut, []byte(out), 0o644); err != nil {
			return fmt.Errorf("writing output: %w", err)
		}
		return nil
	}

	_, err = fmt.Fprint(cmd.OutOrStdout(), out)
	return err
}
