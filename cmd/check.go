package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	xhtml "golang.org/x/net/html"

	"github.com/conneroisu/tango/internal/config"
	"github.com/conneroisu/tango/internal/diagnostics"
	"github.com/conneroisu/tango/template"
)

var checkCmd = &cobra.Command{
	Use:   "check PATH...",
	Short: "Compile-check templates and report problems",
	Long: `Check compiles every template under the given paths and reports
syntax errors as file:line: message diagnostics. Directories are walked
for files with the configured template extensions; files are checked
as-is regardless of extension.

With --render-html each template that compiles is also rendered against
an empty context and the output scanned for unbalanced HTML tags.

Exit status is 1 when any template fails to compile.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

var checkRenderHTML bool

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().BoolVar(&checkRenderHTML, "render-html", false, "render with an empty context and flag unbalanced markup")
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	files, err := collectTemplateFiles(args, cfg.Extensions)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No templates found.")
		return nil
	}

	logger := newLogger(cfg)
	engine := newEngine(cfg, logger)
	collector := diagnostics.NewCollector()

	for _, file := range files {
		src, err := os.ReadFile(file)
		if err != nil {
			collector.AddError(file, err)
			continue
		}

		t, err := engine.FromString(string(src))
		if err != nil {
			collector.AddError(file, err)
			continue
		}

		if checkRenderHTML {
			out, err := t.Render(template.NewContext())
			if err != nil {
				collector.AddError(file, err)
				continue
			}
			for _, problem := range checkHTMLBalance(out) {
				collector.AddWarning(file, 0, problem)
			}
		}
	}

	for _, d := range collector.Items() {
		fmt.Fprintln(cmd.OutOrStdout(), d.String())
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d templates checked, %d problems\n", len(files), collector.Len())

	if collector.HasErrors() {
		return fmt.Errorf("check failed")
	}
	return nil
}

// collectTemplateFiles expands the given paths: directories are walked
// for files with one of the template extensions, plain files are taken
// as-is.
func collectTemplateFiles(paths []string, extensions []string) ([]string, error) {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		if !info.IsDir() {
			files = append(files, path)
			continue
		}
		err = filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				if base := filepath.Base(p); strings.HasPrefix(base, ".") && p != path {
					return filepath.SkipDir
				}
				return nil
			}
			if hasExtension(p, extensions) {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

func hasExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := filepath.Ext(path)
	for _, want := range extensions {
		if strings.EqualFold(ext, want) {
			return true
		}
	}
	return false
}

// voidElements never take a closing tag, so they stay off the balance
// stack.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// checkHTMLBalance tokenizes rendered output and reports tags closed
// out of order or never closed. The browser would paper over these;
// the author probably still wants to know.
func checkHTMLBalance(out string) []string {
	var problems []string
	var stack []string

	tokenizer := xhtml.NewTokenizer(strings.NewReader(out))
	for {
		tokenType := tokenizer.Next()
		if tokenType == xhtml.ErrorToken {
			break
		}
		name, _ := tokenizer.TagName()
		tag := string(name)

		switch tokenType {
		case xhtml.StartTagToken:
			if !voidElements[tag] {
				stack = append(stack, tag)
			}
		case xhtml.EndTagToken:
			if len(stack) == 0 {
				problems = append(problems, fmt.Sprintf("closing </%s> with no open tag", tag))
				continue
			}
			top := stack[len(stack)-1]
			if top == tag {
				stack = stack[:len(stack)-1]
				continue
			}
			// Close anyway if the tag is open further down; anything
			// popped over it was left unclosed.
			found := -1
			for i := len(stack) - 1; i >= 0; i-- {
				if stack[i] == tag {
					found = i
					break
				}
			}
			if found == -1 {
				problems = append(problems, fmt.Sprintf("closing </%s> but <%s> is open", tag, top))
				continue
			}
			for i := len(stack) - 1; i > found; i-- {
				problems = append(problems, fmt.Sprintf("<%s> not closed before </%s>", stack[i], tag))
			}
			stack = stack[:found]
		}
	}

	for i := len(stack) - 1; i >= 0; i-- {
		problems = append(problems, fmt.Sprintf("<%s> never closed", stack[i]))
	}
	return problems
}
