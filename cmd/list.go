package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/tango/template"
)

var listCmd = &cobra.Command{
	Use:   "list [tags|filters]",
	Short: "List registered tags and filters",
	Long: `List shows the tags and filters registered on the default engine.

Examples:
  tango list                  # tags and filters in table format
  tango list tags             # tags only
  tango list filters -o json  # filters as JSON
  tango list -o yaml          # everything as YAML`,
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"tags", "filters"},
	RunE:      runList,
}

var listFormat string

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVarP(&listFormat, "output", "o", "text", "output format (text|json|yaml)")

	AddFlagValidation(listCmd, "output", func(format string) error {
		return ValidateFormat(format, []string{"text", "json", "yaml"})
	})
}

func runList(cmd *cobra.Command, args []string) error {
	engine := template.Default()

	kind := ""
	if len(args) == 1 {
		kind = args[0]
	}

	listing := make(map[string][]string)
	if kind == "" || kind == "tags" {
		listing["tags"] = engine.Tags()
	}
	if kind == "" || kind == "filters" {
		listing["filters"] = engine.Filters()
	}

	switch strings.ToLower(listFormat) {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(listing)
	case "yaml":
		encoder := yaml.NewEncoder(os.Stdout)
		defer encoder.Close()
		return encoder.Encode(listing)
	case "text":
		return outputListText(listing)
	default:
		return fmt.Errorf("unsupported format: %s", listFormat)
	}
}

func outputListText(listing map[string][]string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "KIND\tNAME")
	for _, kind := range []string{"tags", "filters"} {
		names, ok := listing[kind]
		if !ok {
			continue
		}
		for _, name := range names {
			fmt.Fprintf(w, "%s\t%s\n", strings.TrimSuffix(kind, "s"), name)
		}
	}

	total := len(listing["tags"]) + len(listing["filters"])
	fmt.Fprintf(w, "\nTotal: %d registrations\n", total)
	return nil
}
