// Package cmd provides the tango command-line interface with
// configuration management supporting multiple configuration sources.
//
// Configuration System:
//
//	The CLI supports flexible configuration through multiple sources with clear precedence:
//	1. Command-line flags (--config, --port, etc.) - highest priority
//	2. TANGO_CONFIG_FILE environment variable - custom config file path
//	3. Individual environment variables (TANGO_SERVER_PORT, etc.)
//	4. Configuration files (.tango.yml) - lowest priority
//
// Environment Variables:
//
//	TANGO_CONFIG_FILE: Path to custom configuration file
//	TANGO_DEBUG: Enable debug mode
//	TANGO_SERVER_PORT: Override preview server port
//	TANGO_STRING_IF_INVALID: Replacement text for unresolvable variables
//	And more following the TANGO_<SECTION>_<OPTION> pattern
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/tango/internal/config"
	"github.com/conneroisu/tango/internal/logging"
	"github.com/conneroisu/tango/template"
	"github.com/conneroisu/tango/template/loaders"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tango",
	Short: "A Django-style template engine and toolchain",
	Long: `Tango renders text templates written in the Django template language:
{{ variable }} substitutions with filters, {% tag %} logic blocks, and
{# comment #} annotations.

Quick Start:
  tango render page.html --context data.yaml    Render one template
  tango check templates/                        Compile-check a directory
  tango list tags                               Show registered tags
  tango serve --dir templates                   Preview with live reload

Configuration lives in .tango.yml and TANGO_* environment variables.`,

	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .tango.yml, can also use TANGO_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().Bool("debug", false, "annotate errors with template names and show error detail")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig initializes the configuration system.
//
// Configuration Loading Priority (highest to lowest):
//  1. --config flag: Explicitly specified config file path
//  2. TANGO_CONFIG_FILE environment variable: Custom config file path
//  3. Default: .tango.yml in current directory
func initConfig() {
	config.SetDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("TANGO_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".tango")
	}

	// TANGO_SERVER_PORT, TANGO_STRING_IF_INVALID and friends.
	viper.SetEnvPrefix("TANGO")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// A missing config file is fine; defaults and env vars carry it.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newLogger builds the process logger from the loaded configuration.
func newLogger(cfg *config.Config) *slog.Logger {
	return logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
}

// newEngine builds a template engine from the loaded configuration,
// with a filesystem loader over the configured template directories.
func newEngine(cfg *config.Config, logger *slog.Logger) *template.Engine {
	return template.New(
		template.WithDebug(cfg.Debug),
		template.WithAutoescape(cfg.Autoescape),
		template.WithCharset(cfg.Charset),
		template.WithStringIfInvalid(cfg.StringIfInvalid),
		template.WithAllowedIncludeRoots(cfg.IncludeRoots...),
		template.WithLoader(loaders.NewFilesystem(cfg.Dirs...)),
		template.WithLogger(logger),
	)
}
