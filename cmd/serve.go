package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/tango/internal/config"
	"github.com/conneroisu/tango/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the preview server with live reload",
	Long: `Serve starts a development server that lists the templates under the
configured directories, renders them on demand with context values taken
from the query string, and reloads connected browsers when a template
changes.

Examples:
  tango serve                           # serve . on localhost:8080
  tango serve --dir templates -p 3000   # custom directory and port
  tango serve --no-reload               # without the websocket reload`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringArray("dir", nil, "template search directory (repeatable)")
	serveCmd.Flags().String("host", "localhost", "host to bind to")
	serveCmd.Flags().IntP("port", "p", 8080, "port to serve on")
	serveCmd.Flags().Bool("no-reload", false, "disable websocket live reload")

	viper.BindPFlag("dirs", serveCmd.Flags().Lookup("dir"))
	viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("server.no_reload", serveCmd.Flags().Lookup("no-reload"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := newLogger(cfg)
	engine := newEngine(cfg, logger)

	srv, err := server.New(cfg, engine, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Start(ctx)
}
