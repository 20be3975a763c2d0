// Package internal contains the implementation packages behind the
// tango CLI. They follow Go's internal package convention and are not
// importable from outside the module; the public surface is the
// template package tree at the repository root.
//
// # Package Organization
//
//   - config: viper-backed settings with validation
//   - diagnostics: file:line problem collection for tango check
//   - logging: slog handler construction from configuration
//   - server: preview server with websocket live reload
//   - version: build metadata stamped at link time
//   - watcher: debounced recursive file system monitoring
//
// The server package composes the others: it renders through a cached
// engine, flushes that cache on watcher events, and pushes reload
// messages to connected browsers.
package internal
