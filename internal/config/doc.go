// Package config provides configuration management for switchyard.
//
// Configuration is loaded from a single directory. The default directory is
// ~/.config/switchyard; commands accept --config-path to point elsewhere.
//
// # Configuration Directory
//
// The directory contains:
//   - config.yaml (orchestrator, restart, routing, persistence and metrics settings,
//     plus optional inline server definitions)
//   - servers/ (one YAML file per worker server)
//
// Loading starts from GetDefaultConfig, overlays config.yaml when present, and then
// appends every servers/*.yaml definition in file name order. A server file without
// a name takes the file name without extension.
//
// # Server Definitions
//
//	name: arch-analyzer
//	executablePath: ./bin/arch-analyzer
//	args: ["--port", "9101"]
//	endpoint: localhost:9101
//	protocol: json
//	capabilities:
//	  - analyze_architecture
//	  - suggest_patterns
//	autoStart: true
//
// Relative executable paths containing a slash are resolved against the
// configuration directory; bare names are looked up in PATH when the server starts.
//
// # Validation
//
// SwitchyardConfig.Validate checks every setting and every server definition and
// returns a *ConfigurationErrorCollection listing all problems at once, so a single
// `switchyard check` run reports everything that needs fixing.
//
// # Watching
//
// Watcher follows the servers/ directory with fsnotify. Bursts of events for the same
// file are debounced, and each change carries either the parsed definition, a parse
// error, or a removal flag.
package config
