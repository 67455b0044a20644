package hooks

import "context"

// Hook is a handler invoked when a lifecycle Event occurs.
type Hook interface {
	Execute(ctx context.Context, event Event) error
	Type() string
	ID() string
}

// Config configures a Manager.
type Config struct {
	// Timeout is the configured per-hook execution timeout (default: 30s).
	// NewManager only validates it; shell and webhook hooks take their
	// timeout from their constructors.
	Timeout string `json:"timeout"`

	// Concurrency caps in-flight hook executions (default: 10).
	Concurrency int `json:"concurrency"`

	// StdioFormat enables structured stdio output: "json", "env", or "".
	StdioFormat string `json:"stdio_format"`
}

// DefaultConfig returns sensible defaults matching cmd/mediahub-server's
// flag defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:     "30s",
		Concurrency: 10,
		StdioFormat: "",
	}
}
