package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// StdioHook writes event data to an output stream in a configured format.
type StdioHook struct {
	id     string
	format string // "json" or "env"
	output *os.File
}

// NewStdioHook creates a hook writing to stderr (kept separate from any
// normal operational output on stdout).
func NewStdioHook(id, format string) *StdioHook {
	return &StdioHook{id: id, format: format, output: os.Stderr}
}

func (h *StdioHook) Execute(ctx context.Context, event Event) error {
	switch h.format {
	case "json":
		return h.outputJSON(event)
	case "env":
		return h.outputEnv(event)
	default:
		return fmt.Errorf("stdio hook %s: unsupported format: %s", h.id, h.format)
	}
}

func (h *StdioHook) Type() string { return "stdio" }
func (h *StdioHook) ID() string   { return h.id }

func (h *StdioHook) outputJSON(event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("stdio hook %s: marshal: %w", h.id, err)
	}
	_, err = fmt.Fprintf(h.output, "MEDIAHUB_EVENT: %s\n", data)
	return err
}

func (h *StdioHook) outputEnv(event Event) error {
	lines := []string{
		"# mediahub event: " + string(event.Type),
		fmt.Sprintf("MEDIAHUB_EVENT_TYPE=%s", event.Type),
		fmt.Sprintf("MEDIAHUB_TIMESTAMP=%d", event.Timestamp),
	}
	if event.SessionID != "" {
		lines = append(lines, "MEDIAHUB_SESSION_ID="+event.SessionID)
	}
	if event.StreamID != "" {
		lines = append(lines, "MEDIAHUB_STREAM_ID="+event.StreamID)
	}
	for key, value := range event.Data {
		lines = append(lines, "MEDIAHUB_"+strings.ToUpper(key)+"="+fmt.Sprintf("%v", value))
	}
	lines = append(lines, "")

	for _, line := range lines {
		if _, err := fmt.Fprintln(h.output, line); err != nil {
			return fmt.Errorf("stdio hook %s: %w", h.id, err)
		}
	}
	return nil
}
