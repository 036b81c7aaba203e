package protocol

import (
	"time"

	"github.com/mattjoyce/aurras/internal/nlu"
)

// Version is the plugin protocol version spoken by this build.
const Version = 1

// Request is the envelope handed to a plugin for one turn. Subprocess plugins
// receive it as a single JSON document on stdin.
type Request struct {
	Protocol   int            `json:"protocol"`
	TurnID     string         `json:"turn_id"`
	Intent     string         `json:"intent"`
	Entities   []nlu.Entity   `json:"entities"`
	Prompt     string         `json:"prompt"`
	Config     map[string]any `json:"config,omitempty"`
	DeadlineAt time.Time      `json:"deadline_at"`
}

// Response is what a plugin answers with. Subprocess plugins write it as a
// single JSON document on stdout.
//
// Response is required unless Error is set. A non-empty Error reports a
// plugin-side failure for this turn.
type Response struct {
	Response string     `json:"response"`
	Error    string     `json:"error,omitempty"`
	Logs     []LogEntry `json:"logs,omitempty"`
}

// LogEntry represents a log message from a plugin.
type LogEntry struct {
	Level   string `json:"level"` // info | warn | error | debug
	Message string `json:"message"`
}

// Failed reports whether the plugin signalled an error.
func (r *Response) Failed() bool {
	return r.Error != ""
}
