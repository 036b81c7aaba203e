package dispatch

import "fmt"

// Status is the terminal state of a dispatched turn.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Kind classifies a failed dispatch.
type Kind string

const (
	KindNoPluginForIntent       Kind = "no_plugin_for_intent"
	KindPluginExecutionFailure  Kind = "plugin_execution_failure"
	KindMalformedPluginResponse Kind = "malformed_plugin_response"
)

// Result is the outcome of one dispatch. Text is set on success; Kind and
// Detail on failure. Detail is for logs and never shown to the user.
type Result struct {
	Status Status `json:"status"`
	Plugin string `json:"plugin,omitempty"`
	Text   string `json:"text,omitempty"`
	Kind   Kind   `json:"kind,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Succeeded builds a successful result.
func Succeeded(plugin, text string) Result {
	return Result{Status: StatusSucceeded, Plugin: plugin, Text: text}
}

// Failed builds a failed result.
func Failed(kind Kind, plugin, detail string) Result {
	return Result{Status: StatusFailed, Plugin: plugin, Kind: kind, Detail: detail}
}

// OK reports whether the dispatch succeeded.
func (r Result) OK() bool {
	return r.Status == StatusSucceeded
}

func (r Result) String() string {
	if r.OK() {
		return fmt.Sprintf("succeeded(%s)", r.Plugin)
	}
	if r.Plugin == "" {
		return fmt.Sprintf("failed(%s)", r.Kind)
	}
	return fmt.Sprintf("failed(%s, %s): %s", r.Kind, r.Plugin, r.Detail)
}
