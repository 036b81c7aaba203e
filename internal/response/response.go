// Package response turns a dispatch result into the reply the user sees.
package response

import "github.com/mattjoyce/aurras/internal/dispatch"

// User-facing fallbacks. They are deliberately different so an operator can
// tell "the assistant did not understand" from "something broke".
const (
	FallbackNotUnderstood = "Sorry, I didn't understand that."
	FallbackInternalError = "Sorry, something went wrong while handling that."
)

// Envelope is the single reply produced for a turn.
type Envelope struct {
	Response string `json:"response"`
}

// Normalize maps a dispatch result onto an envelope. Successful text is passed
// through verbatim, including the empty string. Failure details never leak.
func Normalize(res dispatch.Result) Envelope {
	if res.OK() {
		return Envelope{Response: res.Text}
	}
	switch res.Kind {
	case dispatch.KindNoPluginForIntent:
		return Envelope{Response: FallbackNotUnderstood}
	default:
		return Envelope{Response: FallbackInternalError}
	}
}

// InternalError is the envelope used when a turn fails before dispatch, for
// example when the model server is unreachable.
func InternalError() Envelope {
	return Envelope{Response: FallbackInternalError}
}
