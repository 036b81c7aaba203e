package api

import (
	"github.com/mattjoyce/aurras/internal/history"
	"github.com/mattjoyce/aurras/internal/nlu"
)

// AskRequest is the JSON body for POST /ask and POST /classify.
type AskRequest struct {
	Prompt string `json:"prompt"`
}

// AskResponse is returned by POST /ask. Response is the user-facing reply;
// the remaining fields describe how it was produced.
type AskResponse struct {
	Response string       `json:"response"`
	TurnID   string       `json:"turn_id"`
	Intent   string       `json:"intent,omitempty"`
	Entities []nlu.Entity `json:"entities,omitempty"`
	Plugin   string       `json:"plugin,omitempty"`
	Status   string       `json:"status"`
	Kind     string       `json:"failure_kind,omitempty"`
}

// ClassifyResponse is returned by POST /classify.
type ClassifyResponse struct {
	Intent   string       `json:"intent"`
	Entities []nlu.Entity `json:"entities"`
}

// PluginSummary describes one loaded plugin.
type PluginSummary struct {
	Name            string   `json:"name"`
	Kind            string   `json:"kind"`
	Priority        int      `json:"priority"`
	AcceptedIntents []string `json:"accepted_intents"`
	Version         string   `json:"version,omitempty"`
	Description     string   `json:"description,omitempty"`
	LoadOrder       int      `json:"load_order"`
}

// PluginListResponse is returned by GET /plugins.
type PluginListResponse struct {
	Plugins []PluginSummary `json:"plugins"`
	Intents []string        `json:"intents"`
}

// HistoryResponse is returned by GET /history.
type HistoryResponse struct {
	Turns []history.Turn `json:"turns"`
}

// ErrorResponse is returned on errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	PluginsLoaded int    `json:"plugins_loaded"`
	Intents       int    `json:"intents"`
}
