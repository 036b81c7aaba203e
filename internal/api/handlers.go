package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/aurras/internal/assistant"
	"github.com/mattjoyce/aurras/internal/history"
	"github.com/mattjoyce/aurras/internal/plugin"
)

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		PluginsLoaded: len(s.registry.All()),
		Intents:       len(s.registry.Intents()),
	})
}

// handleAsk handles POST /ask. Turn failures are still 200: the body carries
// the fallback reply the user should see.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	prompt, ok := s.decodePrompt(w, r)
	if !ok {
		return
	}

	reply := s.assistant.Respond(r.Context(), assistant.SourceAPI, prompt)
	respondJSON(w, http.StatusOK, AskResponse{
		Response: reply.Envelope.Response,
		TurnID:   reply.TurnID,
		Intent:   reply.Classification.Intent,
		Entities: reply.Classification.Entities,
		Plugin:   reply.Result.Plugin,
		Status:   string(reply.Result.Status),
		Kind:     string(reply.Result.Kind),
	})
}

// handleClassify handles POST /classify.
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	prompt, ok := s.decodePrompt(w, r)
	if !ok {
		return
	}

	cls, err := s.assistant.Classify(r.Context(), prompt)
	if err != nil {
		s.logger.Error("classification failed", "error", err)
		s.writeError(w, http.StatusBadGateway, "classification failed")
		return
	}
	respondJSON(w, http.StatusOK, ClassifyResponse{Intent: cls.Intent, Entities: cls.Entities})
}

func (s *Server) decodePrompt(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req AskRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.config.MaxPromptBytes))
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return "", false
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		s.writeError(w, http.StatusBadRequest, "prompt is required")
		return "", false
	}
	return prompt, true
}

// handleListPlugins handles GET /plugins in load order.
func (s *Server) handleListPlugins(w http.ResponseWriter, r *http.Request) {
	all := s.registry.All()
	resp := PluginListResponse{
		Plugins: make([]PluginSummary, 0, len(all)),
		Intents: s.registry.Intents(),
	}
	for _, d := range all {
		resp.Plugins = append(resp.Plugins, summarize(d))
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleGetPlugin handles GET /plugins/{plugin}.
func (s *Server) handleGetPlugin(w http.ResponseWriter, r *http.Request) {
	d, ok := s.registry.Get(chi.URLParam(r, "plugin"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "plugin not found")
		return
	}
	respondJSON(w, http.StatusOK, summarize(d))
}

func summarize(d *plugin.Descriptor) PluginSummary {
	return PluginSummary{
		Name:            d.Name,
		Kind:            string(d.Kind),
		Priority:        d.Priority,
		AcceptedIntents: d.AcceptedIntents,
		Version:         d.Version,
		Description:     d.Description,
		LoadOrder:       d.LoadOrder(),
	}
}

// handleListHistory handles GET /history?limit=N.
func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, "history is disabled")
		return
	}

	limit := history.DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	turns, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to read history", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read history")
		return
	}
	respondJSON(w, http.StatusOK, HistoryResponse{Turns: turns})
}

// handleGetTurn handles GET /history/{turnID}.
func (s *Server) handleGetTurn(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, "history is disabled")
		return
	}
	turn, err := s.history.Get(r.Context(), chi.URLParam(r, "turnID"))
	if errors.Is(err, history.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "turn not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to read turn", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read turn")
		return
	}
	respondJSON(w, http.StatusOK, turn)
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
