package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mattjoyce/aurras/internal/plugin"
	"github.com/mattjoyce/aurras/internal/protocol"
)

const (
	DefaultGeminiModel  = "gemini-2.5-flash"
	DefaultGeminiAPIURL = "https://generativelanguage.googleapis.com/v1beta"
)

// ErrNoCandidates is returned when the API answers without any text.
var ErrNoCandidates = errors.New("gemini: response has no candidates")

// Gemini forwards the raw prompt to the Generative Language API and returns
// the generated text.
type Gemini struct {
	apiKey     string
	apiURL     string
	model      string
	httpClient *http.Client
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// NewGemini builds the handler. Config keys: api_key (required), model,
// endpoint and timeout. A nil client gets one with the configured timeout.
func NewGemini(cfg map[string]any, client *http.Client) (plugin.Handler, error) {
	g := &Gemini{httpClient: client}

	var err error
	if g.apiKey, err = stringOpt(cfg, "api_key", ""); err != nil {
		return nil, err
	}
	if g.apiKey == "" {
		return nil, fmt.Errorf("config api_key is required")
	}
	if g.model, err = stringOpt(cfg, "model", DefaultGeminiModel); err != nil {
		return nil, err
	}
	if g.apiURL, err = stringOpt(cfg, "endpoint", DefaultGeminiAPIURL); err != nil {
		return nil, err
	}
	g.apiURL = strings.TrimRight(g.apiURL, "/")

	timeout, err := durationOpt(cfg, "timeout", 30*time.Second)
	if err != nil {
		return nil, err
	}
	if g.httpClient == nil {
		g.httpClient = &http.Client{Timeout: timeout}
	}

	return plugin.Text(g.generate), nil
}

func (g *Gemini) generate(ctx context.Context, req *protocol.Request) (string, error) {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: req.Prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("gemini: failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.apiURL, g.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("gemini: failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("gemini: failed to call API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("gemini: API error %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var result geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("gemini: failed to decode response: %w", err)
	}
	if len(result.Candidates) == 0 {
		return "", ErrNoCandidates
	}

	var sb strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return strings.TrimSpace(sb.String()), nil
}
