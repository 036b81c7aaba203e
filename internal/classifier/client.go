// Package classifier talks to the inference server that hosts the intent and
// entity model.
package classifier

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

	"github.com/mattjoyce/aurras/internal/nlu"
)

const (
	classifyPath   = "/v1/classify"
	detokenizePath = "/v1/detokenize"

	// maxResponseBytes caps how much of a server reply is read.
	maxResponseBytes = 8 << 20
)

// ErrNotConfigured is returned when no endpoint has been set.
var ErrNotConfigured = errors.New("model server endpoint is not configured")

// StatusError is a non-2xx reply from the model server.
type StatusError struct {
	Path string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("model server %s status=%d body=%s", e.Path, e.Code, e.Body)
}

// Client is an nlu.Model backed by the model server's HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

var _ nlu.Model = (*Client)(nil)

// NewClient creates a client for baseURL. A non-positive timeout falls back
// to 30s.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether the client has an endpoint.
func (c *Client) Enabled() bool {
	return c != nil && c.baseURL != ""
}

type classifyRequest struct {
	Text   string `json:"text"`
	MaxLen int    `json:"max_len"`
}

type detokenizeRequest struct {
	IDs []int `json:"ids"`
}

type detokenizeResponse struct {
	Text string `json:"text"`
}

// Infer tokenizes text into a window of maxLen tokens and returns the raw
// per-token and per-intent scores.
func (c *Client) Infer(ctx context.Context, text string, maxLen int) (*nlu.Output, error) {
	var out nlu.Output
	if err := c.post(ctx, classifyPath, classifyRequest{Text: text, MaxLen: maxLen}, &out); err != nil {
		return nil, err
	}
	if len(out.InputIDs) != len(out.EntityScores) {
		return nil, fmt.Errorf("%w: %d input ids, %d entity score vectors",
			nlu.ErrShapeMismatch, len(out.InputIDs), len(out.EntityScores))
	}
	return &out, nil
}

// Detokenize maps token ids back to surface text.
func (c *Client) Detokenize(ctx context.Context, ids []int) (string, error) {
	var out detokenizeResponse
	if err := c.post(ctx, detokenizePath, detokenizeRequest{IDs: ids}, &out); err != nil {
		return "", err
	}
	return out.Text, nil
}

// Health probes the server root. Any 2xx reply counts as healthy.
func (c *Client) Health(ctx context.Context) error {
	if !c.Enabled() {
		return ErrNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("model server unreachable: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	if resp.StatusCode >= 300 {
		return &StatusError{Path: "/healthz", Code: resp.StatusCode}
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	if !c.Enabled() {
		return ErrNotConfigured
	}
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", path, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("model server %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode >= 300 {
		return &StatusError{Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
