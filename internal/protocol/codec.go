package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrMalformedResponse is returned when plugin output does not satisfy the
// response contract.
var ErrMalformedResponse = errors.New("malformed plugin response")

// EncodeRequest serializes a Request to JSON and writes it to w.
func EncodeRequest(w io.Writer, req *Request) error {
	if req.Protocol != Version {
		return fmt.Errorf("unsupported protocol version: %d", req.Protocol)
	}

	if err := json.NewEncoder(w).Encode(req); err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	return nil
}

// DecodeRequest reads a Request from r. Used by plugins written in Go.
func DecodeRequest(r io.Reader) (*Request, error) {
	var req Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, fmt.Errorf("failed to decode request: %w", err)
	}
	if req.Protocol != Version {
		return nil, fmt.Errorf("unsupported protocol version: %d", req.Protocol)
	}
	return &req, nil
}

// EncodeResponse serializes a Response.
func EncodeResponse(resp *Response) ([]byte, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to encode response: %w", err)
	}
	return data, nil
}

// DecodeResponse parses and validates raw plugin output. Any violation of the
// contract (not a JSON object, missing "response", wrong field types) is
// reported as ErrMalformedResponse.
func DecodeResponse(data []byte) (*Response, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: plugin produced no output", ErrMalformedResponse)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: output is not a JSON object: %v", ErrMalformedResponse, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: output is null", ErrMalformedResponse)
	}

	var resp Response
	if raw, ok := fields["error"]; ok {
		if err := decodeString(raw, &resp.Error); err != nil {
			return nil, fmt.Errorf("%w: field error: %v", ErrMalformedResponse, err)
		}
	}
	if raw, ok := fields["logs"]; ok {
		if err := json.Unmarshal(raw, &resp.Logs); err != nil {
			return nil, fmt.Errorf("%w: field logs: %v", ErrMalformedResponse, err)
		}
	}

	raw, ok := fields["response"]
	if !ok {
		if resp.Failed() {
			return &resp, nil
		}
		return nil, fmt.Errorf("%w: missing required field: response", ErrMalformedResponse)
	}
	if err := decodeString(raw, &resp.Response); err != nil {
		return nil, fmt.Errorf("%w: field response: %v", ErrMalformedResponse, err)
	}

	return &resp, nil
}

// decodeString rejects null and non-string JSON values.
func decodeString(raw json.RawMessage, dst *string) error {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return errors.New("must be a string, got null")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return errors.New("must be a string")
	}
	return nil
}
