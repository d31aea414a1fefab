package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"switchyard/internal/api"
)

const maxErrorBody = 512

// JSONTransport posts the request as a JSON document to the worker and decodes a
// JSON response. Content is passed through without interpretation.
type JSONTransport struct {
	Client *http.Client
}

// NewJSONTransport creates a JSONTransport. Timeouts come from the caller's context.
func NewJSONTransport() *JSONTransport {
	return &JSONTransport{Client: &http.Client{}}
}

// Send implements Transport.
func (t *JSONTransport) Send(ctx context.Context, desc api.ServerDescriptor, req api.Request) (*api.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, WorkerURL(desc), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if req.ID != "" {
		httpReq.Header.Set("X-Request-ID", req.ID)
	}

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("worker returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out api.Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if out.IsError || out.Error != "" {
		out.IsError = true
		msg := out.Error
		if msg == "" {
			msg = "worker reported an error"
		}
		return &out, errors.New(msg)
	}
	return &out, nil
}
