// Package testutil holds helpers for the integration suite: containers, an
// API client and OpenAPI response validation.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"
)

// Client sends JSON requests to the API under test. When a validator is
// attached, every response is checked against the OpenAPI document.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	validator *OpenAPIValidator
	t         *testing.T
}

// NewClient returns a client that does no response validation.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// WithValidation returns a copy of c that reports OpenAPI mismatches to t.
func (c *Client) WithValidation(t *testing.T, v *OpenAPIValidator) *Client {
	clone := *c
	clone.validator = v
	clone.t = t
	return &clone
}

// SetT redirects validation failures to t, typically a subtest.
func (c *Client) SetT(t *testing.T) {
	c.t = t
}

// GET performs a GET request.
func (c *Client) GET(path string) (*http.Response, error) {
	return c.send(http.MethodGet, path, nil)
}

// POST performs a POST request with body encoded as JSON.
func (c *Client) POST(path string, body any) (*http.Response, error) {
	return c.send(http.MethodPost, path, body)
}

// DELETE performs a DELETE request.
func (c *Client) DELETE(path string) (*http.Response, error) {
	return c.send(http.MethodDelete, path, nil)
}

func (c *Client) send(method, path string, body any) (*http.Response, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
	}

	req, err := http.NewRequest(method, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}

	if c.validator != nil && c.t != nil {
		// The original body was consumed by the transport.
		req.Body = io.NopCloser(bytes.NewReader(payload))
		c.validator.ValidateResponse(c.t, req, resp)
	}

	return resp, nil
}

// DecodeJSON decodes the response body into v and closes it.
func DecodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// DecodeData unwraps the {"data": ...} envelope of a success response.
func DecodeData[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var envelope struct {
		Data T `json:"data"`
	}
	DecodeJSON(t, resp, &envelope)
	return envelope.Data
}

// ReadBody returns the response body as a string and closes it.
func ReadBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}
