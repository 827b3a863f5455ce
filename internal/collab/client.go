// Package collab holds the HTTP adapters for the external collaborators the
// pipeline calls: speech-to-text, translation, similarity search, entity
// tagging, document rendering, and the two delivery channels. All adapters
// share one JSON client that maps HTTP outcomes onto the fault taxonomy, so
// the orchestrator's retry policy sees a uniform error surface.
package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"nivaran/pkg/platform/fault"
	"nivaran/pkg/platform/sentinel"
)

// Client is the shared JSON-over-HTTP transport for collaborator calls.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient substitutes the underlying transport, used by tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        50,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// postJSON sends req to path and decodes the response into out. The returned
// error carries a fault kind; callers never re-classify.
func (c *Client) postJSON(ctx context.Context, path string, req, out any) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fault.Permanent(fmt.Errorf("encode request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fault.Permanent(fmt.Errorf("build request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		// Network and timeout errors are worth another attempt.
		return fault.Transient(fmt.Errorf("call %s: %w", path, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fault.Transient(fmt.Errorf("read %s response: %w", path, err))
	}

	if err := classifyStatus(path, resp.StatusCode, body); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fault.Permanent(fmt.Errorf("decode %s response: %w", path, err))
	}
	return nil
}

// classifyStatus maps an HTTP status onto the fault taxonomy. Rate limits and
// server errors retry; domain rejections do not.
func classifyStatus(path string, status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return fault.Transient(fmt.Errorf("%s: rate limited: %s", path, errDetail(body)))
	case status >= 500:
		return fault.Transient(fmt.Errorf("%s: upstream %d: %s", path, status, errDetail(body)))
	case status == http.StatusUnsupportedMediaType || status == http.StatusUnprocessableEntity:
		return fault.Permanent(fmt.Errorf("%s: %w: %s", path, sentinel.ErrUnsupported, errDetail(body)))
	case status == http.StatusNotFound:
		return fault.Permanent(fmt.Errorf("%s: %w", path, sentinel.ErrNotFound))
	default:
		return fault.Permanent(fmt.Errorf("%s: rejected with %d: %s", path, status, errDetail(body)))
	}
}

func errDetail(body []byte) string {
	var e struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &e) == nil {
		if e.Error != "" {
			return e.Error
		}
		if e.Message != "" {
			return e.Message
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
