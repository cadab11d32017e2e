// Package workflowrunner implements the HTTP client for the external
// workflow runner that executes rendered template queries.
package workflowrunner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/TranslatorSRI/cqs/pkg/trapi"
)

const (
	// maxAttempts bounds transport/decode retries per call.
	maxAttempts = 3
	// callTimeout is the overall per-call ceiling.
	callTimeout = 900 * time.Second
	// maxRedirects bounds redirect chains.
	maxRedirects = 5
)

// Client POSTs rendered queries to the workflow runner. One shared instance
// serves all requests; the underlying http.Client is safe for concurrent use.
type Client struct {
	baseURL string
	hc      *http.Client
	// sleep is swapped out by tests to avoid real backoff waits.
	sleep func(time.Duration)
}

// New constructs a client for the given workflow-runner base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		hc: &http.Client{
			Timeout: callTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		sleep: time.Sleep,
	}
}

// PostQuery POSTs a rendered query to ${base}/query and parses the TRAPI
// response. Transport and decode failures are retried with a widening pause
// (attempt * 30s); after all attempts it returns (nil, nil) so the branch
// contributes nothing without failing the outer pipeline.
func (c *Client) PostQuery(ctx context.Context, q trapi.Query) (*trapi.Response, error) {
	body, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("op=wfr.post_query: marshal: %w", err)
	}
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := c.once(ctx, body)
		if err == nil {
			return resp, nil
		}
		slog.Warn("workflow runner call failed",
			slog.Int("attempt", attempt),
			slog.String("url", c.baseURL),
			slog.Any("error", err))
		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
			c.sleep(time.Duration(attempt) * 15 * 2 * time.Second)
		}
	}
	return nil, nil
}

func (c *Client) once(ctx context.Context, body []byte) (*trapi.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/query", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(snippet))
	}
	var out trapi.Response
	// parse failure is an upstream failure for retry purposes
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &out, nil
}
