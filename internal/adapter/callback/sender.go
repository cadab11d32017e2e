// Package callback delivers finished async responses to caller-supplied URLs.
package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/TranslatorSRI/cqs/internal/observability"
	"github.com/TranslatorSRI/cqs/pkg/trapi"
)

const (
	requestTimeout = 10 * time.Second
	retryGap       = 10 * time.Second
	// one retry after the first attempt, never more; a failed delivery does
	// not revert the job's status
	maxRetries = 1
)

// Sender POSTs TRAPI responses to callback URLs with the fixed two-attempt
// delivery policy.
type Sender struct {
	hc *http.Client
	bo func() backoff.BackOff
}

// New constructs a Sender with the 10s per-request timeout.
func New() *Sender {
	return &Sender{
		hc: &http.Client{Timeout: requestTimeout},
		bo: func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewConstantBackOff(retryGap), maxRetries)
		},
	}
}

// Send delivers resp to url, retrying exactly once after a fixed gap.
func (s *Sender) Send(ctx context.Context, url string, resp *trapi.Response) error {
	body, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("op=callback.send: marshal: %w", err)
	}
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		res, err := s.hc.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = res.Body.Close() }()
		if res.StatusCode < 200 || res.StatusCode >= 300 {
			return fmt.Errorf("callback status %d", res.StatusCode)
		}
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(s.bo(), ctx)); err != nil {
		observability.CallbackDeliveriesTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("op=callback.send url=%s: %w", url, err)
	}
	observability.CallbackDeliveriesTotal.WithLabelValues("delivered").Inc()
	return nil
}
