package callback

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TranslatorSRI/cqs/pkg/trapi"
)

func testSender() *Sender {
	s := New()
	// no gap between attempts in tests, same attempt budget
	s.bo = func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, maxRetries)
	}
	return s
}

func successResponse() *trapi.Response {
	status := "Success"
	return &trapi.Response{
		Message: trapi.Message{Results: []trapi.Result{}},
		Status:  &status,
	}
}

func TestSend_DeliversResponseBody(t *testing.T) {
	t.Parallel()
	var got trapi.Response
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := testSender().Send(context.Background(), srv.URL, successResponse())
	require.NoError(t, err)
	require.NotNil(t, got.Status)
	assert.Equal(t, "Success", *got.Status)
}

func TestSend_RetriesOnceThenSucceeds(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := testSender().Send(context.Background(), srv.URL, successResponse())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSend_GivesUpAfterTwoAttempts(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := testSender().Send(context.Background(), srv.URL, successResponse())
	assert.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSend_BadURLIsPermanent(t *testing.T) {
	t.Parallel()
	err := testSender().Send(context.Background(), "http://[::1]:namedport", successResponse())
	assert.Error(t, err)
}
