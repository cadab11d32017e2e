package workflowrunner

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TranslatorSRI/cqs/pkg/trapi"
)

func testClient(baseURL string, slept *[]time.Duration) *Client {
	c := New(baseURL)
	c.sleep = func(d time.Duration) {
		if slept != nil {
			*slept = append(*slept, d)
		}
	}
	return c
}

func emptyQuery() trapi.Query {
	return trapi.Query{Message: trapi.Message{QueryGraph: &trapi.QueryGraph{
		Nodes: map[string]trapi.QNode{},
		Edges: map[string]trapi.QEdge{},
	}}}
}

func TestPostQuery_FirstAttemptSucceeds(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/query", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":{"results":[]},"status":"Success"}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL, nil)
	resp, err := c.PostQuery(context.Background(), emptyQuery())
	require.NoError(t, err)
	require.NotNil(t, resp)
	require.NotNil(t, resp.Status)
	assert.Equal(t, "Success", *resp.Status)
}

func TestPostQuery_RetriesThenSucceeds(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"message":{}}`))
	}))
	defer srv.Close()

	var slept []time.Duration
	c := testClient(srv.URL, &slept)
	resp, err := c.PostQuery(context.Background(), emptyQuery())
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, int32(3), calls.Load())
	// pause widens with the attempt number
	require.Len(t, slept, 2)
	assert.Equal(t, 30*time.Second, slept[0])
	assert.Equal(t, 60*time.Second, slept[1])
}

func TestPostQuery_ExhaustedReturnsNilNil(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := testClient(srv.URL, nil)
	resp, err := c.PostQuery(context.Background(), emptyQuery())
	assert.NoError(t, err)
	assert.Nil(t, resp)
	assert.Equal(t, int32(3), calls.Load())
}

func TestPostQuery_MalformedBodyIsRetried(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 2 {
			_, _ = w.Write([]byte(`{"message":`))
			return
		}
		_, _ = w.Write([]byte(`{"message":{}}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL, nil)
	resp, err := c.PostQuery(context.Background(), emptyQuery())
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, int32(2), calls.Load())
}

func TestPostQuery_CancelledContextStopsRetrying(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := New(srv.URL)
	c.sleep = func(time.Duration) {}
	cancel()

	resp, err := c.PostQuery(ctx, emptyQuery())
	assert.Nil(t, resp)
	assert.Error(t, err)
}
