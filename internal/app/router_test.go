package app_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TranslatorSRI/cqs/internal/adapter/httpserver"
	"github.com/TranslatorSRI/cqs/internal/app"
	"github.com/TranslatorSRI/cqs/internal/config"
	"github.com/TranslatorSRI/cqs/internal/template"
	"github.com/TranslatorSRI/cqs/internal/usecase"
)

func TestParseOrigins(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want []string
	}{
		{"", []string{"*"}},
		{"*", []string{"*"}},
		{"https://a.example.org", []string{"https://a.example.org"}},
		{"https://a.example.org, https://b.example.org", []string{"https://a.example.org", "https://b.example.org"}},
		{" , ", []string{"*"}},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, app.ParseOrigins(tc.in), tc.in)
	}
}

func TestBuildRouter_ServesHealthAndVersion(t *testing.T) {
	t.Parallel()
	cfg := config.Config{
		CORSAllowOrigins: "*",
		RateLimitPerMin:  100,
		TRAPIVersion:     "1.5.0",
		Maturity:         "development",
	}
	query := usecase.NewQueryService(cfg, template.LoadFrom(), stubRunner{}, nil)
	srv := httpserver.NewServer(cfg, query, newMemJobs(), nil)
	h := app.BuildRouter(cfg, srv)

	t.Run("healthz", func(t *testing.T) {
		rw := httptest.NewRecorder()
		h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rw.Code)
	})

	t.Run("version", func(t *testing.T) {
		rw := httptest.NewRecorder()
		h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/version", nil))
		require.Equal(t, http.StatusOK, rw.Code)
		assert.Contains(t, rw.Body.String(), "1.5.0")
	})

	t.Run("metrics", func(t *testing.T) {
		rw := httptest.NewRecorder()
		h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, rw.Code)
	})

	t.Run("security headers applied", func(t *testing.T) {
		rw := httptest.NewRecorder()
		h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, "nosniff", rw.Header().Get("X-Content-Type-Options"))
	})
}
