package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/TranslatorSRI/cqs/internal/config"
	"github.com/TranslatorSRI/cqs/internal/domain"
	"github.com/TranslatorSRI/cqs/internal/usecase"
	"github.com/TranslatorSRI/cqs/pkg/trapi"
)

// AppVersion is reported by /version; overridden at build time via ldflags.
var AppVersion = "0.4.0"

// Server aggregates handler dependencies.
type Server struct {
	Cfg     config.Config
	Query   usecase.QueryService
	Jobs    domain.JobRepository
	DBCheck func(ctx context.Context) error
}

// NewServer constructs an HTTP server with all handlers wired.
func NewServer(cfg config.Config, query usecase.QueryService, jobs domain.JobRepository, dbCheck func(context.Context) error) *Server {
	return &Server{Cfg: cfg, Query: query, Jobs: jobs, DBCheck: dbCheck}
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// QueryHandler runs the synchronous pipeline. A query whose shape is not the
// inferred-treats one-hop is not an error: the request comes back unchanged
// with no results added.
func (s *Server) QueryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var q trapi.Query
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		out := s.Query.Run(r.Context(), q)
		writeJSON(w, http.StatusOK, out.Response)
	}
}

type asyncQueryAccepted struct {
	JobID       string `json:"job_id"`
	Status      string `json:"status"`
	Description string `json:"description,omitempty"`
}

// AsyncQueryHandler persists the request as a Queued job for the background
// processor and acknowledges immediately. Shape-unhandled queries are also
// accepted; the worker answers them with an empty-success callback.
func (s *Server) AsyncQueryHandler() http.HandlerFunc {
	type callbackOnly struct {
		Callback string `validate:"required,url"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var aq trapi.AsyncQuery
		if err := json.NewDecoder(r.Body).Decode(&aq); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		if err := getValidator().Struct(callbackOnly{Callback: aq.Callback}); err != nil {
			writeError(w, r, fmt.Errorf("%w: callback must be a valid URL", domain.ErrInvalidArgument), map[string]string{"field": "callback"})
			return
		}
		payload, err := json.Marshal(aq)
		if err != nil {
			writeError(w, r, fmt.Errorf("op=asyncquery: %w", err), nil)
			return
		}
		id, err := s.Jobs.Insert(r.Context(), domain.NewJob{Query: payload})
		if err != nil {
			writeError(w, r, fmt.Errorf("op=asyncquery: %w", err), nil)
			return
		}
		LoggerFrom(r).Info("async job accepted", "job_id", id)
		writeJSON(w, http.StatusOK, asyncQueryAccepted{
			JobID:       strconv.FormatInt(id, 10),
			Status:      "Queued",
			Description: fmt.Sprintf("Query queued; poll /asyncquery_status/%d", id),
		})
	}
}

type asyncStatusReply struct {
	Status      string           `json:"status"`
	Description string           `json:"description"`
	Logs        []trapi.LogEntry `json:"logs"`
	ResponseURL *string          `json:"response_url,omitempty"`
}

var statusLabels = map[domain.JobStatus]string{
	domain.JobQueued:    "Queued",
	domain.JobRunning:   "Running",
	domain.JobCompleted: "Completed",
	domain.JobFailed:    "Failed",
}

var statusDescriptions = map[domain.JobStatus]string{
	domain.JobQueued:    "Query is queued and will run shortly.",
	domain.JobRunning:   "Query is running.",
	domain.JobCompleted: "Query finished; the response is available at response_url.",
	domain.JobFailed:    "Query failed.",
}

// AsyncQueryStatusHandler reports job progress; unknown ids are 400 per the
// public contract.
func (s *Server) AsyncQueryStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: job id must be an integer", domain.ErrInvalidArgument), nil)
			return
		}
		j, err := s.Jobs.FindByID(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		reply := asyncStatusReply{
			Status:      statusLabels[j.Status],
			Description: statusDescriptions[j.Status],
			Logs:        []trapi.LogEntry{},
		}
		if j.Status == domain.JobCompleted {
			u := fmt.Sprintf("%s/download/%d", s.Cfg.ResponseURL, j.ID)
			reply.ResponseURL = &u
		}
		writeJSON(w, http.StatusOK, reply)
	}
}

// DownloadHandler streams the stored TRAPI response for a completed job.
func (s *Server) DownloadHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: job id must be an integer", domain.ErrInvalidArgument), nil)
			return
		}
		j, err := s.Jobs.FindByID(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		if len(j.Response) == 0 {
			writeError(w, r, fmt.Errorf("%w: job %d has no stored response", domain.ErrInvalidArgument, id), nil)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(j.Response)
	}
}

type versionReply struct {
	AppVersion   string `json:"app_version"`
	TRAPIVersion string `json:"trapi_version"`
	Maturity     string `json:"maturity"`
	Location     string `json:"location"`
}

// VersionHandler reports the deployed build and schema versions.
func (s *Server) VersionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, versionReply{
			AppVersion:   AppVersion,
			TRAPIVersion: s.Cfg.TRAPIVersion,
			Maturity:     s.Cfg.Maturity,
			Location:     s.Cfg.Location,
		})
	}
}

// ReadyzHandler probes the database.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		checks := make([]check, 0, 1)
		ok := true
		if s.DBCheck != nil {
			if err := s.DBCheck(r.Context()); err != nil {
				checks = append(checks, check{Name: "db", OK: false, Details: err.Error()})
				ok = false
			} else {
				checks = append(checks, check{Name: "db", OK: true})
			}
		}
		st := http.StatusOK
		if !ok {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}
