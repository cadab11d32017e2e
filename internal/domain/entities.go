// Package domain declares the core entities, error taxonomy, and ports the
// adapters implement.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/TranslatorSRI/cqs/pkg/trapi"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrUpstream        = errors.New("upstream failure")
	ErrInternal        = errors.New("internal error")
)

// JobStatus is persisted as a fixed lowercase string.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Job is one asynchronous query. Query holds the submitted AsyncQuery bytes;
// Response is set once the pipeline has produced one.
// Invariants: a Queued job has no Response; a Completed job has one.
type Job struct {
	ID            int64
	Status        JobStatus
	DateSubmitted time.Time
	DateStarted   *time.Time
	DateFinished  *time.Time
	Query         []byte
	Response      []byte
}

// NewJob is the insert shape; everything else is defaulted by the store.
type NewJob struct {
	Query []byte
}

// JobRepository is the typed CRUD surface over the jobs table.
type JobRepository interface {
	Insert(ctx context.Context, nj NewJob) (int64, error)
	FindByID(ctx context.Context, id int64) (Job, error)
	// FindUndone returns Queued jobs ordered by submission time ascending.
	FindUndone(ctx context.Context) ([]Job, error)
	FindAll(ctx context.Context) ([]Job, error)
	Update(ctx context.Context, j Job) error
	Delete(ctx context.Context, id int64) error
	DeleteMany(ctx context.Context, ids []int64) error
	// RequeueOrphans resets Running jobs back to Queued after a restart.
	RequeueOrphans(ctx context.Context) (int64, error)
}

// WorkflowRunner executes a rendered template query against the downstream
// federation. A nil response with nil error means retries were exhausted;
// the branch contributes nothing.
type WorkflowRunner interface {
	PostQuery(ctx context.Context, q trapi.Query) (*trapi.Response, error)
}

// CallbackSender delivers a finished response to the caller-supplied URL.
type CallbackSender interface {
	Send(ctx context.Context, url string, resp *trapi.Response) error
}
