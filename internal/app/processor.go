package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/TranslatorSRI/cqs/internal/config"
	"github.com/TranslatorSRI/cqs/internal/domain"
	"github.com/TranslatorSRI/cqs/internal/observability"
	"github.com/TranslatorSRI/cqs/internal/usecase"
	"github.com/TranslatorSRI/cqs/pkg/trapi"
)

// Processor drives async jobs to completion and reaps old ones. Both loops
// run as gocron jobs in singleton mode, so a slow tick reschedules instead of
// overlapping itself; that is what makes the Queued->Running claim safe.
type Processor struct {
	Cfg      config.Config
	Jobs     domain.JobRepository
	Query    usecase.QueryService
	Callback domain.CallbackSender
	Clock    func() time.Time
}

// NewProcessor constructs a Processor using the wall clock.
func NewProcessor(cfg config.Config, jobs domain.JobRepository, query usecase.QueryService, cb domain.CallbackSender) *Processor {
	return &Processor{Cfg: cfg, Jobs: jobs, Query: query, Callback: cb, Clock: time.Now}
}

// StartScheduler registers the worker and reaper loops and starts them.
// The returned scheduler should be shut down alongside the HTTP server.
func (p *Processor) StartScheduler() (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("op=processor.scheduler: %w", err)
	}

	now := p.Clock()
	_, err = sched.NewJob(
		gocron.DurationJob(p.Cfg.WorkerInterval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), p.Cfg.WorkerTickTimeout)
			defer cancel()
			p.WorkerTick(ctx)
		}),
		gocron.WithStartAt(gocron.WithStartDateTime(now.Add(p.Cfg.WorkerStartDelay))),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("job-worker"),
	)
	if err != nil {
		return nil, fmt.Errorf("op=processor.worker_job: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(p.Cfg.ReaperInterval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), p.Cfg.ReaperTickTimeout)
			defer cancel()
			p.ReaperTick(ctx)
		}),
		gocron.WithStartAt(gocron.WithStartDateTime(now.Add(p.Cfg.ReaperStartDelay))),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("job-reaper"),
	)
	if err != nil {
		return nil, fmt.Errorf("op=processor.reaper_job: %w", err)
	}

	sched.Start()
	return sched, nil
}

// WorkerTick drains the queue sequentially, oldest submission first.
func (p *Processor) WorkerTick(ctx context.Context) {
	jobs, err := p.Jobs.FindUndone(ctx)
	if err != nil {
		slog.Error("worker: list queued jobs failed", slog.Any("error", err))
		return
	}
	for _, j := range jobs {
		if ctx.Err() != nil {
			return
		}
		p.processJob(ctx, j)
	}
}

// processJob runs one job through the pipeline: Running, then Completed with
// a stored response, or Failed when the submitted bytes cannot be processed
// or no template branch returned anything. A failed callback delivery never
// reverts the job's status.
func (p *Processor) processJob(ctx context.Context, j domain.Job) {
	started := p.Clock().UTC()
	j.Status = domain.JobRunning
	j.DateStarted = &started
	if err := p.Jobs.Update(ctx, j); err != nil {
		slog.Error("worker: mark running failed", slog.Int64("job_id", j.ID), slog.Any("error", err))
		return
	}

	var aq trapi.AsyncQuery
	if err := json.Unmarshal(j.Query, &aq); err != nil {
		slog.Warn("worker: stored query is not valid json", slog.Int64("job_id", j.ID), slog.Any("error", err))
		p.finish(ctx, j, domain.JobFailed, nil)
		return
	}

	q := aq.Query()
	out := p.Query.Run(ctx, q)
	resp := out.Response
	status := domain.JobCompleted
	switch {
	case !out.Handled:
		// shape this service does not answer: complete with an empty success
		// so the stored response still downloads cleanly
		resp = p.Query.EmptyResponse(q)
	case out.Contributed == 0:
		// handled, but every template branch came back empty; the job is
		// Failed while the caller still receives the empty response
		status = domain.JobFailed
	}

	body, err := json.Marshal(resp)
	if err != nil {
		slog.Error("worker: marshal response failed", slog.Int64("job_id", j.ID), slog.Any("error", err))
		p.finish(ctx, j, domain.JobFailed, nil)
		return
	}
	p.finish(ctx, j, status, body)

	if err := p.Callback.Send(ctx, aq.Callback, resp); err != nil {
		slog.Warn("worker: callback delivery failed", slog.Int64("job_id", j.ID), slog.String("url", aq.Callback), slog.Any("error", err))
	}
}

func (p *Processor) finish(ctx context.Context, j domain.Job, status domain.JobStatus, response []byte) {
	finished := p.Clock().UTC()
	j.Status = status
	j.DateFinished = &finished
	j.Response = response
	if err := p.Jobs.Update(ctx, j); err != nil {
		slog.Error("worker: persist final state failed", slog.Int64("job_id", j.ID), slog.Any("error", err))
		return
	}
	observability.JobsProcessedTotal.WithLabelValues(string(status)).Inc()
	slog.Info("worker: job finished", slog.Int64("job_id", j.ID), slog.String("status", string(status)))
}

// ReaperTick deletes jobs older than the configured max age, whatever their
// status; completed responses are only retained for that window.
func (p *Processor) ReaperTick(ctx context.Context) {
	jobs, err := p.Jobs.FindAll(ctx)
	if err != nil {
		slog.Error("reaper: list jobs failed", slog.Any("error", err))
		return
	}
	cutoff := p.Clock().Add(-p.Cfg.JobMaxAge)
	var old []int64
	for _, j := range jobs {
		if j.DateSubmitted.Before(cutoff) {
			old = append(old, j.ID)
		}
	}
	if len(old) == 0 {
		return
	}
	if err := p.Jobs.DeleteMany(ctx, old); err != nil {
		slog.Error("reaper: delete failed", slog.Any("error", err))
		return
	}
	observability.JobsReapedTotal.Add(float64(len(old)))
	slog.Info("reaper: deleted expired jobs", slog.Int("count", len(old)))
}
