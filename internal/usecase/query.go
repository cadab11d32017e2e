package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/TranslatorSRI/cqs/internal/config"
	"github.com/TranslatorSRI/cqs/internal/domain"
	"github.com/TranslatorSRI/cqs/internal/observability"
	"github.com/TranslatorSRI/cqs/internal/template"
	"github.com/TranslatorSRI/cqs/pkg/trapi"
)

// StatusSuccess is stamped on every response the orchestrator emits.
const StatusSuccess = "Success"

// QueryService owns the synchronous pipeline: shape detection, template
// fan-out, rewrite, merge, rank. The async processor drives the same service.
type QueryService struct {
	Cfg       config.Config
	Registry  *template.Registry
	Runner    domain.WorkflowRunner
	Snapshots *SnapshotWriter
}

// NewQueryService constructs a QueryService with its dependencies.
func NewQueryService(cfg config.Config, reg *template.Registry, runner domain.WorkflowRunner, snaps *SnapshotWriter) QueryService {
	return QueryService{Cfg: cfg, Registry: reg, Runner: runner, Snapshots: snaps}
}

// Outcome reports what the pipeline did with a request.
type Outcome struct {
	Response *trapi.Response
	// Handled is false when the query graph is not the one-hop inferred
	// treats shape this service answers.
	Handled bool
	// Contributed counts templates whose response merged into the result.
	Contributed int
}

// DetectShape looks for the one supported query shape: exactly one edge whose
// predicates contain biolink:treats with knowledge_type inferred, whose
// object node carries the curie list to expand over.
func DetectShape(qg *trapi.QueryGraph) (QueryShape, bool) {
	if qg == nil {
		return QueryShape{}, false
	}
	for edgeID, e := range qg.Edges {
		if e.KnowledgeType == nil || *e.KnowledgeType != trapi.KnowledgeTypeInferred {
			continue
		}
		treats := false
		for _, p := range e.Predicates {
			if p == PredicateTreats {
				treats = true
				break
			}
		}
		if !treats {
			continue
		}
		node, ok := qg.Nodes[e.Object]
		if !ok || node.IDs == nil {
			continue
		}
		return QueryShape{EdgeID: edgeID, SubjectID: e.Subject, ObjectID: e.Object, Curies: node.IDs}, true
	}
	return QueryShape{}, false
}

// Run executes the pipeline for one request. Branches that fail are logged
// and skipped; Run itself never fails.
func (s QueryService) Run(ctx context.Context, q trapi.Query) Outcome {
	tracer := otel.Tracer("usecase.query")
	ctx, span := tracer.Start(ctx, "QueryService.Run")
	defer span.End()

	shape, ok := DetectShape(q.Message.QueryGraph)
	if !ok {
		slog.Debug("query graph is not an inferred-treats one-hop; nothing to expand")
		return Outcome{Response: s.wrap(q, q.Message), Handled: false}
	}
	span.SetAttributes(
		attribute.Int("cqs.curies", len(shape.Curies)),
		attribute.Int("cqs.templates", s.Registry.Len()),
	)

	messages := s.fanOut(ctx, shape)

	merged := q.Message
	trapi.MergeAll(&merged, messages)
	trapi.RankResults(&merged)

	return Outcome{Response: s.wrap(q, merged), Handled: true, Contributed: len(messages)}
}

// fanOut renders and dispatches every registered template concurrently and
// collects rewritten messages in completion order. Merge order is not
// user-visible; the final ordering is by score.
func (s QueryService) fanOut(ctx context.Context, shape QueryShape) []trapi.Message {
	results := make(chan trapi.Message, s.Registry.Len())
	var wg sync.WaitGroup
	for _, t := range s.Registry.Templates() {
		wg.Add(1)
		go func(t *template.Template) {
			defer wg.Done()
			if msg, ok := s.runBranch(ctx, t, shape); ok {
				results <- msg
			}
		}(t)
	}
	wg.Wait()
	close(results)

	var out []trapi.Message
	for msg := range results {
		out = append(out, msg)
	}
	return out
}

func (s QueryService) runBranch(ctx context.Context, t *template.Template, shape QueryShape) (trapi.Message, bool) {
	tracer := otel.Tracer("usecase.query")
	ctx, span := tracer.Start(ctx, "QueryService.runBranch")
	span.SetAttributes(attribute.String("cqs.template", t.Name))
	defer span.End()

	rendered, err := t.Render(shape.Curies)
	if err != nil {
		// registry validated templates at startup; render failures here are a bug
		slog.Error("template render failed", slog.String("template", t.Name), slog.Any("error", err))
		observability.TemplateRequestsTotal.WithLabelValues(t.Name, "render_error").Inc()
		return trapi.Message{}, false
	}

	start := time.Now()
	resp, err := s.Runner.PostQuery(ctx, rendered.Query)
	observability.TemplateRequestDuration.WithLabelValues(t.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		slog.Warn("template branch failed", slog.String("template", t.Name), slog.Any("error", err))
		observability.TemplateRequestsTotal.WithLabelValues(t.Name, "error").Inc()
		return trapi.Message{}, false
	}
	if resp == nil {
		observability.TemplateRequestsTotal.WithLabelValues(t.Name, "exhausted").Inc()
		return trapi.Message{}, false
	}

	s.Snapshots.Write(t.Name, "pre-rewrite", resp)
	Rewrite(t, rendered.Constraint, shape, &resp.Message)
	s.Snapshots.Write(t.Name, "post-rewrite", resp)

	observability.TemplateRequestsTotal.WithLabelValues(t.Name, "ok").Inc()
	slog.Info("template branch merged",
		slog.String("template", t.Name),
		slog.Int("results", len(resp.Message.Results)))
	return resp.Message, true
}

// wrap builds the outgoing Response envelope around a message, carrying the
// request's workflow and stamping the configured schema versions.
func (s QueryService) wrap(q trapi.Query, msg trapi.Message) *trapi.Response {
	status := StatusSuccess
	if msg.Results == nil {
		msg.Results = []trapi.Result{}
	}
	return &trapi.Response{
		Message:        msg,
		Status:         &status,
		Workflow:       q.Workflow,
		BiolinkVersion: &s.Cfg.BiolinkVersion,
		SchemaVersion:  &s.Cfg.TRAPIVersion,
	}
}

// EmptyResponse synthesizes the empty-success response used when the query
// shape is not handled: original query graph, empty knowledge graph, no
// results.
func (s QueryService) EmptyResponse(q trapi.Query) *trapi.Response {
	msg := trapi.Message{
		QueryGraph:     q.Message.QueryGraph,
		KnowledgeGraph: trapi.NewKnowledgeGraph(),
		Results:        []trapi.Result{},
	}
	return s.wrap(q, msg)
}
