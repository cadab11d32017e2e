package usecase_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TranslatorSRI/cqs/internal/config"
	"github.com/TranslatorSRI/cqs/internal/template"
	"github.com/TranslatorSRI/cqs/internal/usecase"
	"github.com/TranslatorSRI/cqs/pkg/trapi"
)

type fakeRunner struct {
	resp  *trapi.Response
	err   error
	calls int
	seen  []trapi.Query
}

func (f *fakeRunner) PostQuery(_ context.Context, q trapi.Query) (*trapi.Response, error) {
	f.calls++
	f.seen = append(f.seen, q)
	return f.resp, f.err
}

func strp(s string) *string { return &s }

func inferredTreatsQuery() trapi.Query {
	return trapi.Query{
		Message: trapi.Message{
			QueryGraph: &trapi.QueryGraph{
				Nodes: map[string]trapi.QNode{
					"sn": {Categories: []string{"biolink:ChemicalEntity"}},
					"on": {IDs: []string{"MONDO:1"}, Categories: []string{"biolink:Disease"}},
				},
				Edges: map[string]trapi.QEdge{
					"t_edge": {
						Subject:       "sn",
						Object:        "on",
						Predicates:    []string{"biolink:treats"},
						KnowledgeType: strp(trapi.KnowledgeTypeInferred),
					},
				},
			},
		},
	}
}

func TestDetectShape(t *testing.T) {
	t.Parallel()

	t.Run("recognized", func(t *testing.T) {
		t.Parallel()
		q := inferredTreatsQuery()
		s, ok := usecase.DetectShape(q.Message.QueryGraph)
		require.True(t, ok)
		assert.Equal(t, "t_edge", s.EdgeID)
		assert.Equal(t, "sn", s.SubjectID)
		assert.Equal(t, "on", s.ObjectID)
		assert.Equal(t, []string{"MONDO:1"}, s.Curies)
	})

	t.Run("nil query graph", func(t *testing.T) {
		t.Parallel()
		_, ok := usecase.DetectShape(nil)
		assert.False(t, ok)
	})

	t.Run("lookup edge is not handled", func(t *testing.T) {
		t.Parallel()
		q := inferredTreatsQuery()
		e := q.Message.QueryGraph.Edges["t_edge"]
		e.KnowledgeType = strp(trapi.KnowledgeTypeLookup)
		q.Message.QueryGraph.Edges["t_edge"] = e
		_, ok := usecase.DetectShape(q.Message.QueryGraph)
		assert.False(t, ok)
	})

	t.Run("wrong predicate is not handled", func(t *testing.T) {
		t.Parallel()
		q := inferredTreatsQuery()
		e := q.Message.QueryGraph.Edges["t_edge"]
		e.Predicates = []string{"biolink:affects"}
		q.Message.QueryGraph.Edges["t_edge"] = e
		_, ok := usecase.DetectShape(q.Message.QueryGraph)
		assert.False(t, ok)
	})

	t.Run("object without ids is not handled", func(t *testing.T) {
		t.Parallel()
		q := inferredTreatsQuery()
		n := q.Message.QueryGraph.Nodes["on"]
		n.IDs = nil
		q.Message.QueryGraph.Nodes["on"] = n
		_, ok := usecase.DetectShape(q.Message.QueryGraph)
		assert.False(t, ok)
	})
}

func testConfig() config.Config {
	return config.Config{BiolinkVersion: "4.2.1", TRAPIVersion: "1.5.0"}
}

func TestRun_UnhandledShapePassesThrough(t *testing.T) {
	t.Parallel()
	q := trapi.Query{Message: trapi.Message{QueryGraph: &trapi.QueryGraph{
		Nodes: map[string]trapi.QNode{"a": {}},
		Edges: map[string]trapi.QEdge{},
	}}}
	svc := usecase.NewQueryService(testConfig(), template.LoadFrom(), &fakeRunner{}, nil)

	out := svc.Run(context.Background(), q)

	assert.False(t, out.Handled)
	require.NotNil(t, out.Response)
	assert.Equal(t, q.Message.QueryGraph, out.Response.Message.QueryGraph)
	require.NotNil(t, out.Response.Message.Results)
	assert.Empty(t, out.Response.Message.Results)
	require.NotNil(t, out.Response.Status)
	assert.Equal(t, usecase.StatusSuccess, *out.Response.Status)
	assert.Equal(t, "4.2.1", *out.Response.BiolinkVersion)
	assert.Equal(t, "1.5.0", *out.Response.SchemaVersion)
}

func TestRun_MergesTemplateResponses(t *testing.T) {
	t.Parallel()
	tpl := mustTemplate(t, rewriteTemplate)
	runner := &fakeRunner{resp: &trapi.Response{Message: *upstreamMessage()}}
	svc := usecase.NewQueryService(testConfig(), template.LoadFrom(tpl), runner, nil)

	out := svc.Run(context.Background(), inferredTreatsQuery())

	assert.True(t, out.Handled)
	assert.Equal(t, 1, out.Contributed)
	assert.Equal(t, 1, runner.calls)

	msg := out.Response.Message
	require.Len(t, msg.Results, 1)
	assert.Contains(t, msg.Results[0].NodeBindings, "sn")
	assert.Contains(t, msg.Results[0].NodeBindings, "on")
	require.NotEmpty(t, msg.Results[0].Analyses)
	assert.Equal(t, "infores:cqs", msg.Results[0].Analyses[0].ResourceID)
	assert.NotNil(t, msg.Results[0].Analyses[0].Score)

	// the rendered query carried the caller's curies into the template's
	// disease node
	sent := runner.seen[0]
	assert.Equal(t, []string{"MONDO:1"}, sent.Message.QueryGraph.Nodes["n1"].IDs)
}

func TestRun_FailedBranchYieldsEmptySuccess(t *testing.T) {
	t.Parallel()
	tpl := mustTemplate(t, rewriteTemplate)
	runner := &fakeRunner{err: errors.New("boom")}
	svc := usecase.NewQueryService(testConfig(), template.LoadFrom(tpl), runner, nil)

	out := svc.Run(context.Background(), inferredTreatsQuery())

	assert.True(t, out.Handled)
	assert.Equal(t, 0, out.Contributed)
	require.NotNil(t, out.Response.Message.Results)
	assert.Empty(t, out.Response.Message.Results)
	require.NotNil(t, out.Response.Message.KnowledgeGraph)
}

func TestRun_ExhaustedBranchYieldsEmptySuccess(t *testing.T) {
	t.Parallel()
	tpl := mustTemplate(t, rewriteTemplate)
	// nil response with nil error models retries running out
	runner := &fakeRunner{}
	svc := usecase.NewQueryService(testConfig(), template.LoadFrom(tpl), runner, nil)

	out := svc.Run(context.Background(), inferredTreatsQuery())

	assert.True(t, out.Handled)
	assert.Equal(t, 0, out.Contributed)
	assert.Empty(t, out.Response.Message.Results)
}

func TestRun_NoTemplatesStillSucceeds(t *testing.T) {
	t.Parallel()
	svc := usecase.NewQueryService(testConfig(), template.LoadFrom(), &fakeRunner{}, nil)

	out := svc.Run(context.Background(), inferredTreatsQuery())

	assert.True(t, out.Handled)
	assert.Equal(t, 0, out.Contributed)
	require.NotNil(t, out.Response.Message.Results)
	assert.Empty(t, out.Response.Message.Results)
}

func TestEmptyResponse(t *testing.T) {
	t.Parallel()
	svc := usecase.NewQueryService(testConfig(), template.LoadFrom(), &fakeRunner{}, nil)
	q := inferredTreatsQuery()

	resp := svc.EmptyResponse(q)

	assert.Equal(t, q.Message.QueryGraph, resp.Message.QueryGraph)
	require.NotNil(t, resp.Message.KnowledgeGraph)
	assert.Empty(t, resp.Message.KnowledgeGraph.Edges)
	require.NotNil(t, resp.Message.Results)
	assert.Empty(t, resp.Message.Results)
	assert.Equal(t, usecase.StatusSuccess, *resp.Status)
}

func TestSnapshotWriter(t *testing.T) {
	t.Parallel()

	t.Run("nil writer is a no-op", func(t *testing.T) {
		t.Parallel()
		w := usecase.NewSnapshotWriter("")
		require.Nil(t, w)
		w.Write("t1", "pre-rewrite", map[string]string{"k": "v"})
	})

	t.Run("writes one file per call", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		w := usecase.NewSnapshotWriter(dir)
		require.NotNil(t, w)
		w.Write("t1", "pre-rewrite", map[string]string{"k": "v"})

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Contains(t, entries[0].Name(), "t1-pre-rewrite-")
	})
}
