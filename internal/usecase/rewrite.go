package usecase

import (
	"github.com/google/uuid"

	"github.com/TranslatorSRI/cqs/internal/scoring"
	"github.com/TranslatorSRI/cqs/internal/template"
	"github.com/TranslatorSRI/cqs/pkg/trapi"
)

// Biolink vocabulary stamped onto synthesized edges.
const (
	PredicateTreats     = "biolink:treats"
	attrSupportGraphs   = "biolink:support_graphs"
	attrAgentType       = "biolink:agent_type"
	attrKnowledgeLevel  = "biolink:knowledge_level"
	agentComputational  = "computational_model"
	knowledgePrediction = "prediction"

	// CQSInfores identifies this service in provenance and analyses.
	CQSInfores = "infores:cqs"

	scoringMethod = "weighted average of log_odds_ratio"
)

// QueryShape carries the caller's query-graph keys the rewriter re-keys
// bindings to: the subject (drug) and object (disease) node ids and the one
// inferred edge id.
type QueryShape struct {
	EdgeID    string
	SubjectID string
	ObjectID  string
	Curies    []string
}

// Rewrite post-processes one template's upstream response in place:
// constraint filtering, binding re-keying to the caller's query graph,
// auxiliary-graph and aggregate-edge synthesis, scoring, and ordering.
func Rewrite(t *template.Template, constraint *trapi.AttributeConstraint, shape QueryShape, msg *trapi.Message) {
	if msg.KnowledgeGraph == nil {
		msg.KnowledgeGraph = trapi.NewKnowledgeGraph()
	}
	kg := msg.KnowledgeGraph

	if constraint != nil {
		dropped := EdgesToDrop(*constraint, kg.Edges)
		for id := range dropped {
			delete(kg.Edges, id)
		}
		msg.Results = dropResultsReferencing(msg.Results, dropped)
	}

	if msg.AuxiliaryGraphs == nil {
		msg.AuxiliaryGraphs = map[string]trapi.AuxGraph{}
	}

	rewritten := make([]trapi.Result, 0, len(msg.Results))
	for _, r := range msg.Results {
		if out, ok := rewriteResult(t, shape, kg, msg.AuxiliaryGraphs, r); ok {
			rewritten = append(rewritten, out)
		}
	}
	msg.Results = rewritten

	for i := range msg.Results {
		for j := range msg.Results[i].Analyses {
			msg.Results[i].Analyses[j].ResourceID = CQSInfores
		}
	}
	trapi.RankResults(msg)
	if t.CQS.ResultsLimit != nil {
		trapi.TruncateResults(msg, *t.CQS.ResultsLimit)
	}
}

// dropResultsReferencing removes results whose any analysis binds a dropped
// edge; other results are untouched.
func dropResultsReferencing(results []trapi.Result, dropped map[string]struct{}) []trapi.Result {
	if len(dropped) == 0 {
		return results
	}
	kept := make([]trapi.Result, 0, len(results))
	for _, r := range results {
		refs := false
		for _, a := range r.Analyses {
			for _, bindings := range a.EdgeBindings {
				for _, b := range bindings {
					if _, gone := dropped[b.ID]; gone {
						refs = true
					}
				}
			}
		}
		if !refs {
			kept = append(kept, r)
		}
	}
	return kept
}

// rewriteResult re-keys one result's node bindings, folds each analysis's
// edges into an auxiliary graph, and replaces all edge bindings with a single
// binding to a freshly synthesized aggregate edge.
func rewriteResult(t *template.Template, shape QueryShape, kg *trapi.KnowledgeGraph, aux map[string]trapi.AuxGraph, r trapi.Result) (trapi.Result, bool) {
	drugBindings := r.NodeBindings[t.DrugNodeID]
	diseaseBindings := r.NodeBindings[t.DiseaseNodeID]
	if len(drugBindings) == 0 || len(diseaseBindings) == 0 {
		return trapi.Result{}, false
	}
	// bindings under template-internal keys other than the two roles are
	// discarded
	r.NodeBindings = map[string][]trapi.NodeBinding{
		shape.SubjectID: drugBindings,
		shape.ObjectID:  diseaseBindings,
	}

	var supportGraphIDs []string
	type scoredAnalysis struct {
		analysis trapi.Analysis
		edges    []string
	}
	kept := make([]scoredAnalysis, 0, len(r.Analyses))
	for _, a := range r.Analyses {
		if len(a.EdgeBindings) == 0 {
			continue
		}
		empty := false
		var edges []string
		for _, bindings := range a.EdgeBindings {
			if len(bindings) == 0 {
				empty = true
				break
			}
			for _, b := range bindings {
				if _, ok := kg.Edges[b.ID]; ok {
					edges = append(edges, b.ID)
				}
			}
		}
		if empty || len(edges) == 0 {
			continue
		}
		auxID := uuid.NewString()
		aux[auxID] = trapi.AuxGraph{Edges: edges}
		supportGraphIDs = append(supportGraphIDs, auxID)
		kept = append(kept, scoredAnalysis{analysis: a, edges: edges})
	}
	if len(kept) == 0 {
		return trapi.Result{}, false
	}

	newEdge := synthesizeEdge(t, kg, drugBindings[0].ID, diseaseBindings[0].ID, supportGraphIDs)
	newEdgeID := uuid.NewString()
	kg.Edges[newEdgeID] = newEdge

	analyses := make([]trapi.Analysis, 0, len(kept))
	for _, sa := range kept {
		a := sa.analysis
		score := t.Score(scoring.ObservationsForEdges(kg, sa.edges))
		method := scoringMethod
		a.Score = &score
		a.ScoringMethod = &method
		a.EdgeBindings = map[string][]trapi.EdgeBinding{
			shape.EdgeID: {{ID: newEdgeID, Attributes: []trapi.Attribute{}}},
		}
		analyses = append(analyses, a)
	}
	r.Analyses = analyses
	return r, true
}

// synthesizeEdge mints the aggregate treats edge: template-configured
// provenance, the three CQS attributes, and any attributes copied from an
// existing edge between the same endpoints when attribute_type_ids is set.
func synthesizeEdge(t *template.Template, kg *trapi.KnowledgeGraph, subject, object string, supportGraphIDs []string) trapi.Edge {
	src := CQSInfores
	e := trapi.Edge{
		Subject:   subject,
		Predicate: PredicateTreats,
		Object:    object,
		Sources:   t.CQS.EdgeSources,
		Attributes: []trapi.Attribute{
			{AttributeTypeID: attrSupportGraphs, Value: supportGraphIDs},
			{AttributeTypeID: attrAgentType, Value: agentComputational, AttributeSource: &src},
			{AttributeTypeID: attrKnowledgeLevel, Value: knowledgePrediction, AttributeSource: &src},
		},
	}
	if len(t.CQS.AttributeTypeIDs) > 0 {
		wanted := map[string]struct{}{}
		for _, id := range t.CQS.AttributeTypeIDs {
			wanted[id] = struct{}{}
		}
		for _, existing := range kg.Edges {
			if existing.Subject != subject || existing.Object != object {
				continue
			}
			for _, a := range existing.Attributes {
				if _, ok := wanted[a.AttributeTypeID]; ok {
					e.Attributes = append(e.Attributes, a)
				}
			}
			break
		}
	}
	return e
}
