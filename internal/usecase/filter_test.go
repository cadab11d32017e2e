package usecase_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/TranslatorSRI/cqs/internal/usecase"
	"github.com/TranslatorSRI/cqs/pkg/trapi"
)

func edgeWithAttr(typeID string, value any) trapi.Edge {
	return trapi.Edge{
		Subject:    "CHEBI:1",
		Predicate:  "biolink:associated_with",
		Object:     "MONDO:1",
		Attributes: []trapi.Attribute{{AttributeTypeID: typeID, Value: value}},
	}
}

func TestEdgesToDrop_Operators(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		constraint trapi.AttributeConstraint
		value      any
		dropped    bool
	}{
		{
			name:       "greater than passes",
			constraint: trapi.AttributeConstraint{ID: "biolink:p_value", Operator: ">", Value: 0.01},
			value:      0.05,
			dropped:    false,
		},
		{
			name:       "greater than fails",
			constraint: trapi.AttributeConstraint{ID: "biolink:p_value", Operator: ">", Value: 0.01},
			value:      0.001,
			dropped:    true,
		},
		{
			name:       "less than passes",
			constraint: trapi.AttributeConstraint{ID: "biolink:p_value", Operator: "<", Value: 0.05},
			value:      0.01,
			dropped:    false,
		},
		{
			name:       "less than fails",
			constraint: trapi.AttributeConstraint{ID: "biolink:p_value", Operator: "<", Value: 0.05},
			value:      0.5,
			dropped:    true,
		},
		{
			name:       "numeric string coerces for comparison",
			constraint: trapi.AttributeConstraint{ID: "biolink:p_value", Operator: "<", Value: 0.05},
			value:      "0.01",
			dropped:    false,
		},
		{
			name:       "loose equality numeric",
			constraint: trapi.AttributeConstraint{ID: "biolink:evidence_count", Operator: "==", Value: float64(3)},
			value:      float64(3),
			dropped:    false,
		},
		{
			name:       "loose equality string vs number coerces",
			constraint: trapi.AttributeConstraint{ID: "biolink:evidence_count", Operator: "==", Value: float64(3)},
			value:      "3",
			dropped:    false,
		},
		{
			name:       "loose equality arrays intersect",
			constraint: trapi.AttributeConstraint{ID: "biolink:publications", Operator: "==", Value: []any{"PMID:1", "PMID:2"}},
			value:      []any{"PMID:2", "PMID:9"},
			dropped:    false,
		},
		{
			name:       "loose equality arrays disjoint",
			constraint: trapi.AttributeConstraint{ID: "biolink:publications", Operator: "==", Value: []any{"PMID:1"}},
			value:      []any{"PMID:9"},
			dropped:    true,
		},
		{
			name:       "loose equality scalar against array intersects",
			constraint: trapi.AttributeConstraint{ID: "biolink:publications", Operator: "==", Value: "PMID:1"},
			value:      []any{"PMID:1", "PMID:2"},
			dropped:    false,
		},
		{
			name:       "strict equality identical arrays",
			constraint: trapi.AttributeConstraint{ID: "biolink:publications", Operator: "===", Value: []any{"PMID:1", "PMID:2"}},
			value:      []any{"PMID:1", "PMID:2"},
			dropped:    false,
		},
		{
			name:       "strict equality overlapping arrays fail",
			constraint: trapi.AttributeConstraint{ID: "biolink:publications", Operator: "===", Value: []any{"PMID:1", "PMID:2"}},
			value:      []any{"PMID:1"},
			dropped:    true,
		},
		{
			name:       "strict equality string vs number fails",
			constraint: trapi.AttributeConstraint{ID: "biolink:evidence_count", Operator: "===", Value: float64(3)},
			value:      "3",
			dropped:    true,
		},
		{
			name:       "matches regex",
			constraint: trapi.AttributeConstraint{ID: "biolink:primary_knowledge_source", Operator: "matches", Value: "^infores:"},
			value:      "infores:cohd",
			dropped:    false,
		},
		{
			name:       "matches regex fails",
			constraint: trapi.AttributeConstraint{ID: "biolink:primary_knowledge_source", Operator: "matches", Value: "^infores:"},
			value:      "cohd",
			dropped:    true,
		},
		{
			name:       "invalid regex keeps the edge",
			constraint: trapi.AttributeConstraint{ID: "biolink:primary_knowledge_source", Operator: "matches", Value: "("},
			value:      "infores:cohd",
			dropped:    false,
		},
		{
			name:       "unknown operator keeps the edge",
			constraint: trapi.AttributeConstraint{ID: "biolink:p_value", Operator: ">=", Value: 0.01},
			value:      0.5,
			dropped:    false,
		},
		{
			name:       "uncoercible operand keeps the edge",
			constraint: trapi.AttributeConstraint{ID: "biolink:p_value", Operator: ">", Value: 0.01},
			value:      map[string]any{"nested": true},
			dropped:    false,
		},
		{
			name:       "not inverts a passing comparison",
			constraint: trapi.AttributeConstraint{ID: "biolink:p_value", Operator: "<", Value: 0.05, Not: true},
			value:      0.01,
			dropped:    true,
		},
		{
			name:       "not inverts a failing comparison",
			constraint: trapi.AttributeConstraint{ID: "biolink:p_value", Operator: "<", Value: 0.05, Not: true},
			value:      0.5,
			dropped:    false,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			edges := map[string]trapi.Edge{"e1": edgeWithAttr(tc.constraint.ID, tc.value)}
			drop := usecase.EdgesToDrop(tc.constraint, edges)
			_, dropped := drop["e1"]
			assert.Equal(t, tc.dropped, dropped)
		})
	}
}

func TestEdgesToDrop_AbsentAttributeKeepsEdge(t *testing.T) {
	t.Parallel()
	c := trapi.AttributeConstraint{ID: "biolink:p_value", Operator: "<", Value: 0.05}
	edges := map[string]trapi.Edge{
		"with":    edgeWithAttr("biolink:p_value", 0.5),
		"without": edgeWithAttr("biolink:evidence_count", 3),
	}
	drop := usecase.EdgesToDrop(c, edges)
	assert.Contains(t, drop, "with")
	assert.NotContains(t, drop, "without")
}

func TestEdgesToDrop_NotDoesNotDropAbsentAttribute(t *testing.T) {
	t.Parallel()
	// not-inversion only applies once the attribute evaluated; absence is
	// still "keep"
	c := trapi.AttributeConstraint{ID: "biolink:p_value", Operator: "<", Value: 0.05, Not: true}
	edges := map[string]trapi.Edge{"e1": edgeWithAttr("biolink:other", 1)}
	assert.Empty(t, usecase.EdgesToDrop(c, edges))
}
