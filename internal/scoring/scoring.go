// Package scoring computes the composite score attached to analyses: a
// sample-size-weighted mean of log-odds-ratio observations squashed into
// (-1, 1) by arctan.
package scoring

import (
	"encoding/json"
	"math"

	"github.com/TranslatorSRI/cqs/pkg/trapi"
)

// Defaults substituted when an edge carries no usable study data. The key set
// of the observation map must cover every scored pair, so even an edge with
// neither attribute form emits one defaulted observation.
const (
	DefaultLogOddsRatio    = 0.01
	DefaultTotalSampleSize = 0
)

// Observation is one (log-odds-ratio, sample-size) data point harvested from
// a knowledge-graph edge.
type Observation struct {
	ResourceID      string
	EdgeID          string
	LogOddsRatio    float64
	TotalSampleSize int64
}

// Func maps a bag of observations to a composite score.
type Func func([]Observation) float64

// Composite computes sum(w_i * OR_i) / sum(w_i) with w_i = N_i / sum(N_j),
// then bounds it to (-1, 1) via arctan(s)*2/pi. All sample sizes zero yields
// 0/0; the NaN is replaced with 0.01 before the arctan step, never after.
func Composite(obs []Observation) float64 {
	var sumN int64
	for _, o := range obs {
		sumN += o.TotalSampleSize
	}
	var sumWeights, numerator float64
	for _, o := range obs {
		w := float64(o.TotalSampleSize) / float64(sumN)
		sumWeights += w
		numerator += w * o.LogOddsRatio
	}
	s := numerator / sumWeights
	if math.IsNaN(s) {
		s = DefaultLogOddsRatio
	}
	return math.Atan(s) * 2.0 / math.Pi
}

// Attribute ids and original names carrying study data.
const (
	attrSupportingStudyResult = "biolink:has_supporting_study_result"
	attrLogOddsRatio          = "biolink:log_odds_ratio"
	attrTotalSampleSize       = "biolink:total_sample_size"
	originalLogOddsRatio      = "log_odds_ratio"
	originalTotalSampleSize   = "total_sample_size"
)

// ObservationsFromEdge extracts observations from one knowledge-graph edge.
// Two shapes are recognized: a nested biolink:has_supporting_study_result
// attribute whose sub-attributes carry the values, and flat attributes keyed
// by original name (the ICEES form, where the sample size arrives as a float
// and is truncated). Missing values default so the edge always contributes
// at least one observation.
func ObservationsFromEdge(edgeID string, e trapi.Edge) []Observation {
	resource := primaryResource(e)
	var out []Observation
	for _, a := range e.Attributes {
		if a.AttributeTypeID != attrSupportingStudyResult {
			continue
		}
		o := Observation{ResourceID: resource, EdgeID: edgeID, LogOddsRatio: DefaultLogOddsRatio, TotalSampleSize: DefaultTotalSampleSize}
		for _, sub := range a.Attributes {
			switch sub.AttributeTypeID {
			case attrLogOddsRatio:
				if v, ok := asFloat(sub.Value); ok {
					o.LogOddsRatio = v
				}
			case attrTotalSampleSize:
				if v, ok := asFloat(sub.Value); ok {
					o.TotalSampleSize = int64(v)
				}
			}
		}
		out = append(out, o)
	}
	if len(out) > 0 {
		return out
	}

	o := Observation{ResourceID: resource, EdgeID: edgeID, LogOddsRatio: DefaultLogOddsRatio, TotalSampleSize: DefaultTotalSampleSize}
	for _, a := range e.Attributes {
		if a.OriginalAttributeName == nil {
			continue
		}
		switch *a.OriginalAttributeName {
		case originalLogOddsRatio:
			if v, ok := asFloat(a.Value); ok {
				o.LogOddsRatio = v
			}
		case originalTotalSampleSize:
			// historical ICEES quirk: value is a float, truncate it
			if v, ok := asFloat(a.Value); ok {
				o.TotalSampleSize = int64(v)
			}
		}
	}
	return []Observation{o}
}

// ObservationsForEdges flattens observations over a set of edge ids.
func ObservationsForEdges(kg *trapi.KnowledgeGraph, edgeIDs []string) []Observation {
	var out []Observation
	for _, id := range edgeIDs {
		e, ok := kg.Edges[id]
		if !ok {
			continue
		}
		out = append(out, ObservationsFromEdge(id, e)...)
	}
	return out
}

func primaryResource(e trapi.Edge) string {
	for _, s := range e.Sources {
		if s.ResourceRole == trapi.ResourceRolePrimary {
			return s.ResourceID
		}
	}
	if len(e.Sources) > 0 {
		return e.Sources[0].ResourceID
	}
	return ""
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
