package trapi

import (
	"math"
	"sort"
)

// AnalysisScore returns the analysis score, or NaN when unset.
func AnalysisScore(a Analysis) float64 {
	if a.Score == nil {
		return math.NaN()
	}
	return *a.Score
}

// TopScore returns the maximum analysis score on a result, NaN when the
// result has no scored analysis.
func TopScore(r Result) float64 {
	top := math.NaN()
	for _, a := range r.Analyses {
		s := AnalysisScore(a)
		if math.IsNaN(s) {
			continue
		}
		if math.IsNaN(top) || s > top {
			top = s
		}
	}
	return top
}

// scoreLess orders descending with NaN last.
func scoreLess(a, b float64) bool {
	switch {
	case math.IsNaN(a):
		return false
	case math.IsNaN(b):
		return true
	default:
		return a > b
	}
}

// SortAnalyses orders a result's analyses by score descending, NaN last.
func SortAnalyses(r *Result) {
	sort.SliceStable(r.Analyses, func(i, j int) bool {
		return scoreLess(AnalysisScore(r.Analyses[i]), AnalysisScore(r.Analyses[j]))
	})
}

// RankResults sorts analyses within each result and results by top-analysis
// score, both descending with NaN last. Idempotent.
func RankResults(m *Message) {
	for i := range m.Results {
		SortAnalyses(&m.Results[i])
	}
	sort.SliceStable(m.Results, func(i, j int) bool {
		return scoreLess(TopScore(m.Results[i]), TopScore(m.Results[j]))
	})
}

// TruncateResults keeps at most limit results; limit <= 0 means unlimited.
func TruncateResults(m *Message, limit int) {
	if limit > 0 && len(m.Results) > limit {
		m.Results = m.Results[:limit]
	}
}
