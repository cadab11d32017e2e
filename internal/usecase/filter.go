// Package usecase contains the query-processing pipeline: attribute-constraint
// filtering, result rewriting, and the orchestrator that fans a request out
// over the template whitelist.
package usecase

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	"github.com/TranslatorSRI/cqs/pkg/trapi"
)

// EdgesToDrop evaluates an attribute constraint over a knowledge-graph edge
// set and returns the ids of edges that fail it. An edge without the
// constrained attribute is never dropped, and evaluation anomalies (types
// that will not coerce, bad regexes, unknown operators) keep the edge.
func EdgesToDrop(c trapi.AttributeConstraint, edges map[string]trapi.Edge) map[string]struct{} {
	drop := map[string]struct{}{}
	for id, e := range edges {
		attr, ok := findAttribute(e, c.ID)
		if !ok {
			continue
		}
		keep, evaluated := evaluate(c, attr.Value)
		if !evaluated {
			continue
		}
		if c.Not {
			keep = !keep
		}
		if !keep {
			drop[id] = struct{}{}
		}
	}
	return drop
}

func findAttribute(e trapi.Edge, typeID string) (trapi.Attribute, bool) {
	for _, a := range e.Attributes {
		if a.AttributeTypeID == typeID {
			return a, true
		}
	}
	return trapi.Attribute{}, false
}

// evaluate returns (keep, evaluated); evaluated is false when the operator is
// unsupported or the operands will not coerce.
func evaluate(c trapi.AttributeConstraint, edgeValue any) (bool, bool) {
	switch c.Operator {
	case ">":
		ev, ok1 := coerceFloat(edgeValue)
		cv, ok2 := coerceFloat(c.Value)
		if !ok1 || !ok2 {
			return false, false
		}
		return ev > cv, true
	case "<":
		ev, ok1 := coerceFloat(edgeValue)
		cv, ok2 := coerceFloat(c.Value)
		if !ok1 || !ok2 {
			return false, false
		}
		return ev < cv, true
	case "==":
		return looseEqual(edgeValue, c.Value), true
	case "===":
		return strictEqual(edgeValue, c.Value), true
	case "matches":
		pattern, ok := c.Value.(string)
		if !ok {
			return false, false
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, false
		}
		s, ok := coerceString(edgeValue)
		if !ok {
			return false, false
		}
		return re.MatchString(s), true
	default:
		return false, false
	}
}

// looseEqual: arrays keep the edge when the two arrays share at least one
// element; scalars compare numerically when both sides coerce, by string
// otherwise.
func looseEqual(edgeValue, constraintValue any) bool {
	ea, eIsArr := asArray(edgeValue)
	ca, cIsArr := asArray(constraintValue)
	if eIsArr || cIsArr {
		if !eIsArr {
			ea = []any{edgeValue}
		}
		if !cIsArr {
			ca = []any{constraintValue}
		}
		set := map[string]struct{}{}
		for _, v := range ca {
			set[canonical(v)] = struct{}{}
		}
		for _, v := range ea {
			if _, ok := set[canonical(v)]; ok {
				return true
			}
		}
		return false
	}
	if ev, ok1 := coerceFloat(edgeValue); ok1 {
		if cv, ok2 := coerceFloat(constraintValue); ok2 {
			return ev == cv
		}
	}
	return canonical(edgeValue) == canonical(constraintValue)
}

// strictEqual: structurally identical, including full array equality.
func strictEqual(a, b any) bool {
	return canonical(a) == canonical(b)
}

func asArray(v any) ([]any, bool) {
	arr, ok := v.([]any)
	return arr, ok
}

// canonical renders a JSON-typed value into a comparable string form.
func canonical(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func coerceFloat(v any) (float64, bool) {
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
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func coerceString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), true
	case bool:
		return strconv.FormatBool(x), true
	default:
		return "", false
	}
}
