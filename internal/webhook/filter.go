package webhook

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/stayops/ota-bridge/internal/model"
)

// Filter operators.  The set is closed; endpoint admin validation
// rejects anything else at configuration time.
const (
	OpEquals      = "equals"
	OpNotEquals   = "not_equals"
	OpContains    = "contains"
	OpNotContains = "not_contains"
	OpGreaterThan = "greater_than"
	OpLessThan    = "less_than"
	OpIn          = "in"
	OpNotIn       = "not_in"
)

// KnownOperator reports whether op is a recognised filter operator.
func KnownOperator(op string) bool {
	switch op {
	case OpEquals, OpNotEquals, OpContains, OpNotContains,
		OpGreaterThan, OpLessThan, OpIn, OpNotIn:
		return true
	}
	return false
}

// MatchesFilter evaluates an endpoint filter against an event body.
// A disabled filter matches everything.  When enabled, every condition
// must pass; a condition whose field path is absent from the body
// always fails.
func MatchesFilter(filter model.EndpointFilter, body map[string]interface{}) bool {
	if !filter.Enabled {
		return true
	}
	for _, cond := range filter.Conditions {
		if !matchCondition(cond, body) {
			return false
		}
	}
	return true
}

func matchCondition(cond model.FilterCondition, body map[string]interface{}) bool {
	actual, ok := lookupPath(body, cond.Field)
	if !ok {
		return false
	}
	switch cond.Operator {
	case OpEquals:
		return stringify(actual) == stringify(cond.Value)
	case OpNotEquals:
		return stringify(actual) != stringify(cond.Value)
	case OpContains:
		return strings.Contains(stringify(actual), stringify(cond.Value))
	case OpNotContains:
		return !strings.Contains(stringify(actual), stringify(cond.Value))
	case OpGreaterThan:
		a, aok := toNumber(actual)
		b, bok := toNumber(cond.Value)
		return aok && bok && a > b
	case OpLessThan:
		a, aok := toNumber(actual)
		b, bok := toNumber(cond.Value)
		return aok && bok && a < b
	case OpIn:
		return inList(actual, cond.Value)
	case OpNotIn:
		return !inList(actual, cond.Value)
	}
	return false
}

// lookupPath resolves a dotted field path against nested JSON maps.
// It returns false when any segment is missing or a non-map value is
// traversed before the path is exhausted.
func lookupPath(body map[string]interface{}, path string) (interface{}, bool) {
	segments := strings.Split(path, ".")
	var current interface{} = body
	for _, seg := range segments {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func inList(actual, listValue interface{}) bool {
	list, ok := listValue.([]interface{})
	if !ok {
		return false
	}
	want := stringify(actual)
	for _, item := range list {
		if stringify(item) == want {
			return true
		}
	}
	return false
}

// stringify renders a JSON value the same way regardless of its
// decoded Go type, so "42" and float64(42) compare equal.
func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func toNumber(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		n, err := strconv.ParseFloat(t, 64)
		return n, err == nil
	}
	return 0, false
}
