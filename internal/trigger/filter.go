package trigger

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/hookrelay/hookrelay/pkg/types"
)

// Matches reports whether an event satisfies a trigger filter. Pure
// predicate: no side effects, never panics. An empty Source or EventType on
// the filter matches any value; conditions are ANDed and the first failing
// check short-circuits.
func Matches(event types.StoredEvent, filter types.TriggerFilter) bool {
	if filter.Source != "" && filter.Source != event.Source {
		return false
	}
	if filter.EventType != "" && filter.EventType != event.EventType {
		return false
	}
	for _, condition := range filter.Conditions {
		if !evalCondition(event.Data, condition) {
			return false
		}
	}
	return true
}

func evalCondition(data map[string]interface{}, condition types.FilterCondition) bool {
	value, present := types.LookupPath(data, condition.Field)

	switch condition.Operator {
	case types.OpExists:
		return present && value != nil

	case types.OpNotExists:
		return !present || value == nil

	case types.OpEquals:
		if !present {
			return false
		}
		return stringifyForEquals(value) == condition.Value

	case types.OpContains:
		str, isString := value.(string)
		return present && isString && strings.Contains(str, condition.Value)

	case types.OpMatches:
		str, isString := value.(string)
		if !present || !isString {
			return false
		}
		// An invalid pattern is a non-match, never an error.
		re, err := regexp.Compile(condition.Value)
		if err != nil {
			return false
		}
		return re.MatchString(str)

	default:
		// Unknown operators never match.
		return false
	}
}

// stringifyForEquals renders a payload value the way the equals operator
// compares it: scalars via their canonical string form, composites as
// compact JSON.
func stringifyForEquals(value interface{}) string {
	switch value.(type) {
	case nil, string, bool, float64:
		return types.FormatScalar(value)
	default:
		encoded, err := json.Marshal(value)
		if err != nil {
			return ""
		}
		return string(encoded)
	}
}
