package types

import (
	"strconv"
	"strings"
)

// LookupPath resolves a dot path against a decoded JSON payload. Traversal
// stops the moment a segment is missing or a non-object is encountered, in
// which case ok is false. A present-but-null value returns (nil, true).
func LookupPath(data map[string]interface{}, path string) (interface{}, bool) {
	if path == "" {
		return nil, false
	}

	var current interface{} = data
	for _, segment := range strings.Split(path, ".") {
		obj, isObj := current.(map[string]interface{})
		if !isObj {
			return nil, false
		}
		next, present := obj[segment]
		if !present {
			return nil, false
		}
		current = next
	}
	return current, true
}

// FormatScalar renders a scalar payload value the way it appeared in the
// source JSON: numbers without a trailing ".0" for integral values, booleans
// as true/false, nil as the empty string.
func FormatScalar(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	default:
		return ""
	}
}
