package trigger

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hookrelay/hookrelay/pkg/types"
)

// placeholderPattern matches {{event.<path>}} placeholders. The path is
// captured without surrounding whitespace.
var placeholderPattern = regexp.MustCompile(`\{\{\s*event\.([^}\s]+)\s*\}\}`)

// RenderPrompt renders a trigger's prompt template against a concrete event.
// Pure function: unknown placeholders and missing data fields render as the
// empty string rather than failing, and non-placeholder text passes through
// unchanged. An empty template synthesizes a default prompt from the event.
func RenderPrompt(template string, event types.StoredEvent) string {
	if strings.TrimSpace(template) == "" {
		return defaultPrompt(event)
	}

	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		groups := placeholderPattern.FindStringSubmatch(match)
		if len(groups) != 2 {
			return ""
		}
		return resolvePlaceholder(groups[1], event)
	})
}

func resolvePlaceholder(path string, event types.StoredEvent) string {
	switch path {
	case "source":
		return event.Source
	case "eventType":
		return event.EventType
	case "id":
		return strconv.FormatInt(event.ID, 10)
	case "receivedAt":
		return event.ReceivedAt
	case "data":
		return prettyJSON(event.Data)
	}

	if subpath, ok := strings.CutPrefix(path, "data."); ok {
		value, present := types.LookupPath(event.Data, subpath)
		if !present || value == nil {
			return ""
		}
		switch value.(type) {
		case string, bool, float64:
			return types.FormatScalar(value)
		default:
			return compactJSON(value)
		}
	}

	// Unknown placeholders are silently dropped.
	return ""
}

func defaultPrompt(event types.StoredEvent) string {
	return fmt.Sprintf(
		"A new event arrived from connection %q (type: %s).\n\nEvent payload:\n%s",
		event.Source, event.EventType, prettyJSON(event.Data),
	)
}

func prettyJSON(v interface{}) string {
	if v == nil {
		return "{}"
	}
	if m, ok := v.(map[string]interface{}); ok && m == nil {
		return "{}"
	}
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ""
	}
	return string(encoded)
}

func compactJSON(v interface{}) string {
	encoded, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(encoded)
}
