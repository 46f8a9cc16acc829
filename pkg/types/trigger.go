package types

// TriggerStatus indicates whether a trigger participates in dispatch.
type TriggerStatus string

const (
	// TriggerActive triggers are evaluated against every dispatched event.
	TriggerActive TriggerStatus = "active"

	// TriggerPaused triggers are kept but skipped during dispatch.
	TriggerPaused TriggerStatus = "paused"
)

// Condition operators understood by the filter engine. Any other operator
// evaluates to a non-match.
const (
	OpExists    = "exists"
	OpNotExists = "not_exists"
	OpEquals    = "equals"
	OpContains  = "contains"
	OpMatches   = "matches"
)

// FilterCondition is a single predicate over an event's payload.
type FilterCondition struct {
	// Field is a dot path into the event data (e.g. "pull_request.user.login").
	Field string `json:"field"`

	// Operator is one of exists, not_exists, equals, contains, matches.
	Operator string `json:"operator"`

	// Value is the comparison operand. Unused by exists/not_exists.
	Value string `json:"value,omitempty"`
}

// TriggerFilter selects which events a trigger fires on. An empty Source or
// EventType matches any value; Conditions are ANDed.
type TriggerFilter struct {
	Source     string            `json:"source,omitempty"`
	EventType  string            `json:"eventType,omitempty"`
	Conditions []FilterCondition `json:"conditions,omitempty"`
}

// TriggerAction describes what to run when a trigger fires.
type TriggerAction struct {
	// Prompt is the template rendered against the matched event. Empty means
	// a default prompt is synthesized from the event itself.
	Prompt string `json:"prompt,omitempty"`

	// MaxTurns bounds the fired agent session. Zero means the executor's
	// default applies.
	MaxTurns int `json:"maxTurns,omitempty"`
}

// Trigger pairs an event filter with an action, owned by one agent.
type Trigger struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Status        TriggerStatus `json:"status"`
	Filter        TriggerFilter `json:"filter"`
	Action        TriggerAction `json:"action"`
	LastTriggered *int64        `json:"lastTriggered,omitempty"`
	TriggerCount  int64         `json:"triggerCount"`
}

// Active reports whether the trigger participates in dispatch.
func (t *Trigger) Active() bool {
	return t.Status == TriggerActive
}
