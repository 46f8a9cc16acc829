package dispatch

import (
	"github.com/hookrelay/hookrelay/internal/trigger"
	"github.com/hookrelay/hookrelay/pkg/types"
)

// Backtest returns the subsequence of events a filter would match, in input
// order. Pure preview utility for "what would this trigger catch" checks;
// no stats are touched and nothing fires.
func Backtest(events []types.StoredEvent, filter types.TriggerFilter) []types.StoredEvent {
	matched := make([]types.StoredEvent, 0, len(events))
	for _, event := range events {
		if trigger.Matches(event, filter) {
			matched = append(matched, event)
		}
	}
	return matched
}
