// Package pipeline ties ingestion and dispatch into the surface consumed by
// pollers and webhook handlers: append an event, then fan it out.
package pipeline

import (
	"context"
	stderrors "errors"
	"log"

	"github.com/hookrelay/hookrelay/internal/dispatch"
	"github.com/hookrelay/hookrelay/internal/eventlog"
	"github.com/hookrelay/hookrelay/internal/observability"
	"github.com/hookrelay/hookrelay/pkg/types"
)

// RawEvent carries the caller-supplied fields of an incoming event before it
// is stamped and stored.
type RawEvent struct {
	ID             int64                  `json:"id"`
	Source         string                 `json:"source"`
	EventType      string                 `json:"eventType"`
	Data           map[string]interface{} `json:"data"`
	IdempotencyKey string                 `json:"idempotencyKey,omitempty"`
}

// Pipeline is the in-process surface over the event log and the dispatcher.
type Pipeline struct {
	events     *eventlog.Store
	dispatcher *dispatch.Dispatcher
	metrics    *observability.Metrics
}

func New(events *eventlog.Store, dispatcher *dispatch.Dispatcher, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		events:     events,
		dispatcher: dispatcher,
		metrics:    metrics,
	}
}

// AppendEvent stores one event. A nil event with a nil error means the
// idempotency key was already seen and nothing was written. Validation and
// write failures surface to the caller.
func (p *Pipeline) AppendEvent(raw RawEvent) (*types.StoredEvent, error) {
	event := types.NewStoredEvent(raw.ID, raw.Source, raw.EventType, raw.Data, raw.IdempotencyKey)

	stored, err := p.events.Append(event)
	if err != nil {
		if stderrors.Is(err, eventlog.ErrDuplicate) {
			p.metrics.EventDuplicate(raw.Source)
			return nil, nil
		}
		p.metrics.EventRejected(raw.Source)
		return nil, err
	}

	p.metrics.EventIngested(stored.Source)
	return stored, nil
}

// DispatchEvent fans the event out to matching triggers. Fire-and-forget by
// contract: all failures are logged inside the dispatcher, none propagate.
func (p *Pipeline) DispatchEvent(ctx context.Context, event types.StoredEvent) {
	if p.dispatcher == nil {
		log.Printf("pipeline: no dispatcher configured, dropping event %s", event.IdempotencyKey)
		return
	}
	p.dispatcher.Dispatch(ctx, event)
}

// Backtest previews which of the given events a filter would match.
func (p *Pipeline) Backtest(events []types.StoredEvent, filter types.TriggerFilter) []types.StoredEvent {
	return dispatch.Backtest(events, filter)
}
