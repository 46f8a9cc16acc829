// Package types provides core data types for Hookrelay.
package types

import (
	"fmt"
	"time"
)

// StoredEvent represents a single ingested event as recorded in a source's
// append-only log. Records are immutable once written.
type StoredEvent struct {
	// ID is assigned by the originating ingestor. Monotonically increasing
	// per ingestor, not globally unique across sources.
	ID int64 `json:"id"`

	// IdempotencyKey uniquely identifies one logical occurrence of the event
	// and suppresses duplicate storage across retries and replays.
	IdempotencyKey string `json:"idempotencyKey"`

	// ReceivedAt is the ingestor-side receipt time in ISO-8601 form.
	ReceivedAt string `json:"receivedAt"`

	// ReceivedAtMs is the ingestor-side receipt time in epoch milliseconds.
	ReceivedAtMs int64 `json:"receivedAtMs"`

	// Source is the connection/route alias that produced the event. It
	// namespaces the on-disk log and is a filter dimension.
	Source string `json:"source"`

	// EventType is the source-specific event category (e.g. "push").
	EventType string `json:"eventType"`

	// Data is the event payload. Opaque to the log; only the filter engine
	// and the prompt interpolator traverse into it.
	Data map[string]interface{} `json:"data"`

	// StoredAt is assigned locally at write time (epoch ms) and orders
	// events within and across sources.
	StoredAt int64 `json:"storedAt"`
}

// DeriveIdempotencyKey returns the key for an event that carries no
// source-specific natural key.
func DeriveIdempotencyKey(source string, id int64) string {
	return fmt.Sprintf("%s:%d", source, id)
}

// NewStoredEvent builds an unstored event stamped with the current receipt
// time. StoredAt is left zero; the event log assigns it on append.
func NewStoredEvent(id int64, source, eventType string, data map[string]interface{}, idempotencyKey string) StoredEvent {
	now := time.Now()
	if idempotencyKey == "" {
		idempotencyKey = DeriveIdempotencyKey(source, id)
	}
	return StoredEvent{
		ID:             id,
		IdempotencyKey: idempotencyKey,
		ReceivedAt:     now.UTC().Format(time.RFC3339),
		ReceivedAtMs:   now.UnixMilli(),
		Source:         source,
		EventType:      eventType,
		Data:           data,
	}
}
