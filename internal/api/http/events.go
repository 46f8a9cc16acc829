package http

import (
	"fmt"
	"net/http"
	"strconv"

	stderrors "errors"

	"github.com/hookrelay/hookrelay/internal/errors"
	"github.com/hookrelay/hookrelay/internal/eventlog"
	"github.com/hookrelay/hookrelay/internal/pipeline"
	"github.com/hookrelay/hookrelay/pkg/types"
)

// IngestResponse represents the response to an event ingest request.
type IngestResponse struct {
	Duplicate bool               `json:"duplicate"`
	Event     *types.StoredEvent `json:"event,omitempty"`
	RequestID string             `json:"request_id,omitempty"`
}

// EventsHandler handles POST and GET on /v1/events.
type EventsHandler struct {
	pipeline *pipeline.Pipeline
	events   *eventlog.Store
}

func NewEventsHandler(p *pipeline.Pipeline, events *eventlog.Store) *EventsHandler {
	return &EventsHandler{pipeline: p, events: events}
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.ingest(w, r)
	case http.MethodGet:
		h.query(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", GetRequestID(r.Context()))
	}
}

// ingest appends one event and fans it out to matching triggers.
func (h *EventsHandler) ingest(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	var raw pipeline.RawEvent
	if err := decodeJSONBody(r, &raw); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), requestID)
		return
	}

	stored, err := h.pipeline.AppendEvent(raw)
	if err != nil {
		status := http.StatusInternalServerError
		var herr *errors.HookrelayError
		if stderrors.As(err, &herr) && herr.Category == errors.ErrCategoryValidation {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error(), requestID)
		return
	}
	if stored == nil {
		writeJSON(w, http.StatusOK, IngestResponse{Duplicate: true, RequestID: requestID})
		return
	}

	h.pipeline.DispatchEvent(r.Context(), *stored)
	writeJSON(w, http.StatusCreated, IngestResponse{Event: stored, RequestID: requestID})
}

// query lists stored events, newest first. With ?source= it reads one log,
// without it merges all sources.
func (h *EventsHandler) query(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	// Zero lets the store apply its configured default limit.
	limit := intQueryParam(r, "limit", 0)
	offset := intQueryParam(r, "offset", 0)

	var events []types.StoredEvent
	if source != "" {
		events = h.events.Query(source, limit, offset)
	} else {
		events = h.events.QueryAll(limit, offset)
	}
	if events == nil {
		events = []types.StoredEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// SourcesHandler handles GET /v1/sources.
type SourcesHandler struct {
	events *eventlog.Store
}

func NewSourcesHandler(events *eventlog.Store) *SourcesHandler {
	return &SourcesHandler{events: events}
}

func (h *SourcesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", GetRequestID(r.Context()))
		return
	}

	sources := h.events.ListSources()
	if sources == nil {
		sources = []string{}
	}
	writeJSON(w, http.StatusOK, sources)
}

func intQueryParam(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
