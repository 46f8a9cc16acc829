package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	stderrors "errors"

	"github.com/hookrelay/hookrelay/internal/pipeline"
	"github.com/hookrelay/hookrelay/internal/trigger"
	"github.com/hookrelay/hookrelay/pkg/types"
)

const maxBodyBytes = 4 << 20

// decodeJSONBody decodes a bounded JSON request body, rejecting unknown
// top-level garbage after the document.
func decodeJSONBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("request body must contain a single JSON document")
	}
	return nil
}

// TriggersHandler handles the trigger CRUD surface:
//
//	GET    /v1/agents/{alias}/triggers
//	POST   /v1/agents/{alias}/triggers
//	GET    /v1/agents/{alias}/triggers/{id}
//	PATCH  /v1/agents/{alias}/triggers/{id}
//	DELETE /v1/agents/{alias}/triggers/{id}
type TriggersHandler struct {
	triggers *trigger.Store
}

func NewTriggersHandler(triggers *trigger.Store) *TriggersHandler {
	return &TriggersHandler{triggers: triggers}
}

// ServeCollection handles the per-agent collection routes.
func (h *TriggersHandler) ServeCollection(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())
	alias := r.PathValue("alias")
	if alias == "" {
		writeError(w, http.StatusBadRequest, "agent alias is required", requestID)
		return
	}

	switch r.Method {
	case http.MethodGet:
		triggers := h.triggers.List(alias)
		if triggers == nil {
			triggers = []types.Trigger{}
		}
		writeJSON(w, http.StatusOK, triggers)

	case http.MethodPost:
		var t types.Trigger
		if err := decodeJSONBody(r, &t); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), requestID)
			return
		}
		created, err := h.triggers.Create(alias, t)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error(), requestID)
			return
		}
		writeJSON(w, http.StatusCreated, created)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
	}
}

// ServeItem handles the single-trigger routes.
func (h *TriggersHandler) ServeItem(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())
	alias := r.PathValue("alias")
	id := r.PathValue("id")
	if alias == "" || id == "" {
		writeError(w, http.StatusBadRequest, "agent alias and trigger id are required", requestID)
		return
	}

	switch r.Method {
	case http.MethodGet:
		t, err := h.triggers.Get(alias, id)
		if err != nil {
			writeError(w, http.StatusNotFound, "trigger not found", requestID)
			return
		}
		writeJSON(w, http.StatusOK, t)

	case http.MethodPatch, http.MethodPut:
		var patch trigger.Patch
		if err := decodeJSONBody(r, &patch); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), requestID)
			return
		}
		updated, err := h.triggers.Update(alias, id, patch)
		if err != nil {
			if stderrors.Is(err, trigger.ErrNotFound) {
				writeError(w, http.StatusNotFound, "trigger not found", requestID)
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error(), requestID)
			return
		}
		writeJSON(w, http.StatusOK, updated)

	case http.MethodDelete:
		if !h.triggers.Delete(alias, id) {
			writeError(w, http.StatusNotFound, "trigger not found", requestID)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
	}
}

// BacktestRequest carries historical events plus a candidate filter.
type BacktestRequest struct {
	Events []types.StoredEvent `json:"events"`
	Filter types.TriggerFilter `json:"filter"`
}

// BacktestResponse lists the subset of events the filter would have matched.
type BacktestResponse struct {
	Matched []types.StoredEvent `json:"matched"`
	Total   int                 `json:"total"`
}

// BacktestHandler handles POST /v1/triggers/backtest, a pure preview of what
// a filter would catch.
type BacktestHandler struct {
	pipeline *pipeline.Pipeline
}

func NewBacktestHandler(p *pipeline.Pipeline) *BacktestHandler {
	return &BacktestHandler{pipeline: p}
}

func (h *BacktestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}

	var req BacktestRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), requestID)
		return
	}

	matched := h.pipeline.Backtest(req.Events, req.Filter)
	if matched == nil {
		matched = []types.StoredEvent{}
	}
	writeJSON(w, http.StatusOK, BacktestResponse{Matched: matched, Total: len(matched)})
}
