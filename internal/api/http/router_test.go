package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookrelay/hookrelay/internal/dispatch"
	"github.com/hookrelay/hookrelay/internal/eventlog"
	"github.com/hookrelay/hookrelay/internal/pipeline"
	"github.com/hookrelay/hookrelay/internal/trigger"
	"github.com/hookrelay/hookrelay/pkg/types"
)

type noAgents struct{}

func (noAgents) ListAgents(ctx context.Context) ([]dispatch.AgentInfo, error) {
	return nil, nil
}

func newTestRouter(t *testing.T) (http.Handler, *trigger.Store) {
	t.Helper()
	dir := t.TempDir()
	events := eventlog.NewStore(dir, eventlog.NewDedupCache(0, 0))
	triggers := trigger.NewStore(dir)
	d := dispatch.New(noAgents{}, triggers, dispatch.LoggingExecutor{})
	p := pipeline.New(events, d, nil)
	return NewRouter(p, events, triggers, nil), triggers
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestIngestAndQueryEvents(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/v1/events", pipeline.RawEvent{
		ID:        1,
		Source:    "github",
		EventType: "push",
		Data:      map[string]interface{}{"ref": "refs/heads/main"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var resp IngestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Duplicate)
	require.NotNil(t, resp.Event)
	assert.Equal(t, "github:1", resp.Event.IdempotencyKey)

	// Replay is reported as a duplicate, not an error.
	rec = doJSON(t, router, http.MethodPost, "/v1/events", pipeline.RawEvent{
		ID: 1, Source: "github", EventType: "push",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	resp = IngestResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Duplicate)
	assert.Nil(t, resp.Event)

	rec = doJSON(t, router, http.MethodGet, "/v1/events?source=github", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var events []types.StoredEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	assert.Len(t, events, 1)

	rec = doJSON(t, router, http.MethodGet, "/v1/sources", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sources []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sources))
	assert.Equal(t, []string{"github"}, sources)
}

func TestIngestRejectsMissingSource(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/v1/events", pipeline.RawEvent{ID: 1})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Error)
	assert.NotEmpty(t, resp.RequestID)
}

func TestIngestRejectsMalformedBody(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/events", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTriggerCRUDOverHTTP(t *testing.T) {
	router, _ := newTestRouter(t)

	created := doJSON(t, router, http.MethodPost, "/v1/agents/alpha/triggers", types.Trigger{
		Name:   "on push",
		Filter: types.TriggerFilter{Source: "github"},
		Action: types.TriggerAction{Prompt: "investigate"},
	})
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())

	var tr types.Trigger
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &tr))
	assert.NotEmpty(t, tr.ID)
	assert.Equal(t, types.TriggerActive, tr.Status)

	itemPath := fmt.Sprintf("/v1/agents/alpha/triggers/%s", tr.ID)

	rec := doJSON(t, router, http.MethodGet, itemPath, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPatch, itemPath, map[string]string{"status": "paused"})
	require.Equal(t, http.StatusOK, rec.Code)
	var updated types.Trigger
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, types.TriggerPaused, updated.Status)
	assert.Equal(t, tr.ID, updated.ID)

	rec = doJSON(t, router, http.MethodGet, "/v1/agents/alpha/triggers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []types.Trigger
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = doJSON(t, router, http.MethodDelete, itemPath, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, itemPath, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTriggerNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/v1/agents/alpha/triggers/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodPatch, "/v1/agents/alpha/triggers/nope", map[string]string{"name": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBacktestEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/v1/triggers/backtest", BacktestRequest{
		Events: []types.StoredEvent{
			{Source: "github", EventType: "push", Data: map[string]interface{}{"ref": "refs/heads/main"}},
			{Source: "github", EventType: "issues"},
		},
		Filter: types.TriggerFilter{Source: "github", EventType: "push"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp BacktestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Total)
	require.Len(t, resp.Matched, 1)
	assert.Equal(t, "push", resp.Matched[0].EventType)
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMethodNotAllowed(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodDelete, "/v1/events", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/v1/triggers/backtest", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
