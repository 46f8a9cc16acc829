package pipeline

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookrelay/hookrelay/internal/dispatch"
	"github.com/hookrelay/hookrelay/internal/eventlog"
	"github.com/hookrelay/hookrelay/internal/trigger"
	"github.com/hookrelay/hookrelay/pkg/types"
)

type fixedAgents []string

func (a fixedAgents) ListAgents(ctx context.Context) ([]dispatch.AgentInfo, error) {
	infos := make([]dispatch.AgentInfo, 0, len(a))
	for _, alias := range a {
		infos = append(infos, dispatch.AgentInfo{Alias: alias})
	}
	return infos, nil
}

func newPipeline(t *testing.T, executor dispatch.AgentExecutor) (*Pipeline, *trigger.Store) {
	t.Helper()
	dir := t.TempDir()
	events := eventlog.NewStore(dir, eventlog.NewDedupCache(0, 0))
	triggers := trigger.NewStore(dir)
	d := dispatch.New(fixedAgents{"alpha"}, triggers, executor)
	return New(events, d, nil), triggers
}

func TestAppendEvent(t *testing.T) {
	p, _ := newPipeline(t, dispatch.LoggingExecutor{})

	raw := RawEvent{
		ID:        42,
		Source:    "github",
		EventType: "push",
		Data:      map[string]interface{}{"ref": "refs/heads/main"},
	}

	stored, err := p.AppendEvent(raw)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "github:42", stored.IdempotencyKey)
	assert.NotZero(t, stored.StoredAt)

	// Same key again signals a duplicate with no error.
	again, err := p.AppendEvent(raw)
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestAppendEventInvalidSource(t *testing.T) {
	p, _ := newPipeline(t, dispatch.LoggingExecutor{})

	stored, err := p.AppendEvent(RawEvent{ID: 1, EventType: "push"})
	assert.Error(t, err)
	assert.Nil(t, stored)
}

func TestDispatchEvent(t *testing.T) {
	var (
		mu       sync.Mutex
		received []dispatch.ExecuteRequest
	)
	executor := dispatch.ExecutorFunc(func(ctx context.Context, req dispatch.ExecuteRequest) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, req)
		return nil
	})

	p, triggers := newPipeline(t, executor)
	_, err := triggers.Create("alpha", types.Trigger{
		Name:   "on push",
		Status: types.TriggerActive,
		Filter: types.TriggerFilter{Source: "github", EventType: "push"},
	})
	require.NoError(t, err)

	stored, err := p.AppendEvent(RawEvent{ID: 7, Source: "github", EventType: "push"})
	require.NoError(t, err)
	p.DispatchEvent(context.Background(), *stored)
	p.dispatcher.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, "alpha", received[0].AgentAlias)
}

func TestBacktest(t *testing.T) {
	p, _ := newPipeline(t, dispatch.LoggingExecutor{})

	events := []types.StoredEvent{
		{Source: "github", EventType: "push"},
		{Source: "slack", EventType: "message"},
	}
	matched := p.Backtest(events, types.TriggerFilter{Source: "github"})
	require.Len(t, matched, 1)
	assert.Equal(t, "github", matched[0].Source)
}
