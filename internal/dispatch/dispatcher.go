// Package dispatch evaluates newly stored events against every agent's
// active triggers and fires matching ones without blocking ingestion.
package dispatch

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/hookrelay/hookrelay/internal/observability"
	"github.com/hookrelay/hookrelay/internal/trigger"
	"github.com/hookrelay/hookrelay/pkg/types"
)

// AgentInfo identifies one known agent.
type AgentInfo struct {
	Alias string `json:"alias"`
}

// AgentDirectory enumerates all known agents. External collaborator.
type AgentDirectory interface {
	ListAgents(ctx context.Context) ([]AgentInfo, error)
}

// ExecuteRequest carries one fired agent session.
type ExecuteRequest struct {
	AgentAlias  string                 `json:"agentAlias"`
	Prompt      string                 `json:"prompt"`
	TriggeredBy string                 `json:"triggeredBy"`
	Metadata    map[string]interface{} `json:"metadata"`
	MaxTurns    int                    `json:"maxTurns"`
}

// AgentExecutor starts an agent session. External collaborator; the
// dispatcher never awaits completion and only logs failures.
type AgentExecutor interface {
	Execute(ctx context.Context, req ExecuteRequest) error
}

// ExecutorFunc adapts a function to AgentExecutor.
type ExecutorFunc func(ctx context.Context, req ExecuteRequest) error

func (f ExecutorFunc) Execute(ctx context.Context, req ExecuteRequest) error {
	return f(ctx, req)
}

// TriggerStore is the subset of the trigger store the dispatcher needs.
type TriggerStore interface {
	List(agentAlias string) []types.Trigger
	RecordFired(agentAlias, id string, firedAtMs int64) (*types.Trigger, error)
}

// ErrorSink receives asynchronous execution failures. It must not panic.
type ErrorSink func(agentAlias, triggerID string, err error)

// DefaultMaxConcurrent bounds in-flight agent executions when no limit is
// configured.
const DefaultMaxConcurrent = 8

// Dispatcher orchestrates trigger evaluation for each newly accepted event.
type Dispatcher struct {
	directory AgentDirectory
	triggers  TriggerStore
	executor  AgentExecutor
	metrics   *observability.Metrics

	sem             *semaphore.Weighted
	defaultMaxTurns int
	errorSink       ErrorSink

	wg sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMaxConcurrent bounds the number of in-flight agent executions.
func WithMaxConcurrent(n int64) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.sem = semaphore.NewWeighted(n)
		}
	}
}

// WithDefaultMaxTurns sets the turn limit used when a trigger has none.
func WithDefaultMaxTurns(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.defaultMaxTurns = n
		}
	}
}

// WithErrorSink replaces the default log-only failure handler.
func WithErrorSink(sink ErrorSink) Option {
	return func(d *Dispatcher) {
		if sink != nil {
			d.errorSink = sink
		}
	}
}

// WithMetrics attaches pipeline metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// New creates a Dispatcher over the given collaborators.
func New(directory AgentDirectory, triggers TriggerStore, executor AgentExecutor, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		directory: directory,
		triggers:  triggers,
		executor:  executor,
		sem:       semaphore.NewWeighted(DefaultMaxConcurrent),
		errorSink: func(agentAlias, triggerID string, err error) {
			log.Printf("dispatch: agent execution failed: agent=%s trigger=%s: %v", agentAlias, triggerID, err)
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch evaluates one stored event against all active triggers of all
// agents, exactly once per call. Matching, stats updates and prompt
// rendering run synchronously on the calling goroutine; only the agent
// execution itself proceeds asynchronously. Failures along the way are
// logged and never abort the remaining fan-out.
func (d *Dispatcher) Dispatch(ctx context.Context, event types.StoredEvent) {
	agents, err := d.directory.ListAgents(ctx)
	if err != nil {
		log.Printf("dispatch: failed to list agents, skipping event %s: %v", event.IdempotencyKey, err)
		return
	}

	for _, agent := range agents {
		for _, t := range d.triggers.List(agent.Alias) {
			if !t.Active() {
				continue
			}
			if !trigger.Matches(event, t.Filter) {
				continue
			}
			d.fire(agent.Alias, t, event)
		}
	}
}

// fire records stats, renders the prompt and hands the execution to a
// bounded background goroutine.
func (d *Dispatcher) fire(agentAlias string, t types.Trigger, event types.StoredEvent) {
	d.metrics.DispatchMatched(agentAlias)

	// Best-effort stats update. Its failure must not stop this trigger from
	// firing, nor the remaining fan-out.
	if _, err := d.triggers.RecordFired(agentAlias, t.ID, time.Now().UnixMilli()); err != nil {
		log.Printf("dispatch: failed to update stats for trigger %s (agent %s): %v", t.ID, agentAlias, err)
	}

	prompt := trigger.RenderPrompt(t.Action.Prompt, event)

	maxTurns := t.Action.MaxTurns
	if maxTurns <= 0 {
		maxTurns = d.defaultMaxTurns
	}

	req := ExecuteRequest{
		AgentAlias:  agentAlias,
		Prompt:      prompt,
		TriggeredBy: "trigger:" + t.ID,
		Metadata: map[string]interface{}{
			"triggerId":      t.ID,
			"triggerName":    t.Name,
			"eventSource":    event.Source,
			"eventType":      event.EventType,
			"eventId":        event.ID,
			"idempotencyKey": event.IdempotencyKey,
		},
		MaxTurns: maxTurns,
	}

	// Fire and forget: once fired, the execution runs independently of the
	// dispatching caller, so it gets a fresh context.
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx := context.Background()
		if err := d.sem.Acquire(ctx, 1); err != nil {
			d.errorSink(req.AgentAlias, t.ID, err)
			return
		}
		defer d.sem.Release(1)

		d.metrics.DispatchExecuted(req.AgentAlias)
		if err := d.executor.Execute(ctx, req); err != nil {
			d.metrics.DispatchFailed(req.AgentAlias)
			d.errorSink(req.AgentAlias, t.ID, err)
		}
	}()
}

// Wait blocks until every in-flight agent execution has returned. Used by
// graceful shutdown and tests.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
