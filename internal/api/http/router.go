package http

import (
	"net/http"

	"github.com/hookrelay/hookrelay/internal/eventlog"
	"github.com/hookrelay/hookrelay/internal/observability"
	"github.com/hookrelay/hookrelay/internal/pipeline"
	"github.com/hookrelay/hookrelay/internal/trigger"
)

// NewRouter assembles the full HTTP surface behind the default middleware
// chain. The metrics handler is mounted only when metrics are enabled.
func NewRouter(
	p *pipeline.Pipeline,
	events *eventlog.Store,
	triggers *trigger.Store,
	metrics *observability.Metrics,
) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/v1/events", NewEventsHandler(p, events))
	mux.Handle("/v1/sources", NewSourcesHandler(events))

	th := NewTriggersHandler(triggers)
	mux.HandleFunc("/v1/agents/{alias}/triggers", th.ServeCollection)
	mux.HandleFunc("/v1/agents/{alias}/triggers/{id}", th.ServeItem)

	mux.Handle("/v1/triggers/backtest", NewBacktestHandler(p))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if h := metrics.Handler(); h != nil {
		mux.Handle("/metrics", h)
	}

	return DefaultMiddleware()(mux)
}
