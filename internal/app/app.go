// Package app wires the Hookrelay components into one process lifecycle:
// event log, trigger store, dispatcher, HTTP surface and archive daemon.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"

	httpapi "github.com/hookrelay/hookrelay/internal/api/http"
	"github.com/hookrelay/hookrelay/internal/archive"
	"github.com/hookrelay/hookrelay/internal/config"
	"github.com/hookrelay/hookrelay/internal/dispatch"
	"github.com/hookrelay/hookrelay/internal/eventlog"
	"github.com/hookrelay/hookrelay/internal/observability"
	"github.com/hookrelay/hookrelay/internal/pipeline"
	"github.com/hookrelay/hookrelay/internal/server"
	"github.com/hookrelay/hookrelay/internal/storage"
	"github.com/hookrelay/hookrelay/internal/trigger"
)

// App manages the Hookrelay service lifecycle.
type App struct {
	cfg *config.Config

	events     *eventlog.Store
	triggers   *trigger.Store
	dispatcher *dispatch.Dispatcher
	pipeline   *pipeline.Pipeline
	metrics    *observability.Metrics

	objects  storage.ObjectStorage
	catalog  *archive.Catalog
	archiver *archive.Archiver

	shutdown   *server.ShutdownManager
	httpServer *server.GracefulHTTPServer

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
}

// New creates an App from the given configuration.
func New(cfg *config.Config) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	return &App{cfg: cfg}, nil
}

// Pipeline exposes the in-process ingest surface for embedding callers.
func (a *App) Pipeline() *pipeline.Pipeline {
	return a.pipeline
}

// Start initializes all components and begins serving.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app is already running")
	}
	a.running = true
	a.mu.Unlock()

	a.shutdown = server.NewShutdownManager(server.DefaultShutdownConfig())

	if a.cfg.Metrics.Enabled {
		a.metrics = observability.New()
	}

	dedup := eventlog.NewDedupCache(a.cfg.Dedup.Capacity, a.cfg.Dedup.SeedTailLines)
	a.events = eventlog.NewStore(a.cfg.EventsDir(), dedup,
		eventlog.WithMaxPerSource(a.cfg.Query.MaxPerSource),
		eventlog.WithDefaultLimit(a.cfg.Query.DefaultLimit))
	a.triggers = trigger.NewStore(a.cfg.AgentsDir())

	a.dispatcher = dispatch.New(
		triggerDirectory{a.triggers},
		a.triggers,
		a.buildExecutor(),
		dispatch.WithMaxConcurrent(a.cfg.Dispatch.MaxConcurrentExecutions),
		dispatch.WithDefaultMaxTurns(a.cfg.Dispatch.DefaultMaxTurns),
		dispatch.WithMetrics(a.metrics),
	)
	a.shutdown.RegisterCloser(server.CloserFunc(func() error {
		a.dispatcher.Wait()
		return nil
	}))

	a.pipeline = pipeline.New(a.events, a.dispatcher, a.metrics)

	if a.cfg.Archive.Enabled {
		if err := a.startArchiver(ctx); err != nil {
			return fmt.Errorf("failed to start archiver: %w", err)
		}
	}

	if err := a.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start http server: %w", err)
	}

	log.Printf("hookrelay started: addr=%s data=%s archive=%v",
		a.cfg.HTTP.Addr, a.cfg.DataDir, a.cfg.Archive.Enabled)
	return nil
}

// buildExecutor selects how fired agent sessions run: forwarded to an
// external runner when an executor URL is configured, logged otherwise.
func (a *App) buildExecutor() dispatch.AgentExecutor {
	if url := a.cfg.Dispatch.ExecutorURL; url != "" {
		log.Printf("dispatch: forwarding agent sessions to %s", url)
		return dispatch.NewHTTPExecutor(url)
	}
	return dispatch.LoggingExecutor{}
}

func (a *App) startArchiver(ctx context.Context) error {
	var err error
	switch a.cfg.Storage.Type {
	case "local":
		a.objects, err = storage.NewLocalStorage(a.cfg.Storage.Path)
	case "s3":
		a.objects, err = storage.NewS3Storage(ctx, a.cfg.Storage.S3.Bucket, storage.S3Config{
			Region:   a.cfg.Storage.S3.Region,
			Endpoint: a.cfg.Storage.S3.Endpoint,
		})
	default:
		return fmt.Errorf("unsupported storage type: %s", a.cfg.Storage.Type)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	a.catalog, err = archive.NewCatalog(a.cfg.CatalogPath())
	if err != nil {
		return err
	}
	a.shutdown.RegisterCloser(a.catalog)

	a.archiver = archive.New(a.events, a.objects, a.catalog,
		archive.WithMaxActiveBytes(a.cfg.Archive.MaxActiveBytes),
		archive.WithCheckInterval(a.cfg.Archive.CheckInterval),
		archive.WithWorkDir(a.cfg.Archive.WorkDir),
		archive.WithMetrics(a.metrics),
	)
	a.archiver.Start()
	a.shutdown.RegisterCloser(server.CloserFunc(func() error {
		a.archiver.Stop()
		return nil
	}))

	log.Printf("archive: daemon started: storage=%s threshold=%d interval=%v",
		a.cfg.Storage.Type, a.cfg.Archive.MaxActiveBytes, a.cfg.Archive.CheckInterval)
	return nil
}

func (a *App) startHTTPServer() error {
	router := httpapi.NewRouter(a.pipeline, a.events, a.triggers, a.metrics)
	handler := server.ShutdownMiddleware(a.shutdown)(router)

	srv := &http.Server{
		Addr:         a.cfg.HTTP.Addr,
		Handler:      handler,
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}
	a.httpServer = server.NewGracefulHTTPServer(srv, a.shutdown)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.httpServer.ListenAndServe(); err != nil {
			log.Printf("http server error: %v", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the application down: the listener drains, the
// dispatcher finishes in-flight executions, then stores close.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	a.mu.Unlock()

	err := a.shutdown.Shutdown(ctx)
	a.wg.Wait()
	log.Printf("hookrelay stopped")
	return err
}

// triggerDirectory derives the agent roster from on-disk trigger collections.
type triggerDirectory struct {
	store *trigger.Store
}

func (d triggerDirectory) ListAgents(ctx context.Context) ([]dispatch.AgentInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	aliases := d.store.Agents()
	infos := make([]dispatch.AgentInfo, 0, len(aliases))
	for _, alias := range aliases {
		infos = append(infos, dispatch.AgentInfo{Alias: alias})
	}
	return infos, nil
}
