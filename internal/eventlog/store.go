// Package eventlog provides the durable, source-partitioned, append-only
// record of ingested events, guarded by an idempotency-key dedup cache.
package eventlog

import (
	"encoding/json"
	stderrors "errors"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/hookrelay/hookrelay/internal/errors"
	"github.com/hookrelay/hookrelay/pkg/types"
)

// logFileName is the active log file inside each source directory.
const logFileName = "events.jsonl"

// ErrDuplicate signals that an event's idempotency key has already been
// stored. No write is performed.
var ErrDuplicate = stderrors.New("eventlog: duplicate event")

// DefaultQueryLimit applies when a query passes a non-positive limit.
const DefaultQueryLimit = 100

// DefaultMaxPerSource caps how many events one source contributes to a
// cross-source query before merging.
const DefaultMaxPerSource = 10000

// Store is the append-only per-source event log.
type Store struct {
	dir          string
	dedup        *DedupCache
	maxPerSource int
	defaultLimit int

	mu       sync.Mutex // serializes appends; preserves line atomicity
	seedOnce sync.Once
}

// Option configures a Store.
type Option func(*Store)

// WithMaxPerSource overrides the per-source cap used by QueryAll.
func WithMaxPerSource(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxPerSource = n
		}
	}
}

// WithDefaultLimit overrides the page size applied when a query passes a
// non-positive limit.
func WithDefaultLimit(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.defaultLimit = n
		}
	}
}

// NewStore creates an event store rooted at dir. The dedup cache is injected
// so the host process constructs it once and controls its bounds.
func NewStore(dir string, dedup *DedupCache, opts ...Option) *Store {
	if dedup == nil {
		dedup = NewDedupCache(0, 0)
	}
	s := &Store{
		dir:          dir,
		dedup:        dedup,
		maxPerSource: DefaultMaxPerSource,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the root directory of the per-source logs.
func (s *Store) Dir() string {
	return s.dir
}

// Append durably records an event as one line of newline-delimited JSON in
// its source's log. Returns ErrDuplicate (and performs no write) when the
// idempotency key has already been seen. Write failures are fatal for this
// single event and surface to the caller, who decides whether to retry.
func (s *Store) Append(event types.StoredEvent) (*types.StoredEvent, error) {
	if event.Source == "" {
		return nil, errors.NewValidationError(errors.CodeInvalidSource, "event source must not be empty")
	}
	if event.IdempotencyKey == "" {
		event.IdempotencyKey = types.DeriveIdempotencyKey(event.Source, event.ID)
	}

	// Lazy one-time seed from the tail of every existing source log.
	s.seedOnce.Do(func() {
		s.dedup.SeedFromDir(s.dir)
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	// The duplicate check and the StoredAt stamp both happen under the append
	// lock: concurrent same-key deliveries resolve to exactly one write, and
	// StoredAt is non-decreasing in append order.
	if s.dedup.Has(event.IdempotencyKey) {
		return nil, ErrDuplicate
	}

	event.StoredAt = time.Now().UnixMilli()

	line, err := json.Marshal(event)
	if err != nil {
		return nil, errors.NewStorageError(errors.CodeAppendFailed, "failed to serialize event", err)
	}

	sourceDir := filepath.Join(s.dir, event.Source)
	if err := os.MkdirAll(sourceDir, 0755); err != nil {
		return nil, errors.NewStorageError(errors.CodeAppendFailed, "failed to create source directory", err)
	}

	file, err := os.OpenFile(filepath.Join(sourceDir, logFileName), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.NewStorageError(errors.CodeAppendFailed, "failed to open log file", err)
	}
	defer file.Close()

	if _, err := file.Write(append(line, '\n')); err != nil {
		return nil, errors.NewStorageError(errors.CodeAppendFailed, "failed to write event", err)
	}
	if err := file.Sync(); err != nil {
		return nil, errors.NewStorageError(errors.CodeAppendFailed, "failed to fsync log file", err)
	}

	// Only register the key after the write is confirmed.
	s.dedup.Add(event.IdempotencyKey)

	return &event, nil
}

// Query returns events of one source sorted by StoredAt descending, then
// paginated. On-disk order alone is never authoritative. Read failures are
// treated as "no data" to keep ingestion resilient to transient disk issues.
func (s *Store) Query(source string, limit, offset int) []types.StoredEvent {
	events := s.readSource(source)
	sortByStoredAtDesc(events)
	return s.paginate(events, limit, offset)
}

// QueryAll unions events across every known source, re-sorts by StoredAt
// descending, then paginates. Each source is bounded by an internal cap to
// avoid pathological memory use; the cap keeps the newest events.
func (s *Store) QueryAll(limit, offset int) []types.StoredEvent {
	var all []types.StoredEvent
	for _, source := range s.ListSources() {
		events := s.readSource(source)
		sortByStoredAtDesc(events)
		if s.maxPerSource > 0 && len(events) > s.maxPerSource {
			events = events[:s.maxPerSource]
		}
		all = append(all, events...)
	}
	sortByStoredAtDesc(all)
	return s.paginate(all, limit, offset)
}

// ListSources returns every source with at least one stored event,
// alphabetically ordered.
func (s *Store) ListSources() []string {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil
	}

	var sources []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := os.Stat(filepath.Join(s.dir, entry.Name(), logFileName))
		if err != nil || info.Size() == 0 {
			continue
		}
		sources = append(sources, entry.Name())
	}
	sort.Strings(sources)
	return sources
}

// ActiveLogSize returns the byte size of a source's active log file, or zero
// when it does not exist.
func (s *Store) ActiveLogSize(source string) int64 {
	info, err := os.Stat(filepath.Join(s.dir, source, logFileName))
	if err != nil {
		return 0
	}
	return info.Size()
}

// RotateActive atomically renames a source's active log aside so a new one
// starts empty, and returns the rotated file's path. Used by the archiver;
// held under the append lock so no line is split across files.
func (s *Store) RotateActive(source string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := filepath.Join(s.dir, source, logFileName)
	if _, err := os.Stat(active); err != nil {
		return "", err
	}

	rotated := filepath.Join(s.dir, source, rotatedFileName(time.Now()))
	if err := os.Rename(active, rotated); err != nil {
		return "", errors.NewStorageError(errors.CodePersistFailed, "failed to rotate log file", err)
	}
	return rotated, nil
}

func rotatedFileName(t time.Time) string {
	return "events-" + t.UTC().Format("20060102T150405.000000000") + ".jsonl"
}

// readSource parses a source's active log line by line. A line-level
// corruption must not invalidate the rest of the log, so unparseable lines
// are skipped.
func (s *Store) readSource(source string) []types.StoredEvent {
	data, err := os.ReadFile(filepath.Join(s.dir, source, logFileName))
	if err != nil {
		return nil
	}

	var events []types.StoredEvent
	for _, line := range splitLines(data) {
		var event types.StoredEvent
		if err := json.Unmarshal(line, &event); err != nil {
			log.Printf("eventlog: skipping malformed line in %s log: %v", source, err)
			continue
		}
		events = append(events, event)
	}
	return events
}

func sortByStoredAtDesc(events []types.StoredEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].StoredAt > events[j].StoredAt
	})
}

func (s *Store) paginate(events []types.StoredEvent, limit, offset int) []types.StoredEvent {
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(events) {
		return nil
	}
	end := offset + limit
	if end > len(events) {
		end = len(events)
	}
	return events[offset:end]
}
