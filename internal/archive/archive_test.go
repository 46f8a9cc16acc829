package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookrelay/hookrelay/internal/eventlog"
	"github.com/hookrelay/hookrelay/internal/storage"
	"github.com/hookrelay/hookrelay/pkg/types"
)

func newCatalog(t *testing.T) *Catalog {
	t.Helper()
	catalog, err := NewCatalog(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { catalog.Close() })
	return catalog
}

func TestCatalogRegisterAndList(t *testing.T) {
	ctx := context.Background()
	catalog := newCatalog(t)

	older := SegmentRecord{
		SegmentID:       "events-1.jsonl",
		Source:          "github",
		ObjectPath:      "segments/github/events-1.jsonl.sz",
		RawBytes:        1000,
		CompressedBytes: 400,
		Checksum:        "abc",
		ArchivedAt:      time.Now().Add(-time.Hour).UTC(),
	}
	newer := SegmentRecord{
		SegmentID:       "events-2.jsonl",
		Source:          "github",
		ObjectPath:      "segments/github/events-2.jsonl.sz",
		RawBytes:        2000,
		CompressedBytes: 900,
		Checksum:        "def",
		ArchivedAt:      time.Now().UTC(),
	}
	require.NoError(t, catalog.RegisterSegment(ctx, older))
	require.NoError(t, catalog.RegisterSegment(ctx, newer))
	require.NoError(t, catalog.RegisterSegment(ctx, SegmentRecord{
		SegmentID:  "events-9.jsonl",
		Source:     "slack",
		ObjectPath: "segments/slack/events-9.jsonl.sz",
		Checksum:   "zzz",
		ArchivedAt: time.Now().UTC(),
	}))

	github, err := catalog.ListSegments(ctx, "github")
	require.NoError(t, err)
	require.Len(t, github, 2)
	assert.Equal(t, "events-2.jsonl", github[0].SegmentID, "newest first")
	assert.Equal(t, "events-1.jsonl", github[1].SegmentID)

	all, err := catalog.ListSegments(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestCatalogRegisterIdempotent(t *testing.T) {
	ctx := context.Background()
	catalog := newCatalog(t)

	rec := SegmentRecord{
		SegmentID:  "events-1.jsonl",
		Source:     "github",
		ObjectPath: "segments/github/events-1.jsonl.sz",
		Checksum:   "abc",
		ArchivedAt: time.Now().UTC(),
	}
	require.NoError(t, catalog.RegisterSegment(ctx, rec))
	require.NoError(t, catalog.RegisterSegment(ctx, rec))

	segments, err := catalog.ListSegments(ctx, "github")
	require.NoError(t, err)
	assert.Len(t, segments, 1)
}

func TestCatalogGetSegment(t *testing.T) {
	ctx := context.Background()
	catalog := newCatalog(t)

	rec := SegmentRecord{
		SegmentID:       "events-1.jsonl",
		Source:          "github",
		ObjectPath:      "segments/github/events-1.jsonl.sz",
		RawBytes:        100,
		CompressedBytes: 40,
		Checksum:        "abc",
		ArchivedAt:      time.Now().Truncate(time.Second).UTC(),
	}
	require.NoError(t, catalog.RegisterSegment(ctx, rec))

	got, err := catalog.GetSegment(ctx, "events-1.jsonl")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.ObjectPath, got.ObjectPath)
	assert.Equal(t, rec.Checksum, got.Checksum)

	missing, err := catalog.GetSegment(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func newArchiverFixture(t *testing.T, maxBytes int64) (*Archiver, *eventlog.Store, *Catalog) {
	t.Helper()

	events := eventlog.NewStore(t.TempDir(), eventlog.NewDedupCache(0, 0))
	objects, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	catalog := newCatalog(t)

	a := New(events, objects, catalog,
		WithMaxActiveBytes(maxBytes),
		WithWorkDir(t.TempDir()),
	)
	return a, events, catalog
}

func appendEvents(t *testing.T, events *eventlog.Store, source string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := events.Append(types.NewStoredEvent(int64(i), source, "push",
			map[string]interface{}{"seq": float64(i)}, ""))
		require.NoError(t, err)
	}
}

func TestArchiverRunOnce(t *testing.T) {
	ctx := context.Background()
	a, events, catalog := newArchiverFixture(t, 1)

	appendEvents(t, events, "github", 10)
	require.NoError(t, a.RunOnce(ctx))

	// The active log was rotated away and a segment recorded.
	assert.Zero(t, events.ActiveLogSize("github"))
	segments, err := catalog.ListSegments(ctx, "github")
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Positive(t, segments[0].RawBytes)
	assert.Positive(t, segments[0].CompressedBytes)
	assert.NotEmpty(t, segments[0].Checksum)

	// No rotated leftovers on disk.
	entries, err := os.ReadDir(filepath.Join(events.Dir(), "github"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestArchiverSkipsSmallLogs(t *testing.T) {
	ctx := context.Background()
	a, events, catalog := newArchiverFixture(t, DefaultMaxActiveBytes)

	appendEvents(t, events, "github", 3)
	require.NoError(t, a.RunOnce(ctx))

	assert.Positive(t, events.ActiveLogSize("github"))
	segments, err := catalog.ListSegments(ctx, "github")
	require.NoError(t, err)
	assert.Empty(t, segments)
}

func TestArchiverRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	a, events, catalog := newArchiverFixture(t, 1)

	appendEvents(t, events, "github", 5)
	require.NoError(t, a.RunOnce(ctx))

	segments, err := catalog.ListSegments(ctx, "github")
	require.NoError(t, err)
	require.Len(t, segments, 1)

	raw, err := a.Restore(ctx, segments[0].SegmentID)
	require.NoError(t, err)
	assert.Equal(t, segments[0].RawBytes, int64(len(raw)))
	assert.Contains(t, string(raw), `"source":"github"`)
}

func TestArchiverRestoreUnknownSegment(t *testing.T) {
	a, _, _ := newArchiverFixture(t, 1)

	_, err := a.Restore(context.Background(), "nope")
	assert.Error(t, err)
}

func TestArchiverStartStop(t *testing.T) {
	a, events, catalog := newArchiverFixture(t, 1)
	a.checkInterval = 10 * time.Millisecond

	appendEvents(t, events, "github", 5)
	a.Start()

	require.Eventually(t, func() bool {
		segments, err := catalog.ListSegments(context.Background(), "github")
		return err == nil && len(segments) == 1
	}, 2*time.Second, 20*time.Millisecond)

	a.Stop()
}
