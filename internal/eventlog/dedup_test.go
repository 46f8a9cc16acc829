package eventlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookrelay/hookrelay/pkg/types"
)

func TestDedupCache_HasAdd(t *testing.T) {
	cache := NewDedupCache(0, 0)

	assert.False(t, cache.Has("k1"))
	cache.Add("k1")
	assert.True(t, cache.Has("k1"))

	// Re-adding is a no-op.
	cache.Add("k1")
	assert.Equal(t, 1, cache.Len())
}

func TestDedupCache_EvictionBound(t *testing.T) {
	capacity := 100
	cache := NewDedupCache(capacity, 0)

	for i := 0; i < capacity*3; i++ {
		key := fmt.Sprintf("key-%d", i)
		cache.Add(key)
		assert.LessOrEqual(t, cache.Len(), capacity)
		assert.True(t, cache.Has(key), "most recently inserted key must survive insertion")
	}

	// The oldest keys were dropped along the way.
	assert.False(t, cache.Has("key-0"))
}

func TestDedupCache_SeedFromTail(t *testing.T) {
	dir := t.TempDir()
	seedTail := 50
	extra := 25

	sourceDir := filepath.Join(dir, "github")
	require.NoError(t, os.MkdirAll(sourceDir, 0755))

	var lines []byte
	for i := 0; i < seedTail+extra; i++ {
		event := types.NewStoredEvent(int64(i), "github", "push", nil, fmt.Sprintf("key-%d", i))
		line, err := json.Marshal(event)
		require.NoError(t, err)
		lines = append(lines, append(line, '\n')...)
	}
	require.NoError(t, os.WriteFile(filepath.Join(sourceDir, logFileName), lines, 0644))

	cache := NewDedupCache(1000, seedTail)
	cache.SeedFromDir(dir)

	// Only the most recent seedTail keys are recognized.
	for i := 0; i < extra; i++ {
		assert.False(t, cache.Has(fmt.Sprintf("key-%d", i)), "key-%d is beyond the seed window", i)
	}
	for i := extra; i < seedTail+extra; i++ {
		assert.True(t, cache.Has(fmt.Sprintf("key-%d", i)), "key-%d is inside the seed window", i)
	}
}

func TestDedupCache_SeedSkipsGarbage(t *testing.T) {
	dir := t.TempDir()
	sourceDir := filepath.Join(dir, "github")
	require.NoError(t, os.MkdirAll(sourceDir, 0755))

	content := "not json at all\n" +
		`{"idempotencyKey":"good-key"}` + "\n" +
		`{"noKeyHere":true}` + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(sourceDir, logFileName), []byte(content), 0644))

	cache := NewDedupCache(0, 0)
	cache.SeedFromDir(dir)

	assert.True(t, cache.Has("good-key"))
	assert.Equal(t, 1, cache.Len())
}

func TestDedupCache_SeedMissingDir(t *testing.T) {
	cache := NewDedupCache(0, 0)
	cache.SeedFromDir(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Equal(t, 0, cache.Len())
}

func TestDedupLazySeedThroughStore(t *testing.T) {
	dir := t.TempDir()

	// First store instance writes an event, then goes away (process restart).
	first := NewStore(dir, NewDedupCache(0, 0))
	_, err := first.Append(types.NewStoredEvent(1, "github", "push", nil, "replayed-key"))
	require.NoError(t, err)

	// A fresh store with a fresh cache must still reject the replay, because
	// the first append lazily seeds from the log tail.
	second := NewStore(dir, NewDedupCache(0, 0))
	stored, err := second.Append(types.NewStoredEvent(1, "github", "push", nil, "replayed-key"))
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Nil(t, stored)
}

func TestTailLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log")

	var content []byte
	for i := 0; i < 1000; i++ {
		content = append(content, []byte(fmt.Sprintf("line-%d\n", i))...)
	}
	require.NoError(t, os.WriteFile(path, content, 0644))

	lines := tailLines(path, 10)
	require.Len(t, lines, 10)
	assert.Equal(t, "line-990", string(lines[0]))
	assert.Equal(t, "line-999", string(lines[9]))

	// Asking for more lines than exist returns them all.
	all := tailLines(path, 5000)
	assert.Len(t, all, 1000)

	assert.Nil(t, tailLines(filepath.Join(t.TempDir(), "missing"), 10))
}
