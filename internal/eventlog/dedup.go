package eventlog

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// DedupCache is a bounded in-memory set of idempotency keys guarding the
// event log against duplicate writes. It is advisory: a forgotten key causes
// at worst a duplicate row, and false positives cannot occur because keys
// are only added after a confirmed write.
type DedupCache struct {
	mu       sync.Mutex
	capacity int
	seedTail int
	keys     map[string]struct{}
	order    []string
}

const (
	// DefaultCapacity is the hard cap on remembered keys.
	DefaultCapacity = 5000

	// DefaultSeedTailLines bounds how many trailing log lines per source are
	// scanned on first use, covering the realistic replay window regardless
	// of log size.
	DefaultSeedTailLines = 500
)

// NewDedupCache creates a dedup cache with the given capacity and per-source
// seed tail. Non-positive arguments fall back to the defaults.
func NewDedupCache(capacity, seedTail int) *DedupCache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if seedTail <= 0 {
		seedTail = DefaultSeedTailLines
	}
	return &DedupCache{
		capacity: capacity,
		seedTail: seedTail,
		keys:     make(map[string]struct{}),
	}
}

// Has reports whether the key has been seen.
func (c *DedupCache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.keys[key]
	return ok
}

// Add registers a key, evicting the oldest half in insertion order when the
// capacity is exceeded. Approximate FIFO; the goal is bounding memory, not
// perfect retention.
func (c *DedupCache) Add(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.add(key)
}

func (c *DedupCache) add(key string) {
	if _, ok := c.keys[key]; ok {
		return
	}
	c.keys[key] = struct{}{}
	c.order = append(c.order, key)

	if len(c.order) > c.capacity {
		drop := c.order[:len(c.order)/2]
		for _, k := range drop {
			delete(c.keys, k)
		}
		c.order = append([]string(nil), c.order[len(c.order)/2:]...)
	}
}

// Len returns the number of remembered keys.
func (c *DedupCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.keys)
}

// SeedFromDir scans the tail of every source's log file under eventsDir and
// registers each idempotency key found. Unreadable files and unparseable
// lines are skipped; seeding is best effort.
func (c *DedupCache) SeedFromDir(eventsDir string) {
	entries, err := os.ReadDir(eventsDir)
	if err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		logPath := filepath.Join(eventsDir, entry.Name(), logFileName)
		for _, line := range tailLines(logPath, c.seedTail) {
			var rec struct {
				IdempotencyKey string `json:"idempotencyKey"`
			}
			if err := json.Unmarshal(line, &rec); err != nil || rec.IdempotencyKey == "" {
				continue
			}
			c.add(rec.IdempotencyKey)
		}
	}
}

// tailChunkSize is the backward read granularity for tail scans.
const tailChunkSize = 32 * 1024

// tailLines returns up to n trailing newline-delimited lines of the file, in
// file order, without reading the whole file.
func tailLines(path string, n int) [][]byte {
	if n <= 0 {
		return nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil || stat.Size() == 0 {
		return nil
	}

	var (
		buf      []byte
		offset   = stat.Size()
		newlines int
	)
	for offset > 0 && newlines <= n {
		chunk := int64(tailChunkSize)
		if chunk > offset {
			chunk = offset
		}
		offset -= chunk

		part := make([]byte, chunk)
		if _, err := file.ReadAt(part, offset); err != nil && err != io.EOF {
			return nil
		}
		buf = append(part, buf...)

		newlines = 0
		for _, b := range buf {
			if b == '\n' {
				newlines++
			}
		}
	}

	lines := splitLines(buf)
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

// splitLines splits on '\n', dropping empty lines.
func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			if i > start {
				lines = append(lines, data[start:i])
			}
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}
