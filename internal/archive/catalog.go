// Package archive moves cold event log segments out of the hot path: rotated
// logs are snappy-compressed, fingerprinted, uploaded to object storage and
// recorded in a SQLite catalog.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SegmentRecord describes one archived log segment.
type SegmentRecord struct {
	SegmentID       string
	Source          string
	ObjectPath      string
	RawBytes        int64
	CompressedBytes int64
	Checksum        string
	ArchivedAt      time.Time
}

const segmentsSchema = `
CREATE TABLE IF NOT EXISTS segments (
	segment_id       TEXT PRIMARY KEY,
	source           TEXT NOT NULL,
	object_path      TEXT NOT NULL UNIQUE,
	raw_bytes        INTEGER NOT NULL,
	compressed_bytes INTEGER NOT NULL,
	checksum         TEXT NOT NULL,
	archived_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_segments_source ON segments(source, archived_at);
`

// Catalog tracks archived segments in SQLite. One write connection guarded by
// a mutex, a small read pool for concurrent lookups.
type Catalog struct {
	db     *sql.DB
	readDB *sql.DB
	mu     sync.Mutex
}

func NewCatalog(dbPath string) (*Catalog, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("archive: failed to open catalog: %w", err)
	}
	db.SetMaxOpenConns(1) // Single writer
	db.SetMaxIdleConns(1)

	readDB, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&mode=ro")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: failed to open catalog reader: %w", err)
	}
	readDB.SetMaxOpenConns(4)
	readDB.SetMaxIdleConns(4)
	readDB.SetConnMaxLifetime(5 * time.Minute)

	if _, err := db.Exec(segmentsSchema); err != nil {
		readDB.Close()
		db.Close()
		return nil, fmt.Errorf("archive: failed to initialize catalog schema: %w", err)
	}

	return &Catalog{db: db, readDB: readDB}, nil
}

// RegisterSegment records an archived segment. Re-registering the same object
// path is a no-op so a retried upload never double-counts.
func (c *Catalog) RegisterSegment(ctx context.Context, rec SegmentRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO segments (
			segment_id, source, object_path,
			raw_bytes, compressed_bytes, checksum, archived_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.SegmentID, rec.Source, rec.ObjectPath,
		rec.RawBytes, rec.CompressedBytes, rec.Checksum, rec.ArchivedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("archive: failed to register segment: %w", err)
	}
	return nil
}

// ListSegments returns all segments for a source, newest first. An empty
// source lists everything.
func (c *Catalog) ListSegments(ctx context.Context, source string) ([]SegmentRecord, error) {
	query := `
		SELECT segment_id, source, object_path,
		       raw_bytes, compressed_bytes, checksum, archived_at
		FROM segments`
	args := []interface{}{}
	if source != "" {
		query += ` WHERE source = ?`
		args = append(args, source)
	}
	query += ` ORDER BY archived_at DESC, segment_id DESC`

	rows, err := c.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("archive: failed to list segments: %w", err)
	}
	defer rows.Close()

	var records []SegmentRecord
	for rows.Next() {
		var rec SegmentRecord
		var archivedAt int64
		if err := rows.Scan(
			&rec.SegmentID, &rec.Source, &rec.ObjectPath,
			&rec.RawBytes, &rec.CompressedBytes, &rec.Checksum, &archivedAt,
		); err != nil {
			return nil, fmt.Errorf("archive: failed to scan segment: %w", err)
		}
		rec.ArchivedAt = time.Unix(archivedAt, 0).UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetSegment retrieves one segment by id. Returns (nil, nil) when absent.
func (c *Catalog) GetSegment(ctx context.Context, segmentID string) (*SegmentRecord, error) {
	var rec SegmentRecord
	var archivedAt int64
	err := c.readDB.QueryRowContext(ctx, `
		SELECT segment_id, source, object_path,
		       raw_bytes, compressed_bytes, checksum, archived_at
		FROM segments WHERE segment_id = ?`, segmentID,
	).Scan(
		&rec.SegmentID, &rec.Source, &rec.ObjectPath,
		&rec.RawBytes, &rec.CompressedBytes, &rec.Checksum, &archivedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("archive: failed to get segment: %w", err)
	}
	rec.ArchivedAt = time.Unix(archivedAt, 0).UTC()
	return &rec, nil
}

func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rerr := c.readDB.Close()
	werr := c.db.Close()
	if werr != nil {
		return werr
	}
	return rerr
}
