package archive

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/spaolacci/murmur3"

	"github.com/hookrelay/hookrelay/internal/errors"
	"github.com/hookrelay/hookrelay/internal/observability"
	"github.com/hookrelay/hookrelay/internal/storage"
)

// EventLog is the subset of the event store the archiver drives.
type EventLog interface {
	ListSources() []string
	ActiveLogSize(source string) int64
	RotateActive(source string) (string, error)
}

// DefaultMaxActiveBytes rotates a source log once it passes 64 MiB.
const DefaultMaxActiveBytes int64 = 64 << 20

// DefaultCheckInterval is how often the daemon scans log sizes.
const DefaultCheckInterval = time.Minute

// Archiver watches active event logs and moves oversized ones to object
// storage as compressed segments.
type Archiver struct {
	events  EventLog
	store   storage.ObjectStorage
	catalog *Catalog
	metrics *observability.Metrics

	maxActiveBytes int64
	checkInterval  time.Duration
	workDir        string

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

type Option func(*Archiver)

// WithMaxActiveBytes sets the rotation threshold for a source's active log.
func WithMaxActiveBytes(n int64) Option {
	return func(a *Archiver) {
		if n > 0 {
			a.maxActiveBytes = n
		}
	}
}

// WithCheckInterval sets how often the daemon scans for oversized logs.
func WithCheckInterval(d time.Duration) Option {
	return func(a *Archiver) {
		if d > 0 {
			a.checkInterval = d
		}
	}
}

// WithWorkDir sets where compressed segments are staged before upload.
func WithWorkDir(dir string) Option {
	return func(a *Archiver) {
		if dir != "" {
			a.workDir = dir
		}
	}
}

func WithMetrics(m *observability.Metrics) Option {
	return func(a *Archiver) {
		a.metrics = m
	}
}

func New(events EventLog, store storage.ObjectStorage, catalog *Catalog, opts ...Option) *Archiver {
	a := &Archiver{
		events:         events,
		store:          store,
		catalog:        catalog,
		maxActiveBytes: DefaultMaxActiveBytes,
		checkInterval:  DefaultCheckInterval,
		workDir:        os.TempDir(),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start runs the scan loop in the background until Stop is called.
func (a *Archiver) Start() {
	go func() {
		defer close(a.done)
		ticker := time.NewTicker(a.checkInterval)
		defer ticker.Stop()

		for {
			select {
			case <-a.stop:
				return
			case <-ticker.C:
				if err := a.RunOnce(context.Background()); err != nil {
					log.Printf("archive: scan failed: %v", err)
				}
			}
		}
	}()
}

// Stop halts the scan loop and waits for the in-flight scan to finish.
func (a *Archiver) Stop() {
	a.stopOnce.Do(func() {
		close(a.stop)
	})
	<-a.done
}

// RunOnce scans every source once and archives each oversized active log.
// Per-source failures are logged and do not stop the scan.
func (a *Archiver) RunOnce(ctx context.Context) error {
	for _, source := range a.events.ListSources() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if a.events.ActiveLogSize(source) < a.maxActiveBytes {
			continue
		}
		if err := a.archiveSource(ctx, source); err != nil {
			log.Printf("archive: failed to archive source %s: %v", source, err)
		}
	}
	return nil
}

// archiveSource rotates one source's active log, compresses and fingerprints
// it, uploads the segment and records it in the catalog. The rotated file and
// the staged segment are removed only after the catalog write succeeds.
func (a *Archiver) archiveSource(ctx context.Context, source string) error {
	rotated, err := a.events.RotateActive(source)
	if err != nil {
		return errors.NewArchiveError(errors.CodeRotateFailed, "failed to rotate active log", err)
	}

	raw, err := os.ReadFile(rotated)
	if err != nil {
		return errors.NewArchiveError(errors.CodeRotateFailed, "failed to read rotated log", err)
	}

	compressed := snappy.Encode(nil, raw)
	checksum := fingerprint(raw)

	segmentID := filepath.Base(rotated)
	staged := filepath.Join(a.workDir, segmentID+".sz")
	if err := os.WriteFile(staged, compressed, 0644); err != nil {
		return errors.NewArchiveError(errors.CodeUploadFailed, "failed to stage compressed segment", err)
	}
	defer os.Remove(staged)

	objectPath := path.Join("segments", source, segmentID+".sz")
	if err := a.store.Upload(ctx, staged, objectPath); err != nil {
		return errors.NewArchiveError(errors.CodeUploadFailed, "failed to upload segment", err)
	}

	rec := SegmentRecord{
		SegmentID:       segmentID,
		Source:          source,
		ObjectPath:      objectPath,
		RawBytes:        int64(len(raw)),
		CompressedBytes: int64(len(compressed)),
		Checksum:        checksum,
		ArchivedAt:      time.Now().UTC(),
	}
	if err := a.catalog.RegisterSegment(ctx, rec); err != nil {
		return err
	}

	if err := os.Remove(rotated); err != nil {
		log.Printf("archive: failed to remove rotated log %s: %v", rotated, err)
	}

	a.metrics.SegmentArchived(source)
	log.Printf("archive: archived segment %s for source %s (%d -> %d bytes)",
		segmentID, source, rec.RawBytes, rec.CompressedBytes)
	return nil
}

// Restore downloads a segment, verifies its fingerprint and returns the
// decompressed log contents.
func (a *Archiver) Restore(ctx context.Context, segmentID string) ([]byte, error) {
	rec, err := a.catalog.GetSegment(ctx, segmentID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, errors.NewArchiveError(errors.CodeChecksumFailed,
			fmt.Sprintf("unknown segment %s", segmentID), nil)
	}

	staged := filepath.Join(a.workDir, "restore-"+segmentID+".sz")
	if err := a.store.Download(ctx, rec.ObjectPath, staged); err != nil {
		return nil, errors.NewArchiveError(errors.CodeUploadFailed, "failed to download segment", err)
	}
	defer os.Remove(staged)

	compressed, err := os.ReadFile(staged)
	if err != nil {
		return nil, errors.NewArchiveError(errors.CodeUploadFailed, "failed to read downloaded segment", err)
	}

	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, errors.NewArchiveError(errors.CodeChecksumFailed, "failed to decompress segment", err)
	}
	if got := fingerprint(raw); got != rec.Checksum {
		return nil, errors.NewArchiveError(errors.CodeChecksumFailed,
			fmt.Sprintf("segment %s fingerprint mismatch: got %s want %s", segmentID, got, rec.Checksum), nil)
	}
	return raw, nil
}

func fingerprint(data []byte) string {
	h := murmur3.New128()
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
