// Package cloudsync backs catalog records up to an S3 compatible bucket.
package cloudsync

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"mediacat/internal/metrics"
	"mediacat/internal/models"
)

// Catalog is the part of the catalog the syncer reads and updates
type Catalog interface {
	Get(ctx context.Context, id int64) (*models.ImageRecord, error)
	ListBySyncStatus(ctx context.Context, status models.SyncStatus) ([]*models.ImageRecord, error)
	UpdateSyncStatus(ctx context.Context, id int64, status models.SyncStatus, at time.Time) error
}

// SyncError attributes a failed upload to a record
type SyncError struct {
	ID      int64
	Path    string
	Message string
}

// SyncResult counts what a sync did
type SyncResult struct {
	Uploaded int
	Skipped  int
	Failed   int
	Bytes    int64
	Errors   []SyncError
}

// Progress is reported after each record
type Progress struct {
	Done   int
	Total  int
	Path   string
	Status string // "uploaded", "skipped", "excluded", "failed"
}

const (
	defaultAttempts = 3
	defaultBackoff  = time.Second
)

// Syncer uploads catalog records and tracks their sync status
type Syncer struct {
	uploader Uploader
	catalog  Catalog
	exclude  []string
	attempts int
	backoff  time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
	logger   *zap.Logger
}

// Option configures a Syncer
type Option func(*Syncer)

// WithExclude skips records whose base name or path matches a glob
func WithExclude(patterns []string) Option {
	return func(s *Syncer) {
		s.exclude = patterns
	}
}

// WithRetry sets the attempts per upload and the first backoff, which
// doubles after every failed attempt
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(s *Syncer) {
		if attempts > 0 {
			s.attempts = attempts
		}
		s.backoff = backoff
	}
}

// WithSleep replaces the wait between attempts
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Syncer) {
		s.sleep = fn
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Syncer) {
		s.logger = logger
	}
}

// NewSyncer creates a Syncer
func NewSyncer(uploader Uploader, catalog Catalog, opts ...Option) *Syncer {
	s := &Syncer{
		uploader: uploader,
		catalog:  catalog,
		attempts: defaultAttempts,
		backoff:  defaultBackoff,
		sleep:    sleepContext,
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ObjectKey names the object a record is stored under. Identical content
// under the same name maps to one object.
func ObjectKey(rec *models.ImageRecord) string {
	return rec.Checksum + "_" + filepath.Base(rec.Path)
}

// Excluded reports whether path matches one of the exclude patterns
func (s *Syncer) Excluded(path string) bool {
	base := filepath.Base(path)
	for _, p := range s.exclude {
		if ok, _ := filepath.Match(p, base); ok {
			return true
		}
		if ok, _ := filepath.Match(p, path); ok {
			return true
		}
	}
	return false
}

// Sync uploads the records with the given ids, or every pending and
// previously failed record when ids is empty. Upload failures are counted
// in the result; only cancellation and catalog errors are returned.
func (s *Syncer) Sync(ctx context.Context, ids []int64, progress func(Progress)) (SyncResult, error) {
	var res SyncResult

	recs, err := s.selectRecords(ctx, ids)
	if err != nil {
		return res, err
	}

	for i, rec := range recs {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		status, err := s.syncOne(ctx, rec, &res)
		if err != nil {
			return res, err
		}
		metrics.SyncObjectsTotal.WithLabelValues(status).Inc()
		if progress != nil {
			progress(Progress{Done: i + 1, Total: len(recs), Path: rec.Path, Status: status})
		}
	}

	s.logger.Info("sync finished",
		zap.Int("uploaded", res.Uploaded),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

func (s *Syncer) selectRecords(ctx context.Context, ids []int64) ([]*models.ImageRecord, error) {
	if len(ids) == 0 {
		pending, err := s.catalog.ListBySyncStatus(ctx, models.SyncPending)
		if err != nil {
			return nil, err
		}
		failed, err := s.catalog.ListBySyncStatus(ctx, models.SyncFailed)
		if err != nil {
			return nil, err
		}
		return append(pending, failed...), nil
	}

	recs := make([]*models.ImageRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.catalog.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, fmt.Errorf("image %d not found", id)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (s *Syncer) syncOne(ctx context.Context, rec *models.ImageRecord, res *SyncResult) (string, error) {
	if s.Excluded(rec.Path) {
		res.Skipped++
		return "excluded", nil
	}

	key := ObjectKey(rec)
	exists, err := s.uploader.Exists(ctx, key)
	if err == nil && exists {
		res.Skipped++
		return "skipped", s.catalog.UpdateSyncStatus(ctx, rec.ID, models.SyncSynced, s.now())
	}

	var n int64
	if err == nil {
		n, err = s.uploadWithRetry(ctx, key, rec.Path)
	}
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		res.Failed++
		res.Errors = append(res.Errors, SyncError{ID: rec.ID, Path: rec.Path, Message: err.Error()})
		s.logger.Warn("upload failed", zap.Int64("id", rec.ID), zap.String("path", rec.Path), zap.Error(err))
		return "failed", s.catalog.UpdateSyncStatus(ctx, rec.ID, models.SyncFailed, s.now())
	}

	res.Uploaded++
	res.Bytes += n
	metrics.SyncUploadBytes.Add(float64(n))
	s.logger.Debug("uploaded", zap.String("key", key), zap.Int64("bytes", n))
	return "uploaded", s.catalog.UpdateSyncStatus(ctx, rec.ID, models.SyncSynced, s.now())
}

func (s *Syncer) uploadWithRetry(ctx context.Context, key, path string) (int64, error) {
	var lastErr error
	wait := s.backoff
	for attempt := 1; attempt <= s.attempts; attempt++ {
		n, err := s.uploader.Upload(ctx, key, path, "")
		if err == nil {
			return n, nil
		}
		lastErr = err
		if attempt == s.attempts {
			break
		}
		s.logger.Debug("retrying upload", zap.String("key", key), zap.Int("attempt", attempt), zap.Duration("wait", wait))
		if err := s.sleep(ctx, wait); err != nil {
			return 0, err
		}
		wait *= 2
	}
	return 0, fmt.Errorf("after %d attempts: %w", s.attempts, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
