package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"mediacat/internal/metrics"
	"mediacat/internal/models"
)

// Storage is the catalog of committed media records
type Storage struct {
	db     *sql.DB
	dbPath string
}

// timeLayout sorts lexicographically, which date range queries rely on.
const timeLayout = "2006-01-02 15:04:05.000000000"

// NewStorage opens (or creates) the catalog database at dbPath
func NewStorage(dbPath string) (*Storage, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Pragmas are per connection
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &Storage{db: db, dbPath: dbPath}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Current schema version
const schemaVersion = 4

// migrations defines all schema migrations. column names the column a
// migration adds, so it can be skipped when already present.
var migrations = []struct {
	version     int
	description string
	column      string
	up          string
}{
	{
		version:     1,
		description: "Initial schema",
		up:          "", // Handled by base schema creation
	},
	{
		version:     2,
		description: "Add video columns",
		column:      "duration_seconds",
		up: `
			ALTER TABLE images ADD COLUMN duration_seconds REAL;
			ALTER TABLE images ADD COLUMN video_codec TEXT;
		`,
	},
	{
		version:     3,
		description: "Add perceptual_hash column for near-duplicate matching",
		column:      "perceptual_hash",
		up: `
			ALTER TABLE images ADD COLUMN perceptual_hash INTEGER DEFAULT 0;
			CREATE INDEX IF NOT EXISTS idx_images_perceptual_hash ON images(perceptual_hash);
		`,
	},
	{
		version:     4,
		description: "Add embeddings table",
		up: `
			CREATE TABLE IF NOT EXISTS embeddings (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				image_id INTEGER NOT NULL UNIQUE REFERENCES images(id) ON DELETE CASCADE,
				embedding BLOB NOT NULL,
				model_version TEXT NOT NULL,
				created_at TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_embeddings_model_version ON embeddings(model_version);
		`,
	},
}

// init creates the database schema
func (s *Storage) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS images (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT UNIQUE NOT NULL,
		media_type TEXT NOT NULL DEFAULT 'image',
		thumbnail_small TEXT NOT NULL DEFAULT '',
		thumbnail_medium TEXT NOT NULL DEFAULT '',
		checksum TEXT NOT NULL,
		capture_date TEXT,
		camera_make TEXT,
		camera_model TEXT,
		gps_latitude REAL,
		gps_longitude REAL,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL,
		file_size INTEGER NOT NULL,
		file_modified TEXT NOT NULL,
		created_at TEXT NOT NULL,
		synced_at TEXT,
		sync_status TEXT NOT NULL DEFAULT 'pending'
	);

	CREATE INDEX IF NOT EXISTS idx_images_capture_date ON images(capture_date);
	CREATE INDEX IF NOT EXISTS idx_images_sync_status ON images(sync_status);
	CREATE INDEX IF NOT EXISTS idx_images_checksum ON images(checksum);

	CREATE TABLE IF NOT EXISTS tags (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		image_id INTEGER NOT NULL REFERENCES images(id) ON DELETE CASCADE,
		label TEXT NOT NULL,
		confidence REAL NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tags_image_id ON tags(image_id);
	CREATE INDEX IF NOT EXISTS idx_tags_label ON tags(label);

	CREATE TABLE IF NOT EXISTS scan_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		folder TEXT NOT NULL,
		scanned_at TEXT NOT NULL,
		total_images INTEGER NOT NULL,
		total_videos INTEGER NOT NULL,
		total_errors INTEGER NOT NULL,
		degraded INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	if err := s.migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// migrate runs pending schema migrations
func (s *Storage) migrate() error {
	currentVersion := s.getSchemaVersion()

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if m.up == "" || (m.column != "" && s.columnExists("images", m.column)) {
			s.setSchemaVersion(m.version)
			continue
		}
		if _, err := s.db.Exec(m.up); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.description, err)
		}
		s.setSchemaVersion(m.version)
	}
	return nil
}

// getSchemaVersion returns the current schema version
func (s *Storage) getSchemaVersion() int {
	var version int
	err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0
	}
	return version
}

// setSchemaVersion records a migration as applied
func (s *Storage) setSchemaVersion(version int) {
	s.db.Exec(`INSERT OR REPLACE INTO schema_version (version) VALUES (?)`, version)
}

// columnExists checks if a column exists in a table
func (s *Storage) columnExists(table, column string) bool {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?
	`, table, column).Scan(&count)
	if err != nil {
		return false
	}
	return count > 0
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// Path returns the database file location
func (s *Storage) Path() string {
	return s.dbPath
}

// Upsert inserts rec or updates the record with the same path and returns
// its id. The sync status is kept when the checksum is unchanged and reset
// to pending when the content changed.
func (s *Storage) Upsert(ctx context.Context, rec models.ImageRecord) (id int64, err error) {
	defer func(start time.Time) { metrics.ObserveCatalog("upsert", start, err) }(time.Now())
	return upsert(ctx, s.db, rec)
}

// rowQuerier is satisfied by *sql.DB and *sql.Tx
type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func upsert(ctx context.Context, q rowQuerier, rec models.ImageRecord) (id int64, err error) {
	if rec.Path == "" || rec.Checksum == "" {
		return 0, errors.New("upsert: path and checksum are required")
	}
	if rec.MediaType == "" {
		rec.MediaType = models.MediaImage
	}

	var lat, lon sql.NullFloat64
	if rec.GPSLatitude != nil && rec.GPSLongitude != nil {
		lat = sql.NullFloat64{Float64: *rec.GPSLatitude, Valid: true}
		lon = sql.NullFloat64{Float64: *rec.GPSLongitude, Valid: true}
	}

	err = q.QueryRowContext(ctx, `
		INSERT INTO images (
			path, media_type, thumbnail_small, thumbnail_medium, checksum, perceptual_hash,
			capture_date, camera_make, camera_model, gps_latitude, gps_longitude,
			width, height, file_size, file_modified, duration_seconds, video_codec,
			created_at, sync_status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'pending')
		ON CONFLICT(path) DO UPDATE SET
			media_type = excluded.media_type,
			thumbnail_small = excluded.thumbnail_small,
			thumbnail_medium = excluded.thumbnail_medium,
			perceptual_hash = excluded.perceptual_hash,
			capture_date = excluded.capture_date,
			camera_make = excluded.camera_make,
			camera_model = excluded.camera_model,
			gps_latitude = excluded.gps_latitude,
			gps_longitude = excluded.gps_longitude,
			width = excluded.width,
			height = excluded.height,
			file_size = excluded.file_size,
			file_modified = excluded.file_modified,
			duration_seconds = excluded.duration_seconds,
			video_codec = excluded.video_codec,
			sync_status = CASE WHEN images.checksum = excluded.checksum THEN images.sync_status ELSE 'pending' END,
			synced_at = CASE WHEN images.checksum = excluded.checksum THEN images.synced_at ELSE NULL END,
			checksum = excluded.checksum
		RETURNING id
	`,
		rec.Path,
		string(rec.MediaType),
		rec.ThumbnailSmall,
		rec.ThumbnailMedium,
		rec.Checksum,
		int64(rec.PerceptualHash), // SQLite integers are signed
		formatTimePtr(rec.CaptureDate),
		nullString(rec.CameraMake),
		nullString(rec.CameraModel),
		lat,
		lon,
		rec.Width,
		rec.Height,
		int64(rec.FileSize),
		formatTime(rec.FileModified),
		nullFloat(rec.DurationSeconds),
		nullString(rec.VideoCodec),
		formatTime(time.Now()),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert %s: %w", rec.Path, err)
	}
	return id, nil
}

// UpsertAll writes recs in one transaction and returns their ids in
// order. If any record fails nothing is written.
func (s *Storage) UpsertAll(ctx context.Context, recs []models.ImageRecord) (ids []int64, err error) {
	defer func(start time.Time) { metrics.ObserveCatalog("upsert_all", start, err) }(time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ids = make([]int64, 0, len(recs))
	for _, rec := range recs {
		id, err := upsert(ctx, tx, rec)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit upserts: %w", err)
	}
	return ids, nil
}

// RecordScan records a scan in history
func (s *Storage) RecordScan(ctx context.Context, result *models.ScanResult) (err error) {
	defer func(start time.Time) { metrics.ObserveCatalog("record_scan", start, err) }(time.Now())

	degraded := 0
	if result.Degraded {
		degraded = 1
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scan_history (run_id, folder, scanned_at, total_images, total_videos, total_errors, degraded, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, result.RunID, result.Root, formatTime(time.Now()), result.ImageCount, result.VideoCount,
		len(result.Errors), degraded, result.Duration.Milliseconds())
	return err
}

// ScanRecord is one row of scan history
type ScanRecord struct {
	RunID       string
	Folder      string
	ScannedAt   time.Time
	TotalImages int
	TotalVideos int
	TotalErrors int
	Degraded    bool
	Duration    time.Duration
}

// RecentScans returns the latest scans, newest first
func (s *Storage) RecentScans(ctx context.Context, limit int) ([]ScanRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, folder, scanned_at, total_images, total_videos, total_errors, degraded, duration_ms
		FROM scan_history ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query scan history: %w", err)
	}
	defer rows.Close()

	var out []ScanRecord
	for rows.Next() {
		var r ScanRecord
		var scannedAt string
		var degraded int
		var ms int64
		if err := rows.Scan(&r.RunID, &r.Folder, &scannedAt, &r.TotalImages, &r.TotalVideos, &r.TotalErrors, &degraded, &ms); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		r.ScannedAt = parseTime(scannedAt)
		r.Degraded = degraded == 1
		r.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

// Stats summarizes the catalog
type Stats struct {
	Records   int   `json:"records"`
	Images    int   `json:"images"`
	Videos    int   `json:"videos"`
	Pending   int   `json:"pending"`
	Synced    int   `json:"synced"`
	Failed    int   `json:"failed"`
	Tags      int   `json:"tags"`
	TotalSize int64 `json:"total_size"`
}

// Stats counts records by type and sync state
func (s *Storage) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(media_type = 'image'), 0),
			COALESCE(SUM(media_type = 'video'), 0),
			COALESCE(SUM(sync_status = 'pending'), 0),
			COALESCE(SUM(sync_status = 'synced'), 0),
			COALESCE(SUM(sync_status = 'failed'), 0),
			COALESCE(SUM(file_size), 0)
		FROM images
	`).Scan(&st.Records, &st.Images, &st.Videos, &st.Pending, &st.Synced, &st.Failed, &st.TotalSize)
	if err != nil {
		return st, fmt.Errorf("failed to read stats: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tags`).Scan(&st.Tags); err != nil {
		return st, fmt.Errorf("failed to count tags: %w", err)
	}
	return st, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) time.Time {
	t, err := time.ParseInLocation(timeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
