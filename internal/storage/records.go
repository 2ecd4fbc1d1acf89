package storage

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/didi/gendry/builder"

	"mediacat/internal/metrics"
	"mediacat/internal/models"
)

const (
	imagesTable = "images"
	tagsTable   = "tags"
)

// kmPerDegree approximates one degree of latitude.
const kmPerDegree = 111.0

var recordColumns = []string{
	"id", "path", "media_type", "thumbnail_small", "thumbnail_medium", "checksum", "perceptual_hash",
	"capture_date", "camera_make", "camera_model", "gps_latitude", "gps_longitude",
	"width", "height", "file_size", "file_modified", "duration_seconds", "video_codec",
	"created_at", "sync_status", "synced_at",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.ImageRecord, error) {
	var rec models.ImageRecord
	var (
		mediaType, syncStatus, fileModified, createdAt string
		captureDate, syncedAt                         sql.NullString
		cameraMake, cameraModel, videoCodec           sql.NullString
		lat, lon, duration                            sql.NullFloat64
		phash, fileSize                               int64
	)
	err := row.Scan(
		&rec.ID, &rec.Path, &mediaType, &rec.ThumbnailSmall, &rec.ThumbnailMedium, &rec.Checksum, &phash,
		&captureDate, &cameraMake, &cameraModel, &lat, &lon,
		&rec.Width, &rec.Height, &fileSize, &fileModified, &duration, &videoCodec,
		&createdAt, &syncStatus, &syncedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.MediaType = models.MediaType(mediaType)
	rec.SyncStatus = models.SyncStatus(syncStatus)
	rec.PerceptualHash = uint64(phash)
	rec.FileSize = uint64(fileSize)
	rec.FileModified = parseTime(fileModified)
	rec.CreatedAt = parseTime(createdAt)
	if captureDate.Valid {
		t := parseTime(captureDate.String)
		rec.CaptureDate = &t
	}
	if syncedAt.Valid {
		t := parseTime(syncedAt.String)
		rec.SyncedAt = &t
	}
	if cameraMake.Valid {
		rec.CameraMake = &cameraMake.String
	}
	if cameraModel.Valid {
		rec.CameraModel = &cameraModel.String
	}
	if videoCodec.Valid {
		rec.VideoCodec = &videoCodec.String
	}
	if lat.Valid && lon.Valid {
		rec.GPSLatitude = &lat.Float64
		rec.GPSLongitude = &lon.Float64
	}
	if duration.Valid {
		rec.DurationSeconds = &duration.Float64
	}
	return &rec, nil
}

func (s *Storage) selectRecords(ctx context.Context, where map[string]interface{}) ([]*models.ImageRecord, error) {
	query, args, err := builder.BuildSelect(imagesTable, where, recordColumns)
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query images: %w", err)
	}
	defer rows.Close()

	var out []*models.ImageRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Storage) selectOne(ctx context.Context, where map[string]interface{}) (*models.ImageRecord, error) {
	where["_limit"] = []uint{0, 1}
	recs, err := s.selectRecords(ctx, where)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return recs[0], nil
}

// Get returns the record with id, or nil when there is none
func (s *Storage) Get(ctx context.Context, id int64) (rec *models.ImageRecord, err error) {
	defer func(start time.Time) { metrics.ObserveCatalog("get", start, err) }(time.Now())
	return s.selectOne(ctx, map[string]interface{}{"id": id})
}

// GetByPath returns the record stored for path, or nil when there is none
func (s *Storage) GetByPath(ctx context.Context, path string) (rec *models.ImageRecord, err error) {
	defer func(start time.Time) { metrics.ObserveCatalog("get_by_path", start, err) }(time.Now())
	return s.selectOne(ctx, map[string]interface{}{"path": path})
}

// GetByChecksum returns every record with the given content checksum
func (s *Storage) GetByChecksum(ctx context.Context, checksum string) (recs []*models.ImageRecord, err error) {
	defer func(start time.Time) { metrics.ObserveCatalog("get_by_checksum", start, err) }(time.Now())
	return s.selectRecords(ctx, map[string]interface{}{
		"checksum": checksum,
		"_orderby": "id asc",
	})
}

// All returns every record ordered by path
func (s *Storage) All(ctx context.Context) (recs []*models.ImageRecord, err error) {
	defer func(start time.Time) { metrics.ObserveCatalog("all", start, err) }(time.Now())
	return s.selectRecords(ctx, map[string]interface{}{"_orderby": "path asc"})
}

// Query returns records matching every constraint of filter, newest
// capture first. Tags must all be present on a record. Text matches the
// path, camera make and model, or any tag label.
func (s *Storage) Query(ctx context.Context, filter models.ImageFilter) (recs []*models.ImageRecord, err error) {
	defer func(start time.Time) { metrics.ObserveCatalog("query", start, err) }(time.Now())

	where := map[string]interface{}{"_orderby": "capture_date desc, id asc"}
	if filter.DateFrom != nil {
		where["capture_date >="] = formatTime(*filter.DateFrom)
	}
	if filter.DateTo != nil {
		where["capture_date <="] = formatTime(*filter.DateTo)
	}
	if filter.CameraModel != "" {
		where["camera_model"] = filter.CameraModel
	}
	if filter.MediaType != "" {
		where["media_type"] = string(filter.MediaType)
	}
	if filter.SyncStatus != "" {
		where["sync_status"] = string(filter.SyncStatus)
	}

	var ids map[int64]bool
	if len(filter.Tags) > 0 {
		ids, err = s.idsWithAllTags(ctx, filter.Tags)
		if err != nil {
			return nil, err
		}
	}
	if text := strings.TrimSpace(filter.Text); text != "" {
		matched, err := s.idsMatchingText(ctx, text)
		if err != nil {
			return nil, err
		}
		ids = intersect(ids, matched)
	}
	if ids != nil {
		if len(ids) == 0 {
			return nil, nil
		}
		in := make([]interface{}, 0, len(ids))
		for id := range ids {
			in = append(in, id)
		}
		where["id in"] = in
	}

	loc := filter.Location
	if loc != nil {
		latDelta := loc.RadiusKm / kmPerDegree
		lonDelta := latDelta
		if c := math.Cos(loc.Latitude * math.Pi / 180); c > 1e-6 {
			lonDelta = latDelta / c
		}
		where["gps_latitude >="] = loc.Latitude - latDelta
		where["gps_latitude <="] = loc.Latitude + latDelta
		where["gps_longitude >="] = loc.Longitude - lonDelta
		where["gps_longitude <="] = loc.Longitude + lonDelta
	} else if filter.Limit > 0 {
		where["_limit"] = []uint{uint(max(filter.Offset, 0)), uint(filter.Limit)}
	}

	recs, err = s.selectRecords(ctx, where)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		if filter.Limit > 0 {
			return recs, nil
		}
		// Without a limit the offset is applied here
		return paginate(recs, filter.Offset, 0), nil
	}

	// The bounding box over-selects at the corners
	within := recs[:0]
	for _, rec := range recs {
		if haversineKm(loc.Latitude, loc.Longitude, *rec.GPSLatitude, *rec.GPSLongitude) <= loc.RadiusKm {
			within = append(within, rec)
		}
	}
	return paginate(within, filter.Offset, filter.Limit), nil
}

// ListBySyncStatus returns records in the given sync state, oldest first
func (s *Storage) ListBySyncStatus(ctx context.Context, status models.SyncStatus) (recs []*models.ImageRecord, err error) {
	defer func(start time.Time) { metrics.ObserveCatalog("list_by_sync_status", start, err) }(time.Now())
	return s.selectRecords(ctx, map[string]interface{}{
		"sync_status": string(status),
		"_orderby":    "id asc",
	})
}

// UpdateSyncStatus records the outcome of a cloud upload
func (s *Storage) UpdateSyncStatus(ctx context.Context, id int64, status models.SyncStatus, at time.Time) (err error) {
	defer func(start time.Time) { metrics.ObserveCatalog("update_sync_status", start, err) }(time.Now())

	update := map[string]interface{}{"sync_status": string(status)}
	if status == models.SyncSynced {
		update["synced_at"] = formatTime(at)
	}
	return s.update(ctx, id, update)
}

// UpdatePath points a record at its new location after a move
func (s *Storage) UpdatePath(ctx context.Context, id int64, path string) (err error) {
	defer func(start time.Time) { metrics.ObserveCatalog("update_path", start, err) }(time.Now())
	return s.update(ctx, id, map[string]interface{}{"path": path})
}

func (s *Storage) update(ctx context.Context, id int64, fields map[string]interface{}) error {
	query, args, err := builder.BuildUpdate(imagesTable, map[string]interface{}{"id": id}, fields)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update image %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("image %d: %w", id, sql.ErrNoRows)
	}
	return nil
}

// Delete removes the record and its tags, returning what was deleted.
// A missing id yields (nil, nil).
func (s *Storage) Delete(ctx context.Context, id int64) (rec *models.ImageRecord, err error) {
	defer func(start time.Time) { metrics.ObserveCatalog("delete", start, err) }(time.Now())

	rec, err = s.selectOne(ctx, map[string]interface{}{"id": id})
	if err != nil || rec == nil {
		return nil, err
	}
	query, args, err := builder.BuildDelete(imagesTable, map[string]interface{}{"id": id})
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("failed to delete image %d: %w", id, err)
	}
	return rec, nil
}

// AddTags attaches tags to a record, keeping the ones it already has
func (s *Storage) AddTags(ctx context.Context, imageID int64, tags []models.Tag) (err error) {
	defer func(start time.Time) { metrics.ObserveCatalog("add_tags", start, err) }(time.Now())
	return s.writeTags(ctx, imageID, tags, false)
}

// SetTags replaces the tags of a record
func (s *Storage) SetTags(ctx context.Context, imageID int64, tags []models.Tag) (err error) {
	defer func(start time.Time) { metrics.ObserveCatalog("set_tags", start, err) }(time.Now())
	return s.writeTags(ctx, imageID, tags, true)
}

func (s *Storage) writeTags(ctx context.Context, imageID int64, tags []models.Tag, replace bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if replace {
		query, args, err := builder.BuildDelete(tagsTable, map[string]interface{}{"image_id": imageID})
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to clear tags: %w", err)
		}
	}

	if len(tags) > 0 {
		now := formatTime(time.Now())
		payload := make([]map[string]interface{}, 0, len(tags))
		for _, tag := range tags {
			payload = append(payload, map[string]interface{}{
				"image_id":   imageID,
				"label":      strings.ToLower(strings.TrimSpace(tag.Label)),
				"confidence": tag.Confidence,
				"created_at": now,
			})
		}
		query, args, err := builder.BuildInsert(tagsTable, payload)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert tags for image %d: %w", imageID, err)
		}
	}
	return tx.Commit()
}

// TagsFor returns the tags of a record, most confident first
func (s *Storage) TagsFor(ctx context.Context, imageID int64) (tags []models.Tag, err error) {
	defer func(start time.Time) { metrics.ObserveCatalog("tags_for", start, err) }(time.Now())

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, image_id, label, confidence, created_at FROM tags
		WHERE image_id = ? ORDER BY confidence DESC, label ASC
	`, imageID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tag models.Tag
		var createdAt string
		if err := rows.Scan(&tag.ID, &tag.ImageID, &tag.Label, &tag.Confidence, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tag.CreatedAt = parseTime(createdAt)
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// Untagged returns records that carry no tags yet, oldest first
func (s *Storage) Untagged(ctx context.Context) (recs []*models.ImageRecord, err error) {
	defer func(start time.Time) { metrics.ObserveCatalog("untagged", start, err) }(time.Now())

	tagged, err := s.collectIDs(ctx, `SELECT DISTINCT image_id FROM tags`)
	if err != nil {
		return nil, err
	}
	all, err := s.selectRecords(ctx, map[string]interface{}{"_orderby": "id asc"})
	if err != nil {
		return nil, err
	}
	for _, rec := range all {
		if !tagged[rec.ID] {
			recs = append(recs, rec)
		}
	}
	return recs, nil
}

func (s *Storage) idsWithAllTags(ctx context.Context, labels []string) (map[int64]bool, error) {
	uniq := make(map[string]bool, len(labels))
	args := make([]any, 0, len(labels)+1)
	for _, l := range labels {
		l = strings.ToLower(strings.TrimSpace(l))
		if l == "" || uniq[l] {
			continue
		}
		uniq[l] = true
		args = append(args, l)
	}
	if len(args) == 0 {
		return nil, nil
	}
	args = append(args, len(uniq))

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(uniq)), ",")
	return s.collectIDs(ctx, `
		SELECT image_id FROM tags WHERE label IN (`+placeholders+`)
		GROUP BY image_id HAVING COUNT(DISTINCT label) = ?
	`, args...)
}

func (s *Storage) idsMatchingText(ctx context.Context, text string) (map[int64]bool, error) {
	pattern := "%" + escapeLike(strings.ToLower(text)) + "%"
	return s.collectIDs(ctx, `
		SELECT id FROM images
		WHERE lower(path) LIKE ? ESCAPE '\' OR lower(camera_make) LIKE ? ESCAPE '\' OR lower(camera_model) LIKE ? ESCAPE '\'
		UNION
		SELECT image_id FROM tags WHERE label LIKE ? ESCAPE '\'
	`, pattern, pattern, pattern, pattern)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes LIKE wildcards in s match literally
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func (s *Storage) collectIDs(ctx context.Context, query string, args ...any) (map[int64]bool, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// intersect treats a nil set as unconstrained
func intersect(a, b map[int64]bool) map[int64]bool {
	if a == nil {
		return b
	}
	out := make(map[int64]bool)
	for id := range a {
		if b[id] {
			out[id] = true
		}
	}
	return out
}

func paginate(recs []*models.ImageRecord, offset, limit int) []*models.ImageRecord {
	if offset > 0 {
		if offset >= len(recs) {
			return nil
		}
		recs = recs[offset:]
	}
	if limit > 0 && limit < len(recs) {
		recs = recs[:limit]
	}
	return recs
}

func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371.0
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}
