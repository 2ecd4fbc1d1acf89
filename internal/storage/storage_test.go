package storage

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediacat/internal/models"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	store, err := NewStorage(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func ptr[T any](v T) *T { return &v }

func sampleRecord(path, checksum string) models.ImageRecord {
	return models.ImageRecord{
		Path:            path,
		MediaType:       models.MediaImage,
		ThumbnailSmall:  "/cache/" + checksum + "_small.jpg",
		ThumbnailMedium: "/cache/" + checksum + "_medium.jpg",
		Checksum:        checksum,
		Width:           1920,
		Height:          1080,
		FileSize:        1024000,
		FileModified:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestNewStorage_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")

	store, err := NewStorage(dbPath)
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, dbPath, store.Path())
	assert.Equal(t, schemaVersion, store.getSchemaVersion())
}

func TestNewStorage_ReopenIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	store, err := NewStorage(dbPath)
	require.NoError(t, err)
	_, err = store.Upsert(ctx, sampleRecord("/a.jpg", "aaa"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = NewStorage(dbPath)
	require.NoError(t, err)
	defer store.Close()

	rec, err := store.GetByPath(ctx, "/a.jpg")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, store.columnExists("images", "perceptual_hash"))
	assert.True(t, store.columnExists("images", "video_codec"))
}

func TestUpsert_RoundTrip(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	capture := time.Date(2023, 7, 14, 9, 30, 0, 0, time.UTC)
	rec := sampleRecord("/photos/beach.jpg", "c1")
	rec.CaptureDate = &capture
	rec.CameraMake = ptr("Canon")
	rec.CameraModel = ptr("EOS R5")
	rec.GPSLatitude = ptr(48.8584)
	rec.GPSLongitude = ptr(2.2945)
	rec.PerceptualHash = 1 << 63

	id, err := store.Upsert(ctx, rec)
	require.NoError(t, err)
	assert.Positive(t, id)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "/photos/beach.jpg", got.Path)
	assert.Equal(t, models.MediaImage, got.MediaType)
	assert.Equal(t, "c1", got.Checksum)
	assert.Equal(t, uint64(1<<63), got.PerceptualHash)
	require.NotNil(t, got.CaptureDate)
	assert.True(t, capture.Equal(*got.CaptureDate))
	assert.Equal(t, "EOS R5", *got.CameraModel)
	assert.InDelta(t, 48.8584, *got.GPSLatitude, 1e-9)
	assert.Equal(t, uint32(1920), got.Width)
	assert.Equal(t, uint64(1024000), got.FileSize)
	assert.True(t, rec.FileModified.Equal(got.FileModified))
	assert.Equal(t, models.SyncPending, got.SyncStatus)
	assert.Nil(t, got.SyncedAt)
	assert.Nil(t, got.DurationSeconds)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestUpsert_VideoColumns(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	rec := sampleRecord("/clips/a.mp4", "v1")
	rec.MediaType = models.MediaVideo
	rec.DurationSeconds = ptr(120.5)
	rec.VideoCodec = ptr("h264")

	id, err := store.Upsert(ctx, rec)
	require.NoError(t, err)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.MediaVideo, got.MediaType)
	assert.InDelta(t, 120.5, *got.DurationSeconds, 1e-9)
	assert.Equal(t, "h264", *got.VideoCodec)
}

func TestUpsert_SamePathUpdatesInPlace(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	id1, err := store.Upsert(ctx, sampleRecord("/a.jpg", "same"))
	require.NoError(t, err)
	require.NoError(t, store.UpdateSyncStatus(ctx, id1, models.SyncSynced, time.Now()))

	// Unchanged content keeps the sync state
	rec := sampleRecord("/a.jpg", "same")
	rec.Width = 100
	id2, err := store.Upsert(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	got, err := store.Get(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, uint32(100), got.Width)
	assert.Equal(t, models.SyncSynced, got.SyncStatus)
	assert.NotNil(t, got.SyncedAt)

	// New content must be backed up again
	_, err = store.Upsert(ctx, sampleRecord("/a.jpg", "changed"))
	require.NoError(t, err)
	got, err = store.Get(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, "changed", got.Checksum)
	assert.Equal(t, models.SyncPending, got.SyncStatus)
	assert.Nil(t, got.SyncedAt)

	all, err := store.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUpsert_RequiresPathAndChecksum(t *testing.T) {
	store := newTestStorage(t)
	_, err := store.Upsert(context.Background(), models.ImageRecord{Path: "/a.jpg"})
	assert.Error(t, err)
}

func TestGet_Missing(t *testing.T) {
	store := newTestStorage(t)
	rec, err := store.Get(context.Background(), 42)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestGetByChecksum(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	for _, p := range []string{"/a.jpg", "/b.jpg"} {
		_, err := store.Upsert(ctx, sampleRecord(p, "dup"))
		require.NoError(t, err)
	}
	_, err := store.Upsert(ctx, sampleRecord("/c.jpg", "other"))
	require.NoError(t, err)

	recs, err := store.GetByChecksum(ctx, "dup")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "/a.jpg", recs[0].Path)
	assert.Equal(t, "/b.jpg", recs[1].Path)
}

func seedQueryFixture(t *testing.T, store *Storage) map[string]int64 {
	t.Helper()
	ctx := context.Background()
	ids := make(map[string]int64)

	add := func(path string, capture time.Time, model string, mt models.MediaType, lat, lon *float64) {
		rec := sampleRecord(path, "sum-"+path)
		rec.CaptureDate = &capture
		rec.CameraModel = ptr(model)
		rec.MediaType = mt
		rec.GPSLatitude = lat
		rec.GPSLongitude = lon
		id, err := store.Upsert(ctx, rec)
		require.NoError(t, err)
		ids[path] = id
	}

	add("/trip/paris.jpg", time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC), "EOS R5", models.MediaImage, ptr(48.8566), ptr(2.3522))
	add("/trip/versailles.jpg", time.Date(2023, 5, 2, 0, 0, 0, 0, time.UTC), "EOS R5", models.MediaImage, ptr(48.8049), ptr(2.1204))
	add("/trip/london.mp4", time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), "Pixel 7", models.MediaVideo, ptr(51.5074), ptr(-0.1278))
	add("/home/cat.jpg", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "Pixel 7", models.MediaImage, nil, nil)

	require.NoError(t, store.SetTags(ctx, ids["/trip/paris.jpg"], []models.Tag{
		{Label: "City", Confidence: 0.9}, {Label: "tower", Confidence: 0.8},
	}))
	require.NoError(t, store.SetTags(ctx, ids["/trip/versailles.jpg"], []models.Tag{
		{Label: "city", Confidence: 0.7}, {Label: "garden", Confidence: 0.95},
	}))
	require.NoError(t, store.SetTags(ctx, ids["/home/cat.jpg"], []models.Tag{
		{Label: "cat", Confidence: 0.99},
	}))
	return ids
}

func paths(recs []*models.ImageRecord) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Path)
	}
	return out
}

func TestQuery(t *testing.T) {
	store := newTestStorage(t)
	seedQueryFixture(t, store)
	ctx := context.Background()

	tests := []struct {
		name   string
		filter models.ImageFilter
		want   []string
	}{
		{
			name: "no constraints newest first",
			want: []string{"/home/cat.jpg", "/trip/london.mp4", "/trip/versailles.jpg", "/trip/paris.jpg"},
		},
		{
			name: "date range",
			filter: models.ImageFilter{
				DateFrom: ptr(time.Date(2023, 5, 2, 0, 0, 0, 0, time.UTC)),
				DateTo:   ptr(time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)),
			},
			want: []string{"/trip/london.mp4", "/trip/versailles.jpg"},
		},
		{
			name:   "camera model",
			filter: models.ImageFilter{CameraModel: "Pixel 7"},
			want:   []string{"/home/cat.jpg", "/trip/london.mp4"},
		},
		{
			name:   "media type",
			filter: models.ImageFilter{MediaType: models.MediaVideo},
			want:   []string{"/trip/london.mp4"},
		},
		{
			name:   "single tag",
			filter: models.ImageFilter{Tags: []string{"city"}},
			want:   []string{"/trip/versailles.jpg", "/trip/paris.jpg"},
		},
		{
			name:   "all tags required",
			filter: models.ImageFilter{Tags: []string{"city", "Tower"}},
			want:   []string{"/trip/paris.jpg"},
		},
		{
			name:   "unknown tag",
			filter: models.ImageFilter{Tags: []string{"dog"}},
			want:   []string{},
		},
		{
			name:   "text matches path",
			filter: models.ImageFilter{Text: "LONDON"},
			want:   []string{"/trip/london.mp4"},
		},
		{
			name:   "text matches tag",
			filter: models.ImageFilter{Text: "garden"},
			want:   []string{"/trip/versailles.jpg"},
		},
		{
			name:   "location radius",
			filter: models.ImageFilter{Location: &models.Location{Latitude: 48.8566, Longitude: 2.3522, RadiusKm: 5}},
			want:   []string{"/trip/paris.jpg"},
		},
		{
			name:   "wider location radius",
			filter: models.ImageFilter{Location: &models.Location{Latitude: 48.8566, Longitude: 2.3522, RadiusKm: 30}},
			want:   []string{"/trip/versailles.jpg", "/trip/paris.jpg"},
		},
		{
			name:   "limit and offset",
			filter: models.ImageFilter{Limit: 2, Offset: 1},
			want:   []string{"/trip/london.mp4", "/trip/versailles.jpg"},
		},
		{
			name:   "combined constraints",
			filter: models.ImageFilter{Tags: []string{"city"}, CameraModel: "EOS R5", Text: "paris"},
			want:   []string{"/trip/paris.jpg"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := store.Query(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, paths(recs))
		})
	}
}

func TestTags(t *testing.T) {
	store := newTestStorage(t)
	ids := seedQueryFixture(t, store)
	ctx := context.Background()

	tags, err := store.TagsFor(ctx, ids["/trip/versailles.jpg"])
	require.NoError(t, err)
	require.Len(t, tags, 2)
	assert.Equal(t, "garden", tags[0].Label)
	assert.Equal(t, "city", tags[1].Label)

	require.NoError(t, store.AddTags(ctx, ids["/trip/versailles.jpg"], []models.Tag{{Label: "Fountain", Confidence: 0.5}}))
	tags, err = store.TagsFor(ctx, ids["/trip/versailles.jpg"])
	require.NoError(t, err)
	require.Len(t, tags, 3)
	assert.Equal(t, "fountain", tags[2].Label)

	// Replacing drops the old set
	require.NoError(t, store.SetTags(ctx, ids["/trip/versailles.jpg"], []models.Tag{{Label: "palace", Confidence: 0.6}}))
	tags, err = store.TagsFor(ctx, ids["/trip/versailles.jpg"])
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "palace", tags[0].Label)
}

func TestUntagged(t *testing.T) {
	store := newTestStorage(t)
	ids := seedQueryFixture(t, store)
	ctx := context.Background()

	recs, err := store.Untagged(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/trip/london.mp4"}, paths(recs))

	require.NoError(t, store.SetTags(ctx, ids["/trip/london.mp4"], []models.Tag{{Label: "bridge", Confidence: 0.8}}))
	recs, err = store.Untagged(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestDelete_CascadesTags(t *testing.T) {
	store := newTestStorage(t)
	ids := seedQueryFixture(t, store)
	ctx := context.Background()

	rec, err := store.Delete(ctx, ids["/home/cat.jpg"])
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "/home/cat.jpg", rec.Path)

	got, err := store.Get(ctx, ids["/home/cat.jpg"])
	require.NoError(t, err)
	assert.Nil(t, got)

	tags, err := store.TagsFor(ctx, ids["/home/cat.jpg"])
	require.NoError(t, err)
	assert.Empty(t, tags)

	rec, err = store.Delete(ctx, 9999)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestSyncStatus(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	id1, err := store.Upsert(ctx, sampleRecord("/a.jpg", "a"))
	require.NoError(t, err)
	id2, err := store.Upsert(ctx, sampleRecord("/b.jpg", "b"))
	require.NoError(t, err)

	at := time.Date(2024, 2, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpdateSyncStatus(ctx, id1, models.SyncSynced, at))
	require.NoError(t, store.UpdateSyncStatus(ctx, id2, models.SyncFailed, at))

	synced, err := store.ListBySyncStatus(ctx, models.SyncSynced)
	require.NoError(t, err)
	require.Len(t, synced, 1)
	assert.Equal(t, "/a.jpg", synced[0].Path)
	assert.True(t, at.Equal(*synced[0].SyncedAt))

	failed, err := store.ListBySyncStatus(ctx, models.SyncFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Nil(t, failed[0].SyncedAt)

	assert.ErrorIs(t, store.UpdateSyncStatus(ctx, 9999, models.SyncSynced, at), sql.ErrNoRows)
}

func TestUpdatePath(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	id, err := store.Upsert(ctx, sampleRecord("/old.jpg", "x"))
	require.NoError(t, err)
	require.NoError(t, store.UpdatePath(ctx, id, "/trash/old.jpg"))

	rec, err := store.GetByPath(ctx, "/trash/old.jpg")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, id, rec.ID)
}

func TestRecordScanAndStats(t *testing.T) {
	store := newTestStorage(t)
	ids := seedQueryFixture(t, store)
	ctx := context.Background()

	require.NoError(t, store.UpdateSyncStatus(ctx, ids["/home/cat.jpg"], models.SyncSynced, time.Now()))
	require.NoError(t, store.RecordScan(ctx, &models.ScanResult{
		RunID:      "run-1",
		Root:       "/trip",
		ImageCount: 2,
		VideoCount: 1,
		Errors:     []models.ScanError{{Path: "/trip/bad.jpg", Kind: "DecodeError"}},
		Degraded:   true,
		Duration:   1500 * time.Millisecond,
	}))

	scans, err := store.RecentScans(ctx, 5)
	require.NoError(t, err)
	require.Len(t, scans, 1)
	assert.Equal(t, "run-1", scans[0].RunID)
	assert.Equal(t, 1, scans[0].TotalErrors)
	assert.True(t, scans[0].Degraded)
	assert.Equal(t, 1500*time.Millisecond, scans[0].Duration)

	st, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, st.Records)
	assert.Equal(t, 3, st.Images)
	assert.Equal(t, 1, st.Videos)
	assert.Equal(t, 3, st.Pending)
	assert.Equal(t, 1, st.Synced)
	assert.Equal(t, 0, st.Failed)
	assert.Equal(t, 5, st.Tags)
	assert.Equal(t, int64(4*1024000), st.TotalSize)
}

func TestQuery_OffsetWithoutLimit(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		_, err := store.Upsert(ctx, sampleRecord("/p/"+name+".jpg", "sum-"+name))
		require.NoError(t, err)
	}

	got, err := store.Query(ctx, models.ImageFilter{Offset: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"/p/d.jpg", "/p/e.jpg"}, paths(got))

	got, err = store.Query(ctx, models.ImageFilter{Offset: 5})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = store.Query(ctx, models.ImageFilter{Offset: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"/p/b.jpg", "/p/c.jpg"}, paths(got))
}

func TestQuery_TextMatchesWildcardsLiterally(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	for i, p := range []string{"/a/50%.jpg", "/a/my_cat.jpg", "/a/mycat.jpg"} {
		_, err := store.Upsert(ctx, sampleRecord(p, fmt.Sprintf("w%d", i)))
		require.NoError(t, err)
	}

	got, err := store.Query(ctx, models.ImageFilter{Text: "%"})
	require.NoError(t, err)
	assert.Equal(t, []string{"/a/50%.jpg"}, paths(got))

	got, err = store.Query(ctx, models.ImageFilter{Text: "y_c"})
	require.NoError(t, err)
	assert.Equal(t, []string{"/a/my_cat.jpg"}, paths(got))

	got, err = store.Query(ctx, models.ImageFilter{Text: `\`})
	require.NoError(t, err)
	assert.Empty(t, got)

	assert.Equal(t, `100\%\_a\\b`, escapeLike(`100%_a\b`))
}

func TestUpsertAll(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	ids, err := store.UpsertAll(ctx, []models.ImageRecord{
		sampleRecord("/b/1.jpg", "b1"),
		sampleRecord("/b/2.jpg", "b2"),
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.NotEqual(t, ids[0], ids[1])

	got, err := store.Get(ctx, ids[1])
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "/b/2.jpg", got.Path)
}

func TestUpsertAll_RollsBackOnFailure(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	ids, err := store.UpsertAll(ctx, []models.ImageRecord{
		sampleRecord("/r/1.jpg", "r1"),
		sampleRecord("/r/2.jpg", "r2"),
		sampleRecord("/r/3.jpg", ""),
	})
	require.Error(t, err)
	assert.Nil(t, ids)

	all, err := store.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	// The connection is usable after the rollback
	_, err = store.Upsert(ctx, sampleRecord("/r/1.jpg", "r1"))
	require.NoError(t, err)
}

func TestEmbeddings(t *testing.T) {
	store := newTestStorage(t)
	ids := seedQueryFixture(t, store)
	ctx := context.Background()

	paris, cat := ids["/trip/paris.jpg"], ids["/home/cat.jpg"]
	require.NoError(t, store.SaveEmbedding(ctx, paris, []float64{0.25, -1.5, math.Pi}, "clip-v1"))
	require.NoError(t, store.SaveEmbedding(ctx, cat, []float64{1, 2}, "clip-v2"))

	all, err := store.Embeddings(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, paris, all[0].ImageID)
	assert.Equal(t, []float64{0.25, -1.5, math.Pi}, all[0].Vector)
	assert.Equal(t, "clip-v1", all[0].ModelVersion)
	assert.False(t, all[0].CreatedAt.IsZero())

	v2, err := store.Embeddings(ctx, "clip-v2")
	require.NoError(t, err)
	require.Len(t, v2, 1)
	assert.Equal(t, cat, v2[0].ImageID)

	// Saving again replaces the record's embedding
	require.NoError(t, store.SaveEmbedding(ctx, paris, []float64{9}, "clip-v2"))
	v2, err = store.Embeddings(ctx, "clip-v2")
	require.NoError(t, err)
	assert.Len(t, v2, 2)
	v1, err := store.Embeddings(ctx, "clip-v1")
	require.NoError(t, err)
	assert.Empty(t, v1)

	_, err = store.Delete(ctx, cat)
	require.NoError(t, err)
	all, err = store.Embeddings(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, []float64{9}, all[0].Vector)
}

func TestSaveEmbedding_Rejects(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	id, err := store.Upsert(ctx, sampleRecord("/e.jpg", "e"))
	require.NoError(t, err)

	assert.Error(t, store.SaveEmbedding(ctx, id, nil, "clip-v1"))
	assert.Error(t, store.SaveEmbedding(ctx, id, []float64{1}, ""))
	assert.Error(t, store.SaveEmbedding(ctx, 9999, []float64{1}, "clip-v1"), "unknown image id violates the foreign key")
}

func TestDecodeVector_BadLength(t *testing.T) {
	_, err := decodeVector(make([]byte, 7))
	assert.Error(t, err)

	v, err := decodeVector(encodeVector([]float64{-0.5, 42}))
	require.NoError(t, err)
	assert.Equal(t, []float64{-0.5, 42}, v)
}
