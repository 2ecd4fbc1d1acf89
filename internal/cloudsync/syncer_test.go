package cloudsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediacat/internal/models"
	"mediacat/internal/settings"
)

type fakeUploader struct {
	mu       sync.Mutex
	stored   map[string]string
	failures map[string]int // remaining failures per key
	calls    map[string]int
	existErr error
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{
		stored:   map[string]string{},
		failures: map[string]int{},
		calls:    map[string]int{},
	}
}

func (f *fakeUploader) Exists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existErr != nil {
		return false, f.existErr
	}
	_, ok := f.stored[key]
	return ok, nil
}

func (f *fakeUploader) Upload(_ context.Context, key, path, _ string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[key]++
	if f.failures[key] > 0 {
		f.failures[key]--
		return 0, errors.New("connection reset")
	}
	f.stored[key] = path
	return 100, nil
}

type fakeCatalog struct {
	recs   map[int64]*models.ImageRecord
	status map[int64]models.SyncStatus
}

func newFakeCatalog(recs ...*models.ImageRecord) *fakeCatalog {
	c := &fakeCatalog{recs: map[int64]*models.ImageRecord{}, status: map[int64]models.SyncStatus{}}
	for _, r := range recs {
		c.recs[r.ID] = r
		c.status[r.ID] = r.SyncStatus
	}
	return c
}

func (c *fakeCatalog) Get(_ context.Context, id int64) (*models.ImageRecord, error) {
	return c.recs[id], nil
}

func (c *fakeCatalog) ListBySyncStatus(_ context.Context, status models.SyncStatus) ([]*models.ImageRecord, error) {
	var out []*models.ImageRecord
	for id := int64(1); id <= int64(len(c.recs)); id++ {
		if r, ok := c.recs[id]; ok && c.status[id] == status {
			out = append(out, r)
		}
	}
	return out, nil
}

func (c *fakeCatalog) UpdateSyncStatus(_ context.Context, id int64, status models.SyncStatus, _ time.Time) error {
	c.status[id] = status
	return nil
}

func rec(id int64, path, checksum string, status models.SyncStatus) *models.ImageRecord {
	return &models.ImageRecord{ID: id, Path: path, Checksum: checksum, SyncStatus: status}
}

func noSleep(waits *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "abc123_IMG_0001.jpg", ObjectKey(rec(1, "/photos/2023/IMG_0001.jpg", "abc123", "")))
}

func TestSync_PendingAndFailed(t *testing.T) {
	up := newFakeUploader()
	cat := newFakeCatalog(
		rec(1, "/p/a.jpg", "aa", models.SyncPending),
		rec(2, "/p/b.jpg", "bb", models.SyncSynced),
		rec(3, "/p/c.jpg", "cc", models.SyncFailed),
	)
	var waits []time.Duration
	s := NewSyncer(up, cat, WithSleep(noSleep(&waits)))

	var events []Progress
	res, err := s.Sync(context.Background(), nil, func(p Progress) { events = append(events, p) })
	require.NoError(t, err)

	assert.Equal(t, 2, res.Uploaded)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, int64(200), res.Bytes)
	assert.Equal(t, models.SyncSynced, cat.status[1])
	assert.Equal(t, models.SyncSynced, cat.status[3])
	assert.Contains(t, up.stored, "aa_a.jpg")
	assert.NotContains(t, up.stored, "bb_b.jpg")

	require.Len(t, events, 2)
	assert.Equal(t, Progress{Done: 2, Total: 2, Path: "/p/c.jpg", Status: "uploaded"}, events[1])
	assert.Empty(t, waits)
}

func TestSync_SkipsExistingObjects(t *testing.T) {
	up := newFakeUploader()
	up.stored["dup_a.jpg"] = "elsewhere"
	cat := newFakeCatalog(rec(1, "/p/a.jpg", "dup", models.SyncPending))

	res, err := NewSyncer(up, cat).Sync(context.Background(), []int64{1}, nil)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Skipped: 1}, res)
	assert.Zero(t, up.calls["dup_a.jpg"])
	assert.Equal(t, models.SyncSynced, cat.status[1])
}

func TestSync_RetriesWithBackoff(t *testing.T) {
	up := newFakeUploader()
	up.failures["aa_a.jpg"] = 2
	cat := newFakeCatalog(rec(1, "/p/a.jpg", "aa", models.SyncPending))
	var waits []time.Duration

	res, err := NewSyncer(up, cat, WithSleep(noSleep(&waits))).Sync(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Uploaded)
	assert.Equal(t, 3, up.calls["aa_a.jpg"])
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, waits)
}

func TestSync_GivesUpAfterThreeAttempts(t *testing.T) {
	up := newFakeUploader()
	up.failures["aa_a.jpg"] = 5
	cat := newFakeCatalog(
		rec(1, "/p/a.jpg", "aa", models.SyncPending),
		rec(2, "/p/b.jpg", "bb", models.SyncPending),
	)
	var waits []time.Duration

	res, err := NewSyncer(up, cat, WithSleep(noSleep(&waits))).Sync(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Uploaded)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 3, up.calls["aa_a.jpg"])
	require.Len(t, res.Errors, 1)
	assert.Equal(t, int64(1), res.Errors[0].ID)
	assert.Contains(t, res.Errors[0].Message, "after 3 attempts")
	assert.Equal(t, models.SyncFailed, cat.status[1])
	assert.Equal(t, models.SyncSynced, cat.status[2])
}

func TestSync_ExistsErrorMarksFailed(t *testing.T) {
	up := newFakeUploader()
	up.existErr = errors.New("access denied")
	cat := newFakeCatalog(rec(1, "/p/a.jpg", "aa", models.SyncPending))

	res, err := NewSyncer(up, cat).Sync(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Zero(t, up.calls["aa_a.jpg"])
	assert.Equal(t, models.SyncFailed, cat.status[1])
}

func TestSync_Exclude(t *testing.T) {
	up := newFakeUploader()
	cat := newFakeCatalog(
		rec(1, "/p/a.tmp", "aa", models.SyncPending),
		rec(2, "/private/b.jpg", "bb", models.SyncPending),
		rec(3, "/p/c.jpg", "cc", models.SyncPending),
	)
	s := NewSyncer(up, cat, WithExclude([]string{"*.tmp", "/private/*"}))

	res, err := s.Sync(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Uploaded)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, models.SyncPending, cat.status[1])
	assert.Equal(t, models.SyncPending, cat.status[2])
}

func TestSync_UnknownID(t *testing.T) {
	_, err := NewSyncer(newFakeUploader(), newFakeCatalog()).Sync(context.Background(), []int64{7}, nil)
	assert.Error(t, err)
}

func TestSync_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cat := newFakeCatalog(rec(1, "/p/a.jpg", "aa", models.SyncPending))

	_, err := NewSyncer(newFakeUploader(), cat).Sync(ctx, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, models.SyncPending, cat.status[1])
}

func TestNormalizeEndpoint(t *testing.T) {
	assert.Equal(t, "", normalizeEndpoint("  "))
	assert.Equal(t, "https://minio.local:9000", normalizeEndpoint("minio.local:9000"))
	assert.Equal(t, "http://localhost:9000", normalizeEndpoint("http://localhost:9000"))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(fmt.Errorf("wrapped: %w", &smithy.GenericAPIError{Code: "NotFound"})))
	assert.True(t, isNotFound(&smithy.GenericAPIError{Code: "NoSuchKey"}))
	assert.False(t, isNotFound(&smithy.GenericAPIError{Code: "AccessDenied"}))
	assert.False(t, isNotFound(errors.New("boom")))
}

// fakeS3 answers HEAD and PUT for path-style requests
func fakeS3(t *testing.T) (*httptest.Server, map[string][]byte) {
	objects := map[string][]byte{}
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch r.Method {
		case http.MethodHead:
			if _, ok := objects[r.URL.Path]; !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.WriteHeader(http.StatusOK)
		case http.MethodPut:
			body, err := io.ReadAll(r.Body)
			assert.NoError(t, err)
			objects[r.URL.Path] = body
			w.Header().Set("ETag", `"etag"`)
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, objects
}

func TestS3Uploader(t *testing.T) {
	srv, objects := fakeS3(t)
	ctx := context.Background()

	up, err := NewS3Uploader(ctx, settings.SyncSettings{
		Host:            srv.URL,
		Bucket:          "photos",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		ForcePathStyle:  true,
	})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "a.jpg")
	require.NoError(t, os.WriteFile(path, []byte("jpeg-bytes"), 0644))

	exists, err := up.Exists(ctx, "aa_a.jpg")
	require.NoError(t, err)
	assert.False(t, exists)

	n, err := up.Upload(ctx, "aa_a.jpg", path, "")
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)

	require.Contains(t, objects, "/photos/aa_a.jpg")
	assert.True(t, strings.HasSuffix(string(objects["/photos/aa_a.jpg"]), "jpeg-bytes"))

	exists, err = up.Exists(ctx, "aa_a.jpg")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestNewS3Uploader_RequiresBucket(t *testing.T) {
	_, err := NewS3Uploader(context.Background(), settings.SyncSettings{})
	assert.Error(t, err)
}
