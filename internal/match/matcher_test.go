package match

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediacat/internal/models"
)

func record(path string, w, h uint32, size uint64, mod time.Time) *models.ImageRecord {
	return &models.ImageRecord{
		Path:         path,
		MediaType:    models.MediaImage,
		Width:        w,
		Height:       h,
		FileSize:     size,
		FileModified: mod,
	}
}

func TestSelectKeepAndRemove(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name         string
		records      []*models.ImageRecord
		expectedKeep string
	}{
		{
			name: "keep highest resolution",
			records: []*models.ImageRecord{
				record("low.jpg", 640, 480, 100, now),
				record("high.jpg", 4000, 3000, 100, now),
			},
			expectedKeep: "high.jpg",
		},
		{
			name: "tie resolution, keep larger file",
			records: []*models.ImageRecord{
				record("small.jpg", 800, 600, 100, now),
				record("large.jpg", 800, 600, 1000, now),
			},
			expectedKeep: "large.jpg",
		},
		{
			name: "tie resolution and size, keep newer",
			records: []*models.ImageRecord{
				record("old.jpg", 800, 600, 100, now.Add(-time.Hour)),
				record("new.jpg", 800, 600, 100, now),
			},
			expectedKeep: "new.jpg",
		},
		{
			name: "full tie, keep first path",
			records: []*models.ImageRecord{
				record("b.jpg", 800, 600, 100, now),
				record("a.jpg", 800, 600, 100, now),
			},
			expectedKeep: "a.jpg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			group := &models.DuplicateGroup{ID: 1, Records: tt.records}
			selectKeepAndRemove(group)

			require.NotNil(t, group.Keep)
			assert.Equal(t, tt.expectedKeep, group.Keep.Path)
			assert.Len(t, group.Remove, len(tt.records)-1)
			assert.NotContains(t, group.Remove, group.Keep)
		})
	}
}

func TestBuildGroups_StableNumbering(t *testing.T) {
	now := time.Now()
	buckets := [][]*models.ImageRecord{
		{record("z1.jpg", 10, 10, 1, now), record("z2.jpg", 10, 10, 1, now)},
		{record("single.jpg", 10, 10, 1, now)},
		{record("a1.jpg", 10, 10, 1, now), record("a2.jpg", 10, 10, 1, now)},
	}

	groups := buildGroups(buckets)
	require.Len(t, groups, 2)
	assert.Equal(t, 1, groups[0].ID)
	assert.Equal(t, "a1.jpg", groups[0].Keep.Path)
	assert.Equal(t, 2, groups[1].ID)
	assert.Equal(t, "z1.jpg", groups[1].Keep.Path)
}
