package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediacat/internal/models"
)

func TestExactMatcher_Empty(t *testing.T) {
	assert.Nil(t, NewExactMatcher().FindGroups(nil))
}

func TestExactMatcher_NoDuplicates(t *testing.T) {
	records := []*models.ImageRecord{
		{Path: "a.jpg", Checksum: "abc123"},
		{Path: "b.jpg", Checksum: "def456"},
	}
	assert.Empty(t, NewExactMatcher().FindGroups(records))
}

func TestExactMatcher_Duplicates(t *testing.T) {
	records := []*models.ImageRecord{
		{Path: "a.jpg", Checksum: "abc123", Width: 10, Height: 10},
		{Path: "b.jpg", Checksum: "abc123", Width: 20, Height: 20},
		{Path: "c.jpg", Checksum: "def456"},
		{Path: "d.mp4", Checksum: "abc123", MediaType: models.MediaVideo},
		{Path: "e.jpg"},
	}
	groups := NewExactMatcher().FindGroups(records)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Records, 3)
	assert.Equal(t, "b.jpg", groups[0].Keep.Path)
}
