package match

import (
	"sort"

	"mediacat/internal/models"
)

// ExactMatcher finds groups of records with identical content checksums
type ExactMatcher struct{}

// NewExactMatcher creates a new ExactMatcher
func NewExactMatcher() *ExactMatcher {
	return &ExactMatcher{}
}

// FindGroups finds groups of records with identical checksums
func (m *ExactMatcher) FindGroups(records []*models.ImageRecord) []*models.DuplicateGroup {
	if len(records) < 2 {
		return nil
	}

	byChecksum := make(map[string][]*models.ImageRecord)
	for _, rec := range records {
		if rec.Checksum != "" {
			byChecksum[rec.Checksum] = append(byChecksum[rec.Checksum], rec)
		}
	}

	keys := make([]string, 0, len(byChecksum))
	for k := range byChecksum {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buckets := make([][]*models.ImageRecord, 0, len(keys))
	for _, k := range keys {
		buckets = append(buckets, byChecksum[k])
	}
	return buildGroups(buckets)
}
