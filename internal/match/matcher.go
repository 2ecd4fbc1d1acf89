package match

import (
	"sort"

	"mediacat/internal/models"
)

// Matcher is the interface for duplicate detection strategies
type Matcher interface {
	FindGroups(records []*models.ImageRecord) []*models.DuplicateGroup
}

// buildGroups turns buckets of records into duplicate groups. Groups are
// numbered in order of their kept record's path so output is stable.
func buildGroups(buckets [][]*models.ImageRecord) []*models.DuplicateGroup {
	var groups []*models.DuplicateGroup
	for _, recs := range buckets {
		if len(recs) < 2 {
			continue
		}
		group := &models.DuplicateGroup{Records: recs}
		selectKeepAndRemove(group)
		groups = append(groups, group)
	}

	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Keep.Path < groups[j].Keep.Path
	})
	for i, g := range groups {
		g.ID = i + 1
	}
	return groups
}

// selectKeepAndRemove determines which record to keep and which to remove
func selectKeepAndRemove(group *models.DuplicateGroup) {
	if len(group.Records) == 0 {
		return
	}

	// Sort by resolution (descending), then by file size (descending),
	// then by mod time (descending), then by path (ascending)
	sorted := make([]*models.ImageRecord, len(group.Records))
	copy(sorted, group.Records)

	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]

		if a.Pixels() != b.Pixels() {
			return a.Pixels() > b.Pixels()
		}

		// Larger file carries more information
		if a.FileSize != b.FileSize {
			return a.FileSize > b.FileSize
		}

		if !a.FileModified.Equal(b.FileModified) {
			return a.FileModified.After(b.FileModified)
		}

		return a.Path < b.Path
	})

	group.Records = sorted
	group.Keep = sorted[0]
	group.Remove = sorted[1:]
}
