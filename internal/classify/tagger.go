package classify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"mediacat/internal/models"
)

// TagStore is the catalog side of tagging
type TagStore interface {
	SetTags(ctx context.Context, imageID int64, tags []models.Tag) error
}

// TagResult counts tagging outcomes
type TagResult struct {
	Tagged  int
	Failed  int
	Skipped int
}

// Tagger classifies catalog records and stores the confident labels
type Tagger struct {
	queue         *Queue
	store         TagStore
	minConfidence float64
	logger        *zap.Logger
}

// NewTagger creates a Tagger keeping labels at or above minConfidence
func NewTagger(queue *Queue, store TagStore, minConfidence float64, logger *zap.Logger) *Tagger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tagger{queue: queue, store: store, minConfidence: minConfidence, logger: logger}
}

// Source picks what to send to the classifier: the medium thumbnail,
// or the original for images that have none.
func Source(rec *models.ImageRecord) string {
	if rec.ThumbnailMedium != "" {
		return rec.ThumbnailMedium
	}
	if rec.MediaType == models.MediaImage {
		return rec.Path
	}
	return ""
}

// Tag classifies recs and replaces their tags. Per-record failures are
// counted and logged, not returned.
func (t *Tagger) Tag(ctx context.Context, recs []*models.ImageRecord) (TagResult, error) {
	var res TagResult
	var todo []*models.ImageRecord
	var paths []string
	for _, rec := range recs {
		src := Source(rec)
		if src == "" {
			res.Skipped++
			continue
		}
		todo = append(todo, rec)
		paths = append(paths, src)
	}

	for i, o := range t.queue.ClassifyAll(ctx, paths) {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		rec := todo[i]
		if o.Err != nil {
			res.Failed++
			t.logger.Warn("classification failed", zap.Int64("id", rec.ID), zap.String("path", rec.Path), zap.Error(o.Err))
			continue
		}

		var tags []models.Tag
		for _, l := range o.Labels {
			if l.Confidence >= t.minConfidence {
				tags = append(tags, models.Tag{ImageID: rec.ID, Label: l.Label, Confidence: l.Confidence})
			}
		}
		if err := t.store.SetTags(ctx, rec.ID, tags); err != nil {
			return res, fmt.Errorf("store tags for %d: %w", rec.ID, err)
		}
		res.Tagged++
		t.logger.Debug("tagged", zap.Int64("id", rec.ID), zap.Int("tags", len(tags)))
	}
	return res, nil
}
