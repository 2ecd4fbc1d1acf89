package scan

import (
	"context"
	"fmt"

	"mediacat/internal/models"
)

// Catalog is the persistence side of a scan
type Catalog interface {
	UpsertAll(ctx context.Context, recs []models.ImageRecord) ([]int64, error)
	RecordScan(ctx context.Context, result *models.ScanResult) error
}

// CommitSummary reports what Commit wrote
type CommitSummary struct {
	Upserted int
	IDs      []int64
}

// Commit writes every accepted item of result into the catalog in one
// batch and records the scan in history. Failed files are never written,
// and a batch that fails part way leaves the catalog unchanged.
func Commit(ctx context.Context, catalog Catalog, result *models.ScanResult) (CommitSummary, error) {
	var sum CommitSummary
	if err := ctx.Err(); err != nil {
		return sum, err
	}

	recs := make([]models.ImageRecord, 0, len(result.Items))
	for _, item := range result.Items {
		recs = append(recs, models.NewImageRecord(item))
	}
	if len(recs) > 0 {
		ids, err := catalog.UpsertAll(ctx, recs)
		if err != nil {
			return sum, fmt.Errorf("commit: %w", err)
		}
		sum.Upserted = len(ids)
		sum.IDs = ids
	}

	if err := catalog.RecordScan(ctx, result); err != nil {
		return sum, fmt.Errorf("record scan: %w", err)
	}
	return sum, nil
}
