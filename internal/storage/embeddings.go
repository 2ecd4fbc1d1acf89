package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"mediacat/internal/metrics"
	"mediacat/internal/models"
)

// SaveEmbedding stores vector for imageID, replacing any earlier embedding
// of that record regardless of model version.
func (s *Storage) SaveEmbedding(ctx context.Context, imageID int64, vector []float64, modelVersion string) (err error) {
	defer func(start time.Time) { metrics.ObserveCatalog("save_embedding", start, err) }(time.Now())

	if len(vector) == 0 {
		return errors.New("save embedding: vector is empty")
	}
	if modelVersion == "" {
		return errors.New("save embedding: model version is required")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO embeddings (image_id, embedding, model_version, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(image_id) DO UPDATE SET
			embedding = excluded.embedding,
			model_version = excluded.model_version,
			created_at = excluded.created_at
	`, imageID, encodeVector(vector), modelVersion, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to save embedding for %d: %w", imageID, err)
	}
	return nil
}

// Embeddings returns stored embeddings ordered by image id. An empty
// modelVersion returns every model's embeddings.
func (s *Storage) Embeddings(ctx context.Context, modelVersion string) (out []models.Embedding, err error) {
	defer func(start time.Time) { metrics.ObserveCatalog("embeddings", start, err) }(time.Now())

	query := `SELECT image_id, embedding, model_version, created_at FROM embeddings`
	var args []any
	if modelVersion != "" {
		query += ` WHERE model_version = ?`
		args = append(args, modelVersion)
	}
	query += ` ORDER BY image_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e       models.Embedding
			blob    []byte
			created string
		)
		if err := rows.Scan(&e.ImageID, &blob, &e.ModelVersion, &created); err != nil {
			return nil, err
		}
		if e.Vector, err = decodeVector(blob); err != nil {
			return nil, fmt.Errorf("embedding for %d: %w", e.ImageID, err)
		}
		e.CreatedAt = parseTime(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// encodeVector packs v as little-endian float64 values.
func encodeVector(v []float64) []byte {
	buf := make([]byte, 0, len(v)*8)
	for _, f := range v {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float64, error) {
	if len(b)%8 != 0 {
		return nil, fmt.Errorf("blob length %d is not a multiple of 8", len(b))
	}
	v := make([]float64, len(b)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return v, nil
}
