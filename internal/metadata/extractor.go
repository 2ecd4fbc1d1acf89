// Package metadata extracts structured metadata from images (EXIF and
// pixel dimensions) and videos (container probing).
package metadata

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"

	"mediacat/internal/mediaerr"
	"mediacat/internal/models"
)

// Extractor produces ImageMetadata for classified media files.
type Extractor struct {
	prober VideoProber
	logger *zap.Logger
}

// Option configures an Extractor
type Option func(*Extractor)

// WithProber overrides the video prober (ffprobe by default)
func WithProber(p VideoProber) Option {
	return func(e *Extractor) {
		if p != nil {
			e.prober = p
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewExtractor creates an Extractor
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		prober: NewFFprobe(""),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract reads metadata for file. On success Width, Height and FileSize
// are always populated. Failures are *mediaerr.Error values.
func (e *Extractor) Extract(ctx context.Context, file models.MediaFile) (models.ImageMetadata, error) {
	if err := ctx.Err(); err != nil {
		return models.ImageMetadata{}, err
	}

	info, err := os.Stat(file.Path)
	if err != nil {
		return models.ImageMetadata{}, mediaerr.FromIO(file.Path, err)
	}
	if info.IsDir() {
		return models.ImageMetadata{}, mediaerr.Newf(mediaerr.IoError, file.Path, "is a directory")
	}

	meta := models.ImageMetadata{
		FileSize:     uint64(info.Size()),
		FileModified: info.ModTime(),
	}

	switch file.Type {
	case models.MediaVideo:
		err = e.extractVideo(ctx, file.Path, &meta)
	default:
		err = extractImage(file.Path, &meta)
	}
	if err != nil {
		return models.ImageMetadata{}, err
	}

	if meta.CaptureDate == nil {
		mod := meta.FileModified
		meta.CaptureDate = &mod
	}

	e.logger.Debug("metadata extracted",
		zap.String("path", file.Path),
		zap.String("type", string(file.Type)),
		zap.Uint32("width", meta.Width),
		zap.Uint32("height", meta.Height),
	)
	return meta, nil
}

// cleanString trims NULs and whitespace; empty strings become nil.
func cleanString(s string) *string {
	s = strings.TrimSpace(strings.Trim(s, "\x00"))
	if s == "" {
		return nil
	}
	return &s
}
