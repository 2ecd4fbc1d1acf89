// Package thumbnail renders small and medium JPEG derivatives of media
// items into a flat cache directory keyed by content checksum.
package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"mediacat/internal/mediaerr"
	"mediacat/internal/metadata"
	"mediacat/internal/models"
)

// Derivative sizes are bounding boxes; aspect ratio is preserved.
const (
	SmallSize   = 150
	MediumSize  = 600
	JPEGQuality = 85

	smallSuffix  = "_small.jpg"
	mediumSuffix = "_medium.jpg"
)

// VideoFrameMark is where the representative frame is taken for videos
// that are at least this long.
const VideoFrameMark = 5 * time.Second

// FrameAt picks the representative frame offset for a video of the given
// duration: the 5-second mark when duration >= 5.0, otherwise the first frame.
func FrameAt(durationSeconds float64) time.Duration {
	if durationSeconds >= VideoFrameMark.Seconds() {
		return VideoFrameMark
	}
	return 0
}

// Generator writes thumbnails into cacheDir.
type Generator struct {
	cacheDir string
	frames   FrameExtractor
	force    bool
	logger   *zap.Logger
}

// Option configures a Generator
type Option func(*Generator)

// WithFrameExtractor overrides the video frame source (ffmpeg by default)
func WithFrameExtractor(fe FrameExtractor) Option {
	return func(g *Generator) {
		if fe != nil {
			g.frames = fe
		}
	}
}

// WithForce regenerates even when cached derivatives exist
func WithForce(force bool) Option {
	return func(g *Generator) {
		g.force = force
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGenerator creates a Generator writing into cacheDir
func NewGenerator(cacheDir string, opts ...Option) *Generator {
	g := &Generator{
		cacheDir: cacheDir,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.frames == nil {
		g.frames = NewFFmpeg("", g.logger)
	}
	return g
}

// CacheDir returns the directory derivatives are written to
func (g *Generator) CacheDir() string {
	return g.cacheDir
}

// Paths returns where the derivatives for checksum live
func (g *Generator) Paths(checksum string) models.ThumbnailPaths {
	return models.ThumbnailPaths{
		Small:  filepath.Join(g.cacheDir, checksum+smallSuffix),
		Medium: filepath.Join(g.cacheDir, checksum+mediumSuffix),
	}
}

// Cached reports whether both derivatives for checksum exist
func (g *Generator) Cached(checksum string) bool {
	p := g.Paths(checksum)
	return fileExists(p.Small) && fileExists(p.Medium)
}

// Generate produces both derivatives for file. meta must come from a
// successful extraction; for videos its duration selects the frame.
// Output is deterministic, so regenerating rewrites identical bytes.
func (g *Generator) Generate(ctx context.Context, file models.MediaFile, checksum string, meta *models.ImageMetadata) (models.ThumbnailPaths, error) {
	if checksum == "" {
		return models.ThumbnailPaths{}, errors.New("thumbnail: empty checksum")
	}
	paths := g.Paths(checksum)
	if !g.force && g.Cached(checksum) {
		g.logger.Debug("thumbnail cache hit", zap.String("path", file.Path), zap.String("checksum", checksum))
		return paths, nil
	}

	src, err := g.source(ctx, file, meta)
	if err != nil {
		return models.ThumbnailPaths{}, err
	}

	if err := os.MkdirAll(g.cacheDir, 0755); err != nil {
		return models.ThumbnailPaths{}, mediaerr.New(mediaerr.CacheWriteError, g.cacheDir, err)
	}
	if err := g.write(paths.Medium, imaging.Fit(src, MediumSize, MediumSize, imaging.Lanczos)); err != nil {
		return models.ThumbnailPaths{}, err
	}
	if err := g.write(paths.Small, imaging.Fit(src, SmallSize, SmallSize, imaging.Lanczos)); err != nil {
		return models.ThumbnailPaths{}, err
	}
	return paths, nil
}

func (g *Generator) source(ctx context.Context, file models.MediaFile, meta *models.ImageMetadata) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if file.Type == models.MediaVideo {
		var dur float64
		if meta != nil && meta.DurationSeconds != nil {
			dur = *meta.DurationSeconds
		}
		return g.frames.ExtractFrame(ctx, file.Path, FrameAt(dur))
	}

	if metadata.IsUnsupportedImage(file.Path) {
		return nil, mediaerr.Newf(mediaerr.UnsupportedFormat, file.Path, "no decoder for %s", filepath.Ext(file.Path))
	}
	img, err := imaging.Open(file.Path, imaging.AutoOrientation(true))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return nil, mediaerr.FromIO(file.Path, err)
		}
		return nil, mediaerr.New(mediaerr.DecodeError, file.Path, err)
	}
	return img, nil
}

// write encodes img to a temp file in the cache dir and renames it into
// place so readers never observe a partial thumbnail.
func (g *Generator) write(dest string, img image.Image) error {
	tmp, err := os.CreateTemp(g.cacheDir, ".thumb-*.tmp")
	if err != nil {
		return mediaerr.New(mediaerr.CacheWriteError, dest, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := imaging.Encode(tmp, img, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		tmp.Close()
		return mediaerr.New(mediaerr.CacheWriteError, dest, fmt.Errorf("encode: %w", err))
	}
	if err := tmp.Close(); err != nil {
		return mediaerr.New(mediaerr.CacheWriteError, dest, err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return mediaerr.New(mediaerr.CacheWriteError, dest, err)
	}
	return nil
}

// Remove deletes both derivatives for checksum. Missing files are ignored.
func (g *Generator) Remove(checksum string) error {
	p := g.Paths(checksum)
	for _, path := range []string{p.Small, p.Medium} {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove thumbnail %s: %w", path, err)
		}
	}
	return nil
}

// CacheStats describes the thumbnail cache directory
type CacheStats struct {
	Files int
	Bytes int64
}

// Stats walks the cache directory
func (g *Generator) Stats() (CacheStats, error) {
	entries, err := os.ReadDir(g.cacheDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return CacheStats{}, nil
		}
		return CacheStats{}, err
	}
	var st CacheStats
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !(strings.HasSuffix(name, smallSuffix) || strings.HasSuffix(name, mediumSuffix)) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		st.Files++
		st.Bytes += info.Size()
	}
	return st, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
