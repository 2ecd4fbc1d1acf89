// Package walk enumerates media files under a root directory.
package walk

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"

	"mediacat/internal/formats"
	"mediacat/internal/mediaerr"
	"mediacat/internal/models"
)

// Walker classifies files below a root using a fixed format config.
type Walker struct {
	cfg formats.Config
}

// New creates a Walker for cfg
func New(cfg formats.Config) *Walker {
	return &Walker{cfg: cfg.Clone()}
}

// Counts summarizes a walk
type Counts struct {
	Images  int
	Videos  int
	Ignored int
	Errors  int
}

// Total returns every regular file seen, recognized or not
func (c Counts) Total() int {
	return c.Images + c.Videos + c.Ignored
}

// ValidateRoot checks that root exists and is a directory.
func ValidateRoot(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return mediaerr.New(mediaerr.RootNotFound, root, err)
		}
		return mediaerr.FromIO(root, err)
	}
	if !info.IsDir() {
		return mediaerr.Newf(mediaerr.RootNotFound, root, "not a directory")
	}
	return nil
}

// Walk returns a lazy sequence of recognized files under root. Each call
// starts a fresh traversal. Entries are visited in lexical order within a
// directory, so the sequence is stable for an unchanged tree.
//
// Non-fatal problems are yielded as errors and traversal continues:
// unreadable directories (AccessDenied or IoError) and directories reached
// a second time through a symlink (CycleDetected).
func (w *Walker) Walk(ctx context.Context, root string) iter.Seq2[models.MediaFile, error] {
	return func(yield func(models.MediaFile, error) bool) {
		t := &traversal{
			w:       w,
			visited: make(map[string]bool),
			yield:   yield,
		}
		t.dir(ctx, root)
	}
}

// Count walks root and tallies recognized, ignored and failed entries.
func (w *Walker) Count(ctx context.Context, root string) (Counts, error) {
	if err := ValidateRoot(root); err != nil {
		return Counts{}, err
	}
	var c Counts
	t := &traversal{
		w:         w,
		visited:   make(map[string]bool),
		onIgnored: func(string) { c.Ignored++ },
		yield: func(f models.MediaFile, err error) bool {
			switch {
			case err != nil:
				c.Errors++
			case f.Type == models.MediaImage:
				c.Images++
			default:
				c.Videos++
			}
			return true
		},
	}
	t.dir(ctx, root)
	return c, ctx.Err()
}

type traversal struct {
	w         *Walker
	visited   map[string]bool
	onIgnored func(path string)
	yield     func(models.MediaFile, error) bool
}

// dir walks one directory. It returns false when the consumer stopped
// or ctx was cancelled.
func (t *traversal) dir(ctx context.Context, dir string) bool {
	if ctx.Err() != nil {
		return false
	}

	real, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return t.yield(models.MediaFile{}, mediaerr.FromIO(dir, err))
	}
	if real, err = filepath.Abs(real); err != nil {
		return t.yield(models.MediaFile{}, mediaerr.FromIO(dir, err))
	}
	if t.visited[real] {
		return t.yield(models.MediaFile{}, mediaerr.Newf(mediaerr.CycleDetected, dir, "%s already visited", real))
	}
	t.visited[real] = true

	entries, err := os.ReadDir(dir)
	if err != nil {
		if !t.yield(models.MediaFile{}, mediaerr.FromIO(dir, err)) {
			return false
		}
		// ReadDir may still return the entries read before the failure
		if len(entries) == 0 {
			return true
		}
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return false
		}
		path := filepath.Join(dir, entry.Name())

		mode := entry.Type()
		if mode&fs.ModeSymlink != 0 {
			info, err := os.Stat(path)
			if err != nil {
				// Dangling link; treat like any other unreadable file
				if _, ok := t.w.cfg.Classify(path); ok {
					if !t.yield(models.MediaFile{}, mediaerr.FromIO(path, err)) {
						return false
					}
				}
				continue
			}
			mode = info.Mode().Type()
		}

		switch {
		case mode.IsDir():
			if !t.dir(ctx, path) {
				return false
			}
		case mode.IsRegular():
			typ, ok := t.w.cfg.Classify(path)
			if !ok {
				if t.onIgnored != nil {
					t.onIgnored(path)
				}
				continue
			}
			abs, err := filepath.Abs(path)
			if err != nil {
				abs = path
			}
			if !t.yield(models.MediaFile{Path: abs, Type: typ}, nil) {
				return false
			}
		}
	}
	return true
}

// Collect drains a walk into slices. Useful for callers that want the
// whole listing up front.
func (w *Walker) Collect(ctx context.Context, root string) ([]models.MediaFile, []error, error) {
	if err := ValidateRoot(root); err != nil {
		return nil, nil, err
	}
	var files []models.MediaFile
	var errs []error
	for f, err := range w.Walk(ctx, root) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		files = append(files, f)
	}
	if err := ctx.Err(); err != nil {
		return files, errs, fmt.Errorf("walk %s: %w", root, err)
	}
	return files, errs, nil
}
