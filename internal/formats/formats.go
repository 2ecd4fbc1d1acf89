// Package formats holds the whitelist of recognized image and video
// extensions and classifies paths against it.
package formats

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"mediacat/internal/mediaerr"
	"mediacat/internal/models"
)

// Config is the set of recognized extensions per media type.
// Extensions are stored lowercase and without a leading dot.
type Config struct {
	ImageFormats []string `yaml:"image_formats" json:"image_formats"`
	VideoFormats []string `yaml:"video_formats" json:"video_formats"`
}

// DefaultConfig returns the built-in whitelist
func DefaultConfig() Config {
	return Config{
		ImageFormats: []string{"jpg", "jpeg", "png", "heic", "raw", "cr2", "nef", "dng", "arw", "webp", "gif", "bmp", "tiff"},
		VideoFormats: []string{"mp4", "mov", "avi", "mkv", "webm", "flv", "wmv", "m4v", "mpg", "mpeg", "3gp"},
	}
}

// Validate rejects configurations that would leave a set empty or that
// contain malformed extension strings.
func (c Config) Validate() error {
	if len(c.ImageFormats) == 0 {
		return mediaerr.New(mediaerr.InvalidConfig, "", errors.New("at least one image format must be selected"))
	}
	if len(c.VideoFormats) == 0 {
		return mediaerr.New(mediaerr.InvalidConfig, "", errors.New("at least one video format must be selected"))
	}
	for _, f := range slices.Concat(c.ImageFormats, c.VideoFormats) {
		if err := validateFormat(f); err != nil {
			return mediaerr.New(mediaerr.InvalidConfig, "", err)
		}
	}
	return nil
}

func validateFormat(f string) error {
	if f == "" {
		return errors.New("format string cannot be empty")
	}
	if strings.Contains(f, ".") {
		return fmt.Errorf("format %q should not contain dots", f)
	}
	if f != strings.ToLower(f) {
		return fmt.Errorf("format %q should be lowercase", f)
	}
	for _, r := range f {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			return fmt.Errorf("format %q contains invalid characters", f)
		}
	}
	return nil
}

// Normalize lowercases, strips dots and removes duplicates, keeping order.
func Normalize(formats []string) []string {
	seen := make(map[string]bool, len(formats))
	out := make([]string, 0, len(formats))
	for _, f := range formats {
		f = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(f), ".")))
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// Classify returns the media type for path by its lowercased extension.
// The image set wins when an extension appears in both sets.
func (c Config) Classify(path string) (models.MediaType, bool) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if ext == "" {
		return "", false
	}
	if slices.Contains(c.ImageFormats, ext) {
		return models.MediaImage, true
	}
	if slices.Contains(c.VideoFormats, ext) {
		return models.MediaVideo, true
	}
	return "", false
}

// Clone returns a deep copy so callers can't mutate shared slices.
func (c Config) Clone() Config {
	return Config{
		ImageFormats: slices.Clone(c.ImageFormats),
		VideoFormats: slices.Clone(c.VideoFormats),
	}
}

// Policy owns the active Config. It is safe for concurrent use.
type Policy struct {
	mu       sync.RWMutex
	cfg      Config
	onChange func(Config) error
}

// PolicyOption configures a Policy
type PolicyOption func(*Policy)

// WithPersist registers a hook run before a new config becomes active.
// If the hook fails the previous config stays in effect.
func WithPersist(fn func(Config) error) PolicyOption {
	return func(p *Policy) {
		p.onChange = fn
	}
}

// NewPolicy creates a Policy holding cfg. An invalid cfg falls back to
// DefaultConfig.
func NewPolicy(cfg Config, opts ...PolicyOption) *Policy {
	if cfg.Validate() != nil {
		cfg = DefaultConfig()
	}
	p := &Policy{cfg: cfg.Clone()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config returns a snapshot of the active configuration
func (p *Policy) Config() Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg.Clone()
}

// IsRecognized classifies path against the active configuration
func (p *Policy) IsRecognized(path string) (models.MediaType, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg.Classify(path)
}

// SetConfig validates and installs cfg. On failure the active config is
// left unchanged.
func (p *Policy) SetConfig(cfg Config) error {
	cfg = Config{
		ImageFormats: Normalize(cfg.ImageFormats),
		VideoFormats: Normalize(cfg.VideoFormats),
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.onChange != nil {
		if err := p.onChange(cfg.Clone()); err != nil {
			return fmt.Errorf("persist format config: %w", err)
		}
	}
	p.cfg = cfg
	return nil
}

// Reset restores the built-in whitelist
func (p *Policy) Reset() error {
	return p.SetConfig(DefaultConfig())
}
