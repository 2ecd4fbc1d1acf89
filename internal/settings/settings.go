// Package settings loads and saves the user's YAML settings document.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"mediacat/internal/formats"
	"mediacat/internal/mediaerr"
)

// ClassifierSettings configures the local vision model service
type ClassifierSettings struct {
	Endpoint      string  `yaml:"endpoint"`
	Model         string  `yaml:"model"`
	Concurrency   int     `yaml:"concurrency"`
	MinConfidence float64 `yaml:"min_confidence"`
}

// SyncSettings configures backup to an S3 compatible bucket
type SyncSettings struct {
	Enabled         bool     `yaml:"enabled"`
	Host            string   `yaml:"host"`
	Bucket          string   `yaml:"bucket"`
	Region          string   `yaml:"region"`
	AccessKeyID     string   `yaml:"access_key_id"`
	SecretAccessKey string   `yaml:"secret_access_key"`
	ForcePathStyle  bool     `yaml:"force_path_style"`
	ExcludePatterns []string `yaml:"exclude_patterns"`
}

// Settings is the persisted application configuration
type Settings struct {
	ThumbnailCachePath string             `yaml:"thumbnail_cache_path"`
	DatabasePath       string             `yaml:"database_path"`
	Workers            int                `yaml:"workers"` // 0 picks a count from the CPU
	Classifier         ClassifierSettings `yaml:"classifier"`
	Sync               SyncSettings       `yaml:"sync"`
	Formats            formats.Config     `yaml:"formats"`
}

// Dir returns the per-user application directory
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mediacat"
	}
	return filepath.Join(home, ".mediacat")
}

// DefaultPath returns where the settings document lives
func DefaultPath() string {
	return filepath.Join(Dir(), "settings.yaml")
}

// Default returns settings used when no document exists
func Default() Settings {
	dir := Dir()
	return Settings{
		ThumbnailCachePath: filepath.Join(dir, "thumbnails"),
		DatabasePath:       filepath.Join(dir, "catalog.db"),
		Classifier: ClassifierSettings{
			Endpoint:      "http://localhost:11434",
			Model:         "llava",
			Concurrency:   2,
			MinConfidence: 0.5,
		},
		Sync: SyncSettings{
			Region: "us-east-1",
		},
		Formats: formats.DefaultConfig(),
	}
}

// Validate reports the first problem that would make the settings unusable
func (s Settings) Validate() error {
	invalid := func(format string, args ...any) error {
		return mediaerr.Newf(mediaerr.InvalidConfig, "", format, args...)
	}

	if strings.TrimSpace(s.ThumbnailCachePath) == "" {
		return invalid("thumbnail_cache_path is required")
	}
	if strings.TrimSpace(s.DatabasePath) == "" {
		return invalid("database_path is required")
	}
	if s.Workers < 0 {
		return invalid("workers must not be negative, got %d", s.Workers)
	}
	if s.Classifier.Concurrency < 1 {
		return invalid("classifier.concurrency must be at least 1, got %d", s.Classifier.Concurrency)
	}
	if s.Classifier.MinConfidence < 0 || s.Classifier.MinConfidence > 1 {
		return invalid("classifier.min_confidence must be between 0 and 1, got %g", s.Classifier.MinConfidence)
	}
	if s.Sync.Enabled && strings.TrimSpace(s.Sync.Bucket) == "" {
		return invalid("sync.bucket is required when sync is enabled")
	}
	for _, p := range s.Sync.ExcludePatterns {
		if _, err := filepath.Match(p, ""); err != nil {
			return invalid("sync.exclude_patterns: bad pattern %q", p)
		}
	}
	return s.Formats.Validate()
}

// Store reads and writes one settings document
type Store struct {
	path string
}

// NewStore returns a store backed by path, or DefaultPath when empty
func NewStore(path string) *Store {
	if path == "" {
		path = DefaultPath()
	}
	return &Store{path: path}
}

// Path returns the document location
func (st *Store) Path() string {
	return st.path
}

// Exists reports whether a document has been saved
func (st *Store) Exists() bool {
	_, err := os.Stat(st.path)
	return err == nil
}

// Load reads the document. Keys left out keep their default values and a
// missing document yields Default().
func (st *Store) Load() (Settings, error) {
	s := Default()
	data, err := os.ReadFile(st.path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, mediaerr.FromIO(st.path, err)
	}

	if err := yaml.Unmarshal(data, &s); err != nil {
		return Default(), mediaerr.New(mediaerr.InvalidConfig, st.path, err)
	}
	s.Formats.ImageFormats = formats.Normalize(s.Formats.ImageFormats)
	s.Formats.VideoFormats = formats.Normalize(s.Formats.VideoFormats)
	if err := s.Validate(); err != nil {
		return Default(), err
	}
	return s, nil
}

// Save validates s and writes it, replacing any previous document
func (st *Store) Save(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(st.path), 0755); err != nil {
		return mediaerr.FromIO(st.path, err)
	}
	// The document holds credentials
	tmp := st.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return mediaerr.FromIO(st.path, err)
	}
	if err := os.Rename(tmp, st.path); err != nil {
		os.Remove(tmp)
		return mediaerr.FromIO(st.path, err)
	}
	return nil
}

// SaveFormats replaces only the format whitelist of the stored document
func (st *Store) SaveFormats(cfg formats.Config) error {
	s, err := st.Load()
	if err != nil {
		return err
	}
	s.Formats = cfg.Clone()
	return st.Save(s)
}
