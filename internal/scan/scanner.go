package scan

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mediacat/internal/formats"
	"mediacat/internal/hash"
	"mediacat/internal/mediaerr"
	"mediacat/internal/metadata"
	"mediacat/internal/metrics"
	"mediacat/internal/models"
	"mediacat/internal/walk"
)

// MinWorkers keeps one slow video decode from stalling the whole scan.
const MinWorkers = 2

// MetadataExtractor produces metadata for one file
type MetadataExtractor interface {
	Extract(ctx context.Context, file models.MediaFile) (models.ImageMetadata, error)
}

// Thumbnailer produces cached derivatives for one file
type Thumbnailer interface {
	Generate(ctx context.Context, file models.MediaFile, checksum string, meta *models.ImageMetadata) (models.ThumbnailPaths, error)
}

// Scanner runs the ingestion pipeline over a folder tree
type Scanner struct {
	extractor   MetadataExtractor
	thumbs      Thumbnailer
	workers     int
	fileTimeout time.Duration
	perceptual  bool
	progressFn  func(models.Progress)
	logger      *zap.Logger
}

// Option configures a Scanner
type Option func(*Scanner)

// WithWorkers sets the number of parallel workers. Values below
// MinWorkers are raised to it.
func WithWorkers(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.workers = max(n, MinWorkers)
		}
	}
}

// WithFileTimeout bounds the time spent on a single file. Zero disables it.
func WithFileTimeout(d time.Duration) Option {
	return func(s *Scanner) {
		s.fileTimeout = d
	}
}

// WithProgress sets a progress callback. It is called from a single
// goroutine, once per completed file, in completion order.
func WithProgress(fn func(models.Progress)) Option {
	return func(s *Scanner) {
		s.progressFn = fn
	}
}

// WithExtractor overrides the metadata extractor
func WithExtractor(e MetadataExtractor) Option {
	return func(s *Scanner) {
		if e != nil {
			s.extractor = e
		}
	}
}

// WithPerceptualHash also computes a pHash for images
func WithPerceptualHash(on bool) Option {
	return func(s *Scanner) {
		s.perceptual = on
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Scanner) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewScanner creates a Scanner that writes thumbnails through thumbs
func NewScanner(thumbs Thumbnailer, opts ...Option) *Scanner {
	s := &Scanner{
		thumbs:  thumbs,
		workers: 8,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.extractor == nil {
		s.extractor = metadata.NewExtractor(metadata.WithLogger(s.logger))
	}
	return s
}

// FileState tracks one file through the pipeline
type FileState int

const (
	Discovered FileState = iota
	MetadataExtracted
	Fingerprinted
	ThumbnailsGenerated
	Accepted
	Failed
	// Aborted files were in flight when the scan was cancelled; they are
	// neither accepted nor reported as failures.
	Aborted
)

var stateNames = [...]string{"discovered", "metadata_extracted", "fingerprinted", "thumbnails_generated", "accepted", "failed", "aborted"}

func (s FileState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("FileState(%d)", int(s))
}

// stage names prefix failure messages
const (
	stageWalk        = "walk"
	stageMetadata    = "metadata"
	stageFingerprint = "fingerprint"
	stageThumbnail   = "thumbnail"
)

type job struct {
	seq  int
	file models.MediaFile
}

type outcome struct {
	seq   int
	file  models.MediaFile
	state FileState
	item  models.ProcessedFile
	err   *models.ScanError
	kind  mediaerr.Kind
}

// Scan walks root with cfg and processes every recognized file.
//
// Only an invalid cfg or a missing root fail the whole call. Per-file
// problems are collected in ScanResult.Errors. If ctx is cancelled the
// files finished so far are returned together with ctx.Err().
func (s *Scanner) Scan(ctx context.Context, root string, cfg formats.Config) (*models.ScanResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := walk.ValidateRoot(root); err != nil {
		return nil, err
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	start := time.Now()
	result := &models.ScanResult{
		RunID:      uuid.NewString(),
		Root:       absRoot,
		MediaFiles: []models.MediaFile{},
		Errors:     []models.ScanError{},
	}
	logger := s.logger.With(zap.String("scan_id", result.RunID), zap.String("root", absRoot))
	logger.Info("scan started", zap.Int("workers", s.workers))

	jobs := make(chan job, s.workers*2)
	results := make(chan outcome, s.workers*2)
	var wg sync.WaitGroup

	// Producer: the walk is sequential but overlaps with processing
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(jobs)
		seq := 0
		for file, werr := range walk.New(cfg).Walk(ctx, absRoot) {
			if werr != nil {
				o := walkOutcome(werr)
				select {
				case results <- o:
				case <-ctx.Done():
					return
				}
				continue
			}
			select {
			case jobs <- job{seq: seq, file: file}:
				seq++
			case <-ctx.Done():
				return
			}
		}
	}()

	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case j, ok := <-jobs:
					if !ok {
						return
					}
					if ctx.Err() != nil {
						return
					}
					results <- s.process(ctx, j)
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	// Collector
	var accepted []outcome
	completed := 0
	for o := range results {
		switch o.state {
		case Aborted:
			continue
		case Accepted:
			accepted = append(accepted, o)
			if o.file.Type == models.MediaVideo {
				result.VideoCount++
			} else {
				result.ImageCount++
			}
			metrics.ScanFilesTotal.WithLabelValues(string(o.file.Type), "accepted").Inc()
		default:
			result.Errors = append(result.Errors, *o.err)
			if o.kind == mediaerr.CacheWriteError && !result.Degraded {
				result.Degraded = true
				logger.Warn("thumbnail cache write failed, scan degraded", zap.String("path", o.err.Path))
			}
			metrics.ScanErrorsTotal.WithLabelValues(o.kind.String()).Inc()
			if o.file.Path != "" {
				metrics.ScanFilesTotal.WithLabelValues(string(o.file.Type), "failed").Inc()
			}
			logger.Debug("file failed",
				zap.String("path", o.err.Path),
				zap.String("kind", o.err.Kind),
				zap.String("message", o.err.Message),
			)
		}

		completed++
		if s.progressFn != nil {
			s.progressFn(models.Progress{
				CountSoFar:  completed,
				CurrentFile: o.currentPath(),
				ImageCount:  result.ImageCount,
				VideoCount:  result.VideoCount,
				ErrorCount:  len(result.Errors),
			})
		}
	}

	// Progress follows completion order; the result lists files in
	// discovery order so it is stable for a given tree.
	sort.Slice(accepted, func(i, j int) bool { return accepted[i].seq < accepted[j].seq })
	for _, o := range accepted {
		result.MediaFiles = append(result.MediaFiles, o.file)
		result.Items = append(result.Items, o.item)
	}
	result.TotalCount = len(result.MediaFiles)
	result.Duration = time.Since(start)
	metrics.ScanLastDuration.Set(result.Duration.Seconds())

	if err := ctx.Err(); err != nil {
		metrics.ScansTotal.WithLabelValues("cancelled").Inc()
		logger.Warn("scan cancelled", zap.Int("accepted", result.TotalCount), zap.Int("errors", len(result.Errors)))
		return result, err
	}

	status := "complete"
	if result.Degraded {
		status = "degraded"
	}
	metrics.ScansTotal.WithLabelValues(status).Inc()
	logger.Info("scan finished",
		zap.Int("images", result.ImageCount),
		zap.Int("videos", result.VideoCount),
		zap.Int("errors", len(result.Errors)),
		zap.Duration("took", result.Duration),
	)
	return result, nil
}

func (o outcome) currentPath() string {
	if o.file.Path != "" {
		return o.file.Path
	}
	if o.err != nil {
		return o.err.Path
	}
	return ""
}

// process runs one file through the pipeline
func (s *Scanner) process(ctx context.Context, j job) outcome {
	metrics.WorkersActive.Inc()
	defer metrics.WorkersActive.Dec()

	fileCtx := ctx
	if s.fileTimeout > 0 {
		var cancel context.CancelFunc
		fileCtx, cancel = context.WithTimeout(ctx, s.fileTimeout)
		defer cancel()
	}

	item, state, stage, err := s.run(fileCtx, j.file)
	o := outcome{seq: j.seq, file: j.file, state: state, item: item}
	if err == nil {
		return o
	}
	if ctx.Err() != nil {
		o.state = Aborted
		return o
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = mediaerr.Newf(mediaerr.IoError, j.file.Path, "timed out after %s", s.fileTimeout)
	}
	o.state = Failed
	o.kind = mediaerr.KindOf(err)
	o.err = &models.ScanError{
		Path:    j.file.Path,
		Kind:    o.kind.String(),
		Message: stage + ": " + describe(err),
	}
	return o
}

// ProcessFile runs the full pipeline on a single file outside a scan.
func (s *Scanner) ProcessFile(ctx context.Context, file models.MediaFile) (models.ProcessedFile, error) {
	item, _, stage, err := s.run(ctx, file)
	if err != nil {
		return models.ProcessedFile{}, fmt.Errorf("%s: %w", stage, err)
	}
	return item, nil
}

// run advances file through Discovered -> MetadataExtracted ->
// Fingerprinted -> ThumbnailsGenerated -> Accepted, stopping at the
// first failing stage.
func (s *Scanner) run(ctx context.Context, file models.MediaFile) (models.ProcessedFile, FileState, string, error) {
	item := models.ProcessedFile{File: file}

	t := time.Now()
	meta, err := s.extractor.Extract(ctx, file)
	metrics.ObserveStage(stageMetadata, t)
	if err != nil {
		return item, Failed, stageMetadata, err
	}
	item.Metadata = meta

	t = time.Now()
	sum, err := hash.Fingerprint(file.Path)
	metrics.ObserveStage(stageFingerprint, t)
	if err != nil {
		return item, Failed, stageFingerprint, err
	}
	item.Checksum = sum

	if s.perceptual && file.Type == models.MediaImage {
		if ph, err := hash.PerceptualHash(file.Path); err == nil {
			item.PerceptualHash = ph
		} else {
			s.logger.Debug("perceptual hash skipped", zap.String("path", file.Path), zap.Error(err))
		}
	}

	t = time.Now()
	thumbs, err := s.thumbs.Generate(ctx, file, sum, &meta)
	metrics.ObserveStage(stageThumbnail, t)
	if err != nil {
		return item, Failed, stageThumbnail, err
	}
	item.Thumbnails = thumbs

	return item, Accepted, "", nil
}

// walkOutcome turns a walker error into a failed outcome with no file.
func walkOutcome(err error) outcome {
	kind := mediaerr.KindOf(err)
	path := ""
	var me *mediaerr.Error
	if errors.As(err, &me) {
		path = me.Path
	}

	var msg string
	switch kind {
	case mediaerr.AccessDenied:
		msg = "access denied"
	case mediaerr.CycleDetected:
		msg = "cycle detected: " + describe(err)
	default:
		msg = stageWalk + ": " + describe(err)
	}
	return outcome{
		state: Failed,
		kind:  kind,
		err:   &models.ScanError{Path: path, Kind: kind.String(), Message: msg},
	}
}

// describe returns the cause text without the kind/path prefix
func describe(err error) string {
	var me *mediaerr.Error
	if errors.As(err, &me) {
		if me.Err != nil {
			return me.Err.Error()
		}
		return me.Kind.String()
	}
	return err.Error()
}
