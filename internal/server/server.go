// Package server exposes the catalog as a JSON API for local front ends.
// Records are read-only; embeddings can be stored per record.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"mediacat/internal/match"
	"mediacat/internal/models"
	"mediacat/internal/storage"
)

// Catalog is the side of the catalog the API serves
type Catalog interface {
	Get(ctx context.Context, id int64) (*models.ImageRecord, error)
	All(ctx context.Context) ([]*models.ImageRecord, error)
	Query(ctx context.Context, filter models.ImageFilter) ([]*models.ImageRecord, error)
	TagsFor(ctx context.Context, imageID int64) ([]models.Tag, error)
	Stats(ctx context.Context) (storage.Stats, error)
	SaveEmbedding(ctx context.Context, imageID int64, vector []float64, modelVersion string) error
	Embeddings(ctx context.Context, modelVersion string) ([]models.Embedding, error)
}

// Server represents the web server
type Server struct {
	catalog     Catalog
	idleTimeout time.Duration
	logger      *zap.Logger

	mu           sync.Mutex
	lastActivity time.Time
}

// Option configures a Server
type Option func(*Server)

// WithIdleTimeout stops Run after d without requests. Zero disables it.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.idleTimeout = d
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Server over catalog
func New(catalog Catalog, opts ...Option) *Server {
	s := &Server{
		catalog:      catalog,
		logger:       zap.NewNop(),
		lastActivity: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the API routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/images", s.handleQuery)
	mux.HandleFunc("GET /api/images/{id}", s.handleImage)
	mux.HandleFunc("GET /api/images/{id}/thumbnail", s.handleThumbnail)
	mux.HandleFunc("PUT /api/images/{id}/embedding", s.handleSaveEmbedding)
	mux.HandleFunc("GET /api/embeddings", s.handleEmbeddings)
	mux.HandleFunc("GET /api/duplicates", s.handleDuplicates)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.Handle("GET /metrics", promhttp.Handler())
	return s.activity(mux)
}

// Run serves on ln until ctx is done or the idle timeout elapses
func (s *Server) Run(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if s.idleTimeout > 0 {
		go s.idleTimeoutChecker(ctx, cancel)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api listening", zap.String("addr", ln.Addr().String()))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) idleTimeoutChecker(ctx context.Context, stop context.CancelFunc) {
	ticker := time.NewTicker(min(10*time.Second, max(s.idleTimeout/4, time.Millisecond)))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.idleFor() >= s.idleTimeout {
				s.logger.Info("idle timeout reached, shutting down", zap.Duration("timeout", s.idleTimeout))
				stop()
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) idleFor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActivity)
}

func (s *Server) recordActivity() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Server) activity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.recordActivity()
		next.ServeHTTP(w, r)
	})
}

// API Handlers

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	filter, err := ParseFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	recs, err := s.catalog.Query(r.Context(), filter)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if recs == nil {
		recs = []*models.ImageRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookup(w, r)
	if !ok {
		return
	}
	tags, err := s.catalog.TagsFor(r.Context(), rec.ID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if tags == nil {
		tags = []models.Tag{}
	}
	writeJSON(w, http.StatusOK, struct {
		*models.ImageRecord
		Tags []models.Tag `json:"tags"`
	}{rec, tags})
}

func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookup(w, r)
	if !ok {
		return
	}

	path := rec.ThumbnailMedium
	switch r.URL.Query().Get("size") {
	case "", "medium":
	case "small":
		path = rec.ThumbnailSmall
	default:
		writeError(w, http.StatusBadRequest, errors.New("size must be small or medium"))
		return
	}
	if path == "" {
		writeError(w, http.StatusNotFound, errors.New("record has no thumbnail"))
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "max-age=86400")
	http.ServeFile(w, r, path)
}

type embeddingRequest struct {
	Vector       []float64 `json:"vector"`
	ModelVersion string    `json:"model_version"`
}

func (s *Server) handleSaveEmbedding(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var req embeddingRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("body must be a JSON object with vector and model_version"))
		return
	}
	if len(req.Vector) == 0 || req.ModelVersion == "" {
		writeError(w, http.StatusBadRequest, errors.New("vector and model_version are required"))
		return
	}

	if err := s.catalog.SaveEmbedding(r.Context(), rec.ID, req.Vector, req.ModelVersion); err != nil {
		s.internalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	embs, err := s.catalog.Embeddings(r.Context(), r.URL.Query().Get("model"))
	if err != nil {
		s.internalError(w, err)
		return
	}
	if embs == nil {
		embs = []models.Embedding{}
	}
	writeJSON(w, http.StatusOK, embs)
}

func (s *Server) handleDuplicates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var m match.Matcher = match.NewExactMatcher()
	if similar, _ := strconv.ParseBool(q.Get("similar")); similar {
		threshold := match.DefaultThreshold
		if v := q.Get("threshold"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 || n > 64 {
				writeError(w, http.StatusBadRequest, errors.New("threshold must be between 0 and 64"))
				return
			}
			threshold = n
		}
		m = match.NewPerceptualMatcher(threshold)
	}

	recs, err := s.catalog.All(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	groups := m.FindGroups(recs)
	if groups == nil {
		groups = []*models.DuplicateGroup{}
	}
	writeJSON(w, http.StatusOK, groups)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.catalog.Stats(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*models.ImageRecord, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, errors.New("invalid id"))
		return nil, false
	}
	rec, err := s.catalog.Get(r.Context(), id)
	if err != nil {
		s.internalError(w, err)
		return nil, false
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, errors.New("record not found"))
		return nil, false
	}
	return rec, true
}

// ParseFilter reads a query filter from URL parameters: from, to, camera,
// type, tag (repeatable), q, near (lat,lon), radius (km, default 10),
// sync, limit and offset.
func ParseFilter(v url.Values) (models.ImageFilter, error) {
	var f models.ImageFilter
	var err error

	if f.DateFrom, err = models.ParseDate(v.Get("from")); err != nil {
		return f, err
	}
	to, err := models.ParseDate(v.Get("to"))
	if err != nil {
		return f, err
	}
	f.DateTo = models.EndOfDay(to)

	switch t := models.MediaType(strings.ToLower(v.Get("type"))); t {
	case "", models.MediaImage, models.MediaVideo:
		f.MediaType = t
	default:
		return f, errors.New("type must be image or video")
	}
	switch st := models.SyncStatus(strings.ToLower(v.Get("sync"))); st {
	case "", models.SyncPending, models.SyncSynced, models.SyncFailed:
		f.SyncStatus = st
	default:
		return f, errors.New("sync must be pending, synced or failed")
	}

	radius := 10.0
	if r := v.Get("radius"); r != "" {
		if radius, err = strconv.ParseFloat(r, 64); err != nil {
			return f, errors.New("radius must be a number")
		}
	}
	if f.Location, err = models.ParseLocation(v.Get("near"), radius); err != nil {
		return f, err
	}

	if f.Limit, err = nonNegative(v.Get("limit")); err != nil {
		return f, errors.New("limit must be a non-negative integer")
	}
	if f.Offset, err = nonNegative(v.Get("offset")); err != nil {
		return f, errors.New("offset must be a non-negative integer")
	}

	f.CameraModel = v.Get("camera")
	f.Tags = v["tag"]
	f.Text = v.Get("q")
	return f, nil
}

func nonNegative(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.New("negative")
	}
	return n, nil
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.logger.Error("request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, errors.New("internal error"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
