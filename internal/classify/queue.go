package classify

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"mediacat/internal/metrics"
)

// Queue caps how many classifier calls run at once
type Queue struct {
	classifier Classifier
	sem        *semaphore.Weighted
	logger     *zap.Logger
}

// Outcome is the result of classifying one path
type Outcome struct {
	Path   string
	Labels []Label
	Err    error
}

// NewQueue wraps c so that at most concurrency calls are in flight
func NewQueue(c Classifier, concurrency int, logger *zap.Logger) *Queue {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		classifier: c,
		sem:        semaphore.NewWeighted(int64(concurrency)),
		logger:     logger,
	}
}

// Classify waits for a free slot and classifies path
func (q *Queue) Classify(ctx context.Context, path string) ([]Label, error) {
	if err := q.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer q.sem.Release(1)
	return q.classify(ctx, path)
}

// classify runs one call. The caller must hold a semaphore slot.
func (q *Queue) classify(ctx context.Context, path string) ([]Label, error) {
	metrics.ClassifierInFlight.Inc()
	defer metrics.ClassifierInFlight.Dec()

	labels, err := q.classifier.Classify(ctx, path)
	if err != nil {
		metrics.ClassifierRequestsTotal.WithLabelValues("error").Inc()
		q.logger.Debug("classification failed", zap.String("path", path), zap.Error(err))
		return nil, err
	}
	metrics.ClassifierRequestsTotal.WithLabelValues("ok").Inc()
	return labels, nil
}

// ClassifyAll classifies every path and returns outcomes in input order.
// A slot is acquired before each goroutine starts, so at most concurrency
// goroutines exist at a time.
func (q *Queue) ClassifyAll(ctx context.Context, paths []string) []Outcome {
	out := make([]Outcome, len(paths))
	var wg sync.WaitGroup
	for i, p := range paths {
		out[i].Path = p
		if err := q.sem.Acquire(ctx, 1); err != nil {
			out[i].Err = err
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer q.sem.Release(1)
			out[i].Labels, out[i].Err = q.classify(ctx, p)
		}()
	}
	wg.Wait()
	return out
}
