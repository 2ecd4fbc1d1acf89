package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveCatalog(t *testing.T) {
	before := testutil.ToFloat64(CatalogQueriesTotal.WithLabelValues("upsert", "error"))
	ObserveCatalog("upsert", time.Now(), errors.New("boom"))
	after := testutil.ToFloat64(CatalogQueriesTotal.WithLabelValues("upsert", "error"))
	assert.Equal(t, before+1, after)

	before = testutil.ToFloat64(CatalogQueriesTotal.WithLabelValues("get", "success"))
	ObserveCatalog("get", time.Now(), nil)
	assert.Equal(t, before+1, testutil.ToFloat64(CatalogQueriesTotal.WithLabelValues("get", "success")))
}

func TestObserveStage(t *testing.T) {
	ObserveStage("metadata", time.Now().Add(-10*time.Millisecond))
	assert.Equal(t, 1, testutil.CollectAndCount(StageDuration, "mediacat_stage_duration_seconds"))
}
