package observability

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecord(t *testing.T) {
	m := NewMetrics("test")

	m.SetTierCount("semantic", 3)
	m.SetWorking(2)
	m.ObserveMaintenance("cleanup", nil)
	m.ObserveMaintenance("cleanup", errors.New("boom"))
	m.ObserveFallback(errors.New("provider down"))
	m.ObserveSave(nil)
	m.ObserveRetrieve(3 * time.Millisecond)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.Memories.WithLabelValues("semantic")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.WorkingMemories))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MaintenanceRuns.WithLabelValues("cleanup", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MaintenanceRuns.WithLabelValues("cleanup", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmbeddingFallbacks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SnapshotSaves.WithLabelValues("ok")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.SetTierCount("semantic", 1)
	m.ObserveMaintenance("compress", nil)
	m.ObserveRetrieve(time.Millisecond)
}

func TestHandlerServesRegistry(t *testing.T) {
	m := NewMetrics("tiermem")
	m.SetWorking(4)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "tiermem_working_memories 4"))
}
