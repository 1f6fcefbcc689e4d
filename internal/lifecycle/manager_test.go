package lifecycle

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/tiermem/internal/observability"
	"github.com/rcliao/tiermem/internal/snapshot"
	"github.com/rcliao/tiermem/internal/store"
)

type countingStore struct {
	cleanups  atomic.Int32
	compress  atomic.Int32
	refreshes atomic.Int32
	snapshots atomic.Int32
	panicOn   Task
}

func (s *countingStore) Cleanup(context.Context) store.CleanupReport {
	s.cleanups.Add(1)
	if s.panicOn == TaskCleanup {
		panic("cleanup exploded")
	}
	return store.CleanupReport{}
}

func (s *countingStore) Compress(context.Context) store.CompressReport {
	s.compress.Add(1)
	if s.panicOn == TaskCompress {
		panic("compress exploded")
	}
	return store.CompressReport{Skipped: true}
}

func (s *countingStore) RefreshStats() store.Stats {
	s.refreshes.Add(1)
	return store.Stats{Total: 7}
}

func (s *countingStore) Snapshot() *snapshot.Snapshot {
	s.snapshots.Add(1)
	return snapshot.New()
}

func (s *countingStore) Restore(*snapshot.Snapshot) error { return nil }

func quietLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{})
}

func TestParseTask(t *testing.T) {
	for _, task := range Tasks {
		got, err := ParseTask(string(task))
		require.NoError(t, err)
		assert.Equal(t, task, got)
	}
	_, err := ParseTask("vacuum")
	assert.Error(t, err)
}

func TestRunOnceReports(t *testing.T) {
	s := &countingStore{}
	m := New(s, nil, Intervals{}, WithLogger(quietLogger()))

	rep, err := m.RunOnce(context.Background(), TaskStats)
	require.NoError(t, err)
	assert.Equal(t, store.Stats{Total: 7}, rep)

	rep, err = m.RunOnce(context.Background(), TaskCompress)
	require.NoError(t, err)
	assert.Equal(t, store.CompressReport{Skipped: true}, rep)

	_, err = m.RunOnce(context.Background(), TaskSave)
	assert.NoError(t, err, "saving without a gateway is a no-op")

	_, err = m.RunOnce(context.Background(), Task("bogus"))
	assert.Error(t, err)
}

func TestRunOnceRecoversPanic(t *testing.T) {
	metrics := observability.NewMetrics("test")
	s := &countingStore{panicOn: TaskCleanup}
	m := New(s, nil, Intervals{}, WithLogger(quietLogger()), WithMetrics(metrics))

	_, err := m.RunOnce(context.Background(), TaskCleanup)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cleanup exploded")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.MaintenanceRuns.WithLabelValues("cleanup", "error")))
}

func TestSchedulerKeepsRunningAfterPanic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.json")
	gw := snapshot.NewGateway(snapshot.NewFileBackend(path), snapshot.WithLogger(quietLogger()))
	s := &countingStore{panicOn: TaskCompress}
	m := New(s, gw, Intervals{
		Cleanup:  5 * time.Millisecond,
		Compress: 5 * time.Millisecond,
		Stats:    5 * time.Millisecond,
	}, WithLogger(quietLogger()))

	m.Start(context.Background())
	m.Start(context.Background())

	require.Eventually(t, func() bool {
		return s.compress.Load() >= 3 && s.cleanups.Load() >= 3 && s.refreshes.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Stop(ctx))

	assert.Equal(t, int32(1), s.snapshots.Load(), "stop performs exactly one final save")
	_, err := os.Stat(path)
	assert.NoError(t, err)

	// Loops are gone after Stop.
	n := s.cleanups.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, s.cleanups.Load())
}

func TestStopWithoutStartStillSaves(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.json")
	gw := snapshot.NewGateway(snapshot.NewFileBackend(path), snapshot.WithLogger(quietLogger()))
	s := &countingStore{}
	m := New(s, gw, Intervals{}, WithLogger(quietLogger()))

	require.NoError(t, m.Stop(context.Background()))
	assert.Equal(t, int32(1), s.snapshots.Load())
}
