// Package lifecycle runs the periodic maintenance of a memory store: working
// overlay cleanup, compression, statistics refresh and autosave.
package lifecycle

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/rcliao/tiermem/internal/config"
	"github.com/rcliao/tiermem/internal/observability"
	"github.com/rcliao/tiermem/internal/snapshot"
	"github.com/rcliao/tiermem/internal/store"
)

// Task names one maintenance activity.
type Task string

const (
	TaskCleanup  Task = "cleanup"
	TaskCompress Task = "compress"
	TaskStats    Task = "stats"
	TaskSave     Task = "save"
)

// Tasks lists every activity in scheduling order.
var Tasks = []Task{TaskCleanup, TaskCompress, TaskStats, TaskSave}

// ParseTask validates a task name.
func ParseTask(s string) (Task, error) {
	for _, t := range Tasks {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown task %q (valid: cleanup, compress, stats, save)", s)
}

// Store is the part of the memory store the manager drives.
type Store interface {
	snapshot.Source
	Cleanup(context.Context) store.CleanupReport
	Compress(context.Context) store.CompressReport
	RefreshStats() store.Stats
}

// Intervals sets how often each task runs. A non-positive interval disables
// the task's loop.
type Intervals struct {
	Cleanup  time.Duration
	Compress time.Duration
	Stats    time.Duration
	Save     time.Duration
}

// IntervalsFromConfig reads the schedule from cfg.
func IntervalsFromConfig(cfg config.Config) Intervals {
	return Intervals{
		Cleanup:  cfg.Decay.Interval,
		Compress: cfg.Compression.Interval,
		Stats:    cfg.Stats.Interval,
		Save:     cfg.Persistence.AutosaveInterval,
	}
}

func (iv Intervals) of(t Task) time.Duration {
	switch t {
	case TaskCleanup:
		return iv.Cleanup
	case TaskCompress:
		return iv.Compress
	case TaskStats:
		return iv.Stats
	case TaskSave:
		return iv.Save
	}
	return 0
}

// Manager owns one ticker goroutine per task.
type Manager struct {
	store     Store
	gateway   *snapshot.Gateway
	intervals Intervals
	logger    *log.Logger
	metrics   *observability.Metrics

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// Option configures a Manager.
type Option func(*Manager)

func WithLogger(l *log.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

func WithMetrics(mt *observability.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// New creates a manager. gateway may be nil, in which case saving is a no-op.
func New(s Store, gateway *snapshot.Gateway, iv Intervals, opts ...Option) *Manager {
	m := &Manager{
		store:     s,
		gateway:   gateway,
		intervals: iv,
		logger:    log.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the task loops. Calling Start on a running manager is a no-op.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.running = true

	for _, t := range Tasks {
		every := m.intervals.of(t)
		if every <= 0 {
			m.logger.Debug("task disabled", "task", t)
			continue
		}
		m.wg.Add(1)
		go m.loop(ctx, t, every)
	}
	m.logger.Info("maintenance started",
		"cleanup", m.intervals.Cleanup, "compress", m.intervals.Compress,
		"stats", m.intervals.Stats, "save", m.intervals.Save)
}

func (m *Manager) loop(ctx context.Context, t Task, every time.Duration) {
	defer m.wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.RunOnce(ctx, t)
		}
	}
}

// Stop cancels the loops, waits for in-flight runs and performs a final save.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.cancel()
		m.running = false
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("waiting for maintenance to stop: %w", ctx.Err())
	}

	_, err := m.RunOnce(ctx, TaskSave)
	m.logger.Info("maintenance stopped")
	return err
}

// RunOnce runs a single task synchronously and returns its report. A panic in
// the task is recovered and returned as an error.
func (m *Manager) RunOnce(ctx context.Context, t Task) (report any, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", t, r)
			m.logger.Error("maintenance task panicked", "task", t, "panic", r, "stack", string(debug.Stack()))
		} else if err != nil {
			m.logger.Error("maintenance task failed", "task", t, "err", err)
		}
		m.metrics.ObserveMaintenance(string(t), err)
	}()

	switch t {
	case TaskCleanup:
		report = m.store.Cleanup(ctx)
	case TaskCompress:
		report = m.store.Compress(ctx)
	case TaskStats:
		report = m.store.RefreshStats()
	case TaskSave:
		if m.gateway != nil {
			err = m.gateway.Save(ctx, m.store)
		}
	default:
		err = fmt.Errorf("unknown task %q", t)
	}
	m.logger.Debug("maintenance task done", "task", t, "elapsed", time.Since(start))
	return report, err
}
