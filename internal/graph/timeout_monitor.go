package graph

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// TimeoutMonitor times store writes, warns when a write gets close to its
// transaction timeout and keeps per-operation statistics for the run log.
type TimeoutMonitor struct {
	logger       *slog.Logger
	warningRatio float64 // Warn when execution reaches this share of the timeout

	mu    sync.Mutex
	stats map[string]*TimeoutStats
}

// TimeoutStats aggregates executions of one operation
type TimeoutStats struct {
	Operation       string
	TotalExecutions int
	TimeoutCount    int
	TotalDuration   time.Duration
	MaxDuration     time.Duration
}

// AverageDuration returns the mean execution time
func (s TimeoutStats) AverageDuration() time.Duration {
	if s.TotalExecutions == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(s.TotalExecutions)
}

// NewTimeoutMonitor creates a monitor with default settings
func NewTimeoutMonitor() *TimeoutMonitor {
	return &TimeoutMonitor{
		logger:       slog.Default().With("component", "timeout_monitor"),
		warningRatio: 0.8,
		stats:        make(map[string]*TimeoutStats),
	}
}

// Observe runs fn, records its duration under operation and logs when it
// failed, timed out or used most of timeout.
func (tm *TimeoutMonitor) Observe(operation string, timeout time.Duration, fn func() error) error {
	start := time.Now()
	err := fn()
	duration := time.Since(start)

	timedOut := stderrors.Is(err, context.DeadlineExceeded) || (err != nil && timeout > 0 && duration >= timeout)
	tm.record(operation, duration, timedOut)

	switch {
	case timedOut:
		tm.logger.Error("store write timed out",
			"operation", operation,
			"duration_seconds", duration.Seconds(),
			"timeout_seconds", timeout.Seconds(),
			"error", err)
	case err != nil:
		tm.logger.Warn("store write failed",
			"operation", operation,
			"duration_seconds", duration.Seconds(),
			"error", err)
	case timeout > 0 && duration >= time.Duration(float64(timeout)*tm.warningRatio):
		tm.logger.Warn("store write approaching timeout",
			"operation", operation,
			"duration_seconds", duration.Seconds(),
			"timeout_seconds", timeout.Seconds(),
			"percent_used", duration.Seconds()/timeout.Seconds()*100)
	default:
		tm.logger.Debug("store write completed",
			"operation", operation,
			"duration_seconds", duration.Seconds())
	}
	return err
}

func (tm *TimeoutMonitor) record(operation string, duration time.Duration, timedOut bool) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	stats, ok := tm.stats[operation]
	if !ok {
		stats = &TimeoutStats{Operation: operation}
		tm.stats[operation] = stats
	}
	stats.TotalExecutions++
	stats.TotalDuration += duration
	if timedOut {
		stats.TimeoutCount++
	}
	if duration > stats.MaxDuration {
		stats.MaxDuration = duration
	}
}

// Stats returns a snapshot sorted by operation name
func (tm *TimeoutMonitor) Stats() []TimeoutStats {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	out := make([]TimeoutStats, 0, len(tm.stats))
	for _, s := range tm.stats {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Operation < out[j].Operation })
	return out
}

// LogSummary logs one line per operation
func (tm *TimeoutMonitor) LogSummary() {
	for _, s := range tm.Stats() {
		tm.logger.Info("store write stats",
			"operation", s.Operation,
			"total_executions", s.TotalExecutions,
			"timeout_count", s.TimeoutCount,
			"avg_duration_seconds", s.AverageDuration().Seconds(),
			"max_duration_seconds", s.MaxDuration.Seconds())
	}
}
