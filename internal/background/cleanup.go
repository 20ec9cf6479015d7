package background

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/BradenHooton/loginguard/internal/clock"
)

// PurgeFunc removes state that can no longer affect a decision at now and
// returns how many entries it dropped.
type PurgeFunc func(now time.Time) int

// CleanupManager periodically purges stale guard state from in-process stores.
// Redis-backed stores expire keys on their own and need no manager.
type CleanupManager struct {
	tasks    map[string]PurgeFunc
	clk      clock.Clock
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	tasks map[string]PurgeFunc,
	clk clock.Clock,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		tasks:    tasks,
		clk:      clk,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic cleanup task. It blocks until Stop or ctx ends.
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cm.runCleanup()
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup() map[string]int {
	now := cm.clk.Now()

	names := make([]string, 0, len(cm.tasks))
	for name := range cm.tasks {
		names = append(names, name)
	}
	sort.Strings(names)

	removed := make(map[string]int, len(names))
	for _, name := range names {
		n := cm.tasks[name](now)
		removed[name] = n
		if n > 0 {
			cm.logger.Debug("purged stale entries", slog.String("store", name), slog.Int("removed", n))
		}
	}
	return removed
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
