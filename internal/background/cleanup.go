package background

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SessionPruner removes session records whose retention has lapsed
type SessionPruner interface {
	PruneExpired(ctx context.Context) (int64, error)
}

// CleanupManager periodically prunes expired sessions from stores that do not
// expire keys on their own. It never makes security decisions; expiry is
// enforced when a session is validated.
type CleanupManager struct {
	pruner   SessionPruner
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(pruner SessionPruner, logger *slog.Logger, interval time.Duration) *CleanupManager {
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	return &CleanupManager{
		pruner:   pruner,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the periodic cleanup until Stop is called or ctx is done
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cm.RunOnce(ctx)
		case <-cm.stopCh:
			cm.logger.Info("session cleanup stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("session cleanup context cancelled")
			return
		}
	}
}

// RunOnce prunes expired sessions and returns how many were removed
func (cm *CleanupManager) RunOnce(ctx context.Context) int64 {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	removed, err := cm.pruner.PruneExpired(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to prune expired sessions", slog.Any("error", err))
		return 0
	}

	if removed > 0 {
		cm.logger.Info("expired sessions pruned", slog.Int64("sessions_removed", removed))
	}
	return removed
}

// Stop signals the cleanup manager to stop; safe to call more than once
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() {
		close(cm.stopCh)
	})
}
