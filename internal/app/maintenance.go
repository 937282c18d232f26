package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// CleanupResult counts what Cleanup removed.
type CleanupResult struct {
	Metrics     int64
	Completions int
}

// Cleanup drops execution metrics and archived completions older than the
// given number of days. Stored plans are kept.
func (a *App) Cleanup(ctx context.Context, olderThanDays int) (CleanupResult, error) {
	if olderThanDays < 0 {
		return CleanupResult{}, fmt.Errorf("invalid retention of %d days", olderThanDays)
	}

	var res CleanupResult
	n, err := a.metricsStore.Cleanup(ctx, olderThanDays)
	if err != nil {
		return res, err
	}
	res.Metrics = n

	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	removed, err := a.archive.RemoveOlderThan(cutoff)
	if err != nil {
		return res, fmt.Errorf("failed to clean up completion archive: %w", err)
	}
	res.Completions = removed

	a.logger.Info("cleanup finished",
		zap.Int("days", olderThanDays),
		zap.Int64("metrics_removed", res.Metrics),
		zap.Int("completions_removed", res.Completions),
	)
	return res, nil
}
