package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/quotawatch/quotawatch/internal/domain/port/driven"
	"github.com/quotawatch/quotawatch/internal/telemetry"
)

// RetentionService prunes balance observations older than the
// retention horizon on a cron schedule.
type RetentionService struct {
	history  driven.HistoryStore
	schedule string
	horizon  time.Duration
	metrics  *telemetry.Metrics
	logger   *slog.Logger

	cron *cron.Cron
}

// NewRetentionService creates a RetentionService. retentionDays <= 0
// disables pruning entirely.
func NewRetentionService(history driven.HistoryStore, schedule string, retentionDays int, metrics *telemetry.Metrics) *RetentionService {
	return &RetentionService{
		history:  history,
		schedule: schedule,
		horizon:  time.Duration(retentionDays) * 24 * time.Hour,
		metrics:  metrics,
		logger:   slog.Default(),
	}
}

// Start registers the prune job and starts the cron runner. It
// returns immediately; the runner stops when ctx is canceled.
func (s *RetentionService) Start(ctx context.Context) error {
	if s.horizon <= 0 || s.schedule == "" {
		s.logger.Info("history retention disabled")
		return nil
	}

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.Prune(ctx); err != nil {
			s.logger.Error("history prune failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", s.schedule, err)
	}

	s.cron.Start()
	s.logger.Info("history retention scheduled", "schedule", s.schedule, "retention", s.horizon)

	go func() {
		<-ctx.Done()
		stopCtx := s.cron.Stop()
		<-stopCtx.Done()
	}()
	return nil
}

// Prune deletes observations older than the retention horizon and
// returns how many were removed.
func (s *RetentionService) Prune(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-s.horizon)

	pruned, err := s.history.PruneOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune observations: %w", err)
	}

	s.metrics.ObservationsPruned(pruned)
	s.logger.Info("history pruned", "removed", pruned, "cutoff", cutoff.Format(time.RFC3339))
	return pruned, nil
}
