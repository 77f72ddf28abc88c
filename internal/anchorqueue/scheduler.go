package anchorqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultSchedule is the cron spec used when none is configured.
const DefaultSchedule = "@every 1m"

// Scheduler drives reconciliation passes from a cron expression. The API
// process uses it instead of the reconciler's own ticker loop so operators
// can align anchoring with ledger quiet hours.
type Scheduler struct {
	cron    *cron.Cron
	rec     *Reconciler
	spec    string
	logger  *zap.Logger
	mu      sync.Mutex
	running bool
}

// NewScheduler wraps rec in a cron-driven scheduler. spec accepts standard
// five-field cron expressions and @every descriptors.
func NewScheduler(rec *Reconciler, spec string, logger *zap.Logger) *Scheduler {
	if spec == "" {
		spec = DefaultSchedule
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:   cron.New(),
		rec:    rec,
		spec:   spec,
		logger: logger,
	}
}

// Start registers the reconciliation job and starts the cron loop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("anchor scheduler already running")
	}

	_, err := s.cron.AddFunc(s.spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.rec.config.AnchorTimeout*time.Duration(s.rec.config.BatchSize))
		defer cancel()
		anchored, err := s.rec.ReconcileOnce(ctx)
		if err != nil {
			s.logger.Warn("scheduled reconciliation pass failed", zap.Error(err))
			return
		}
		if anchored > 0 {
			s.logger.Info("scheduled reconciliation pass completed", zap.Int("anchored", anchored))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule reconciliation: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("anchor scheduler started", zap.String("schedule", s.spec))
	return nil
}

// Stop halts the cron loop and waits for an in-flight pass to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false
	s.logger.Info("anchor scheduler stopped")
}
