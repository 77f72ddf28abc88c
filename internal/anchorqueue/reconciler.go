// Package anchorqueue drains certificates whose ledger anchor did not
// confirm at issuance time. The same reconciler runs inside the API process
// on a schedule and as a standalone worker binary; both paths are idempotent
// against each other because the ledger treats re-anchoring as
// ErrAlreadyAnchored and the row update is guarded on the pending state.
package anchorqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"academia-veritas/registry-backend/internal/integrity"
	"academia-veritas/registry-backend/internal/ledger"
	"academia-veritas/registry-backend/internal/metrics"
	"academia-veritas/registry-backend/internal/notify"
)

// Config tunes the reconciliation loop.
type Config struct {
	PollInterval  time.Duration
	BatchSize     int
	AnchorTimeout time.Duration
}

// DefaultConfig returns the default reconciler configuration.
func DefaultConfig() Config {
	return Config{
		PollInterval:  time.Minute,
		BatchSize:     25,
		AnchorTimeout: 30 * time.Second,
	}
}

// Reconciler re-submits pending fingerprints to the ledger.
type Reconciler struct {
	db      *sqlx.DB
	chain   ledger.Client
	events  *notify.Hub
	metrics *metrics.Metrics
	config  Config
	logger  *zap.Logger
	done    chan struct{}
}

// NewReconciler creates a reconciler. events and m may be nil.
func NewReconciler(db *sqlx.DB, chain ledger.Client, events *notify.Hub, m *metrics.Metrics, config Config, logger *zap.Logger) *Reconciler {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultConfig().PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig().BatchSize
	}
	if config.AnchorTimeout <= 0 {
		config.AnchorTimeout = DefaultConfig().AnchorTimeout
	}
	return &Reconciler{
		db:      db,
		chain:   chain,
		events:  events,
		metrics: m,
		config:  config,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Run polls until the context is canceled or Stop is called. The first pass
// happens immediately.
func (r *Reconciler) Run(ctx context.Context) error {
	r.logger.Info("anchor reconciler starting",
		zap.Duration("poll_interval", r.config.PollInterval),
		zap.Int("batch_size", r.config.BatchSize))

	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	r.runPass(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("anchor reconciler shutting down")
			return nil
		case <-r.done:
			r.logger.Info("anchor reconciler stopped")
			return nil
		case <-ticker.C:
			r.runPass(ctx)
		}
	}
}

// Stop terminates a Run loop.
func (r *Reconciler) Stop() {
	close(r.done)
}

func (r *Reconciler) runPass(ctx context.Context) {
	anchored, err := r.ReconcileOnce(ctx)
	if err != nil {
		r.logger.Warn("reconcile pass incomplete", zap.Int("anchored", anchored), zap.Error(err))
		return
	}
	if anchored > 0 {
		r.logger.Info("reconcile pass complete", zap.Int("anchored", anchored))
	}
}

type pendingRow struct {
	ID          uuid.UUID `db:"id"`
	Fingerprint string    `db:"fingerprint"`
}

type receiptDetail struct {
	TxHash string `json:"tx_hash,omitempty"`
	Ledger int32  `json:"ledger,omitempty"`
	Note   string `json:"note,omitempty"`
}

// ReconcileOnce anchors up to BatchSize pending certificates and returns how
// many were confirmed. A ledger that is down or timing out aborts the pass:
// the remaining rows would only repeat the same failure.
func (r *Reconciler) ReconcileOnce(ctx context.Context) (int, error) {
	rows, err := r.pending(ctx)
	if err != nil {
		return 0, err
	}

	anchored := 0
	for _, row := range rows {
		fp, err := integrity.ParseFingerprintHex(row.Fingerprint)
		if err != nil {
			r.logger.Error("skipping certificate with malformed fingerprint",
				zap.String("certificate_id", row.ID.String()), zap.Error(err))
			continue
		}

		anchorCtx, cancel := context.WithTimeout(ctx, r.config.AnchorTimeout)
		start := time.Now()
		receipt, err := r.chain.Anchor(anchorCtx, fp)
		elapsed := time.Since(start)
		cancel()

		switch {
		case err == nil:
			r.metrics.AnchorSubmission(metrics.AnchorOutcomeAnchored, elapsed)
			if err := r.markAnchored(ctx, row, receipt.TxHash, receiptDetail{TxHash: receipt.TxHash, Ledger: receipt.Ledger}, receipt.AnchoredAt); err != nil {
				r.logger.Error("failed to mark certificate anchored",
					zap.String("certificate_id", row.ID.String()), zap.Error(err))
				continue
			}
			anchored++
		case errors.Is(err, ledger.ErrAlreadyAnchored):
			r.metrics.AnchorSubmission(metrics.AnchorOutcomeExisting, elapsed)
			if err := r.markAnchored(ctx, row, "", receiptDetail{Note: "fingerprint already present on ledger"}, time.Now().UTC()); err != nil {
				r.logger.Error("failed to mark certificate anchored",
					zap.String("certificate_id", row.ID.String()), zap.Error(err))
				continue
			}
			anchored++
		default:
			r.metrics.AnchorSubmission(metrics.AnchorOutcomeForError(err), elapsed)
			return anchored, fmt.Errorf("anchoring certificate %s: %w", row.ID, err)
		}
	}
	return anchored, nil
}

func (r *Reconciler) pending(ctx context.Context) ([]pendingRow, error) {
	query := `
		SELECT id, fingerprint
		FROM certificates
		WHERE anchor_status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1
	`
	var rows []pendingRow
	if err := r.db.SelectContext(ctx, &rows, query, r.config.BatchSize); err != nil {
		return nil, fmt.Errorf("failed to query pending certificates: %w", err)
	}
	return rows, nil
}

// markAnchored flips the row to anchored, but only while it is still
// pending: a concurrent batch-anchor run wins and this update becomes a
// no-op.
func (r *Reconciler) markAnchored(ctx context.Context, row pendingRow, txHash string, detail receiptDetail, at time.Time) error {
	raw, err := json.Marshal(detail)
	if err != nil {
		raw = nil
	}
	query := `
		UPDATE certificates SET
			anchor_status = 'anchored',
			anchor_receipt = $2,
			anchor_detail = $3,
			anchored_at = $4,
			updated_at = NOW()
		WHERE id = $1 AND anchor_status = 'pending'
	`
	res, err := r.db.ExecContext(ctx, query, row.ID, txHash, raw, at)
	if err != nil {
		return fmt.Errorf("failed to update certificate %s: %w", row.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil
	}

	r.logger.Info("certificate anchored by reconciler",
		zap.String("certificate_id", row.ID.String()),
		zap.String("tx_hash", txHash))
	if r.events != nil {
		r.events.Publish(notify.Event{
			Type:          notify.EventCertificateAnchored,
			CertificateID: row.ID.String(),
			Fingerprint:   row.Fingerprint,
			Status:        "anchored",
			Receipt:       txHash,
			At:            at,
		})
	}
	return nil
}
