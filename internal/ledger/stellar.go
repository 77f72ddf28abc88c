package ledger

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/txnbuild"
	"go.uber.org/zap"

	"academia-veritas/registry-backend/internal/integrity"
)

// anchorTxTimeoutSeconds bounds how long a submitted transaction stays
// valid on the network before nodes drop it.
const anchorTxTimeoutSeconds = 300

// Config carries the Stellar connection and anchor-account material. All
// of it is required at construction; a client is never built half-configured.
type Config struct {
	HorizonURL        string        `json:"horizon_url"`
	NetworkPassphrase string        `json:"network_passphrase"`
	AnchorSecretSeed  string        `json:"anchor_secret_seed"`
	SubmitTimeout     time.Duration `json:"submit_timeout"`
	MaxAttempts       int           `json:"max_attempts"`
	RetryBackoff      time.Duration `json:"retry_backoff"`
}

// horizonAPI is the slice of the Horizon client the anchor client depends on.
type horizonAPI interface {
	AccountDetail(request horizonclient.AccountRequest) (horizon.Account, error)
	SubmitTransaction(tx *txnbuild.Transaction) (horizon.Transaction, error)
}

// StellarClient anchors fingerprints as ManageData entries on a dedicated
// Stellar account. The data-entry key is the 64-character hex fingerprint,
// which is exactly Stellar's data-key width; the value is the anchor time.
type StellarClient struct {
	cfg     Config
	horizon horizonAPI
	kp      *keypair.Full
	logger  *zap.Logger

	// mu serializes submissions: the anchor account's sequence number
	// must increase strictly, so concurrent Anchor calls queue here.
	mu sync.Mutex
}

// NewStellarClient validates cfg and builds the anchor client. Missing
// endpoint, passphrase or seed is a construction error, not a first-call
// surprise.
func NewStellarClient(cfg Config, logger *zap.Logger) (*StellarClient, error) {
	if cfg.HorizonURL == "" {
		return nil, errors.New("ledger config: horizon url is required")
	}
	if cfg.NetworkPassphrase == "" {
		return nil, errors.New("ledger config: network passphrase is required")
	}
	if cfg.AnchorSecretSeed == "" {
		return nil, errors.New("ledger config: anchor secret seed is required")
	}
	kp, err := keypair.ParseFull(cfg.AnchorSecretSeed)
	if err != nil {
		return nil, fmt.Errorf("ledger config: invalid anchor secret seed: %w", err)
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StellarClient{
		cfg: cfg,
		horizon: &horizonclient.Client{
			HorizonURL: cfg.HorizonURL,
			HTTP:       &http.Client{Timeout: 20 * time.Second},
		},
		kp:     kp,
		logger: logger,
	}, nil
}

// Anchor appends fp to the anchor account, retrying transient failures
// with backoff inside a bounded window. A fingerprint already present
// returns ErrAlreadyAnchored without a submission.
func (c *StellarClient) Anchor(ctx context.Context, fp integrity.Fingerprint) (Receipt, error) {
	if len(fp) != integrity.FingerprintSize {
		return Receipt{}, fmt.Errorf("%w: fingerprint must be %d bytes", integrity.ErrInvalidInput, integrity.FingerprintSize)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.SubmitTimeout)
	defer cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	key := fp.Hex()
	var lastErr error
	broadcast := false
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return Receipt{}, c.anchorFailure(ctx, broadcast, lastErr)
			case <-time.After(c.cfg.RetryBackoff):
			}
		}

		account, err := c.accountDetail(ctx)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return Receipt{}, c.anchorFailure(ctx, broadcast, lastErr)
			}
			c.logger.Warn("anchor account load failed",
				zap.Int("attempt", attempt),
				zap.Error(err))
			continue
		}
		if _, ok := account.Data[key]; ok {
			return Receipt{}, ErrAlreadyAnchored
		}

		tx, err := c.buildAnchorTx(&account, key)
		if err != nil {
			return Receipt{}, fmt.Errorf("failed to build anchor transaction: %w", err)
		}

		broadcast = true
		resp, err := c.submit(ctx, tx)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return Receipt{}, c.anchorFailure(ctx, broadcast, lastErr)
			}
			c.logger.Warn("anchor submission failed",
				zap.Int("attempt", attempt),
				zap.String("fingerprint", key),
				zap.Error(err))
			continue
		}
		if !resp.Successful {
			lastErr = fmt.Errorf("transaction %s included but not successful", resp.Hash)
			continue
		}

		c.logger.Info("fingerprint anchored",
			zap.String("fingerprint", key),
			zap.String("tx_hash", resp.Hash),
			zap.Int32("ledger", resp.Ledger))
		return Receipt{
			TxHash:     resp.Hash,
			Ledger:     resp.Ledger,
			AnchoredAt: time.Now().UTC(),
		}, nil
	}
	return Receipt{}, c.anchorFailure(ctx, broadcast, lastErr)
}

// IsAnchored reports whether fp has a data entry on the anchor account.
// It is read-only and never submits anything. An unreachable ledger yields
// ErrAnchorUnavailable, never a false negative.
func (c *StellarClient) IsAnchored(ctx context.Context, fp integrity.Fingerprint) (bool, error) {
	if len(fp) != integrity.FingerprintSize {
		return false, fmt.Errorf("%w: fingerprint must be %d bytes", integrity.ErrInvalidInput, integrity.FingerprintSize)
	}
	account, err := c.accountDetail(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrAnchorUnavailable, err)
	}
	_, ok := account.Data[fp.Hex()]
	return ok, nil
}

func (c *StellarClient) buildAnchorTx(account *horizon.Account, key string) (*txnbuild.Transaction, error) {
	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        account,
		IncrementSequenceNum: true,
		Operations: []txnbuild.Operation{
			&txnbuild.ManageData{
				Name:  key,
				Value: []byte(time.Now().UTC().Format(time.RFC3339)),
			},
		},
		BaseFee: txnbuild.MinBaseFee,
		Preconditions: txnbuild.Preconditions{
			TimeBounds: txnbuild.NewTimeout(anchorTxTimeoutSeconds),
		},
	})
	if err != nil {
		return nil, err
	}
	return tx.Sign(c.cfg.NetworkPassphrase, c.kp)
}

// accountDetail loads the anchor account while honoring ctx. Horizon calls
// carry no context of their own; an abandoned call is left to finish in the
// background.
func (c *StellarClient) accountDetail(ctx context.Context) (horizon.Account, error) {
	type result struct {
		account horizon.Account
		err     error
	}
	ch := make(chan result, 1)
	go func() {
		account, err := c.horizon.AccountDetail(horizonclient.AccountRequest{AccountID: c.kp.Address()})
		ch <- result{account, err}
	}()
	select {
	case <-ctx.Done():
		return horizon.Account{}, ctx.Err()
	case r := <-ch:
		return r.account, r.err
	}
}

func (c *StellarClient) submit(ctx context.Context, tx *txnbuild.Transaction) (horizon.Transaction, error) {
	type result struct {
		tx  horizon.Transaction
		err error
	}
	ch := make(chan result, 1)
	go func() {
		resp, err := c.horizon.SubmitTransaction(tx)
		ch <- result{resp, err}
	}()
	select {
	case <-ctx.Done():
		return horizon.Transaction{}, ctx.Err()
	case r := <-ch:
		return r.tx, r.err
	}
}

// anchorFailure classifies why an anchor attempt gave up. A run that
// broadcast at least one transaction and ran out of time is a timeout: the
// network may still confirm it. Everything else is unavailability.
func (c *StellarClient) anchorFailure(ctx context.Context, broadcast bool, lastErr error) error {
	if broadcast && ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrAnchorTimeout, lastErr)
	}
	if lastErr == nil {
		lastErr = ctx.Err()
	}
	return fmt.Errorf("%w: %v", ErrAnchorUnavailable, lastErr)
}
