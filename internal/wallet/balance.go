package wallet

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xPOURY4/voicepay-arc/internal/application"
	"github.com/xPOURY4/voicepay-arc/internal/domain"
)

// BalanceTracker keeps the latest wallet balance snapshot and refreshes it
// in the background.
type BalanceTracker struct {
	ledger application.Ledger
	logger *slog.Logger

	mu      sync.RWMutex
	current domain.WalletBalance
}

func NewBalanceTracker(ledger application.Ledger, logger *slog.Logger) *BalanceTracker {
	return &BalanceTracker{ledger: ledger, logger: logger}
}

// Refresh fetches both balances and stores the snapshot.
func (t *BalanceTracker) Refresh(ctx context.Context) (*domain.WalletBalance, error) {
	own, err := t.ledger.OwnAddress(ctx)
	if err != nil {
		return nil, domain.WrapError(domain.CodeNetworkError, "resolving wallet address", err)
	}
	token, err := t.ledger.TokenBalance(ctx, own)
	if err != nil {
		return nil, domain.WrapError(domain.CodeNetworkError, "fetching token balance", err)
	}
	native, err := t.ledger.NativeBalance(ctx, own)
	if err != nil {
		return nil, domain.WrapError(domain.CodeNetworkError, "fetching native balance", err)
	}

	snapshot := domain.WalletBalance{Token: token, Native: native, UpdatedAt: time.Now()}
	t.mu.Lock()
	t.current = snapshot
	t.mu.Unlock()
	return &snapshot, nil
}

// Current returns the last stored snapshot; zero value before the first
// refresh.
func (t *BalanceTracker) Current() domain.WalletBalance {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

// StartPolling refreshes the balance every interval until ctx is done.
// skip, when non-nil and true, suppresses a tick; the executor passes its
// in-flight check so polling never interleaves with a submission.
func (t *BalanceTracker) StartPolling(ctx context.Context, interval time.Duration, skip func() bool) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if skip != nil && skip() {
					continue
				}
				if _, err := t.Refresh(ctx); err != nil {
					t.logger.Warn("balance refresh failed", "error", err)
				}
			}
		}
	}()
}
