package wallet_test

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xPOURY4/voicepay-arc/internal/wallet"
)

func TestBalanceTracker_RefreshStoresSnapshot(t *testing.T) {
	ledger := &fakeLedger{
		token:  decimal.RequireFromString("10"),
		native: decimal.RequireFromString("0.5"),
	}
	tracker := wallet.NewBalanceTracker(ledger, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if !tracker.Current().Token.IsZero() {
		t.Fatal("fresh tracker should hold zero balance")
	}

	snapshot, err := tracker.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if !snapshot.Token.Equal(decimal.RequireFromString("10")) || !snapshot.Native.Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("snapshot = %+v", snapshot)
	}
	if snapshot.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not set")
	}
	if !tracker.Current().Token.Equal(snapshot.Token) {
		t.Error("Current() disagrees with Refresh() result")
	}
}

func TestBalanceTracker_PollingHonorsSkip(t *testing.T) {
	ledger := &fakeLedger{
		token:  decimal.RequireFromString("10"),
		native: decimal.RequireFromString("1"),
	}
	tracker := wallet.NewBalanceTracker(ledger, slog.New(slog.NewTextHandler(io.Discard, nil)))

	var busy atomic.Bool
	busy.Store(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tracker.StartPolling(ctx, 5*time.Millisecond, busy.Load)

	time.Sleep(30 * time.Millisecond)
	ledger.mu.Lock()
	skipped := ledger.balanceCalls
	ledger.mu.Unlock()
	if skipped != 0 {
		t.Fatalf("balance fetched %d times while skip active, want 0", skipped)
	}

	busy.Store(false)
	deadline := time.Now().Add(2 * time.Second)
	for {
		ledger.mu.Lock()
		calls := ledger.balanceCalls
		ledger.mu.Unlock()
		if calls > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("polling never refreshed after skip lifted")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	if tracker.Current().UpdatedAt.IsZero() {
		t.Error("Current() not updated by polling")
	}
}
