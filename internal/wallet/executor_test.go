package wallet_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xPOURY4/voicepay-arc/internal/domain"
	"github.com/xPOURY4/voicepay-arc/internal/wallet"
)

const (
	ownAddr   = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	otherAddr = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

type fakeLedger struct {
	mu            sync.Mutex
	token         decimal.Decimal
	native        decimal.Decimal
	fee           decimal.Decimal
	feeErr        error
	transferErr   error
	waitErr       error
	reverted      bool
	events        []domain.TransferEvent
	transferBlock chan struct{}
	transfers     int
	balanceCalls  int
}

func (f *fakeLedger) OwnAddress(_ context.Context) (string, error) { return ownAddr, nil }

func (f *fakeLedger) TokenBalance(_ context.Context, _ string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balanceCalls++
	return f.token, nil
}

func (f *fakeLedger) NativeBalance(_ context.Context, _ string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.native, nil
}

func (f *fakeLedger) Transfer(_ context.Context, _ string, _ decimal.Decimal) (string, error) {
	f.mu.Lock()
	err := f.transferErr
	block := f.transferBlock
	f.mu.Unlock()
	if err != nil {
		return "", err
	}
	if block != nil {
		<-block
	}
	f.mu.Lock()
	f.transfers++
	n := f.transfers
	f.mu.Unlock()
	return fmt.Sprintf("0xhash%04d", n), nil
}

func (f *fakeLedger) WaitForConfirmations(_ context.Context, hash string, n int) (*domain.Receipt, error) {
	if f.waitErr != nil {
		return nil, f.waitErr
	}
	return &domain.Receipt{
		Hash:          hash,
		BlockNumber:   128,
		Confirmations: uint64(n),
		Fee:           decimal.RequireFromString("0.0002"),
		Reverted:      f.reverted,
	}, nil
}

func (f *fakeLedger) TransferEvents(_ context.Context, _ string, _, _ uint64) ([]domain.TransferEvent, error) {
	return f.events, nil
}

func (f *fakeLedger) EstimateFee(_ context.Context, _ string, _ decimal.Decimal) (decimal.Decimal, error) {
	return f.fee, f.feeErr
}

func (f *fakeLedger) ValidAddress(address string) bool { return domain.ValidAddress(address) }

func (f *fakeLedger) transferCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transfers
}

func newExecutor(ledger *fakeLedger) (*wallet.Executor, *wallet.BalanceTracker) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tracker := wallet.NewBalanceTracker(ledger, logger)
	return wallet.NewExecutor(ledger, tracker, wallet.DefaultExecutorConfig(), logger), tracker
}

func sendIntent(amount, to string) *domain.PaymentIntent {
	return &domain.PaymentIntent{
		Action:               domain.ActionSend,
		Amount:               decimal.RequireFromString(amount),
		Currency:             domain.Currency,
		Recipient:            to,
		ConfirmationRequired: true,
	}
}

func TestExecutor_BalanceBoundary(t *testing.T) {
	// With a balance of exactly 100.00 and a 0.01 buffer, 99.995 must be
	// rejected and 99.98 must pass. Binary floats get this wrong.
	ledger := &fakeLedger{
		token:  decimal.RequireFromString("100.00"),
		native: decimal.RequireFromString("1"),
		fee:    decimal.RequireFromString("0.0002"),
	}
	exec, _ := newExecutor(ledger)

	_, err := exec.Execute(context.Background(), sendIntent("99.995", otherAddr))
	if !domain.IsCode(err, domain.CodeInsufficientBalance) {
		t.Fatalf("99.995 against 100.00: err = %v, want INSUFFICIENT_BALANCE", err)
	}
	if ledger.transferCount() != 0 {
		t.Fatalf("transfer submitted despite failed pre-check")
	}

	result, err := exec.Execute(context.Background(), sendIntent("99.98", otherAddr))
	if err != nil {
		t.Fatalf("99.98 against 100.00: err = %v, want success", err)
	}
	if result.Transaction == nil || result.Transaction.Status != domain.TxConfirmed {
		t.Fatalf("transaction = %+v, want confirmed", result.Transaction)
	}
}

func TestExecutor_PreCheckOrder(t *testing.T) {
	// An invalid recipient must surface before the balance check does.
	ledger := &fakeLedger{token: decimal.Zero}
	exec, _ := newExecutor(ledger)

	_, err := exec.Execute(context.Background(), sendIntent("5", "not-an-address"))
	if !domain.IsCode(err, domain.CodeInvalidRecipient) {
		t.Fatalf("err = %v, want INVALID_RECIPIENT", err)
	}

	_, err = exec.Execute(context.Background(), sendIntent("5", domain.ZeroAddress))
	if !domain.IsCode(err, domain.CodeInvalidRecipient) {
		t.Fatalf("zero address: err = %v, want INVALID_RECIPIENT", err)
	}
}

func TestExecutor_InsufficientGas(t *testing.T) {
	ledger := &fakeLedger{
		token:  decimal.RequireFromString("1000"),
		native: decimal.RequireFromString("0.0001"),
		fee:    decimal.RequireFromString("0.01"),
	}
	exec, _ := newExecutor(ledger)

	_, err := exec.Execute(context.Background(), sendIntent("5", otherAddr))
	if !domain.IsCode(err, domain.CodeInsufficientGas) {
		t.Fatalf("err = %v, want INSUFFICIENT_GAS", err)
	}
	if ledger.transferCount() != 0 {
		t.Fatal("transfer submitted despite gas shortfall")
	}
}

func TestExecutor_RevertedTransfer(t *testing.T) {
	ledger := &fakeLedger{
		token:    decimal.RequireFromString("100"),
		native:   decimal.RequireFromString("1"),
		reverted: true,
	}
	exec, _ := newExecutor(ledger)

	_, err := exec.Execute(context.Background(), sendIntent("5", otherAddr))
	if !domain.IsCode(err, domain.CodeTransactionReverted) {
		t.Fatalf("err = %v, want TRANSACTION_REVERTED", err)
	}
	var perr *domain.PipelineError
	if !errors.As(err, &perr) || len(perr.Details) == 0 || !strings.Contains(perr.Details[0], "0xhash") {
		t.Errorf("err details = %+v, want tx hash", perr)
	}
}

func TestExecutor_SingleTransferInFlight(t *testing.T) {
	ledger := &fakeLedger{
		token:         decimal.RequireFromString("1000"),
		native:        decimal.RequireFromString("1"),
		transferBlock: make(chan struct{}),
	}
	exec, _ := newExecutor(ledger)

	firstDone := make(chan error, 1)
	go func() {
		_, err := exec.Execute(context.Background(), sendIntent("5", otherAddr))
		firstDone <- err
	}()

	// Wait until the first transfer is holding the in-flight slot.
	deadline := time.Now().Add(2 * time.Second)
	for !exec.InFlight() {
		if time.Now().After(deadline) {
			t.Fatal("first transfer never reached in-flight")
		}
		time.Sleep(time.Millisecond)
	}

	_, err := exec.Execute(context.Background(), sendIntent("7", otherAddr))
	if !domain.IsCode(err, domain.CodeTransactionFailed) {
		t.Fatalf("concurrent transfer: err = %v, want TRANSACTION_FAILED", err)
	}
	if !strings.Contains(err.Error(), "in flight") {
		t.Errorf("err = %v, want in-flight rejection", err)
	}

	close(ledger.transferBlock)
	if err := <-firstDone; err != nil {
		t.Fatalf("first transfer: %v", err)
	}
	if exec.InFlight() {
		t.Error("InFlight() still true after completion")
	}
	if ledger.transferCount() != 1 {
		t.Errorf("transfers = %d, want 1", ledger.transferCount())
	}
}

func TestExecutor_SuccessfulTransfer(t *testing.T) {
	ledger := &fakeLedger{
		token:  decimal.RequireFromString("50"),
		native: decimal.RequireFromString("1"),
		fee:    decimal.RequireFromString("0.0002"),
	}
	exec, tracker := newExecutor(ledger)

	result, err := exec.Execute(context.Background(), sendIntent("12.5", otherAddr))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	tx := result.Transaction
	if tx == nil {
		t.Fatal("result.Transaction = nil")
	}
	if tx.Status != domain.TxConfirmed {
		t.Errorf("Status = %s, want confirmed", tx.Status)
	}
	if tx.From != ownAddr || tx.To != otherAddr {
		t.Errorf("From/To = %s/%s", tx.From, tx.To)
	}
	if !tx.Fee.Equal(decimal.RequireFromString("0.0002")) {
		t.Errorf("Fee = %s, want 0.0002", tx.Fee)
	}
	if !strings.Contains(result.Message, "Sent 12.5 "+string(domain.Currency)) {
		t.Errorf("Message = %q", result.Message)
	}
	if result.Balance == nil {
		t.Error("result.Balance = nil, want post-transfer snapshot")
	}
	if tracker.Current().UpdatedAt.IsZero() {
		t.Error("tracker not refreshed after transfer")
	}
}

func TestExecutor_LedgerRejectionClassified(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode domain.ErrorCode
	}{
		{"gas", errors.New("insufficient funds for gas * price + value"), domain.CodeInsufficientGas},
		{"revert", errors.New("execution reverted"), domain.CodeTransactionReverted},
		{"timeout", errors.New("request timeout"), domain.CodeTimeout},
		{"generic", errors.New("nonce too low"), domain.CodeTransactionFailed},
		{"coded", domain.NewError(domain.CodeRateLimited, "slow down"), domain.CodeRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := &fakeLedger{
				token:       decimal.RequireFromString("100"),
				native:      decimal.RequireFromString("1"),
				transferErr: tt.err,
			}
			exec, _ := newExecutor(ledger)

			_, err := exec.Execute(context.Background(), sendIntent("5", otherAddr))
			if !domain.IsCode(err, tt.wantCode) {
				t.Errorf("err = %v, want %s", err, tt.wantCode)
			}
		})
	}
}

func TestExecutor_CheckBalance(t *testing.T) {
	ledger := &fakeLedger{
		token:  decimal.RequireFromString("42.5"),
		native: decimal.RequireFromString("0.3"),
	}
	exec, tracker := newExecutor(ledger)

	result, err := exec.Execute(context.Background(), &domain.PaymentIntent{Action: domain.ActionCheckBalance, Currency: domain.Currency})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Balance == nil || !result.Balance.Token.Equal(decimal.RequireFromString("42.5")) {
		t.Errorf("Balance = %+v, want token 42.5", result.Balance)
	}
	if !strings.Contains(result.Message, "42.5") {
		t.Errorf("Message = %q, want balance mentioned", result.Message)
	}
	if !tracker.Current().Token.Equal(decimal.RequireFromString("42.5")) {
		t.Errorf("tracker.Current() = %+v", tracker.Current())
	}
}

func TestExecutor_ViewHistory(t *testing.T) {
	ledger := &fakeLedger{
		events: []domain.TransferEvent{
			{Hash: "0xnewest00000000", From: ownAddr, To: otherAddr, Amount: decimal.RequireFromString("3"), BlockNumber: 20},
			{Hash: "0xolder000000000", From: otherAddr, To: ownAddr, Amount: decimal.RequireFromString("9"), BlockNumber: 10},
		},
	}
	exec, _ := newExecutor(ledger)

	result, err := exec.Execute(context.Background(), &domain.PaymentIntent{Action: domain.ActionViewHistory, Currency: domain.Currency})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Events) != 2 {
		t.Fatalf("Events = %d, want 2", len(result.Events))
	}
	if !strings.Contains(result.Message, "2 transfer(s)") {
		t.Errorf("Message = %q", result.Message)
	}
}

func TestExecutor_UnsupportedActions(t *testing.T) {
	exec, _ := newExecutor(&fakeLedger{})

	for _, action := range []domain.Action{domain.ActionSplit, domain.ActionPayBill, domain.ActionRequest} {
		_, err := exec.Execute(context.Background(), &domain.PaymentIntent{
			Action:   action,
			Amount:   decimal.RequireFromString("10"),
			Currency: domain.Currency,
		})
		if !domain.IsCode(err, domain.CodeUnsupported) {
			t.Errorf("%s: err = %v, want UNSUPPORTED", action, err)
		}
	}
}
