// Package wallet settles validated payment intents against the ledger and
// tracks the wallet's balance.
package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/xPOURY4/voicepay-arc/internal/application"
	"github.com/xPOURY4/voicepay-arc/internal/domain"
)

// ExecutorConfig bounds what the executor will settle.
type ExecutorConfig struct {
	// Confirmations to await before a transfer counts as settled.
	Confirmations int
	// SafetyBuffer is added to the amount when checking the token balance,
	// absorbing rounding at the ledger boundary.
	SafetyBuffer decimal.Decimal
	Limits       domain.Limits
}

func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		Confirmations: 1,
		SafetyBuffer:  decimal.RequireFromString("0.01"),
		Limits:        domain.DefaultLimits(),
	}
}

// Executor performs intents against the ledger. Exactly one fund-moving
// execution may be in flight at a time; concurrent attempts are rejected,
// not queued.
type Executor struct {
	ledger  application.Ledger
	tracker *BalanceTracker
	cfg     ExecutorConfig
	logger  *slog.Logger

	mu       sync.Mutex
	inFlight bool
}

func NewExecutor(ledger application.Ledger, tracker *BalanceTracker, cfg ExecutorConfig, logger *slog.Logger) *Executor {
	if cfg.Confirmations <= 0 {
		cfg.Confirmations = 1
	}
	if cfg.SafetyBuffer.IsZero() {
		cfg.SafetyBuffer = DefaultExecutorConfig().SafetyBuffer
	}
	return &Executor{
		ledger:  ledger,
		tracker: tracker,
		cfg:     cfg,
		logger:  logger,
	}
}

// InFlight reports whether a transfer is currently being settled. The
// balance poller uses it to stay clear of submissions.
func (e *Executor) InFlight() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inFlight
}

func (e *Executor) Execute(ctx context.Context, intent *domain.PaymentIntent) (*application.Result, error) {
	switch intent.Action {
	case domain.ActionCheckBalance:
		return e.checkBalance(ctx)
	case domain.ActionViewHistory:
		return e.viewHistory(ctx)
	case domain.ActionSend:
		return e.transfer(ctx, intent)
	default:
		return nil, domain.Errorf(domain.CodeUnsupported, "%s is not supported yet", intent.Action)
	}
}

// QuoteFee estimates the network fee a send intent would incur.
func (e *Executor) QuoteFee(ctx context.Context, intent *domain.PaymentIntent) (decimal.Decimal, error) {
	if intent.Action != domain.ActionSend {
		return decimal.Zero, nil
	}
	to := domain.NormalizeAddress(intent.Recipient)
	if !e.ledger.ValidAddress(to) {
		return decimal.Zero, domain.Errorf(domain.CodeInvalidRecipient, "recipient %q is not a valid address", intent.Recipient)
	}
	return e.ledger.EstimateFee(ctx, to, intent.Amount)
}

func (e *Executor) checkBalance(ctx context.Context) (*application.Result, error) {
	balance, err := e.tracker.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	return &application.Result{
		Outcome: application.OutcomeInfo,
		Message: fmt.Sprintf("Balance: %s %s (gas: %s)", balance.Token, domain.Currency, balance.Native),
		Balance: balance,
	}, nil
}

func (e *Executor) viewHistory(ctx context.Context) (*application.Result, error) {
	own, err := e.ledger.OwnAddress(ctx)
	if err != nil {
		return nil, domain.WrapError(domain.CodeNetworkError, "resolving wallet address", err)
	}

	events, err := e.ledger.TransferEvents(ctx, own, 0, 0)
	if err != nil {
		return nil, domain.WrapError(domain.CodeNetworkError, "querying transfer events", err)
	}

	message := "No transfers on record."
	if len(events) > 0 {
		message = fmt.Sprintf("%d transfer(s) on record, most recent: %s %s in tx %s",
			len(events), events[0].Amount, domain.Currency, shortHash(events[0].Hash))
	}
	return &application.Result{
		Outcome: application.OutcomeInfo,
		Message: message,
		Events:  events,
	}, nil
}

// transfer runs the pre-checks in order, submits, and awaits settlement.
// Any pre-check failure aborts before submission.
func (e *Executor) transfer(ctx context.Context, intent *domain.PaymentIntent) (*application.Result, error) {
	if !e.begin() {
		return nil, domain.NewError(domain.CodeTransactionFailed, "a transfer is already in flight")
	}
	defer e.end()

	own, err := e.ledger.OwnAddress(ctx)
	if err != nil {
		return nil, domain.WrapError(domain.CodeNetworkError, "resolving wallet address", err)
	}

	to := domain.NormalizeAddress(intent.Recipient)
	if !e.ledger.ValidAddress(to) || domain.IsZeroAddress(to) {
		return nil, domain.Errorf(domain.CodeInvalidRecipient, "recipient %q is not a valid address", intent.Recipient)
	}

	if intent.Amount.LessThan(e.cfg.Limits.MinAmount) || intent.Amount.GreaterThan(e.cfg.Limits.MaxAmount) {
		return nil, domain.Errorf(domain.CodeValidationFailed, "amount %s outside [%s, %s]",
			intent.Amount, e.cfg.Limits.MinAmount, e.cfg.Limits.MaxAmount)
	}

	balance, err := e.ledger.TokenBalance(ctx, own)
	if err != nil {
		return nil, domain.WrapError(domain.CodeNetworkError, "fetching token balance", err)
	}
	required := intent.Amount.Add(e.cfg.SafetyBuffer)
	if balance.LessThan(required) {
		return nil, domain.Errorf(domain.CodeInsufficientBalance,
			"balance %s %s cannot cover %s plus %s buffer",
			balance, domain.Currency, intent.Amount, e.cfg.SafetyBuffer)
	}

	// Gas check is best effort: a failed estimate falls through to the
	// ledger's own rejection.
	if fee, feeErr := e.ledger.EstimateFee(ctx, to, intent.Amount); feeErr == nil {
		if native, nErr := e.ledger.NativeBalance(ctx, own); nErr == nil && native.LessThan(fee) {
			return nil, domain.Errorf(domain.CodeInsufficientGas,
				"gas balance %s below estimated fee %s", native, fee)
		}
	}

	hash, err := e.ledger.Transfer(ctx, to, intent.Amount)
	if err != nil {
		return nil, classifyLedgerError(err)
	}

	tx := domain.NewTransaction(hash, own, to, intent.Amount)
	e.logger.Info("transfer submitted", "hash", hash, "to", to, "amount", intent.Amount)

	if err := tx.Advance(domain.TxConfirming); err != nil {
		return nil, domain.WrapError(domain.CodeTransactionFailed, "tracking transfer", err)
	}

	receipt, err := e.ledger.WaitForConfirmations(ctx, hash, e.cfg.Confirmations)
	if err != nil {
		if ctx.Err() != nil {
			// Session tore down mid-wait; the transfer may still settle
			// on chain, so leave the local record in confirming.
			return nil, err
		}
		_ = tx.Advance(domain.TxFailed)
		wrapped := domain.WrapError(domain.CodeTimeout, "awaiting confirmations", err)
		wrapped.Details = []string{fmt.Sprintf("tx %s", hash)}
		return nil, wrapped
	}

	if receipt.Reverted {
		_ = tx.Advance(domain.TxFailed)
		reverted := domain.Errorf(domain.CodeTransactionReverted, "transfer reverted on chain")
		reverted.Details = []string{fmt.Sprintf("tx %s", hash)}
		return nil, reverted
	}

	tx.Fee = receipt.Fee
	tx.Confirmations = receipt.Confirmations
	if err := tx.Advance(domain.TxConfirmed); err != nil {
		return nil, domain.WrapError(domain.CodeTransactionFailed, "tracking transfer", err)
	}

	e.logger.Info("transfer confirmed",
		"hash", hash,
		"confirmations", receipt.Confirmations,
		"fee", receipt.Fee,
	)

	result := &application.Result{
		Outcome: application.OutcomeExecuted,
		Message: fmt.Sprintf("Sent %s %s to %s (tx %s)",
			intent.Amount, domain.Currency, shortAddress(to), shortHash(hash)),
		Transaction: tx,
	}
	if refreshed, refreshErr := e.tracker.Refresh(ctx); refreshErr == nil {
		result.Balance = refreshed
	} else {
		e.logger.Warn("balance refresh after transfer failed", "error", refreshErr)
	}
	return result, nil
}

func (e *Executor) begin() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight {
		return false
	}
	e.inFlight = true
	return true
}

func (e *Executor) end() {
	e.mu.Lock()
	e.inFlight = false
	e.mu.Unlock()
}

// classifyLedgerError maps a ledger rejection onto the error taxonomy.
// Already-coded errors pass through untouched.
func classifyLedgerError(err error) error {
	if code := domain.CodeOf(err); code != domain.CodeUnknown {
		return err
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient funds"):
		return domain.WrapError(domain.CodeInsufficientGas, "ledger rejected transfer", err)
	case strings.Contains(msg, "revert"):
		return domain.WrapError(domain.CodeTransactionReverted, "transfer reverted", err)
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return domain.WrapError(domain.CodeTimeout, "ledger timed out", err)
	default:
		return domain.WrapError(domain.CodeTransactionFailed, "submitting transfer", err)
	}
}

func shortAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:8] + "…" + addr[len(addr)-4:]
}

func shortHash(hash string) string {
	if len(hash) <= 14 {
		return hash
	}
	return hash[:10] + "…"
}
