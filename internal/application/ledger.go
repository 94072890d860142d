package application

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/xPOURY4/voicepay-arc/internal/domain"
)

// Ledger is the settlement backend: the wallet's own address, balances,
// token transfers and the confirmation lifecycle behind them. Amounts cross
// this boundary in whole token units (not base units); implementations own
// the conversion.
type Ledger interface {
	// OwnAddress resolves the address transfers are sent from.
	OwnAddress(ctx context.Context) (string, error)

	// TokenBalance returns the stablecoin balance of an address.
	TokenBalance(ctx context.Context, address string) (decimal.Decimal, error)

	// NativeBalance returns the gas-token balance of an address.
	NativeBalance(ctx context.Context, address string) (decimal.Decimal, error)

	// Transfer submits a token transfer and returns its transaction hash.
	// Submission is not settlement; callers follow up with
	// WaitForConfirmations.
	Transfer(ctx context.Context, to string, amount decimal.Decimal) (string, error)

	// WaitForConfirmations blocks until the transaction has at least n
	// confirmations or ctx is done.
	WaitForConfirmations(ctx context.Context, hash string, n int) (*domain.Receipt, error)

	// TransferEvents returns token transfers involving the address within
	// the block range, newest first.
	TransferEvents(ctx context.Context, address string, fromBlock, toBlock uint64) ([]domain.TransferEvent, error)

	// EstimateFee quotes the native-token cost of a transfer.
	EstimateFee(ctx context.Context, to string, amount decimal.Decimal) (decimal.Decimal, error)

	// ValidAddress reports whether the string is a well-formed address for
	// this ledger.
	ValidAddress(address string) bool
}
