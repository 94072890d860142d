package application

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/xPOURY4/voicepay-arc/internal/domain"
)

// Executor settles a validated, confirmed intent against the ledger.
type Executor interface {
	// Execute performs the intent and returns its outcome. Only one
	// fund-moving execution may be in flight at a time.
	Execute(ctx context.Context, intent *domain.PaymentIntent) (*Result, error)

	// QuoteFee estimates the network fee the intent would incur. Used for
	// the confirmation prompt; best effort.
	QuoteFee(ctx context.Context, intent *domain.PaymentIntent) (decimal.Decimal, error)
}
