package application

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/xPOURY4/voicepay-arc/internal/domain"
)

// ConfirmationPrompt carries what the user needs to see before approving a
// transfer. EstimatedFee is zero when no quote was available.
type ConfirmationPrompt struct {
	Intent       *domain.PaymentIntent
	EstimatedFee decimal.Decimal
}

// Confirmer obtains an explicit yes/no from the user. Implementations block
// until answered or ctx is done.
type Confirmer interface {
	Confirm(ctx context.Context, prompt ConfirmationPrompt) (bool, error)
}

// AutoApprove answers yes to every prompt. For demo sources and tests.
type AutoApprove struct{}

func (AutoApprove) Confirm(_ context.Context, _ ConfirmationPrompt) (bool, error) {
	return true, nil
}

// ConfirmationGate sits between validation and execution. Read-only intents
// and intents not flagged for confirmation pass straight through; everything
// that moves funds requires an explicit yes. With no confirmer wired the
// gate denies, never silently approves.
type ConfirmationGate struct {
	confirmer Confirmer
}

func NewConfirmationGate(confirmer Confirmer) *ConfirmationGate {
	return &ConfirmationGate{confirmer: confirmer}
}

func (g *ConfirmationGate) Approve(ctx context.Context, prompt ConfirmationPrompt) (bool, error) {
	intent := prompt.Intent
	if intent.Action.ReadOnly() || !intent.ConfirmationRequired {
		return true, nil
	}
	if g.confirmer == nil {
		return false, nil
	}
	return g.confirmer.Confirm(ctx, prompt)
}
