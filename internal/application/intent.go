package application

import (
	"context"

	"github.com/xPOURY4/voicepay-arc/internal/domain"
)

type IntentExtractor interface {
	Extract(ctx context.Context, text string) (*domain.PaymentIntent, error)
}
