package intent

import (
	"context"
	"log/slog"

	"github.com/xPOURY4/voicepay-arc/internal/domain"
)

// Extractor produces a payment intent from transcript text.
type Extractor interface {
	Extract(ctx context.Context, text string) (*domain.PaymentIntent, error)
}

// Gateway tries a primary extractor (a language model) and falls back to the
// rule-based extractor when the primary is missing or fails. The fallback
// never errors, so Extract only returns an error on context cancellation.
type Gateway struct {
	primary  Extractor
	fallback *FallbackExtractor
	logger   *slog.Logger
}

func NewGateway(primary Extractor, logger *slog.Logger) *Gateway {
	return &Gateway{
		primary:  primary,
		fallback: NewFallbackExtractor(),
		logger:   logger,
	}
}

func (g *Gateway) Extract(ctx context.Context, text string) (*domain.PaymentIntent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if g.primary != nil {
		intent, err := g.primary.Extract(ctx, text)
		if err == nil {
			return g.normalize(intent, text), nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		g.logger.Warn("primary intent extraction failed, using fallback rules",
			"error", err)
	}

	intent, err := g.fallback.Extract(ctx, text)
	if err != nil {
		return nil, err
	}
	return intent, nil
}

// normalize fills fields a model response may omit.
func (g *Gateway) normalize(intent *domain.PaymentIntent, text string) *domain.PaymentIntent {
	if intent.Currency == "" {
		intent.Currency = domain.Currency
	}
	intent.OriginalCommand = text
	if intent.Action.ReadOnly() {
		intent.ConfirmationRequired = false
	}
	return intent
}
