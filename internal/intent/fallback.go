package intent

import (
	"context"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/xPOURY4/voicepay-arc/internal/domain"
)

var (
	amountPattern    = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:usdc|usd|dollars?|bucks?)?\b`)
	addressPattern   = regexp.MustCompile(`0x[0-9a-fA-F]{40}`)
	withNamePattern  = regexp.MustCompile(`(?i)\b(?:with|and)\s+([A-Za-z0-9_.\-]+)`)
	toForNamePattern = regexp.MustCompile(`(?i)\b(?:to|for)\s+([A-Za-z0-9_.\-]+)`)
)

// FallbackExtractor turns a transcript into a PaymentIntent using fixed
// keyword rules. It is the deterministic path taken whenever the language
// model is unavailable or returns something unusable, so it must never fail:
// the worst case is a send intent with empty fields that validation rejects.
type FallbackExtractor struct{}

func NewFallbackExtractor() *FallbackExtractor {
	return &FallbackExtractor{}
}

// Extract applies the keyword rules. Matching is case-insensitive; captured
// identifiers and addresses keep their original casing.
func (f *FallbackExtractor) Extract(_ context.Context, text string) (*domain.PaymentIntent, error) {
	lowered := strings.ToLower(text)

	intent := &domain.PaymentIntent{
		Action:               domain.ActionSend,
		Currency:             domain.Currency,
		OriginalCommand:      text,
		ConfirmationRequired: true,
	}

	switch {
	case strings.Contains(lowered, "balance") || strings.Contains(lowered, "how much"):
		intent.Action = domain.ActionCheckBalance
		intent.ConfirmationRequired = false
		return intent, nil
	case strings.Contains(lowered, "history") || strings.Contains(lowered, "transaction"):
		intent.Action = domain.ActionViewHistory
		intent.ConfirmationRequired = false
		return intent, nil
	case strings.Contains(lowered, "cancel"):
		intent.Action = domain.ActionCancel
		return intent, nil
	}

	intent.Amount = extractAmount(lowered)

	if strings.Contains(lowered, "split") {
		intent.Action = domain.ActionSplit
		for _, m := range withNamePattern.FindAllStringSubmatch(text, -1) {
			intent.Participants = append(intent.Participants, domain.Participant{Identifier: m[1]})
		}
		return intent, nil
	}

	if addr := addressPattern.FindString(text); addr != "" {
		intent.Recipient = addr
	} else if m := toForNamePattern.FindStringSubmatch(text); m != nil {
		intent.Recipient = m[1]
	}

	if containsAny(lowered, "send", "transfer", "pay") && strings.Contains(lowered, "bill") {
		intent.Action = domain.ActionPayBill
	}

	return intent, nil
}

// extractAmount finds the first number, skipping digits that are part of a
// hex address.
func extractAmount(lowered string) decimal.Decimal {
	scrubbed := addressPattern.ReplaceAllString(lowered, " ")
	m := amountPattern.FindStringSubmatch(scrubbed)
	if m == nil {
		return decimal.Zero
	}
	amount, err := decimal.NewFromString(m[1])
	if err != nil {
		return decimal.Zero
	}
	return amount
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
