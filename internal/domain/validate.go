package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Limits are the configured business bounds the validator enforces.
type Limits struct {
	MinAmount   decimal.Decimal
	MaxAmount   decimal.Decimal
	MaxDecimals int32
}

func DefaultLimits() Limits {
	return Limits{
		MinAmount:   decimal.RequireFromString("0.01"),
		MaxAmount:   decimal.NewFromInt(10000),
		MaxDecimals: 6,
	}
}

// Validate applies every business rule to the intent, accumulating all
// violations instead of stopping at the first. It sets Valid and
// ValidationErrors on the intent and returns Valid; it never panics or
// returns an error value, so callers must check the result explicitly.
func Validate(intent *PaymentIntent, limits Limits) bool {
	var errs []string

	if !intent.Action.Known() {
		errs = append(errs, fmt.Sprintf("unrecognized action %q", string(intent.Action)))
	}

	if intent.Action.MovesFunds() {
		switch {
		case intent.Amount.Sign() <= 0:
			errs = append(errs, "amount must be greater than zero")
		case intent.Amount.LessThan(limits.MinAmount):
			errs = append(errs, fmt.Sprintf("amount %s is below the minimum of %s", intent.Amount, limits.MinAmount))
		case intent.Amount.GreaterThan(limits.MaxAmount):
			errs = append(errs, fmt.Sprintf("amount %s exceeds the maximum of %s", intent.Amount, limits.MaxAmount))
		}
		if places := -intent.Amount.Exponent(); places > limits.MaxDecimals {
			errs = append(errs, fmt.Sprintf("amount has %d decimal places, at most %d allowed", places, limits.MaxDecimals))
		}
	}

	if intent.Action == ActionSend {
		switch {
		case intent.Recipient == "":
			errs = append(errs, "recipient is required")
		case !ValidAddress(intent.Recipient):
			errs = append(errs, fmt.Sprintf("recipient %q is not a valid address", intent.Recipient))
		case IsZeroAddress(intent.Recipient):
			errs = append(errs, "cannot send to zero address")
		}
	}

	if intent.Action == ActionSplit {
		if len(intent.Participants) < 2 {
			errs = append(errs, "split requires at least two participants")
		}
		for _, p := range intent.Participants {
			if p.Address != "" && !ValidAddress(p.Address) {
				errs = append(errs, fmt.Sprintf("participant %q has an invalid address", p.Identifier))
			}
		}
	}

	if !strings.EqualFold(intent.Currency, Currency) {
		errs = append(errs, fmt.Sprintf("unsupported currency %q, only %s transfers are available", intent.Currency, Currency))
	}

	intent.Valid = len(errs) == 0
	intent.ValidationErrors = errs
	return intent.Valid
}
