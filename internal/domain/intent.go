package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Action string

const (
	ActionSend         Action = "send"
	ActionRequest      Action = "request"
	ActionSplit        Action = "split"
	ActionPayBill      Action = "pay_bill"
	ActionCheckBalance Action = "check_balance"
	ActionViewHistory  Action = "view_history"
	ActionCancel       Action = "cancel"
)

// Currency is the single stablecoin denomination the pipeline moves.
const Currency = "USDC"

// TextCommandPrefix is the marker used to indicate text commands (vs audio)
const TextCommandPrefix = "__TEXT__:"

func (a Action) Known() bool {
	switch a {
	case ActionSend, ActionRequest, ActionSplit, ActionPayBill,
		ActionCheckBalance, ActionViewHistory, ActionCancel:
		return true
	}
	return false
}

// ReadOnly reports whether the action only reads wallet state.
func (a Action) ReadOnly() bool {
	return a == ActionCheckBalance || a == ActionViewHistory
}

// MovesFunds reports whether the action transfers value and therefore
// needs a positive amount.
func (a Action) MovesFunds() bool {
	return a == ActionSend || a == ActionSplit || a == ActionPayBill
}

// Participant is one party of a split command. Amount is nil when the
// command did not assign a per-person share. Address is set once the
// identifier has been resolved to an on-chain address.
type Participant struct {
	Identifier string
	Amount     *decimal.Decimal
	Address    string
}

// PaymentIntent is the structured form of a spoken command. It is produced
// by intent extraction and afterwards mutated only by Validate, which fills
// Valid and ValidationErrors.
type PaymentIntent struct {
	Action               Action
	Amount               decimal.Decimal
	Currency             string
	Recipient            string
	Participants         []Participant
	ConfirmationRequired bool
	OriginalCommand      string
	Valid                bool
	ValidationErrors     []string
}

// Transcript is the immutable output of the transcription gateway.
type Transcript struct {
	Text       string
	Confidence float64
	Duration   time.Duration
}
