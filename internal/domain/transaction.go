package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TxStatus string

const (
	TxPending    TxStatus = "pending"
	TxConfirming TxStatus = "confirming"
	TxConfirmed  TxStatus = "confirmed"
	TxFailed     TxStatus = "failed"
	TxCancelled  TxStatus = "cancelled"
)

// Terminal reports whether no further status transition is allowed.
func (s TxStatus) Terminal() bool {
	return s == TxConfirmed || s == TxFailed || s == TxCancelled
}

// Transaction is the local record of one submitted transfer. Records are
// created in TxPending at submission time and only ever advance forward.
type Transaction struct {
	ID            uuid.UUID
	Hash          string
	From          string
	To            string
	Amount        decimal.Decimal
	Status        TxStatus
	Timestamp     time.Time
	Fee           decimal.Decimal
	Confirmations uint64
}

func NewTransaction(hash, from, to string, amount decimal.Decimal) *Transaction {
	return &Transaction{
		ID:        uuid.New(),
		Hash:      hash,
		From:      from,
		To:        to,
		Amount:    amount,
		Status:    TxPending,
		Timestamp: time.Now(),
	}
}

// Advance moves the transaction to the next status. Transitions are
// monotonic: pending -> confirming -> confirmed, with failed reachable from
// pending or confirming and cancelled only from pending. Anything else is
// rejected.
func (t *Transaction) Advance(next TxStatus) error {
	if t.Status == next {
		return nil
	}
	allowed := false
	switch t.Status {
	case TxPending:
		allowed = next == TxConfirming || next == TxFailed || next == TxCancelled
	case TxConfirming:
		allowed = next == TxConfirmed || next == TxFailed
	}
	if !allowed {
		return fmt.Errorf("invalid status transition %s -> %s", t.Status, next)
	}
	t.Status = next
	return nil
}

// WalletBalance is a point-in-time snapshot of the wallet's token and
// native (gas) balances.
type WalletBalance struct {
	Token     decimal.Decimal
	Native    decimal.Decimal
	UpdatedAt time.Time
}

// Receipt is the ledger's acknowledgement of a mined transfer.
type Receipt struct {
	Hash          string
	BlockNumber   uint64
	Confirmations uint64
	Fee           decimal.Decimal
	Reverted      bool
}

// TransferEvent is one token transfer touching the wallet, as reported by
// the ledger's event log.
type TransferEvent struct {
	Hash        string
	From        string
	To          string
	Amount      decimal.Decimal
	BlockNumber uint64
}
