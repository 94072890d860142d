package arc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xPOURY4/voicepay-arc/internal/domain"
)

// DemoLedger is an in-memory stand-in for a node, used in demo mode and
// integration tests. It mints the configured balances at startup, settles
// transfers instantly and reports errors in the same wording a real node
// would, so upstream classification behaves identically.
type DemoLedger struct {
	account string
	fee     decimal.Decimal

	mu      sync.Mutex
	token   map[string]decimal.Decimal
	native  map[string]decimal.Decimal
	block   uint64
	nonce   uint64
	events  []domain.TransferEvent
	receipt map[string]*domain.Receipt
}

func NewDemoLedger(account string, token, native decimal.Decimal) *DemoLedger {
	account = domain.NormalizeAddress(account)
	return &DemoLedger{
		account: account,
		fee:     decimal.RequireFromString("0.0002"),
		token:   map[string]decimal.Decimal{account: token},
		native:  map[string]decimal.Decimal{account: native},
		block:   1,
		receipt: make(map[string]*domain.Receipt),
	}
}

func (d *DemoLedger) OwnAddress(_ context.Context) (string, error) {
	return d.account, nil
}

func (d *DemoLedger) TokenBalance(_ context.Context, address string) (decimal.Decimal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.token[domain.NormalizeAddress(address)], nil
}

func (d *DemoLedger) NativeBalance(_ context.Context, address string) (decimal.Decimal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.native[domain.NormalizeAddress(address)], nil
}

func (d *DemoLedger) Transfer(_ context.Context, to string, amount decimal.Decimal) (string, error) {
	to = domain.NormalizeAddress(to)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.native[d.account].LessThan(d.fee) {
		return "", fmt.Errorf("insufficient funds for gas * price + value")
	}
	if d.token[d.account].LessThan(amount) {
		return "", fmt.Errorf("execution reverted: ERC20: transfer amount exceeds balance")
	}

	d.token[d.account] = d.token[d.account].Sub(amount)
	d.token[to] = d.token[to].Add(amount)
	d.native[d.account] = d.native[d.account].Sub(d.fee)

	d.nonce++
	d.block++
	hash := fmt.Sprintf("0x%064x", d.nonce)

	d.events = append(d.events, domain.TransferEvent{
		Hash:        hash,
		From:        d.account,
		To:          to,
		Amount:      amount,
		BlockNumber: d.block,
	})
	d.receipt[hash] = &domain.Receipt{
		Hash:        hash,
		BlockNumber: d.block,
		Fee:         d.fee,
	}

	return hash, nil
}

func (d *DemoLedger) WaitForConfirmations(ctx context.Context, hash string, n int) (*domain.Receipt, error) {
	if n < 1 {
		n = 1
	}

	for {
		d.mu.Lock()
		receipt, ok := d.receipt[hash]
		var confs uint64
		if ok {
			confs = d.block - receipt.BlockNumber + 1
			if confs >= uint64(n) {
				out := *receipt
				out.Confirmations = confs
				d.mu.Unlock()
				return &out, nil
			}
			// Simulated chain: mint an empty block so waiting terminates.
			d.block++
		}
		d.mu.Unlock()

		if !ok {
			return nil, fmt.Errorf("unknown transaction %s", hash)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func (d *DemoLedger) TransferEvents(_ context.Context, address string, fromBlock, toBlock uint64) ([]domain.TransferEvent, error) {
	address = domain.NormalizeAddress(address)

	d.mu.Lock()
	defer d.mu.Unlock()

	if toBlock == 0 {
		toBlock = d.block
	}

	var out []domain.TransferEvent
	for i := len(d.events) - 1; i >= 0; i-- {
		ev := d.events[i]
		if ev.BlockNumber < fromBlock || ev.BlockNumber > toBlock {
			continue
		}
		if ev.From == address || ev.To == address {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (d *DemoLedger) EstimateFee(_ context.Context, _ string, _ decimal.Decimal) (decimal.Decimal, error) {
	return d.fee, nil
}

func (d *DemoLedger) ValidAddress(address string) bool {
	return domain.ValidAddress(address)
}
