package intent_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/xPOURY4/voicepay-arc/internal/domain"
	"github.com/xPOURY4/voicepay-arc/internal/intent"
)

func TestFallbackExtractor_Rules(t *testing.T) {
	tests := []struct {
		name         string
		text         string
		wantAction   domain.Action
		wantAmount   string
		wantRecip    string
		wantConfirm  bool
		participants []string
	}{
		{
			name:        "send to hex address",
			text:        "Send 50 USDC to 0x1234567890123456789012345678901234567890",
			wantAction:  domain.ActionSend,
			wantAmount:  "50",
			wantRecip:   "0x1234567890123456789012345678901234567890",
			wantConfirm: true,
		},
		{
			name:        "balance question",
			text:        "What's my balance?",
			wantAction:  domain.ActionCheckBalance,
			wantAmount:  "0",
			wantConfirm: false,
		},
		{
			name:        "how much phrasing",
			text:        "How much do I have?",
			wantAction:  domain.ActionCheckBalance,
			wantAmount:  "0",
			wantConfirm: false,
		},
		{
			name:         "split with names",
			text:         "Split 100 USDC with Bob and Charlie",
			wantAction:   domain.ActionSplit,
			wantAmount:   "100",
			wantConfirm:  true,
			participants: []string{"Bob", "Charlie"},
		},
		{
			name:        "history request",
			text:        "Show my recent transactions",
			wantAction:  domain.ActionViewHistory,
			wantAmount:  "0",
			wantConfirm: false,
		},
		{
			name:        "cancel",
			text:        "Cancel that",
			wantAction:  domain.ActionCancel,
			wantAmount:  "0",
			wantConfirm: true,
		},
		{
			name:        "transfer to a name",
			text:        "Transfer 25.50 to Alice",
			wantAction:  domain.ActionSend,
			wantAmount:  "25.5",
			wantRecip:   "Alice",
			wantConfirm: true,
		},
		{
			name:        "bill payment",
			text:        "Pay 75 dollars for the electric bill",
			wantAction:  domain.ActionPayBill,
			wantAmount:  "75",
			wantRecip:   "the",
			wantConfirm: true,
		},
		{
			name:        "amount not read from address digits",
			text:        "Send to 0x1234567890123456789012345678901234567890 fifty",
			wantAction:  domain.ActionSend,
			wantAmount:  "0",
			wantRecip:   "0x1234567890123456789012345678901234567890",
			wantConfirm: true,
		},
		{
			name:        "unintelligible defaults to send",
			text:        "mumble mumble",
			wantAction:  domain.ActionSend,
			wantAmount:  "0",
			wantConfirm: true,
		},
	}

	extractor := intent.NewFallbackExtractor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractor.Extract(context.Background(), tt.text)
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if got.Action != tt.wantAction {
				t.Errorf("Action = %q, want %q", got.Action, tt.wantAction)
			}
			want := decimal.RequireFromString(tt.wantAmount)
			if !got.Amount.Equal(want) {
				t.Errorf("Amount = %s, want %s", got.Amount, want)
			}
			if got.Recipient != tt.wantRecip {
				t.Errorf("Recipient = %q, want %q", got.Recipient, tt.wantRecip)
			}
			if got.ConfirmationRequired != tt.wantConfirm {
				t.Errorf("ConfirmationRequired = %v, want %v", got.ConfirmationRequired, tt.wantConfirm)
			}
			if got.Currency != domain.Currency {
				t.Errorf("Currency = %q, want %q", got.Currency, domain.Currency)
			}
			if got.OriginalCommand != tt.text {
				t.Errorf("OriginalCommand = %q, want %q", got.OriginalCommand, tt.text)
			}
			if len(tt.participants) > 0 {
				if len(got.Participants) != len(tt.participants) {
					t.Fatalf("Participants = %v, want %v", got.Participants, tt.participants)
				}
				for i, id := range tt.participants {
					if got.Participants[i].Identifier != id {
						t.Errorf("Participants[%d] = %q, want %q", i, got.Participants[i].Identifier, id)
					}
				}
			}
		})
	}
}

type stubExtractor struct {
	intent *domain.PaymentIntent
	err    error
	calls  int
}

func (s *stubExtractor) Extract(_ context.Context, _ string) (*domain.PaymentIntent, error) {
	s.calls++
	return s.intent, s.err
}

func TestGateway_PrimaryPreferred(t *testing.T) {
	primary := &stubExtractor{
		intent: &domain.PaymentIntent{
			Action:               domain.ActionSend,
			Amount:               decimal.RequireFromString("10"),
			Recipient:            "0x1234567890123456789012345678901234567890",
			ConfirmationRequired: true,
		},
	}
	gw := intent.NewGateway(primary, slog.New(slog.NewTextHandler(io.Discard, nil)))

	got, err := gw.Extract(context.Background(), "send ten")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if primary.calls != 1 {
		t.Fatalf("primary calls = %d, want 1", primary.calls)
	}
	if got.Currency != domain.Currency {
		t.Errorf("Currency not defaulted: %q", got.Currency)
	}
	if got.OriginalCommand != "send ten" {
		t.Errorf("OriginalCommand = %q, want %q", got.OriginalCommand, "send ten")
	}
}

func TestGateway_FallsBackOnPrimaryError(t *testing.T) {
	primary := &stubExtractor{err: errors.New("model unavailable")}
	gw := intent.NewGateway(primary, slog.New(slog.NewTextHandler(io.Discard, nil)))

	got, err := gw.Extract(context.Background(), "check my balance")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got.Action != domain.ActionCheckBalance {
		t.Errorf("Action = %q, want %q", got.Action, domain.ActionCheckBalance)
	}
}

func TestGateway_NoPrimary(t *testing.T) {
	gw := intent.NewGateway(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	got, err := gw.Extract(context.Background(), "send 5 to bob")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got.Action != domain.ActionSend || got.Recipient != "bob" {
		t.Errorf("got action=%q recipient=%q", got.Action, got.Recipient)
	}
}

func TestGateway_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gw := intent.NewGateway(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if _, err := gw.Extract(ctx, "send 5"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
