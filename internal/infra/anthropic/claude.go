package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xPOURY4/voicepay-arc/internal/domain"
)

const systemPrompt = `You are the command parser of a voice payment wallet that sends USDC on an EVM chain.
Extract the payment intent from the user's command.

Actions:
- "send": transfer USDC to one recipient
- "request": ask someone to pay the user
- "split": divide an amount between several people
- "pay_bill": pay a named bill or service
- "check_balance": report the wallet balance
- "view_history": report recent transactions
- "cancel": abort the pending operation

IMPORTANT:
- "amount" is the numeric USDC amount, 0 if the command names none
- "recipient" is a 0x address copied VERBATIM when spoken, otherwise the contact name
- "participants" lists the people in a split, empty otherwise
- The user may speak in English or Spanish, understand both
- If the command is not about payments, use action "send" with amount 0

Respond ONLY with valid JSON (no markdown, no backticks):
{
  "action": "send|request|split|pay_bill|check_balance|view_history|cancel",
  "amount": 50,
  "currency": "USDC",
  "recipient": "0x... or name",
  "participants": ["name1", "name2"],
  "confirmation_required": true
}`

// ClaudeClient extracts payment intents with the Anthropic Messages API.
// One attempt per call; the intent gateway falls back to rule-based parsing
// when this fails, so retrying here would only delay that.
type ClaudeClient struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	model      string
}

func NewClaudeClient(apiKey, model string) *ClaudeClient {
	return NewClaudeClientWithURL(apiKey, model, "https://api.anthropic.com/v1")
}

func NewClaudeClientWithURL(apiKey, model, baseURL string) *ClaudeClient {
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	return &ClaudeClient{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		model:      model,
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system"`
	Messages  []message `json:"messages"`
}

type response struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

type parsedIntent struct {
	Action               string      `json:"action"`
	Amount               json.Number `json:"amount"`
	Currency             string      `json:"currency"`
	Recipient            string      `json:"recipient"`
	Participants         []string    `json:"participants"`
	ConfirmationRequired bool        `json:"confirmation_required"`
}

func (c *ClaudeClient) Extract(ctx context.Context, text string) (*domain.PaymentIntent, error) {
	reqBody := request{
		Model:     c.model,
		MaxTokens: 512,
		System:    systemPrompt,
		Messages: []message{
			{Role: "user", Content: text},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, classifyStatus(resp.StatusCode, respBody)
	}

	var result response
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, domain.WrapError(domain.CodeIntentExtractionFailed, "decoding claude response", err)
	}
	if len(result.Content) == 0 {
		return nil, domain.NewError(domain.CodeIntentExtractionFailed, "empty response from claude")
	}

	return parseIntentJSON(result.Content[0].Text, text)
}

// parseIntentJSON turns a model reply into a PaymentIntent. Models sometimes
// wrap JSON in markdown fences or prose despite instructions, so the fences
// are stripped and, if a strict decode still fails, the outermost {...} span
// is tried before giving up.
func parseIntentJSON(reply, command string) (*domain.PaymentIntent, error) {
	cleaned := strings.TrimSpace(reply)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var parsed parsedIntent
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		obj, ok := embeddedObject(cleaned)
		if !ok {
			return nil, domain.WrapError(domain.CodeIntentExtractionFailed,
				fmt.Sprintf("parsing intent JSON (%s)", cleaned), err)
		}
		if err = json.Unmarshal([]byte(obj), &parsed); err != nil {
			return nil, domain.WrapError(domain.CodeIntentExtractionFailed,
				fmt.Sprintf("parsing intent JSON (%s)", cleaned), err)
		}
	}

	action := domain.Action(parsed.Action)
	if !action.Known() {
		return nil, domain.Errorf(domain.CodeIntentExtractionFailed, "model returned unknown action %q", parsed.Action)
	}

	amount := decimal.Zero
	if parsed.Amount != "" {
		var err error
		amount, err = decimal.NewFromString(parsed.Amount.String())
		if err != nil {
			return nil, domain.WrapError(domain.CodeIntentExtractionFailed,
				fmt.Sprintf("parsing amount %q", parsed.Amount), err)
		}
	}

	participants := make([]domain.Participant, 0, len(parsed.Participants))
	for _, name := range parsed.Participants {
		if name = strings.TrimSpace(name); name != "" {
			participants = append(participants, domain.Participant{Identifier: name})
		}
	}

	confirm := parsed.ConfirmationRequired
	if action.MovesFunds() {
		confirm = true
	}

	return &domain.PaymentIntent{
		Action:               action,
		Amount:               amount,
		Currency:             parsed.Currency,
		Recipient:            strings.TrimSpace(parsed.Recipient),
		Participants:         participants,
		ConfirmationRequired: confirm,
		OriginalCommand:      command,
	}, nil
}

// embeddedObject returns the outermost {...} span of s, or false when s
// contains no such span.
func embeddedObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

func classifyTransport(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return domain.WrapError(domain.CodeTimeout, "claude request timed out", err)
	}
	return domain.WrapError(domain.CodeNetworkError, "sending claude request", err)
}

func classifyStatus(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.Errorf(domain.CodeAPIKeyError, "claude API rejected credentials (%d): %s", status, msg)
	case http.StatusTooManyRequests:
		return domain.Errorf(domain.CodeRateLimited, "claude API rate limited: %s", msg)
	default:
		return domain.Errorf(domain.CodeIntentExtractionFailed, "claude API error %d: %s", status, msg)
	}
}
