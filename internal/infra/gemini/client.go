package gemini

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

// Client extracts payment intents with the Gemini generateContent API. Like
// the Claude client, a call is one attempt; failures route to the rule-based
// fallback instead of being retried here.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	model      string
}

func NewClient(apiKey, model string) *Client {
	return NewClientWithURL(apiKey, model, "https://generativelanguage.googleapis.com/v1beta")
}

func NewClientWithURL(apiKey, model, baseURL string) *Client {
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &Client{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		model:      model,
	}
}

type content struct {
	Parts []part `json:"parts"`
	Role  string `json:"role,omitempty"`
}

type part struct {
	Text string `json:"text"`
}

type request struct {
	Contents         []content        `json:"contents"`
	SystemInstruct   *content         `json:"systemInstruction,omitempty"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens"`
	Temperature     float64 `json:"temperature"`
}

type response struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error,omitempty"`
}

type parsedIntent struct {
	Action               string      `json:"action"`
	Amount               json.Number `json:"amount"`
	Currency             string      `json:"currency"`
	Recipient            string      `json:"recipient"`
	Participants         []string    `json:"participants"`
	ConfirmationRequired bool        `json:"confirmation_required"`
}

func (c *Client) Extract(ctx context.Context, text string) (*domain.PaymentIntent, error) {
	reqBody := request{
		SystemInstruct: &content{
			Parts: []part{{Text: systemPrompt}},
		},
		Contents: []content{
			{
				Role:  "user",
				Parts: []part{{Text: text}},
			},
		},
		GenerationConfig: generationConfig{
			MaxOutputTokens: 512,
			Temperature:     0.1,
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.WrapError(domain.CodeNetworkError, "reading gemini response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, respBody)
	}

	var result response
	if err = json.Unmarshal(respBody, &result); err != nil {
		return nil, domain.WrapError(domain.CodeIntentExtractionFailed, "decoding gemini response", err)
	}
	if result.Error != nil {
		return nil, domain.Errorf(domain.CodeIntentExtractionFailed, "gemini error: %s", result.Error.Message)
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return nil, domain.NewError(domain.CodeIntentExtractionFailed, "empty response from gemini")
	}

	return parseIntentJSON(result.Candidates[0].Content.Parts[0].Text, text)
}

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

// embeddedObject returns the outermost {...} span of s, for replies that
// bury the JSON in surrounding prose.
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
		return domain.WrapError(domain.CodeTimeout, "gemini request timed out", err)
	}
	return domain.WrapError(domain.CodeNetworkError, "sending gemini request", err)
}

func classifyStatus(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.Errorf(domain.CodeAPIKeyError, "gemini API rejected credentials (%d): %s", status, msg)
	case http.StatusTooManyRequests:
		return domain.Errorf(domain.CodeRateLimited, "gemini API rate limited: %s", msg)
	default:
		return domain.Errorf(domain.CodeIntentExtractionFailed, "gemini API error %d: %s", status, msg)
	}
}
