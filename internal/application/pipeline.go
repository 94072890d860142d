package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/xPOURY4/voicepay-arc/internal/domain"
	"github.com/xPOURY4/voicepay-arc/internal/history"
	"github.com/xPOURY4/voicepay-arc/internal/infra"
)

// Outcome classifies what one processed command amounted to.
type Outcome string

const (
	// OutcomeExecuted means a transfer was submitted and settled.
	OutcomeExecuted Outcome = "executed"
	// OutcomeInfo means a read-only command was answered.
	OutcomeInfo Outcome = "info"
	// OutcomeDeclined means the user answered no at the confirmation gate.
	OutcomeDeclined Outcome = "declined"
	// OutcomeCancelled means a cancel command aborted the pending transfer.
	OutcomeCancelled Outcome = "cancelled"
)

// Result of one processed voice or text command.
type Result struct {
	Outcome     Outcome
	Message     string
	Transcript  string
	Intent      *domain.PaymentIntent
	Transaction *domain.Transaction
	Balance     *domain.WalletBalance
	Events      []domain.TransferEvent
}

// PipelineConfig holds the policy knobs of the pipeline; everything else is
// a collaborator.
type PipelineConfig struct {
	Limits    domain.Limits
	AutoRetry bool
	Retry     infra.RetryConfig
}

// Pipeline drives a command from audio to settlement: transcribe, extract an
// intent, validate it, pass the confirmation gate, execute. One command is
// processed at a time.
type Pipeline struct {
	audio       AudioSource
	transcriber Transcriber
	extractor   IntentExtractor
	gate        *ConfirmationGate
	executor    Executor
	hist        *history.Log
	notifier    Notifier
	cfg         PipelineConfig
	logger      *slog.Logger

	mu           sync.Mutex
	abortConfirm context.CancelFunc
}

func NewPipeline(
	audio AudioSource,
	transcriber Transcriber,
	extractor IntentExtractor,
	gate *ConfirmationGate,
	executor Executor,
	hist *history.Log,
	notifier Notifier,
	cfg PipelineConfig,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		audio:       audio,
		transcriber: transcriber,
		extractor:   extractor,
		gate:        gate,
		executor:    executor,
		hist:        hist,
		notifier:    notifier,
		cfg:         cfg,
		logger:      logger,
	}
}

// Run consumes the audio source until ctx is done. Per-command failures are
// logged and notified, never fatal.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.audio == nil {
		return errors.New("no audio source configured")
	}

	p.logger.Info("starting audio source", "source", p.audio.Name())
	if err := p.audio.Start(ctx); err != nil {
		return fmt.Errorf("starting audio: %w", err)
	}
	defer p.audio.Stop()

	p.logger.Info("voice pipeline ready, listening for commands")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := p.processOneSample(ctx); err != nil {
				p.logger.Error("processing command", "error", err)
			}
		}
	}
}

func (p *Pipeline) processOneSample(ctx context.Context) error {
	sample, err := p.audio.NextSample(ctx)
	if err != nil {
		return fmt.Errorf("getting audio: %w", err)
	}

	if len(sample.Data) == 0 {
		return nil
	}

	result, err := p.Process(ctx, sample)
	if err != nil {
		if notifyErr := p.notifier.Notify(ctx, fmt.Sprintf("Error: %s", err.Error())); notifyErr != nil {
			p.logger.Error("notifying error", "error", notifyErr)
		}
		return err
	}

	if result.Message != "" {
		if err := p.notifier.Notify(ctx, result.Message); err != nil {
			p.logger.Error("notifying result", "error", err)
		}
	}
	return nil
}

// Process runs one sample through the full pipeline. The returned error is
// always coded (domain.PipelineError) unless it is a context error.
func (p *Pipeline) Process(ctx context.Context, sample AudioSample) (*Result, error) {
	var (
		text   string
		intent *domain.PaymentIntent
	)

	direct, isText := isTextCommand(sample.Data)
	if isText {
		p.logger.Info("received text command", "text", direct)
	} else {
		p.logger.Info("received audio", "bytes", len(sample.Data), "duration", sample.Duration)
	}

	// Transcription, extraction and validation form the retryable leg.
	// Execution is outside it: a transfer is never auto-resubmitted.
	leg := func() error {
		if isText {
			text = direct
		} else {
			transcript, err := p.transcriber.Transcribe(ctx, sample)
			if err != nil {
				return err
			}
			text = transcript.Text
			p.logger.Info("transcribed", "text", text, "confidence", transcript.Confidence)
		}

		var err error
		intent, err = p.extractor.Extract(ctx, text)
		if err != nil {
			return domain.WrapError(domain.CodeIntentExtractionFailed, "extracting intent", err)
		}

		if !domain.Validate(intent, p.cfg.Limits) {
			return domain.NewValidationError(intent.ValidationErrors)
		}
		return nil
	}

	var err error
	if p.cfg.AutoRetry {
		err = infra.WithRetry(ctx, p.cfg.Retry, leg)
	} else {
		err = leg()
	}
	if err != nil {
		p.record(text, intent, nil, false, err)
		return nil, err
	}

	p.logger.Info("intent ready",
		"action", intent.Action,
		"amount", intent.Amount,
		"recipient", intent.Recipient,
	)

	if intent.Action == domain.ActionCancel {
		message := "Nothing to cancel."
		outcome := OutcomeInfo
		if p.CancelPending() {
			message = "Pending transfer cancelled."
			outcome = OutcomeCancelled
		}
		p.record(text, intent, nil, true, nil)
		return &Result{Outcome: outcome, Message: message, Transcript: text, Intent: intent}, nil
	}

	approved, aborted, err := p.confirm(ctx, intent)
	if err != nil {
		p.record(text, intent, nil, false, err)
		return nil, err
	}
	if aborted {
		p.record(text, intent, nil, false, errAborted)
		return &Result{Outcome: OutcomeCancelled, Message: "Transfer cancelled.", Transcript: text, Intent: intent}, nil
	}
	if !approved {
		p.logger.Info("transfer declined at confirmation", "action", intent.Action, "amount", intent.Amount)
		p.record(text, intent, nil, false, errDeclined)
		return &Result{Outcome: OutcomeDeclined, Message: "Transfer not confirmed, nothing sent.", Transcript: text, Intent: intent}, nil
	}

	result, err := p.executor.Execute(ctx, intent)
	if err != nil {
		p.record(text, intent, nil, false, err)
		return nil, err
	}

	result.Transcript = text
	result.Intent = intent
	p.record(text, intent, result.Transaction, true, nil)
	return result, nil
}

// confirm passes the intent through the confirmation gate, keeping a cancel
// hook staged so a concurrent cancel command can abort the wait.
func (p *Pipeline) confirm(ctx context.Context, intent *domain.PaymentIntent) (approved, aborted bool, err error) {
	if intent.Action.ReadOnly() || !intent.ConfirmationRequired {
		return true, false, nil
	}

	prompt := ConfirmationPrompt{Intent: intent}
	if fee, feeErr := p.executor.QuoteFee(ctx, intent); feeErr == nil {
		prompt.EstimatedFee = fee
	} else {
		p.logger.Debug("fee quote unavailable", "error", feeErr)
	}

	confirmCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.mu.Lock()
	p.abortConfirm = cancel
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.abortConfirm = nil
		p.mu.Unlock()
	}()

	approved, err = p.gate.Approve(confirmCtx, prompt)
	if confirmCtx.Err() != nil && ctx.Err() == nil {
		// Aborted by a cancel command, not session teardown.
		return false, true, nil
	}
	return approved, false, err
}

// CancelPending aborts a transfer parked at the confirmation prompt.
// Returns false when nothing was pending.
func (p *Pipeline) CancelPending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.abortConfirm == nil {
		return false
	}
	p.abortConfirm()
	p.abortConfirm = nil
	return true
}

// History returns the retained command log, newest first.
func (p *Pipeline) History() []history.Entry {
	return p.hist.List()
}

func (p *Pipeline) record(text string, intent *domain.PaymentIntent, tx *domain.Transaction, success bool, err error) {
	entry := history.Entry{
		Transcript:  text,
		Intent:      intent,
		Transaction: tx,
		Success:     success,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	p.hist.Append(entry)
}

var (
	errDeclined = errors.New("declined at confirmation")
	errAborted  = errors.New("cancelled before confirmation")
)

func isTextCommand(data []byte) (string, bool) {
	if len(data) > len(domain.TextCommandPrefix) && string(data[:len(domain.TextCommandPrefix)]) == domain.TextCommandPrefix {
		return string(data[len(domain.TextCommandPrefix):]), true
	}
	return "", false
}
