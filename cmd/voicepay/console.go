package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/xPOURY4/voicepay-arc/config"
	"github.com/xPOURY4/voicepay-arc/internal/application"
	"github.com/xPOURY4/voicepay-arc/internal/capture"
	"github.com/xPOURY4/voicepay-arc/internal/domain"
	"github.com/xPOURY4/voicepay-arc/internal/infra/audio"
)

// console owns stdin. A single goroutine reads lines and hands each one to
// whichever consumer is waiting: a pending confirmation prompt wins over the
// recording toggle loop, and lines nobody is waiting for are dropped rather
// than queued, so a stray keystroke during processing cannot toggle the
// microphone later.
type console struct {
	mu      sync.Mutex
	confirm chan<- string
	main    chan string
}

func newConsole() *console {
	return &console{main: make(chan string)}
}

func (c *console) pump(ctx context.Context) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())

		c.mu.Lock()
		confirm := c.confirm
		c.mu.Unlock()

		if confirm != nil {
			select {
			case confirm <- line:
			default:
			}
			continue
		}
		select {
		case c.main <- line:
		default:
		}
	}
}

func (c *console) claimConfirm(ch chan<- string) {
	c.mu.Lock()
	c.confirm = ch
	c.mu.Unlock()
}

func (c *console) releaseConfirm() {
	c.mu.Lock()
	c.confirm = nil
	c.mu.Unlock()
}

func (c *console) lines() <-chan string { return c.main }

// consoleConfirmer asks for an explicit yes on the terminal. Anything other
// than y/yes declines.
type consoleConfirmer struct {
	console *console
}

func (c *consoleConfirmer) Confirm(ctx context.Context, prompt application.ConfirmationPrompt) (bool, error) {
	answer := make(chan string, 1)
	c.console.claimConfirm(answer)
	defer c.console.releaseConfirm()

	fmt.Printf("\n%s\nConfirm? [y/N] ", describeIntent(prompt))

	select {
	case line := <-answer:
		switch strings.ToLower(line) {
		case "y", "yes":
			return true, nil
		}
		return false, nil
	case <-ctx.Done():
		fmt.Println()
		return false, ctx.Err()
	}
}

func describeIntent(prompt application.ConfirmationPrompt) string {
	in := prompt.Intent
	var b strings.Builder
	switch in.Action {
	case domain.ActionSend:
		fmt.Fprintf(&b, "About to send %s %s to %s.", in.Amount, in.Currency, in.Recipient)
	case domain.ActionSplit:
		fmt.Fprintf(&b, "About to split %s %s between %d people.", in.Amount, in.Currency, len(in.Participants))
	case domain.ActionPayBill:
		fmt.Fprintf(&b, "About to pay a bill of %s %s to %s.", in.Amount, in.Currency, in.Recipient)
	default:
		fmt.Fprintf(&b, "About to %s %s %s.", in.Action, in.Amount, in.Currency)
	}
	if !prompt.EstimatedFee.IsZero() {
		fmt.Fprintf(&b, " Estimated network fee %s.", prompt.EstimatedFee)
	}
	return b.String()
}

const meterWidth = 20

// consoleIndicator prints capture state transitions and a live input level
// meter. The meter redraws in place; endMeter terminates the line before any
// regular print.
type consoleIndicator struct {
	mu    sync.Mutex
	meter bool
}

func (c *consoleIndicator) StateChanged(s capture.State) {
	c.endMeter()
	switch s {
	case capture.StateListening:
		fmt.Println("recording, press Enter to send")
	case capture.StateProcessing:
		fmt.Println("processing...")
	case capture.StateIdle:
		fmt.Println("ready, press Enter to record")
	}
}

func (c *consoleIndicator) LevelChanged(level float64) {
	bars := int(level * meterWidth)
	if bars > meterWidth {
		bars = meterWidth
	}
	c.mu.Lock()
	c.meter = true
	c.mu.Unlock()
	fmt.Printf("\r[%-*s]", meterWidth, strings.Repeat("=", bars))
}

func (c *consoleIndicator) ShowError(code domain.ErrorCode, message string) {
	c.endMeter()
	fmt.Printf("error [%s]: %s\n", code, message)
}

func (c *consoleIndicator) endMeter() {
	c.mu.Lock()
	live := c.meter
	c.meter = false
	c.mu.Unlock()
	if live {
		fmt.Println()
	}
}

// runInteractive drives push-to-talk from the terminal: Enter toggles the
// recording, c cancels the session in flight, q quits. Command results print
// inline and still go out through the notifier.
func runInteractive(
	ctx context.Context,
	pipe *application.Pipeline,
	con *console,
	notifier application.Notifier,
	cfg *config.Config,
	logger *slog.Logger,
) error {
	mic := audio.NewMicrophone(cfg.Audio.SampleRate, logger)

	processor := capture.ProcessorFunc(func(ctx context.Context, sample application.AudioSample) error {
		result, err := pipe.Process(ctx, sample)
		if err != nil {
			return err
		}
		if result.Message != "" {
			fmt.Println(result.Message)
			if err := notifier.Notify(ctx, result.Message); err != nil {
				logger.Warn("notification failed", "error", err)
			}
		}
		return nil
	})

	captureCfg := capture.DefaultConfig()
	captureCfg.MinDuration = durationOr(cfg.Capture.MinDuration, captureCfg.MinDuration, logger)
	captureCfg.MaxDuration = durationOr(cfg.Capture.MaxDuration, captureCfg.MaxDuration, logger)
	captureCfg.DisplayDelay = durationOr(cfg.Capture.DisplayDelay, captureCfg.DisplayDelay, logger)

	var wg sync.WaitGroup
	defer wg.Wait()

	controller := capture.NewController(logger, mic, processor, &consoleIndicator{}, captureCfg)
	defer controller.Close()

	fmt.Println("press Enter to record, Enter again to send, c to cancel, q to quit")
	fmt.Println("or type a command directly, e.g. send 5 usdc to alice")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line := <-con.lines():
			switch strings.ToLower(line) {
			case "q", "quit", "exit":
				return nil
			case "c", "cancel":
				controller.Cancel()
			default:
				if controller.State() == capture.StateListening {
					wg.Add(1)
					go func() {
						defer wg.Done()
						// Errors surface through the indicator; Stop runs
						// detached so cancel and quit stay responsive.
						_ = controller.Stop(ctx)
					}()
					continue
				}
				if line != "" {
					// Typed commands skip the microphone and run through
					// the same pipeline as spoken ones.
					runTextCommand(ctx, processor, line)
					continue
				}
				if err := controller.Start(ctx); errors.Is(err, capture.ErrBusy) {
					fmt.Println("busy with the previous command")
				}
			}
		}
	}
}

func runTextCommand(ctx context.Context, processor capture.Processor, text string) {
	sample := application.AudioSample{
		Data: []byte(domain.TextCommandPrefix + text),
		MIME: "text/plain",
	}
	if err := processor.Process(ctx, sample); err != nil {
		var perr *domain.PipelineError
		if errors.As(err, &perr) {
			fmt.Printf("error [%s]: %s\n", perr.Code, perr.Message)
			return
		}
		fmt.Printf("error: %v\n", err)
	}
}
