package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/xPOURY4/voicepay-arc/internal/application"
	"github.com/xPOURY4/voicepay-arc/internal/domain"
)

var (
	// ErrBusy is returned by Start while a recording session is active.
	ErrBusy = errors.New("recording already in progress")
	// ErrNotRecording is returned by Stop when nothing is being recorded.
	ErrNotRecording = errors.New("no recording in progress")
	// ErrClosed is returned once the controller has been shut down.
	ErrClosed = errors.New("capture controller closed")
)

// Recorder owns the microphone. Start acquires the device and begins
// buffering; Stop finalizes and returns the sample, releasing the device;
// Abort releases it discarding everything buffered.
type Recorder interface {
	Start(ctx context.Context) error
	Stop() (application.AudioSample, error)
	Abort() error
	// Level reports the most recent input level in [0, 1].
	Level() float64
}

// Processor consumes a finished sample. The controller reports complete or
// error from its return value.
type Processor interface {
	Process(ctx context.Context, sample application.AudioSample) error
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, sample application.AudioSample) error

func (f ProcessorFunc) Process(ctx context.Context, sample application.AudioSample) error {
	return f(ctx, sample)
}

// Indicator is the controller-facing subset of UI feedback. Calls arrive
// from controller goroutines and must not block.
type Indicator interface {
	StateChanged(State)
	LevelChanged(float64)
	ShowError(code domain.ErrorCode, message string)
}

// noopIndicator preserves controller flow when no indicator is wired.
type noopIndicator struct{}

func (noopIndicator) StateChanged(State)                 {}
func (noopIndicator) LevelChanged(float64)               {}
func (noopIndicator) ShowError(domain.ErrorCode, string) {}

// Config bounds one recording session.
type Config struct {
	// MinDuration below which the sample is discarded instead of processed.
	MinDuration time.Duration
	// MaxDuration after which recording stops automatically.
	MaxDuration time.Duration
	// DisplayDelay is how long complete/error stays visible before the
	// controller returns to idle.
	DisplayDelay time.Duration
	// LevelInterval is the cadence of level callbacks while listening.
	LevelInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		MinDuration:   time.Second,
		MaxDuration:   30 * time.Second,
		DisplayDelay:  2 * time.Second,
		LevelInterval: 100 * time.Millisecond,
	}
}

// Controller serializes the recording lifecycle. All device handling goes
// through it: every exit path, including failures and cancellation, releases
// the microphone before the state settles.
type Controller struct {
	logger    *slog.Logger
	recorder  Recorder
	processor Processor
	indicator Indicator
	cfg       Config

	mu         sync.RWMutex
	state      State
	closed     bool
	startedAt  time.Time
	maxTimer   *time.Timer
	resetTimer *time.Timer
	levelDone  chan struct{}
	procCancel context.CancelFunc
}

func NewController(
	logger *slog.Logger,
	recorder Recorder,
	processor Processor,
	indicator Indicator,
	cfg Config,
) *Controller {
	if indicator == nil {
		indicator = noopIndicator{}
	}
	if cfg.MinDuration <= 0 {
		cfg.MinDuration = DefaultConfig().MinDuration
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = DefaultConfig().MaxDuration
	}
	if cfg.DisplayDelay <= 0 {
		cfg.DisplayDelay = DefaultConfig().DisplayDelay
	}
	if cfg.LevelInterval <= 0 {
		cfg.LevelInterval = DefaultConfig().LevelInterval
	}

	return &Controller{
		logger:    logger,
		recorder:  recorder,
		processor: processor,
		indicator: indicator,
		cfg:       cfg,
		state:     StateIdle,
	}
}

// State returns the current lifecycle state snapshot.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Start begins a new recording session. Only idle and error accept it;
// anything else returns ErrBusy without touching the active session.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	next, err := Transition(c.state, EventStart)
	if err != nil {
		c.mu.Unlock()
		return ErrBusy
	}
	c.state = next
	if c.resetTimer != nil {
		c.resetTimer.Stop()
		c.resetTimer = nil
	}
	c.mu.Unlock()
	c.indicator.StateChanged(StateRequesting)

	if err := c.recorder.Start(ctx); err != nil {
		code := domain.CodeOf(err)
		if code == domain.CodeUnknown {
			code = domain.CodeDeviceNotFound
		}
		wrapped := domain.WrapError(code, "acquiring microphone", err)
		c.fail(wrapped)
		return wrapped
	}

	c.mu.Lock()
	next, err = Transition(c.state, EventGranted)
	if err != nil {
		// Cancelled while acquiring; release the device we just got.
		c.mu.Unlock()
		if abortErr := c.recorder.Abort(); abortErr != nil {
			c.logger.Error("releasing microphone", "error", abortErr)
		}
		return nil
	}
	c.state = next
	c.startedAt = time.Now()
	done := make(chan struct{})
	c.levelDone = done
	c.maxTimer = time.AfterFunc(c.cfg.MaxDuration, func() {
		if err := c.Stop(context.Background()); err != nil && !errors.Is(err, ErrNotRecording) {
			c.logger.Error("auto-stop at max duration", "error", err)
		}
	})
	c.mu.Unlock()

	c.indicator.StateChanged(StateListening)
	go c.meterLevels(done)

	c.logger.Info("recording started",
		"min_duration", c.cfg.MinDuration,
		"max_duration", c.cfg.MaxDuration,
	)
	return nil
}

// Stop finalizes the recording and runs the processor. It blocks until the
// processor resolves; callers that need a responsive UI run it from a
// goroutine. A recording shorter than MinDuration is discarded unprocessed.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	next, err := Transition(c.state, EventStop)
	if err != nil {
		c.mu.Unlock()
		return ErrNotRecording
	}
	c.state = next
	elapsed := time.Since(c.startedAt)
	c.stopSessionTimersLocked()
	c.mu.Unlock()

	c.indicator.StateChanged(StateProcessing)

	if elapsed < c.cfg.MinDuration {
		if err := c.recorder.Abort(); err != nil {
			c.logger.Error("releasing microphone", "error", err)
		}
		tooShort := domain.Errorf(domain.CodeRecordingTooShort,
			"recording lasted %s, need at least %s",
			elapsed.Round(time.Millisecond), c.cfg.MinDuration)
		c.fail(tooShort)
		return tooShort
	}

	sample, err := c.recorder.Stop()
	if err != nil {
		wrapped := domain.WrapError(domain.CodeDeviceBusy, "finalizing recording", err)
		c.fail(wrapped)
		return wrapped
	}
	sample.Duration = elapsed

	procCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.mu.Lock()
	c.procCancel = cancel
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.procCancel = nil
		c.mu.Unlock()
	}()

	if err := c.processor.Process(procCtx, sample); err != nil {
		if procCtx.Err() != nil && ctx.Err() == nil {
			// Cancelled mid-processing; settle back to idle quietly.
			c.mu.Lock()
			if next, terr := Transition(c.state, EventCancel); terr == nil {
				c.state = next
			}
			c.mu.Unlock()
			c.indicator.StateChanged(StateIdle)
			return nil
		}
		c.fail(err)
		return err
	}

	c.mu.Lock()
	if next, terr := Transition(c.state, EventSucceed); terr == nil {
		c.state = next
	}
	c.scheduleResetLocked()
	c.mu.Unlock()
	c.indicator.StateChanged(StateComplete)
	return nil
}

// Cancel aborts the session at whatever point it is: acquisition and
// listening release the device immediately, processing has its context
// cancelled and settles via Stop's unwind.
func (c *Controller) Cancel() {
	c.mu.Lock()
	switch c.state {
	case StateProcessing:
		cancel := c.procCancel
		c.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return
	case StateRequesting, StateListening:
		if next, err := Transition(c.state, EventCancel); err == nil {
			c.state = next
		}
		c.stopSessionTimersLocked()
		c.mu.Unlock()
		if err := c.recorder.Abort(); err != nil {
			c.logger.Error("releasing microphone", "error", err)
		}
		c.indicator.StateChanged(StateIdle)
		c.logger.Info("recording cancelled")
		return
	default:
		c.mu.Unlock()
	}
}

// Close cancels any active session and rejects further starts. Safe to call
// repeatedly.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	c.Cancel()

	c.mu.Lock()
	c.closed = true
	if c.resetTimer != nil {
		c.resetTimer.Stop()
		c.resetTimer = nil
	}
	c.mu.Unlock()
	return nil
}

// fail records an error state, releases session resources and schedules the
// return to idle.
func (c *Controller) fail(err error) {
	code := domain.CodeOf(err)

	c.mu.Lock()
	if next, terr := Transition(c.state, EventFail); terr == nil {
		c.state = next
	}
	c.stopSessionTimersLocked()
	c.scheduleResetLocked()
	c.mu.Unlock()

	c.indicator.ShowError(code, err.Error())
	c.indicator.StateChanged(StateError)
	c.logger.Error("capture failed", "code", code, "error", err)
}

// stopSessionTimersLocked halts the max-duration timer and level metering.
func (c *Controller) stopSessionTimersLocked() {
	if c.maxTimer != nil {
		c.maxTimer.Stop()
		c.maxTimer = nil
	}
	if c.levelDone != nil {
		close(c.levelDone)
		c.levelDone = nil
	}
}

// scheduleResetLocked arms the display-delay return to idle. A new Start
// pre-empts it.
func (c *Controller) scheduleResetLocked() {
	if c.closed {
		return
	}
	if c.resetTimer != nil {
		c.resetTimer.Stop()
	}
	c.resetTimer = time.AfterFunc(c.cfg.DisplayDelay, func() {
		c.mu.Lock()
		next, err := Transition(c.state, EventReset)
		if err == nil {
			c.state = next
		}
		c.mu.Unlock()
		if err == nil {
			c.indicator.StateChanged(StateIdle)
		}
	})
}

// meterLevels forwards input levels to the indicator while listening. Pure
// side channel: it never touches state.
func (c *Controller) meterLevels(done <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.LevelInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.indicator.LevelChanged(c.recorder.Level())
		}
	}
}
