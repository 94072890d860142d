package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/xPOURY4/voicepay-arc/config"
	"github.com/xPOURY4/voicepay-arc/internal/application"
	"github.com/xPOURY4/voicepay-arc/internal/domain"
	"github.com/xPOURY4/voicepay-arc/internal/history"
	"github.com/xPOURY4/voicepay-arc/internal/infra"
	"github.com/xPOURY4/voicepay-arc/internal/infra/anthropic"
	"github.com/xPOURY4/voicepay-arc/internal/infra/arc"
	"github.com/xPOURY4/voicepay-arc/internal/infra/audio"
	"github.com/xPOURY4/voicepay-arc/internal/infra/gemini"
	"github.com/xPOURY4/voicepay-arc/internal/infra/openai"
	"github.com/xPOURY4/voicepay-arc/internal/infra/pushover"
	"github.com/xPOURY4/voicepay-arc/internal/intent"
	"github.com/xPOURY4/voicepay-arc/internal/wallet"
)

// demoAccount is the wallet address the demo ledger uses when none is
// configured.
const demoAccount = "0x1111111111111111111111111111111111111111"

func main() {
	// API keys usually live in .env during development; a missing file is fine.
	_ = godotenv.Load()

	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	ledger, err := createLedger(cfg.Ledger)
	if err != nil {
		logger.Error("configuring ledger", "error", err)
		os.Exit(1)
	}

	limits := walletLimits(cfg.Wallet, logger)

	tracker := wallet.NewBalanceTracker(ledger, logger)
	executor := wallet.NewExecutor(ledger, tracker, wallet.ExecutorConfig{
		Confirmations: cfg.Wallet.Confirmations,
		SafetyBuffer:  safetyBuffer(cfg.Wallet.SafetyBuffer, logger),
		Limits:        limits,
	}, logger)

	refresh := durationOr(cfg.Wallet.RefreshInterval, 30*time.Second, logger)
	tracker.StartPolling(ctx, refresh, executor.InFlight)

	var transcriber application.Transcriber = &application.NoopTranscriber{}
	if cfg.OpenAI.APIKey != "" {
		transcriber = openai.NewWhisperClient(cfg.OpenAI.APIKey, cfg.OpenAI.Language)
	} else {
		logger.Warn("no openai api key, only text commands will work")
	}

	extractor := intent.NewGateway(createExtractor(cfg.Intent, logger), logger)

	con := newConsole()
	go con.pump(ctx)

	var confirmer application.Confirmer
	if cfg.Wallet.AutoApprove {
		logger.Warn("auto-approve enabled, transfers run without confirmation")
		confirmer = application.AutoApprove{}
	} else {
		confirmer = &consoleConfirmer{console: con}
	}
	gate := application.NewConfirmationGate(confirmer)

	hist := history.NewLog(cfg.History.Capacity)

	var notifier application.Notifier
	if cfg.Pushover.Enabled {
		notifier = pushover.NewClient(cfg.Pushover.Token, cfg.Pushover.UserKey)
	} else {
		notifier = &application.NoopNotifier{}
	}

	pipeCfg := application.PipelineConfig{
		Limits:    limits,
		AutoRetry: cfg.AutoRetry(),
		Retry: infra.RetryConfig{
			MaxRetries: cfg.Retry.MaxRetries,
			BaseDelay:  durationOr(cfg.Retry.BaseDelay, 500*time.Millisecond, logger),
			MaxDelay:   10 * time.Second,
		},
	}

	if cfg.Audio.Source == "microphone" {
		pipe := application.NewPipeline(nil, transcriber, extractor, gate, executor, hist, notifier, pipeCfg, logger)

		logger.Info("starting voicepay",
			"mode", "interactive",
			"ledger", cfg.Ledger.Backend,
		)

		if err := runInteractive(ctx, pipe, con, notifier, cfg, logger); err != nil && err != context.Canceled {
			logger.Error("interactive session error", "error", err)
			os.Exit(1)
		}
		return
	}

	source := createAudioSource(cfg.Audio, logger)
	pipe := application.NewPipeline(source, transcriber, extractor, gate, executor, hist, notifier, pipeCfg, logger)

	logger.Info("starting voicepay",
		"audio_source", cfg.Audio.Source,
		"ledger", cfg.Ledger.Backend,
	)

	if err := pipe.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("pipeline error", "error", err)
		os.Exit(1)
	}
}

func createAudioSource(cfg config.AudioConfig, logger *slog.Logger) application.AudioSource {
	switch cfg.Source {
	case "http":
		return audio.NewHTTPSource(cfg.HTTPAddr, cfg.AuthToken, logger)
	case "file":
		return audio.NewFileSource(cfg.FileDir)
	default:
		logger.Warn("unknown audio source, using http", "source", cfg.Source)
		return audio.NewHTTPSource(cfg.HTTPAddr, cfg.AuthToken, logger)
	}
}

func createLedger(cfg config.LedgerConfig) (application.Ledger, error) {
	switch cfg.Backend {
	case "arc":
		if cfg.RPCURL == "" {
			return nil, fmt.Errorf("ledger backend arc needs rpc_url")
		}
		if cfg.TokenAddress == "" {
			return nil, fmt.Errorf("ledger backend arc needs token_address")
		}
		return arc.NewClient(arc.Config{
			RPCURL:         cfg.RPCURL,
			TokenAddress:   cfg.TokenAddress,
			AccountAddress: cfg.AccountAddress,
			LookbackBlocks: cfg.LookbackBlocks,
		}), nil
	case "demo", "":
		balance, err := decimal.NewFromString(cfg.DemoBalance)
		if err != nil {
			return nil, fmt.Errorf("invalid demo_balance %q: %w", cfg.DemoBalance, err)
		}
		gas, err := decimal.NewFromString(cfg.DemoGas)
		if err != nil {
			return nil, fmt.Errorf("invalid demo_gas %q: %w", cfg.DemoGas, err)
		}
		account := cfg.AccountAddress
		if account == "" {
			account = demoAccount
		}
		return arc.NewDemoLedger(account, balance, gas), nil
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Backend)
	}
}

func createExtractor(cfg config.IntentConfig, logger *slog.Logger) intent.Extractor {
	switch cfg.Provider {
	case "anthropic":
		if cfg.Anthropic.APIKey == "" {
			logger.Warn("no anthropic api key, using rule-based intent parsing")
			return nil
		}
		return anthropic.NewClaudeClient(cfg.Anthropic.APIKey, cfg.Anthropic.Model)
	case "gemini":
		if cfg.Gemini.APIKey == "" {
			logger.Warn("no gemini api key, using rule-based intent parsing")
			return nil
		}
		return gemini.NewClient(cfg.Gemini.APIKey, cfg.Gemini.Model)
	case "rules":
		return nil
	default:
		logger.Warn("unknown intent provider, using rule-based parsing", "provider", cfg.Provider)
		return nil
	}
}

func walletLimits(cfg config.WalletConfig, logger *slog.Logger) domain.Limits {
	limits := domain.DefaultLimits()
	if cfg.MinAmount != "" {
		if v, err := decimal.NewFromString(cfg.MinAmount); err == nil {
			limits.MinAmount = v
		} else {
			logger.Warn("invalid min_amount, keeping default", "value", cfg.MinAmount, "error", err)
		}
	}
	if cfg.MaxAmount != "" {
		if v, err := decimal.NewFromString(cfg.MaxAmount); err == nil {
			limits.MaxAmount = v
		} else {
			logger.Warn("invalid max_amount, keeping default", "value", cfg.MaxAmount, "error", err)
		}
	}
	if cfg.MaxDecimals > 0 {
		limits.MaxDecimals = int32(cfg.MaxDecimals)
	}
	return limits
}

func safetyBuffer(value string, logger *slog.Logger) decimal.Decimal {
	if value == "" {
		return decimal.Zero
	}
	v, err := decimal.NewFromString(value)
	if err != nil {
		logger.Warn("invalid safety_buffer, keeping default", "value", value, "error", err)
		return decimal.Zero
	}
	return v
}

func durationOr(value string, fallback time.Duration, logger *slog.Logger) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		logger.Warn("invalid duration, using default", "value", value, "default", fallback, "error", err)
		return fallback
	}
	return d
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
