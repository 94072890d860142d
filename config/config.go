package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Audio    AudioConfig    `yaml:"audio"`
	Capture  CaptureConfig  `yaml:"capture"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	Intent   IntentConfig   `yaml:"intent"`
	Wallet   WalletConfig   `yaml:"wallet"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Retry    RetryConfig    `yaml:"retry"`
	History  HistoryConfig  `yaml:"history"`
	Pushover PushoverConfig `yaml:"pushover"`
	Log      LogConfig      `yaml:"log"`
}

type AudioConfig struct {
	Source     string `yaml:"source"` // http, file or microphone
	HTTPAddr   string `yaml:"http_addr"`
	FileDir    string `yaml:"file_dir"`
	SampleRate int    `yaml:"sample_rate"`
	AuthToken  string `yaml:"auth_token"`
}

type CaptureConfig struct {
	MinDuration  string `yaml:"min_duration"`
	MaxDuration  string `yaml:"max_duration"`
	DisplayDelay string `yaml:"display_delay"`
}

type OpenAIConfig struct {
	APIKey   string `yaml:"api_key"`
	Language string `yaml:"language"`
}

type IntentConfig struct {
	Provider  string          `yaml:"provider"` // anthropic, gemini or rules
	Anthropic AnthropicConfig `yaml:"anthropic"`
	Gemini    GeminiConfig    `yaml:"gemini"`
}

type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type WalletConfig struct {
	Confirmations   int    `yaml:"confirmations"`
	MinAmount       string `yaml:"min_amount"`
	MaxAmount       string `yaml:"max_amount"`
	MaxDecimals     int    `yaml:"max_decimals"`
	SafetyBuffer    string `yaml:"safety_buffer"`
	RefreshInterval string `yaml:"refresh_interval"`
	// AutoApprove skips the confirmation prompt. Demo use only.
	AutoApprove bool `yaml:"auto_approve"`
}

type LedgerConfig struct {
	Backend        string `yaml:"backend"` // arc or demo
	RPCURL         string `yaml:"rpc_url"`
	TokenAddress   string `yaml:"token_address"`
	AccountAddress string `yaml:"account_address"`
	LookbackBlocks uint64 `yaml:"lookback_blocks"`
	DemoBalance    string `yaml:"demo_balance"`
	DemoGas        string `yaml:"demo_gas"`
}

type RetryConfig struct {
	Enabled    *bool  `yaml:"enabled"`
	MaxRetries int    `yaml:"max_retries"`
	BaseDelay  string `yaml:"base_delay"`
}

type HistoryConfig struct {
	Capacity int `yaml:"capacity"`
}

type PushoverConfig struct {
	Token   string `yaml:"token"`
	UserKey string `yaml:"user_key"`
	Enabled bool   `yaml:"enabled"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

// AutoRetry resolves the retry switch; retries are on unless disabled.
func (c *Config) AutoRetry() bool {
	return c.Retry.Enabled == nil || *c.Retry.Enabled
}

func (c *Config) setDefaults() {
	if c.Audio.Source == "" {
		c.Audio.Source = "http"
	}
	if c.Audio.HTTPAddr == "" {
		c.Audio.HTTPAddr = ":8080"
	}
	if c.Audio.FileDir == "" {
		c.Audio.FileDir = "./commands"
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Capture.MinDuration == "" {
		c.Capture.MinDuration = "1s"
	}
	if c.Capture.MaxDuration == "" {
		c.Capture.MaxDuration = "30s"
	}
	if c.Capture.DisplayDelay == "" {
		c.Capture.DisplayDelay = "2s"
	}
	if c.OpenAI.Language == "" {
		c.OpenAI.Language = "en"
	}
	if c.Intent.Provider == "" {
		c.Intent.Provider = "anthropic"
	}
	if c.Intent.Anthropic.Model == "" {
		c.Intent.Anthropic.Model = "claude-sonnet-4-20250514"
	}
	if c.Intent.Gemini.Model == "" {
		c.Intent.Gemini.Model = "gemini-2.0-flash"
	}
	if c.Wallet.Confirmations == 0 {
		c.Wallet.Confirmations = 1
	}
	if c.Wallet.MinAmount == "" {
		c.Wallet.MinAmount = "0.01"
	}
	if c.Wallet.MaxAmount == "" {
		c.Wallet.MaxAmount = "10000"
	}
	if c.Wallet.MaxDecimals == 0 {
		c.Wallet.MaxDecimals = 6
	}
	if c.Wallet.SafetyBuffer == "" {
		c.Wallet.SafetyBuffer = "0.01"
	}
	if c.Wallet.RefreshInterval == "" {
		c.Wallet.RefreshInterval = "30s"
	}
	if c.Ledger.Backend == "" {
		c.Ledger.Backend = "demo"
	}
	if c.Ledger.LookbackBlocks == 0 {
		c.Ledger.LookbackBlocks = 5000
	}
	if c.Ledger.DemoBalance == "" {
		c.Ledger.DemoBalance = "1000"
	}
	if c.Ledger.DemoGas == "" {
		c.Ledger.DemoGas = "1"
	}
	if c.Retry.MaxRetries == 0 {
		c.Retry.MaxRetries = 2
	}
	if c.Retry.BaseDelay == "" {
		c.Retry.BaseDelay = "500ms"
	}
	if c.History.Capacity == 0 {
		c.History.Capacity = 10
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}
