package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/xPOURY4/voicepay-arc/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, "{}"))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"audio.source", cfg.Audio.Source, "http"},
		{"audio.http_addr", cfg.Audio.HTTPAddr, ":8080"},
		{"audio.file_dir", cfg.Audio.FileDir, "./commands"},
		{"audio.sample_rate", cfg.Audio.SampleRate, 16000},
		{"capture.min_duration", cfg.Capture.MinDuration, "1s"},
		{"capture.max_duration", cfg.Capture.MaxDuration, "30s"},
		{"capture.display_delay", cfg.Capture.DisplayDelay, "2s"},
		{"openai.language", cfg.OpenAI.Language, "en"},
		{"intent.provider", cfg.Intent.Provider, "anthropic"},
		{"intent.anthropic.model", cfg.Intent.Anthropic.Model, "claude-sonnet-4-20250514"},
		{"intent.gemini.model", cfg.Intent.Gemini.Model, "gemini-2.0-flash"},
		{"wallet.confirmations", cfg.Wallet.Confirmations, 1},
		{"wallet.min_amount", cfg.Wallet.MinAmount, "0.01"},
		{"wallet.max_amount", cfg.Wallet.MaxAmount, "10000"},
		{"wallet.max_decimals", cfg.Wallet.MaxDecimals, 6},
		{"wallet.safety_buffer", cfg.Wallet.SafetyBuffer, "0.01"},
		{"wallet.refresh_interval", cfg.Wallet.RefreshInterval, "30s"},
		{"ledger.backend", cfg.Ledger.Backend, "demo"},
		{"ledger.lookback_blocks", cfg.Ledger.LookbackBlocks, uint64(5000)},
		{"ledger.demo_balance", cfg.Ledger.DemoBalance, "1000"},
		{"ledger.demo_gas", cfg.Ledger.DemoGas, "1"},
		{"retry.max_retries", cfg.Retry.MaxRetries, 2},
		{"retry.base_delay", cfg.Retry.BaseDelay, "500ms"},
		{"history.capacity", cfg.History.Capacity, 10},
		{"log.level", cfg.Log.Level, "info"},
		{"log.format", cfg.Log.Format, "text"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: got %v, want %v", c.name, c.got, c.want)
		}
	}

	if !cfg.AutoRetry() {
		t.Error("AutoRetry: got false, want true when retry.enabled is unset")
	}
}

func TestLoad_ExplicitValuesAndEnvExpansion(t *testing.T) {
	t.Setenv("VOICEPAY_TEST_KEY", "sk-from-env")

	cfg, err := config.Load(writeConfig(t, `
audio:
  source: microphone
  sample_rate: 44100
openai:
  api_key: ${VOICEPAY_TEST_KEY}
intent:
  provider: gemini
wallet:
  min_amount: "0.5"
  max_decimals: 2
ledger:
  backend: arc
  rpc_url: https://rpc.example.test
  token_address: "0x3600000000000000000000000000000000000000"
retry:
  enabled: false
  max_retries: 5
`))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.OpenAI.APIKey != "sk-from-env" {
		t.Errorf("openai.api_key: got %q, want the expanded env value", cfg.OpenAI.APIKey)
	}
	if cfg.Audio.Source != "microphone" {
		t.Errorf("audio.source: got %q, want microphone", cfg.Audio.Source)
	}
	if cfg.Audio.SampleRate != 44100 {
		t.Errorf("audio.sample_rate: got %d, want 44100", cfg.Audio.SampleRate)
	}
	if cfg.Intent.Provider != "gemini" {
		t.Errorf("intent.provider: got %q, want gemini", cfg.Intent.Provider)
	}
	if cfg.Wallet.MinAmount != "0.5" {
		t.Errorf("wallet.min_amount: got %q, want 0.5", cfg.Wallet.MinAmount)
	}
	if cfg.Wallet.MaxDecimals != 2 {
		t.Errorf("wallet.max_decimals: got %d, want 2", cfg.Wallet.MaxDecimals)
	}
	if cfg.Ledger.Backend != "arc" {
		t.Errorf("ledger.backend: got %q, want arc", cfg.Ledger.Backend)
	}
	if cfg.Retry.MaxRetries != 5 {
		t.Errorf("retry.max_retries: got %d, want 5", cfg.Retry.MaxRetries)
	}
	if cfg.AutoRetry() {
		t.Error("AutoRetry: got true, want false when retry.enabled is false")
	}
}

func TestConfig_AutoRetry(t *testing.T) {
	boolPtr := func(v bool) *bool { return &v }

	tests := []struct {
		name    string
		enabled *bool
		want    bool
	}{
		{"unset defaults on", nil, true},
		{"explicitly on", boolPtr(true), true},
		{"explicitly off", boolPtr(false), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Config{Retry: config.RetryConfig{Enabled: tt.enabled}}
			if got := cfg.AutoRetry(); got != tt.want {
				t.Errorf("AutoRetry: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("Load: got nil error for a missing file")
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	_, err := config.Load(writeConfig(t, "audio: [broken"))
	if err == nil {
		t.Fatal("Load: got nil error for malformed yaml")
	}
}
