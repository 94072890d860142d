package audio_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xPOURY4/voicepay-arc/internal/application"
	"github.com/xPOURY4/voicepay-arc/internal/domain"
	"github.com/xPOURY4/voicepay-arc/internal/infra/audio"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHTTPSource_ReceiveSample(t *testing.T) {
	source := audio.NewHTTPSource(":0", "", testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := source.Start(ctx); err != nil {
		t.Fatalf("starting source: %v", err)
	}
	defer source.Stop()

	testSample := application.AudioSample{
		Data: []byte("fake audio data for testing"),
		MIME: "audio/webm",
	}

	go func() {
		time.Sleep(100 * time.Millisecond)
		source.InjectAudio(testSample)
	}()

	received, err := source.NextSample(ctx)
	if err != nil {
		t.Fatalf("receiving sample: %v", err)
	}

	if !bytes.Equal(received.Data, testSample.Data) {
		t.Errorf("data mismatch: got %d bytes, want %d bytes", len(received.Data), len(testSample.Data))
	}
	if received.MIME != "audio/webm" {
		t.Errorf("MIME: got %s, want audio/webm", received.MIME)
	}
}

func TestHTTPSource_VoiceEndpoint(t *testing.T) {
	source := audio.NewHTTPSource(":0", "", testLogger())
	handler := source.Handler()

	testAudio := []byte("test audio content")
	req := httptest.NewRequest(http.MethodPost, "/voice", bytes.NewReader(testAudio))
	req.Header.Set("Content-Type", "audio/webm;codecs=opus")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status code: got %d, want %d", rec.Code, http.StatusAccepted)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	sample, err := source.NextSample(ctx)
	if err != nil {
		t.Fatalf("receiving sample: %v", err)
	}
	if sample.MIME != "audio/webm" {
		t.Errorf("MIME: got %s, want audio/webm without parameters", sample.MIME)
	}
}

func TestHTTPSource_TextEndpointMarksCommand(t *testing.T) {
	source := audio.NewHTTPSource(":0", "", testLogger())
	handler := source.Handler()

	req := httptest.NewRequest(http.MethodPost, "/text", strings.NewReader("Send 5 USDC to Alice"))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status code: got %d, want %d", rec.Code, http.StatusAccepted)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	sample, err := source.NextSample(ctx)
	if err != nil {
		t.Fatalf("receiving sample: %v", err)
	}
	want := domain.TextCommandPrefix + "Send 5 USDC to Alice"
	if string(sample.Data) != want {
		t.Errorf("data: got %q, want %q", sample.Data, want)
	}
}

func TestHTTPSource_CommandEndpointsRequireToken(t *testing.T) {
	authToken := "test-secret-token-123"
	source := audio.NewHTTPSource(":0", authToken, testLogger())
	handler := source.Handler()

	tests := []struct {
		name       string
		path       string
		token      string
		method     string
		wantStatus int
	}{
		{
			name:       "voice with valid token in header",
			path:       "/voice",
			token:      authToken,
			method:     "header",
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "text with valid token in query",
			path:       "/text",
			token:      authToken,
			method:     "query",
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "voice with invalid token",
			path:       "/voice",
			token:      "wrong-token",
			method:     "header",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "text with missing token",
			path:       "/text",
			token:      "",
			method:     "header",
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := []byte("send one dollar to bob")
			var req *http.Request

			if tt.method == "query" {
				req = httptest.NewRequest(http.MethodPost, tt.path+"?token="+tt.token, bytes.NewReader(body))
			} else {
				req = httptest.NewRequest(http.MethodPost, tt.path, bytes.NewReader(body))
				if tt.token != "" {
					req.Header.Set("X-Auth-Token", tt.token)
				}
			}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status code: got %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestHTTPSource_NoTokenDisablesAuth(t *testing.T) {
	source := audio.NewHTTPSource(":0", "", testLogger())
	handler := source.Handler()

	req := httptest.NewRequest(http.MethodPost, "/text", strings.NewReader("check my balance"))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Errorf("status code: got %d, want %d (auth should be disabled)", rec.Code, http.StatusAccepted)
	}
}

func TestHTTPSource_HealthEndpoint(t *testing.T) {
	source := audio.NewHTTPSource(":0", "", testLogger())
	handler := source.Handler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status before Start: got %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := source.Start(ctx); err != nil {
		t.Fatalf("starting source: %v", err)
	}
	defer source.Stop()

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status after Start: got %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestFileSource_LoadFromDirectory(t *testing.T) {
	tmpDir := t.TempDir()

	testCases := []struct {
		filename string
		content  []byte
	}{
		{"command1.wav", []byte("RIFF....WAVEfmt audio data 1")},
		{"command2.wav", []byte("RIFF....WAVEfmt audio data 2")},
	}

	for _, tc := range testCases {
		path := filepath.Join(tmpDir, tc.filename)
		if err := os.WriteFile(path, tc.content, 0644); err != nil {
			t.Fatalf("writing test file: %v", err)
		}
	}

	source := audio.NewFileSource(tmpDir)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := source.Start(ctx); err != nil {
		t.Fatalf("starting source: %v", err)
	}

	first, err := source.NextSample(ctx)
	if err != nil {
		t.Fatalf("reading first command: %v", err)
	}
	if len(first.Data) == 0 {
		t.Error("first sample is empty")
	}
	if first.MIME != "audio/wav" {
		t.Errorf("MIME: got %s, want audio/wav", first.MIME)
	}

	second, err := source.NextSample(ctx)
	if err != nil {
		t.Fatalf("reading second command: %v", err)
	}
	if len(second.Data) == 0 {
		t.Error("second sample is empty")
	}
}

func TestFileSource_TextFileBecomesCommand(t *testing.T) {
	tmpDir := t.TempDir()

	path := filepath.Join(tmpDir, "command.txt")
	if err := os.WriteFile(path, []byte("check my balance\n"), 0644); err != nil {
		t.Fatalf("writing test file: %v", err)
	}

	source := audio.NewFileSource(tmpDir)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := source.Start(ctx); err != nil {
		t.Fatalf("starting source: %v", err)
	}

	sample, err := source.NextSample(ctx)
	if err != nil {
		t.Fatalf("reading command: %v", err)
	}

	want := domain.TextCommandPrefix + "check my balance"
	if string(sample.Data) != want {
		t.Errorf("data: got %q, want %q", sample.Data, want)
	}
}
