package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/xPOURY4/voicepay-arc/internal/application"
	"github.com/xPOURY4/voicepay-arc/internal/domain"
)

// WhisperClient transcribes audio via the OpenAI Whisper API. Each call is a
// single attempt: callers that want retries wrap Transcribe themselves.
type WhisperClient struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	language   string
}

func NewWhisperClient(apiKey, language string) *WhisperClient {
	return NewWhisperClientWithURL(apiKey, language, "https://api.openai.com/v1")
}

func NewWhisperClientWithURL(apiKey, language, baseURL string) *WhisperClient {
	return &WhisperClient{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		language:   language,
	}
}

type whisperResponse struct {
	Text     string  `json:"text"`
	Duration float64 `json:"duration"`
	Segments []struct {
		AvgLogprob float64 `json:"avg_logprob"`
	} `json:"segments"`
}

func (c *WhisperClient) Transcribe(ctx context.Context, sample application.AudioSample) (*domain.Transcript, error) {
	if len(sample.Data) == 0 {
		return nil, domain.NewError(domain.CodeNoSpeechDetected, "empty audio sample")
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", fileNameFor(sample.MIME))
	if err != nil {
		return nil, fmt.Errorf("creating form file: %w", err)
	}
	if _, err = part.Write(sample.Data); err != nil {
		return nil, fmt.Errorf("writing audio data: %w", err)
	}

	if err = writer.WriteField("model", "whisper-1"); err != nil {
		return nil, fmt.Errorf("writing model field: %w", err)
	}
	if err = writer.WriteField("response_format", "verbose_json"); err != nil {
		return nil, fmt.Errorf("writing format field: %w", err)
	}
	if c.language != "" {
		if err = writer.WriteField("language", c.language); err != nil {
			return nil, fmt.Errorf("writing language field: %w", err)
		}
	}
	if err = writer.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", &buf)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, statusError(resp.StatusCode, respBody)
	}

	var result whisperResponse
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, domain.WrapError(domain.CodeTranscriptionFailed, "decoding whisper response", err)
	}

	text := strings.TrimSpace(result.Text)
	if text == "" {
		return nil, domain.NewError(domain.CodeNoSpeechDetected, "no speech detected in recording")
	}

	return &domain.Transcript{
		Text:       text,
		Confidence: confidenceFrom(result),
		Duration:   time.Duration(result.Duration * float64(time.Second)),
	}, nil
}

// confidenceFrom converts segment log-probabilities into a 0..1 score. The
// API reports no single confidence figure, so the mean probability across
// segments stands in for one.
func confidenceFrom(result whisperResponse) float64 {
	if len(result.Segments) == 0 {
		return 1.0
	}
	var sum float64
	for _, seg := range result.Segments {
		sum += seg.AvgLogprob
	}
	conf := math.Exp(sum / float64(len(result.Segments)))
	if conf > 1.0 {
		conf = 1.0
	}
	return conf
}

func fileNameFor(mime string) string {
	switch {
	case strings.Contains(mime, "webm"):
		return "audio.webm"
	case strings.Contains(mime, "mpeg"), strings.Contains(mime, "mp3"):
		return "audio.mp3"
	case strings.Contains(mime, "mp4"), strings.Contains(mime, "m4a"):
		return "audio.m4a"
	case strings.Contains(mime, "ogg"):
		return "audio.ogg"
	case strings.Contains(mime, "flac"):
		return "audio.flac"
	default:
		return "audio.wav"
	}
}

func transportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return domain.WrapError(domain.CodeTimeout, "whisper request timed out", err)
	}
	return domain.WrapError(domain.CodeNetworkError, "sending whisper request", err)
}

func statusError(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.Errorf(domain.CodeAPIKeyError, "whisper API rejected credentials (%d): %s", status, msg)
	case http.StatusTooManyRequests:
		return domain.Errorf(domain.CodeRateLimited, "whisper API rate limited: %s", msg)
	default:
		return domain.Errorf(domain.CodeTranscriptionFailed, "whisper API error %d: %s", status, msg)
	}
}
