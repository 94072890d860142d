package application

import (
	"context"

	"github.com/xPOURY4/voicepay-arc/internal/domain"
)

type Transcriber interface {
	Transcribe(ctx context.Context, sample AudioSample) (*domain.Transcript, error)
}

// NoopTranscriber is a no-op transcriber for text-only sources. It returns
// an error if called with actual audio data.
type NoopTranscriber struct{}

func (n *NoopTranscriber) Transcribe(_ context.Context, _ AudioSample) (*domain.Transcript, error) {
	return nil, domain.NewError(domain.CodeAPIKeyError,
		"transcription not configured: set openai.api_key to enable voice commands")
}
