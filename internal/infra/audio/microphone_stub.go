//go:build !portaudio
// +build !portaudio

package audio

import (
	"context"
	"log/slog"

	"github.com/xPOURY4/voicepay-arc/internal/application"
	"github.com/xPOURY4/voicepay-arc/internal/domain"
)

// Microphone stub when portaudio is not available.
type Microphone struct {
	logger *slog.Logger
}

func NewMicrophone(sampleRate int, logger *slog.Logger) *Microphone {
	return &Microphone{logger: logger}
}

func (m *Microphone) Start(_ context.Context) error {
	return domain.NewError(domain.CodeDeviceNotFound, "microphone not available: rebuild with -tags portaudio")
}

func (m *Microphone) Stop() (application.AudioSample, error) {
	return application.AudioSample{}, domain.NewError(domain.CodeDeviceNotFound, "microphone not available")
}

func (m *Microphone) Abort() error {
	return nil
}

func (m *Microphone) Level() float64 {
	return 0
}
