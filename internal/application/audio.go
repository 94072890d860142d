package application

import (
	"context"
	"time"
)

// AudioSample is one captured utterance plus the metadata the transcription
// service needs to decode it.
type AudioSample struct {
	Data     []byte
	MIME     string
	Duration time.Duration
}

type AudioSource interface {
	Start(ctx context.Context) error
	Stop() error
	NextSample(ctx context.Context) (AudioSample, error)
	Name() string
}

type AudioFormat struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

func DefaultAudioFormat() AudioFormat {
	return AudioFormat{
		SampleRate: 16000,
		Channels:   1,
		BitDepth:   16,
	}
}
