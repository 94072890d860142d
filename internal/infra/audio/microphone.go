//go:build portaudio
// +build portaudio

package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/xPOURY4/voicepay-arc/internal/application"
	"github.com/xPOURY4/voicepay-arc/internal/domain"
)

const framesPerBuffer = 1024

// Microphone records push-to-talk sessions from the default input device.
// One recording at a time: Start opens the stream and meters input levels
// until Stop assembles the WAV or Abort discards it.
type Microphone struct {
	sampleRate int
	logger     *slog.Logger

	mu      sync.Mutex
	stream  *portaudio.Stream
	frame   []int16
	samples []int16
	level   float64
	readErr error
	done    chan struct{}
	wg      sync.WaitGroup
}

func NewMicrophone(sampleRate int, logger *slog.Logger) *Microphone {
	if sampleRate <= 0 {
		sampleRate = application.DefaultAudioFormat().SampleRate
	}
	return &Microphone{
		sampleRate: sampleRate,
		logger:     logger,
	}
}

func (m *Microphone) Start(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stream != nil {
		return domain.NewError(domain.CodeDeviceBusy, "microphone already recording")
	}

	if err := portaudio.Initialize(); err != nil {
		return classifyDeviceError(err)
	}

	m.frame = make([]int16, framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(m.sampleRate), framesPerBuffer, m.frame)
	if err != nil {
		portaudio.Terminate()
		return classifyDeviceError(err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return classifyDeviceError(err)
	}

	m.stream = stream
	m.samples = m.samples[:0]
	m.level = 0
	m.readErr = nil
	m.done = make(chan struct{})

	m.wg.Add(1)
	go m.pump()

	m.logger.Info("microphone recording", "sampleRate", m.sampleRate)
	return nil
}

// pump drains the stream into the session buffer. The stream fills m.frame
// in place on every Read, so the frame is copied out before the next one.
func (m *Microphone) pump() {
	defer m.wg.Done()

	for {
		select {
		case <-m.done:
			return
		default:
		}

		if err := m.stream.Read(); err != nil {
			// Teardown aborts the stream, which surfaces here as a
			// read error; only unprompted errors count.
			select {
			case <-m.done:
			default:
				m.mu.Lock()
				m.readErr = err
				m.mu.Unlock()
			}
			return
		}

		m.mu.Lock()
		m.samples = append(m.samples, m.frame...)
		m.level = rms(m.frame)
		m.mu.Unlock()
	}
}

func (m *Microphone) Stop() (application.AudioSample, error) {
	samples, readErr, err := m.teardown()
	if err != nil {
		return application.AudioSample{}, err
	}
	if readErr != nil {
		return application.AudioSample{}, classifyDeviceError(readErr)
	}

	wav, err := samplesToWav(samples, m.sampleRate)
	if err != nil {
		return application.AudioSample{}, fmt.Errorf("encoding wav: %w", err)
	}

	return application.AudioSample{
		Data:     wav,
		MIME:     "audio/wav",
		Duration: time.Duration(len(samples)) * time.Second / time.Duration(m.sampleRate),
	}, nil
}

func (m *Microphone) Abort() error {
	_, _, err := m.teardown()
	return err
}

func (m *Microphone) Level() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

// teardown closes the session, returning what was captured and any read
// error the pump hit. err is set only when there was no session to close.
func (m *Microphone) teardown() (samples []int16, readErr, err error) {
	m.mu.Lock()
	if m.stream == nil {
		m.mu.Unlock()
		return nil, nil, domain.NewError(domain.CodeDeviceNotFound, "microphone not recording")
	}
	stream := m.stream
	done := m.done
	m.mu.Unlock()

	close(done)
	stream.Abort()
	m.wg.Wait()

	m.mu.Lock()
	samples = m.samples
	readErr = m.readErr
	m.stream = nil
	m.samples = nil
	m.level = 0
	m.mu.Unlock()

	stream.Close()
	portaudio.Terminate()

	return samples, readErr, nil
}

func classifyDeviceError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission") || strings.Contains(msg, "denied"):
		return domain.WrapError(domain.CodePermissionDenied, "microphone access denied", err)
	case strings.Contains(msg, "busy") || strings.Contains(msg, "in use") || strings.Contains(msg, "unavailable"):
		return domain.WrapError(domain.CodeDeviceBusy, "microphone unavailable", err)
	case strings.Contains(msg, "no default") || strings.Contains(msg, "not found") || strings.Contains(msg, "no device"):
		return domain.WrapError(domain.CodeDeviceNotFound, "no microphone found", err)
	default:
		return domain.WrapError(domain.CodeDeviceNotFound, "opening microphone", err)
	}
}

// rms normalizes the frame's power into [0, 1].
func rms(frame []int16) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum/float64(len(frame))) / 32768
}

func samplesToWav(samples []int16, sampleRate int) ([]byte, error) {
	var buf bytes.Buffer

	dataSize := len(samples) * 2
	fileSize := 36 + dataSize

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, int32(fileSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, int32(16))
	binary.Write(&buf, binary.LittleEndian, int16(1))
	binary.Write(&buf, binary.LittleEndian, int16(1))
	binary.Write(&buf, binary.LittleEndian, int32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, int32(sampleRate*2))
	binary.Write(&buf, binary.LittleEndian, int16(2))
	binary.Write(&buf, binary.LittleEndian, int16(16))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, int32(dataSize))
	for _, sample := range samples {
		binary.Write(&buf, binary.LittleEndian, sample)
	}

	return buf.Bytes(), nil
}
