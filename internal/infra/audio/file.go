package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/xPOURY4/voicepay-arc/internal/application"
	"github.com/xPOURY4/voicepay-arc/internal/domain"
)

// FileSource polls a drop directory for recordings, handing each file to the
// pipeline exactly once. A .txt file is treated as a typed command instead
// of audio. Useful for scripted demos and for phones that sync recordings
// into a folder.
type FileSource struct {
	dir       string
	processed map[string]bool
	mu        sync.Mutex
}

func NewFileSource(dir string) *FileSource {
	return &FileSource{
		dir:       dir,
		processed: make(map[string]bool),
	}
}

func (f *FileSource) Name() string {
	return "file"
}

func (f *FileSource) Start(_ context.Context) error {
	if err := os.MkdirAll(f.dir, 0755); err != nil {
		return fmt.Errorf("creating command dir: %w", err)
	}
	return nil
}

func (f *FileSource) Stop() error {
	return nil
}

func (f *FileSource) NextSample(ctx context.Context) (application.AudioSample, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return application.AudioSample{}, ctx.Err()
		case <-ticker.C:
			sample, found, err := f.checkForNewFile()
			if err != nil {
				return application.AudioSample{}, err
			}
			if found {
				return sample, nil
			}
		}
	}
}

func (f *FileSource) checkForNewFile() (application.AudioSample, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return application.AudioSample{}, false, fmt.Errorf("reading dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		ext := filepath.Ext(entry.Name())
		mime, ok := extToMIME[ext]
		if !ok {
			continue
		}

		path := filepath.Join(f.dir, entry.Name())
		if f.processed[path] {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return application.AudioSample{}, false, fmt.Errorf("reading file %s: %w", path, err)
		}

		f.processed[path] = true

		processedPath := path + ".processed"
		os.Rename(path, processedPath)

		if ext == ".txt" {
			text := strings.TrimSpace(string(data))
			if text == "" {
				continue
			}
			return application.AudioSample{
				Data: []byte(domain.TextCommandPrefix + text),
				MIME: "text/plain",
			}, true, nil
		}
		return application.AudioSample{Data: data, MIME: mime}, true, nil
	}

	return application.AudioSample{}, false, nil
}

var extToMIME = map[string]string{
	".wav":  "audio/wav",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".webm": "audio/webm",
	".ogg":  "audio/ogg",
	".txt":  "text/plain",
}
