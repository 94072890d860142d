package audio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/xPOURY4/voicepay-arc/internal/application"
	"github.com/xPOURY4/voicepay-arc/internal/domain"
)

// HTTPSource accepts voice and text commands over HTTP. Commands queue into
// a bounded channel the pipeline drains; a full queue answers 503 rather
// than blocking the handler. Because these commands can move money, the
// command endpoints honor the auth token when one is configured.
type HTTPSource struct {
	addr        string
	server      *http.Server
	samples     chan application.AudioSample
	logger      *slog.Logger
	mu          sync.Mutex
	running     bool
	mux         *http.ServeMux
	closeOnce   sync.Once
	rateLimiter *RateLimiter
	authToken   string
}

func NewHTTPSource(addr string, authToken string, logger *slog.Logger) *HTTPSource {
	h := &HTTPSource{
		addr:        addr,
		samples:     make(chan application.AudioSample, 10),
		logger:      logger,
		mux:         http.NewServeMux(),
		rateLimiter: NewRateLimiter(30, time.Minute), // 30 requests per minute per IP
		authToken:   authToken,
	}
	h.mux.HandleFunc("POST /voice", h.rateLimiter.Middleware(h.handleVoice))
	h.mux.HandleFunc("POST /text", h.rateLimiter.Middleware(h.handleText))
	// No rate limiting on health check
	h.mux.HandleFunc("GET /health", h.handleHealth)
	return h
}

func (h *HTTPSource) Name() string {
	return "http"
}

func (h *HTTPSource) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return nil
	}

	h.server = &http.Server{
		Addr:         h.addr,
		Handler:      h.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		h.logger.Info("HTTP command server starting", "addr", h.addr)
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", "error", err)
		}
	}()

	h.running = true
	return nil
}

func (h *HTTPSource) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return nil
	}

	if h.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := h.server.Shutdown(ctx); err != nil {
			h.logger.Warn("graceful shutdown failed, forcing close", "error", err)
			if err := h.server.Close(); err != nil {
				return fmt.Errorf("closing server: %w", err)
			}
		}
	}

	h.closeOnce.Do(func() {
		close(h.samples)
	})
	h.running = false
	return nil
}

func (h *HTTPSource) NextSample(ctx context.Context) (application.AudioSample, error) {
	select {
	case <-ctx.Done():
		return application.AudioSample{}, ctx.Err()
	case sample, ok := <-h.samples:
		if !ok {
			return application.AudioSample{}, fmt.Errorf("command channel closed")
		}
		return sample, nil
	}
}

func (h *HTTPSource) Handler() http.Handler {
	return h.mux
}

// InjectAudio queues a sample as if it had arrived over HTTP. Dropped
// silently when the queue is full.
func (h *HTTPSource) InjectAudio(sample application.AudioSample) {
	select {
	case h.samples <- sample:
	default:
	}
}

// authorized checks the shared token, from the X-Auth-Token header or the
// token query parameter. An empty configured token disables the check.
func (h *HTTPSource) authorized(r *http.Request) bool {
	if h.authToken == "" {
		return true
	}
	token := r.Header.Get("X-Auth-Token")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	return token == h.authToken
}

func (h *HTTPSource) handleVoice(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		h.logger.Warn("unauthorized voice request", "remote_addr", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, 10*1024*1024))
	if err != nil {
		h.logger.Error("reading voice body", "error", err)
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if len(data) == 0 {
		http.Error(w, "empty audio", http.StatusBadRequest)
		return
	}

	sample := application.AudioSample{
		Data: data,
		MIME: mimeFrom(r.Header.Get("Content-Type")),
	}

	select {
	case h.samples <- sample:
		h.logger.Info("received voice command via HTTP", "bytes", len(data), "mime", sample.MIME)
		w.WriteHeader(http.StatusAccepted)
		fmt.Fprintf(w, `{"status":"received","bytes":%d}`, len(data))
	default:
		http.Error(w, "queue full, try again", http.StatusServiceUnavailable)
	}
}

func (h *HTTPSource) handleText(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		h.logger.Warn("unauthorized text request", "remote_addr", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, 1024))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	text := strings.TrimSpace(string(data))
	if text == "" {
		http.Error(w, "empty text", http.StatusBadRequest)
		return
	}

	sample := application.AudioSample{
		Data: []byte(domain.TextCommandPrefix + text),
		MIME: "text/plain",
	}

	select {
	case h.samples <- sample:
		h.logger.Info("received text command via HTTP", "text", text)
		w.WriteHeader(http.StatusAccepted)
		fmt.Fprintf(w, `{"status":"received","text":"%s"}`, text)
	default:
		http.Error(w, "queue full, try again", http.StatusServiceUnavailable)
	}
}

func (h *HTTPSource) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	running := h.running
	queueSize := len(h.samples)
	h.mu.Unlock()

	status := "ok"
	statusCode := http.StatusOK

	if !running {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	fmt.Fprintf(w, `{"status":"%s","running":%t,"queue_size":%d}`, status, running, queueSize)
}

// mimeFrom strips parameters from a Content-Type value.
func mimeFrom(contentType string) string {
	mime, _, _ := strings.Cut(contentType, ";")
	mime = strings.TrimSpace(mime)
	if mime == "" || mime == "application/octet-stream" {
		return "audio/wav"
	}
	return mime
}
