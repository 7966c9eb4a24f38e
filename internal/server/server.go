package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/example/go-voice-clone/internal/config"
	"github.com/example/go-voice-clone/internal/vclone"
)

// ParseLogLevel converts a case-insensitive level string to slog.Level.
// An empty string returns slog.LevelInfo. Unknown strings return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}

// JobController is the slice of vclone.JobRunner the HTTP surface needs:
// submit one job at a time and poll its state.
type JobController interface {
	Start(ctx context.Context, req vclone.Request) (string, error)
	Snapshot() vclone.Snapshot
}

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	maxTextBytes int
	defaults     vclone.Request
	logger       *slog.Logger
}

func defaultOptions() options {
	return options{
		maxTextBytes: 4096,
		logger:       slog.Default(),
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithMaxTextBytes sets the maximum allowed text length in bytes for
// POST /synthesize.
func WithMaxTextBytes(n int) Option {
	return func(o *options) { o.maxTextBytes = n }
}

// WithRequestDefaults supplies fallback values for model, language,
// device, and output directory when a request leaves them empty.
func WithRequestDefaults(d vclone.Request) Option {
	return func(o *options) { o.defaults = d }
}

// WithLogger sets the slog.Logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// ---------------------------------------------------------------------------
// handler
// ---------------------------------------------------------------------------

// handler holds the dependencies needed to serve HTTP requests.
type handler struct {
	jobs JobController
	opts options
	log  *slog.Logger
}

// NewHandler returns an http.Handler serving /health, POST /synthesize,
// GET /status, and GET /result around a single background job runner.
func NewHandler(jobs JobController, optFns ...Option) http.Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	h := &handler{
		jobs: jobs,
		opts: opts,
		log:  opts.logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/synthesize", h.handleSynthesize)
	mux.HandleFunc("/status", h.handleStatus)
	mux.HandleFunc("/result", h.handleResult)
	return mux
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": buildVersion(),
	})
}

type synthesizeRequest struct {
	RefAudioPath string `json:"ref_audio_path"`
	RefText      string `json:"ref_text"`
	Text         string `json:"text"`
	Language     string `json:"language"`
	Model        string `json:"model"`
	Device       string `json:"device"`
	OutputDir    string `json:"output_dir"`
	XVectorOnly  bool   `json:"x_vector_only"`
}

func (h *handler) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if r.Body == nil {
		writeError(w, http.StatusBadRequest, "request body is required")
		return
	}

	var req synthesizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text field is required")
		return
	}

	if len(req.Text) > h.opts.maxTextBytes {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("text exceeds maximum size of %d bytes", h.opts.maxTextBytes))
		return
	}

	job := vclone.Request{
		RefAudioPath: req.RefAudioPath,
		RefText:      req.RefText,
		Text:         req.Text,
		Language:     fallback(req.Language, h.opts.defaults.Language),
		Model:        fallback(req.Model, h.opts.defaults.Model),
		DeviceToken:  fallback(req.Device, h.opts.defaults.DeviceToken),
		OutputDir:    fallback(req.OutputDir, h.opts.defaults.OutputDir),
		XVectorOnly:  req.XVectorOnly,
	}

	// The job outlives this request, so it must not inherit the
	// request context.
	id, err := h.jobs.Start(context.Background(), job)
	if err != nil {
		if errors.Is(err, vclone.ErrBusy) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.log.InfoContext(r.Context(), "synthesis job accepted",
		slog.String("job_id", id),
		slog.Int("text_len", len(req.Text)),
		slog.String("device", job.DeviceToken),
	)

	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": id})
}

func (h *handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, h.jobs.Snapshot())
}

func (h *handler) handleResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	snap := h.jobs.Snapshot()
	if snap.State != vclone.JobStateDone || snap.OutputPath == "" {
		writeError(w, http.StatusNotFound, "no finished synthesis result")
		return
	}
	if _, err := os.Stat(snap.OutputPath); err != nil {
		writeError(w, http.StatusNotFound, "result file is gone: "+snap.OutputPath)
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	http.ServeFile(w, r, snap.OutputPath)
}

func fallback(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ---------------------------------------------------------------------------
// Server — wires handler into net/http.Server with graceful shutdown
// ---------------------------------------------------------------------------

// Server wires the HTTP handler into a net/http.Server with graceful shutdown.
type Server struct {
	cfg             config.Config
	jobs            JobController
	log             *slog.Logger
	shutdownTimeout time.Duration
}

func New(cfg config.Config, jobs JobController) *Server {
	timeout := time.Duration(cfg.Server.ShutdownTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Server{
		cfg:             cfg,
		jobs:            jobs,
		log:             slog.Default(),
		shutdownTimeout: timeout,
	}
}

// WithShutdownTimeout overrides the graceful-shutdown drain period.
func (s *Server) WithShutdownTimeout(d time.Duration) *Server {
	s.shutdownTimeout = d
	return s
}

// WithServerLogger overrides the logger used by the handler.
func (s *Server) WithServerLogger(l *slog.Logger) *Server {
	s.log = l
	return s
}

func (s *Server) Start(ctx context.Context) error {
	h := NewHandler(s.jobs,
		WithMaxTextBytes(s.cfg.Server.MaxTextBytes),
		WithRequestDefaults(vclone.Request{
			Model:       s.cfg.Clone.Model,
			Language:    s.cfg.Clone.Language,
			DeviceToken: s.cfg.Clone.Device,
			OutputDir:   s.cfg.Paths.OutputDir,
		}),
		WithLogger(s.log),
	)

	httpServer := &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("http listen: %w", err)
	}
}

func ProbeHTTP(addr string) error {
	resp, err := http.Get("http://" + addr + "/health") //nolint:noctx
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status: %s", resp.Status)
	}
	return nil
}
