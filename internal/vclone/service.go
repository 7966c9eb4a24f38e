package vclone

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/example/go-voice-clone/internal/device"
	"github.com/example/go-voice-clone/internal/engine"
)

// Request is one full synthesis request. Constructed per call and
// consumed within it.
type Request struct {
	RefAudioPath string
	RefText      string
	Text         string
	Language     string
	Model        string
	DeviceToken  string
	OutputDir    string
	XVectorOnly  bool
}

// Result is the user-facing outcome of a synthesis run. Message is
// always populated; OutputPath and SampleRate only on success.
type Result struct {
	OK         bool        `json:"ok"`
	OutputPath string      `json:"output_path,omitempty"`
	SampleRate int         `json:"sample_rate,omitempty"`
	Message    string      `json:"message"`
	Runtime    RuntimeInfo `json:"runtime"`
}

// Service owns the model cache and runs the orchestration pipeline:
// resolve device, load (or reuse) the model, synthesize, persist. One
// Service is built per process; its cache lives as long as it does.
type Service struct {
	cache *ModelCache
	exec  *Executor
	probe device.Probe
	log   *slog.Logger
}

// NewService wires the pipeline around a model loader. probe decides
// accelerator availability; pass device.DefaultProbe() outside tests.
func NewService(loader engine.Loader, probe device.Probe, ffmpegPath string, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		cache: NewModelCache(loader, probe, log),
		exec:  &Executor{FFmpegPath: ffmpegPath},
		probe: probe,
		log:   log,
	}
}

// Close releases all cached model instances.
func (s *Service) Close() error { return s.cache.Close() }

// GenerateWaveform runs the core pipeline for one utterance and returns
// the waveform with the effective runtime. Inputs are checked before
// any device or model work so a missing reference file never pays for
// a model load. The device token is resolved here; the model is loaded
// once per (model, concrete device) and reused across calls.
func (s *Service) GenerateWaveform(ctx context.Context, req Request) (Segment, RuntimeInfo, error) {
	if req.RefAudioPath == "" {
		return Segment{}, RuntimeInfo{}, fmt.Errorf("%w: %s", ErrInput, MsgRefAudioRequired)
	}
	if _, err := os.Stat(req.RefAudioPath); err != nil {
		return Segment{}, RuntimeInfo{}, fmt.Errorf("%w: %s", ErrInput, MsgRefAudioNotFound)
	}
	if strings.TrimSpace(req.Text) == "" {
		return Segment{}, RuntimeInfo{}, fmt.Errorf("%w: the text to synthesize is empty", ErrInput)
	}
	if !req.XVectorOnly && strings.TrimSpace(req.RefText) == "" {
		return Segment{}, RuntimeInfo{}, fmt.Errorf("%w: %s", ErrInput, MsgRefTextRequired)
	}

	dev, err := device.Resolve(req.DeviceToken, s.probe)
	if err != nil {
		return Segment{}, RuntimeInfo{}, err
	}

	gen, runtime, err := s.cache.Load(ctx, req.Model, dev)
	if err != nil {
		return Segment{}, RuntimeInfo{}, err
	}

	seg, err := s.exec.Synthesize(ctx, gen, SegmentRequest{
		RefAudioPath: req.RefAudioPath,
		RefText:      req.RefText,
		Text:         req.Text,
		Language:     req.Language,
		XVectorOnly:  req.XVectorOnly,
	})
	if err != nil {
		return Segment{}, RuntimeInfo{}, err
	}

	return seg, runtime, nil
}

// SynthesizeToFile runs validation, synthesis, and persistence for one
// request and folds every failure into the Result message instead of
// propagating it, so front ends never see a raw failure.
func (s *Service) SynthesizeToFile(ctx context.Context, req Request) Result {
	if problems := ValidateRequest(req); len(problems) > 0 {
		return Result{Message: strings.Join(problems, " / ")}
	}

	seg, runtime, err := s.GenerateWaveform(ctx, req)
	if err != nil {
		s.log.Error("synthesis failed", slog.String("model", req.Model), slog.String("error", err.Error()))
		return Result{Message: err.Error(), Runtime: runtime}
	}

	outPath, err := SaveWaveform(req.OutputDir, seg.Samples, seg.SampleRate)
	if err != nil {
		return Result{Message: err.Error(), Runtime: runtime}
	}

	s.log.Info("synthesis complete",
		slog.String("output", outPath),
		slog.Int("sample_rate", seg.SampleRate),
		slog.String("device", runtime.Device),
	)

	return Result{
		OK:         true,
		OutputPath: outPath,
		SampleRate: seg.SampleRate,
		Runtime:    runtime,
		Message:    fmt.Sprintf("saved: %s (sr=%d, %s)", outPath, seg.SampleRate, runtime),
	}
}
