package vclone

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/example/go-voice-clone/internal/engine"
	"github.com/example/go-voice-clone/internal/transcode"
)

// SegmentRequest carries the inputs for one utterance.
type SegmentRequest struct {
	RefAudioPath string
	RefText      string
	Text         string
	Language     string
	XVectorOnly  bool
}

// Segment is one synthesized waveform.
type Segment struct {
	Samples    []float32
	SampleRate int
}

// Executor runs single-utterance synthesis against a loaded model:
// transcode the reference clip, invoke the model, classify failures.
// All failures are terminal for the request; retrying is the caller's
// decision.
type Executor struct {
	// FFmpegPath overrides the ffmpeg binary; PATH lookup when empty.
	FFmpegPath string
}

// mkTempDir is swapped in tests to force temp-dir failures.
var mkTempDir = os.MkdirTemp

// Synthesize produces one waveform from the reference clip and target
// text. The transcoded reference lives in a scratch directory that is
// removed on every exit path.
func (e *Executor) Synthesize(ctx context.Context, gen engine.Generator, req SegmentRequest) (Segment, error) {
	if _, err := os.Stat(req.RefAudioPath); err != nil {
		return Segment{}, fmt.Errorf("%w: %s", ErrInput, MsgRefAudioNotFound)
	}
	if strings.TrimSpace(req.Text) == "" {
		return Segment{}, fmt.Errorf("%w: the text to synthesize is empty", ErrInput)
	}
	if !req.XVectorOnly && strings.TrimSpace(req.RefText) == "" {
		return Segment{}, fmt.Errorf("%w: ref_text is required; provide the reference transcript or enable x-vector-only mode", ErrInput)
	}

	td, err := mkTempDir("", "voiceclone-ref-")
	if err != nil {
		return Segment{}, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(td)

	refWAV := filepath.Join(td, "ref.wav")
	if err := transcode.ToMonoWAV(ctx, e.FFmpegPath, req.RefAudioPath, refWAV); err != nil {
		return Segment{}, err
	}

	refText := ""
	if !req.XVectorOnly {
		refText = strings.TrimSpace(req.RefText)
	}

	segments, sampleRate, err := gen.Generate(ctx, engine.GenerateRequest{
		Text:        req.Text,
		Language:    req.Language,
		RefAudioWAV: refWAV,
		RefText:     refText,
		XVectorOnly: req.XVectorOnly,
	})
	if err != nil {
		return Segment{}, ClassifyGenerateError(err)
	}

	if len(segments) == 0 {
		return Segment{}, fmt.Errorf("%w: the model returned no audio; check the input text", ErrSynthesis)
	}

	return Segment{Samples: segments[0], SampleRate: sampleRate}, nil
}
