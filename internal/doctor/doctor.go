// Package doctor provides environment preflight checks for the
// voice-clone pipeline. The four runtime dependencies (media
// transcoder, numeric-compute backend, model-loading library, audio
// I/O library) are verified before any heavy work so a missing piece
// never leaves a half-allocated GPU behind.
package doctor

import (
	"fmt"
	"io"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// CheckFunc resolves one dependency or returns an error describing why
// it is unavailable.
type CheckFunc func() error

// VersionFunc returns a version string or an error if the component is unavailable.
type VersionFunc func() (string, error)

// Config holds injectable dependencies for each preflight check.
type Config struct {
	// FFmpeg verifies the media transcoder binary is resolvable.
	FFmpeg CheckFunc
	// RunnerVersion returns the model runner's version string.
	RunnerVersion VersionFunc
	// Compute verifies the runner's numeric-compute backend imports.
	Compute CheckFunc
	// ModelLib verifies the runner's model-loading library imports.
	ModelLib CheckFunc
	// AudioIO verifies the runner's audio-file I/O library imports.
	AudioIO CheckFunc
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Preflight runs every configured check and returns only the
// missing-dependency messages, for callers that gate on the result
// without printing a report.
func Preflight(cfg Config) []string {
	res := Run(cfg, io.Discard)
	return res.Failures()
}

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark. No model is
// loaded and no subprocess does real work.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	check := func(name string, fn CheckFunc) {
		if fn == nil {
			fmt.Fprintf(w, "%s %s: skipped\n", PassMark, name)
			return
		}
		if err := fn(); err != nil {
			res.fail(fmt.Sprintf("%s: %v", name, err))
			fmt.Fprintf(w, "%s %s: %v\n", FailMark, name, err)
			return
		}
		fmt.Fprintf(w, "%s %s: ok\n", PassMark, name)
	}

	check("ffmpeg", cfg.FFmpeg)

	if cfg.RunnerVersion == nil {
		fmt.Fprintf(w, "%s model runner: skipped\n", PassMark)
	} else if ver, err := cfg.RunnerVersion(); err != nil {
		res.fail(fmt.Sprintf("model runner: %v", err))
		fmt.Fprintf(w, "%s model runner: not found (%v)\n", FailMark, err)
	} else {
		fmt.Fprintf(w, "%s model runner: %s\n", PassMark, ver)
	}

	check("compute backend (torch)", cfg.Compute)
	check("model library (qwen_tts)", cfg.ModelLib)
	check("audio i/o (soundfile)", cfg.AudioIO)

	return res
}
