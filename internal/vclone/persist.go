package vclone

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/example/go-voice-clone/internal/audio"
)

// now is swapped in tests to pin the output filename.
var now = time.Now

// OutputFileName builds the timestamped filename for a synthesis run.
// Second resolution keeps repeated runs from colliding.
func OutputFileName(t time.Time) string {
	return fmt.Sprintf("voiceclone_%s.wav", t.Format("20060102_150405"))
}

// SaveWaveform writes samples as a WAV under outputDir, creating the
// directory (and parents) as needed, and returns the absolute output
// path. Permission failures are reported distinctly from other write
// failures.
func SaveWaveform(outputDir string, samples []float32, sampleRate int) (string, error) {
	abs, err := filepath.Abs(outputDir)
	if err != nil {
		return "", fmt.Errorf("%w: resolve output directory: %v", ErrPersist, err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return "", fmt.Errorf("%w: cannot create the output directory; check write permission on %s: %v", ErrPersist, abs, err)
		}
		return "", fmt.Errorf("%w: cannot create the output directory: %v", ErrPersist, err)
	}

	outPath := filepath.Join(abs, OutputFileName(now()))

	data, err := audio.EncodeWAV(samples, sampleRate)
	if err != nil {
		return "", fmt.Errorf("%w: encode WAV: %v", ErrPersist, err)
	}

	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return "", fmt.Errorf("%w: check write permission on the output directory: %v", ErrPersist, err)
		}
		return "", fmt.Errorf("%w: %v", ErrPersist, err)
	}

	return outPath, nil
}

// WriteWAVFile writes samples to an explicit path, creating parent
// directories. Used by the batch CLI where the caller names the file.
func WriteWAVFile(path string, samples []float32, sampleRate int) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("%w: resolve output path: %v", ErrPersist, err)
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("%w: cannot create the output directory: %v", ErrPersist, err)
	}

	data, err := audio.EncodeWAV(samples, sampleRate)
	if err != nil {
		return fmt.Errorf("%w: encode WAV: %v", ErrPersist, err)
	}

	if err := os.WriteFile(abs, data, 0o644); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return fmt.Errorf("%w: check write permission on the output directory: %v", ErrPersist, err)
		}
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return nil
}
