// Package transcode normalizes arbitrary reference media to the mono
// 16 kHz WAV format the voice-clone model expects, via an external
// ffmpeg subprocess.
package transcode

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// TargetSampleRate is the sample rate the model expects for reference audio.
const TargetSampleRate = 16000

// DefaultBinary is the ffmpeg executable looked up on PATH when no
// explicit path is configured.
const DefaultBinary = "ffmpeg"

// LookPath reports whether the ffmpeg binary can be found on PATH (or at
// the configured path). Used by the environment preflight.
func LookPath(bin string) error {
	if bin == "" {
		bin = DefaultBinary
	}
	if _, err := exec.LookPath(bin); err != nil {
		return fmt.Errorf("ffmpeg not found: %w (install it, e.g. `brew install ffmpeg`)", err)
	}
	return nil
}

// ToMonoWAV converts inPath to a single-channel 16 kHz WAV at outPath.
// A non-zero ffmpeg exit is fatal; the last stderr line is surfaced so
// the user sees the actual codec complaint instead of a generic failure.
func ToMonoWAV(ctx context.Context, bin, inPath, outPath string) error {
	if bin == "" {
		bin = DefaultBinary
	}
	if err := LookPath(bin); err != nil {
		return err
	}

	args := []string{
		"-y",
		"-i", inPath,
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(TargetSampleRate),
		"-f", "wav",
		outPath,
	}

	cmd := exec.CommandContext(ctx, bin, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg conversion failed: %s", lastLine(stderr.String()))
	}
	return nil
}

// lastLine extracts the final non-blank stderr line, which is where
// ffmpeg reports the actual failure.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return "unknown error"
}
