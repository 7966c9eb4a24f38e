package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/example/go-voice-clone/internal/config"
	"github.com/example/go-voice-clone/internal/doctor"
	"github.com/example/go-voice-clone/internal/engine"
	"github.com/example/go-voice-clone/internal/transcode"
	"github.com/spf13/cobra"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the local runtime dependencies",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			result := doctor.Run(buildDoctorConfig(cfg), os.Stdout)

			if result.Failed() {
				for _, f := range result.Failures() {
					fmt.Fprintf(os.Stderr, "FAIL: %s\n", f)
				}

				return errors.New("doctor checks failed")
			}

			_, _ = fmt.Fprintln(os.Stdout, "doctor checks passed")

			return nil
		},
	}

	return cmd
}

// ffmpegBinary and runnerBinary resolve configured subprocess paths,
// falling back to PATH lookup names.
func ffmpegBinary(cfg config.Config) string {
	if cfg.Paths.FFmpegPath != "" {
		return cfg.Paths.FFmpegPath
	}
	return transcode.DefaultBinary
}

func runnerBinary(cfg config.Config) string {
	if cfg.Paths.RunnerPath != "" {
		return cfg.Paths.RunnerPath
	}
	return engine.DefaultBinary
}

// buildDoctorConfig wires the preflight checks to the real ffmpeg and
// model-runner binaries. The same checks gate synth, batch, and every
// interactive job before any model is loaded.
func buildDoctorConfig(cfg config.Config) doctor.Config {
	ffmpegBin := ffmpegBinary(cfg)
	runnerBin := runnerBinary(cfg)

	return doctor.Config{
		FFmpeg: func() error { return transcode.LookPath(ffmpegBin) },
		RunnerVersion: func() (string, error) {
			return engine.Version(runnerBin)
		},
		Compute:  func() error { return engine.ProbeComponent(runnerBin, "torch") },
		ModelLib: func() error { return engine.ProbeComponent(runnerBin, "qwen_tts") },
		AudioIO:  func() error { return engine.ProbeComponent(runnerBin, "soundfile") },
	}
}

var runPreflight = func(cfg config.Config) []string {
	return doctor.Preflight(buildDoctorConfig(cfg))
}

func preflightError(issues []string) error {
	msg := "environment preflight failed:"
	for _, issue := range issues {
		msg += "\n- " + issue
	}
	return errors.New(msg)
}
