package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/example/go-voice-clone/internal/config"
	"github.com/example/go-voice-clone/internal/device"
	"github.com/example/go-voice-clone/internal/engine"
	"github.com/example/go-voice-clone/internal/vclone"
	"github.com/spf13/cobra"
)

func newSynthCmd() *cobra.Command {
	var refAudio string
	var refText string
	var refTextFile string
	var text string
	var language string
	var model string
	var deviceToken string
	var outputDir string
	var xVectorOnly bool

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Clone a voice and synthesize one utterance to WAV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if (refText != "" || refTextFile != "") && xVectorOnly {
				return fmt.Errorf("--ref-text/--ref-text-file and --x-vector-only are mutually exclusive")
			}

			inputText, err := readSynthText(text, cmd.InOrStdin())
			if err != nil {
				return err
			}
			resolvedRefText, err := readRefText(refText, refTextFile)
			if err != nil {
				return err
			}

			if issues := runPreflight(cfg); len(issues) > 0 {
				return preflightError(issues)
			}

			req := vclone.Request{
				RefAudioPath: refAudio,
				RefText:      resolvedRefText,
				Text:         inputText,
				Language:     fallback(language, cfg.Clone.Language),
				Model:        config.ResolveModel(fallback(model, cfg.Clone.Model)),
				DeviceToken:  fallback(deviceToken, cfg.Clone.Device),
				OutputDir:    fallback(outputDir, cfg.Paths.OutputDir),
				XVectorOnly:  xVectorOnly,
			}

			res := runCloneSynthesis(cmd.Context(), cfg, req)
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			if !res.OK {
				return fmt.Errorf("synthesis failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&refAudio, "ref-audio", "", "Reference audio file to clone the voice from")
	cmd.Flags().StringVar(&refText, "ref-text", "", "Transcript of the reference audio")
	cmd.Flags().StringVar(&refTextFile, "ref-text-file", "", "File containing the reference transcript")
	cmd.Flags().StringVar(&text, "text", "", "Text to synthesize (if empty, read from stdin)")
	cmd.Flags().StringVar(&language, "language", "", "Synthesis language (overrides config)")
	cmd.Flags().StringVar(&model, "model", "", "Model preset or ID (overrides config)")
	cmd.Flags().StringVar(&deviceToken, "device", "", "Device token (auto|mps|cpu|cuda:N; overrides config)")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "Directory for the output WAV (overrides config)")
	cmd.Flags().BoolVar(&xVectorOnly, "x-vector-only", false, "Clone from speaker embedding only, without a transcript")

	return cmd
}

// newCloneService builds the synthesis pipeline from configuration:
// the model-runner subprocess loader, platform device probing, and the
// configured ffmpeg binary.
func newCloneService(cfg config.Config) *vclone.Service {
	loader := &engine.RunnerLoader{Binary: runnerBinary(cfg)}
	return vclone.NewService(loader, device.DefaultProbe(), ffmpegBinary(cfg), slog.Default())
}

var runCloneSynthesis = func(ctx context.Context, cfg config.Config, req vclone.Request) vclone.Result {
	svc := newCloneService(cfg)
	defer func() { _ = svc.Close() }()
	return svc.SynthesizeToFile(ctx, req)
}

func readSynthText(text string, stdin io.Reader) (string, error) {
	if strings.TrimSpace(text) != "" {
		return text, nil
	}

	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	input := strings.TrimSpace(string(b))
	if input == "" {
		return "", fmt.Errorf("either provide --text or pipe text on stdin")
	}
	return input, nil
}

// readRefText resolves the reference transcript from the inline flag or
// a file. Inline text wins when both are set. Empty is allowed here;
// whether a transcript is required depends on the x-vector-only mode
// and is checked by the pipeline.
func readRefText(inline, file string) (string, error) {
	if strings.TrimSpace(inline) != "" {
		return inline, nil
	}
	if file == "" {
		return "", nil
	}

	b, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("read reference transcript %s: %w", file, err)
	}
	return strings.TrimSpace(string(b)), nil
}

func fallback(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
