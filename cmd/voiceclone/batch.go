package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/example/go-voice-clone/internal/audio"
	"github.com/example/go-voice-clone/internal/config"
	"github.com/example/go-voice-clone/internal/vclone"
	"github.com/spf13/cobra"
)

func newBatchCmd() *cobra.Command {
	var opts batchOptions

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Synthesize a text file line by line into one WAV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			return runBatch(cmd.Context(), cfg, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.RefAudioPath, "ref-audio", "", "Reference audio file to clone the voice from")
	cmd.Flags().StringVar(&opts.RefText, "ref-text", "", "Transcript of the reference audio")
	cmd.Flags().StringVar(&opts.RefTextFile, "ref-text-file", "", "File containing the reference transcript")
	cmd.Flags().StringVar(&opts.TextFile, "text-file", "", "UTF-8 text file; each non-blank line becomes one segment")
	cmd.Flags().StringVar(&opts.OutPath, "out", "", "Output WAV path")
	cmd.Flags().StringVar(&opts.Model, "model", "speed", "Model preset or ID")
	cmd.Flags().StringVar(&opts.Language, "language", "", "Synthesis language (overrides config)")
	cmd.Flags().StringVar(&opts.Device, "device", "", "Device token (auto|mps|cpu|cuda:N; overrides config)")
	cmd.Flags().Float64Var(&opts.SilenceSec, "silence", 0.25, "Seconds of silence between lines")
	cmd.Flags().BoolVar(&opts.XVectorOnly, "x-vector-only", false, "Clone from speaker embedding only, without a transcript")

	_ = cmd.MarkFlagRequired("ref-audio")
	_ = cmd.MarkFlagRequired("text-file")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}

type batchOptions struct {
	RefAudioPath string
	RefText      string
	RefTextFile  string
	TextFile     string
	OutPath      string
	Model        string
	Language     string
	Device       string
	SilenceSec   float64
	XVectorOnly  bool
}

// batchGenerator is the slice of vclone.Service the batch loop needs.
type batchGenerator interface {
	GenerateWaveform(ctx context.Context, req vclone.Request) (vclone.Segment, vclone.RuntimeInfo, error)
	Close() error
}

var newBatchGenerator = func(cfg config.Config) batchGenerator {
	return newCloneService(cfg)
}

// runBatch synthesizes every non-blank line of the text file with the
// same cloned voice and writes one WAV with silence gaps between the
// lines. The model loads once on the first line; later lines reuse it.
func runBatch(ctx context.Context, cfg config.Config, opts batchOptions, stdout io.Writer) error {
	if (opts.RefText != "" || opts.RefTextFile != "") && opts.XVectorOnly {
		return fmt.Errorf("--ref-text/--ref-text-file and --x-vector-only are mutually exclusive")
	}
	if opts.SilenceSec < 0 {
		return fmt.Errorf("--silence must not be negative")
	}

	refText, err := readRefText(opts.RefText, opts.RefTextFile)
	if err != nil {
		return err
	}

	lines, err := readTextLines(opts.TextFile)
	if err != nil {
		return err
	}

	if issues := runPreflight(cfg); len(issues) > 0 {
		return preflightError(issues)
	}

	gen := newBatchGenerator(cfg)
	defer func() { _ = gen.Close() }()

	req := vclone.Request{
		RefAudioPath: opts.RefAudioPath,
		RefText:      refText,
		Language:     fallback(opts.Language, cfg.Clone.Language),
		Model:        config.ResolveModel(fallback(opts.Model, cfg.Clone.Model)),
		DeviceToken:  fallback(opts.Device, cfg.Clone.Device),
		XVectorOnly:  opts.XVectorOnly,
	}

	segments := make([][]float32, 0, len(lines))
	sampleRate := 0
	for i, line := range lines {
		if err := ctx.Err(); err != nil {
			return err
		}

		lineReq := req
		lineReq.Text = line
		seg, _, err := gen.GenerateWaveform(ctx, lineReq)
		if err != nil {
			return fmt.Errorf("line %d/%d: %w", i+1, len(lines), err)
		}
		if sampleRate == 0 {
			sampleRate = seg.SampleRate
		} else if seg.SampleRate != sampleRate {
			return fmt.Errorf("line %d/%d: sample rate changed from %d to %d", i+1, len(lines), sampleRate, seg.SampleRate)
		}
		segments = append(segments, seg.Samples)

		_, _ = fmt.Fprintf(stdout, "line %d/%d done\n", i+1, len(lines))
	}

	merged := audio.ConcatWithSilence(segments, sampleRate, opts.SilenceSec)
	if err := vclone.WriteWAVFile(opts.OutPath, merged, sampleRate); err != nil {
		return err
	}

	seconds := float64(len(merged)) / float64(sampleRate)
	_, _ = fmt.Fprintf(stdout, "wrote %s (%d lines, %.1fs, sr=%d)\n", opts.OutPath, len(lines), seconds, sampleRate)

	return nil
}

// readTextLines loads the batch input file and returns its non-blank
// lines in order. The file must be valid UTF-8 and yield at least one
// line.
func readTextLines(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read text file: %w", err)
	}
	if !utf8.Valid(b) {
		return nil, fmt.Errorf("text file %s is not valid UTF-8", path)
	}

	raw := strings.Split(string(b), "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("no non-blank lines in %s", path)
	}
	return lines, nil
}
