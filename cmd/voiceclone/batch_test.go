package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/go-voice-clone/internal/audio"
	"github.com/example/go-voice-clone/internal/config"
	"github.com/example/go-voice-clone/internal/vclone"
)

type fakeBatchGenerator struct {
	segments   map[string]vclone.Segment
	sampleRate int
	err        error
	requests   []vclone.Request
	closed     bool
}

func (f *fakeBatchGenerator) GenerateWaveform(_ context.Context, req vclone.Request) (vclone.Segment, vclone.RuntimeInfo, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return vclone.Segment{}, vclone.RuntimeInfo{}, f.err
	}
	if seg, ok := f.segments[req.Text]; ok {
		return seg, vclone.RuntimeInfo{Device: "cpu"}, nil
	}
	return vclone.Segment{Samples: []float32{0.5}, SampleRate: f.sampleRate}, vclone.RuntimeInfo{Device: "cpu"}, nil
}

func (f *fakeBatchGenerator) Close() error {
	f.closed = true
	return nil
}

func stubBatchGenerator(t *testing.T, gen *fakeBatchGenerator) {
	t.Helper()
	prev := newBatchGenerator
	t.Cleanup(func() { newBatchGenerator = prev })
	newBatchGenerator = func(config.Config) batchGenerator { return gen }
}

func writeTextFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lines.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write text file: %v", err)
	}
	return path
}

func TestReadTextLines(t *testing.T) {
	t.Run("skips blank lines", func(t *testing.T) {
		path := writeTextFile(t, "first line\n\n  \nsecond line\r\nthird line\n")
		lines, err := readTextLines(path)
		if err != nil {
			t.Fatalf("readTextLines returned error: %v", err)
		}
		want := []string{"first line", "second line", "third line"}
		if len(lines) != len(want) {
			t.Fatalf("expected %d lines, got %d: %v", len(want), len(lines), lines)
		}
		for i := range want {
			if lines[i] != want[i] {
				t.Fatalf("line %d = %q, want %q", i, lines[i], want[i])
			}
		}
	})

	t.Run("all blank", func(t *testing.T) {
		path := writeTextFile(t, "\n \n\t\n")
		if _, err := readTextLines(path); err == nil {
			t.Fatal("expected error for file with no usable lines")
		}
	})

	t.Run("invalid utf-8", func(t *testing.T) {
		path := writeTextFile(t, "ok\n\xff\xfe broken\n")
		if _, err := readTextLines(path); err == nil {
			t.Fatal("expected error for invalid UTF-8")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := readTextLines(filepath.Join(t.TempDir(), "absent.txt")); err == nil {
			t.Fatal("expected error for missing file")
		}
	})
}

func TestRunBatchWritesConcatenatedWAV(t *testing.T) {
	stubPreflight(t, nil)
	gen := &fakeBatchGenerator{
		sampleRate: 24000,
		segments: map[string]vclone.Segment{
			"first":  {Samples: make([]float32, 1000), SampleRate: 24000},
			"second": {Samples: make([]float32, 2000), SampleRate: 24000},
		},
	}
	stubBatchGenerator(t, gen)

	textFile := writeTextFile(t, "first\nsecond\n")
	outPath := filepath.Join(t.TempDir(), "batch.wav")

	var out bytes.Buffer
	err := runBatch(context.Background(), config.DefaultConfig(), batchOptions{
		RefAudioPath: "/tmp/ref.wav",
		RefText:      "reference transcript",
		TextFile:     textFile,
		OutPath:      outPath,
		Model:        "speed",
		SilenceSec:   0.5,
	}, &out)
	if err != nil {
		t.Fatalf("runBatch returned error: %v", err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read output WAV: %v", err)
	}
	samples, rate, err := audio.DecodeWAV(data)
	if err != nil {
		t.Fatalf("decode output WAV: %v", err)
	}
	if rate != 24000 {
		t.Fatalf("unexpected sample rate: %d", rate)
	}
	// Two segments plus one 0.5s gap between them.
	wantLen := 1000 + 12000 + 2000
	if len(samples) != wantLen {
		t.Fatalf("expected %d samples, got %d", wantLen, len(samples))
	}

	if len(gen.requests) != 2 {
		t.Fatalf("expected 2 synthesis calls, got %d", len(gen.requests))
	}
	if gen.requests[0].Model != config.ModelSpeed {
		t.Fatalf("model preset not resolved: %q", gen.requests[0].Model)
	}
	if gen.requests[0].RefText != "reference transcript" {
		t.Fatalf("reference transcript not forwarded: %+v", gen.requests[0])
	}
	if !gen.closed {
		t.Fatal("generator was not closed")
	}
	if !strings.Contains(out.String(), "wrote "+outPath) {
		t.Fatalf("summary line missing: %q", out.String())
	}
}

func TestRunBatchRefTextExclusiveWithXVector(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*batchOptions)
	}{
		{name: "transcript file", mutate: func(o *batchOptions) { o.RefTextFile = "/tmp/ref.txt" }},
		{name: "inline transcript", mutate: func(o *batchOptions) { o.RefText = "hello there" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := batchOptions{
				RefAudioPath: "/tmp/ref.wav",
				XVectorOnly:  true,
				TextFile:     writeTextFile(t, "line\n"),
				OutPath:      "out.wav",
			}
			tt.mutate(&opts)

			err := runBatch(context.Background(), config.DefaultConfig(), opts, &bytes.Buffer{})
			if err == nil {
				t.Fatal("expected mutual exclusion error")
			}
		})
	}
}

func TestRunBatchNegativeSilence(t *testing.T) {
	err := runBatch(context.Background(), config.DefaultConfig(), batchOptions{
		RefAudioPath: "/tmp/ref.wav",
		TextFile:     writeTextFile(t, "line\n"),
		OutPath:      "out.wav",
		SilenceSec:   -0.1,
	}, &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected error for negative silence")
	}
}

func TestRunBatchPreflightFailure(t *testing.T) {
	stubPreflight(t, []string{"model runner: not found"})
	gen := &fakeBatchGenerator{sampleRate: 24000}
	stubBatchGenerator(t, gen)

	err := runBatch(context.Background(), config.DefaultConfig(), batchOptions{
		RefAudioPath: "/tmp/ref.wav",
		RefText:      "transcript",
		TextFile:     writeTextFile(t, "line\n"),
		OutPath:      filepath.Join(t.TempDir(), "out.wav"),
	}, &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected preflight error")
	}
	if len(gen.requests) != 0 {
		t.Fatal("synthesis must not run when preflight fails")
	}
}

func TestRunBatchLineFailureNamesLine(t *testing.T) {
	stubPreflight(t, nil)
	gen := &fakeBatchGenerator{err: vclone.ErrSynthesis}
	stubBatchGenerator(t, gen)

	err := runBatch(context.Background(), config.DefaultConfig(), batchOptions{
		RefAudioPath: "/tmp/ref.wav",
		RefText:      "transcript",
		TextFile:     writeTextFile(t, "only line\n"),
		OutPath:      filepath.Join(t.TempDir(), "out.wav"),
	}, &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected synthesis error")
	}
	if !strings.Contains(err.Error(), "line 1/1") {
		t.Fatalf("error does not name the failing line: %v", err)
	}
}

func TestRunBatchSampleRateMismatch(t *testing.T) {
	stubPreflight(t, nil)
	gen := &fakeBatchGenerator{
		sampleRate: 24000,
		segments: map[string]vclone.Segment{
			"first":  {Samples: []float32{0.1}, SampleRate: 24000},
			"second": {Samples: []float32{0.2}, SampleRate: 16000},
		},
	}
	stubBatchGenerator(t, gen)

	err := runBatch(context.Background(), config.DefaultConfig(), batchOptions{
		RefAudioPath: "/tmp/ref.wav",
		RefText:      "transcript",
		TextFile:     writeTextFile(t, "first\nsecond\n"),
		OutPath:      filepath.Join(t.TempDir(), "out.wav"),
	}, &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected sample rate mismatch error")
	}
}
