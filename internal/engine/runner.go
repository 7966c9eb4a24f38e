package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/example/go-voice-clone/internal/audio"
)

// DefaultBinary is the model runner executable looked up on PATH when no
// explicit path is configured.
const DefaultBinary = "qwen-tts-runner"

// RunnerLoader starts one long-lived runner process per load. The
// process holds the model resident on its device; requests and replies
// are exchanged as JSON lines over stdin/stdout.
type RunnerLoader struct {
	// Binary is the runner executable path; DefaultBinary when empty.
	Binary string
}

// Version runs `<runner> --version` and returns its trimmed output.
// Used by the environment preflight.
func Version(bin string) (string, error) {
	if bin == "" {
		bin = DefaultBinary
	}
	out, err := exec.CommandContext(context.Background(), bin, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("%s --version failed: %w", bin, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// ProbeComponent asks the runner whether one of its Python-side
// dependencies (torch, qwen_tts, soundfile) can be imported, without
// loading a model.
func ProbeComponent(bin, component string) error {
	if bin == "" {
		bin = DefaultBinary
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(context.Background(), bin, "probe", component)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return fmt.Errorf("%s unavailable: %s", component, detail)
	}
	return nil
}

// Load starts `<runner> serve` with the requested model, device, and
// runtime parameters and waits for its ready line. The model weights are
// loaded during startup, so a bad attention kernel or an out-of-memory
// condition surfaces here, not on the first Generate call.
func (l *RunnerLoader) Load(ctx context.Context, spec LoadSpec) (Generator, error) {
	bin := l.Binary
	if bin == "" {
		bin = DefaultBinary
	}

	args := []string{
		"serve",
		"--model", spec.Model,
		"--device", spec.Device,
		"--dtype", spec.Precision,
		"--attn", spec.Attention,
	}

	cmd := exec.CommandContext(ctx, bin, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("runner stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("runner stdout: %w", err)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start runner: %w", err)
	}

	proc := &runnerProcess{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewScanner(stdout),
		stderr: &stderr,
	}
	proc.stdout.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var ready struct {
		Event   string `json:"event"`
		Message string `json:"message"`
	}
	if err := proc.readLine(&ready); err != nil {
		proc.kill()
		return nil, fmt.Errorf("runner startup: %w", err)
	}
	if ready.Event != "ready" {
		proc.kill()
		return nil, fmt.Errorf("model load failed: %s", ready.Message)
	}

	return proc, nil
}

// runnerProcess is a Generator backed by a live runner subprocess. One
// request is in flight at a time; the mutex serializes Generate calls
// so request/reply lines cannot interleave.
type runnerProcess struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Scanner
	stderr *bytes.Buffer

	waitOnce sync.Once
	waitErr  error
}

// wait reaps the process exactly once; later callers get the stored
// result. The stderr buffer is safe to read only after this returns.
func (p *runnerProcess) wait() error {
	p.waitOnce.Do(func() { p.waitErr = p.cmd.Wait() })
	return p.waitErr
}

type generateRequestLine struct {
	Text        string `json:"text"`
	Language    string `json:"language"`
	RefAudio    string `json:"ref_audio"`
	RefText     string `json:"ref_text,omitempty"`
	XVectorOnly bool   `json:"x_vector_only,omitempty"`
}

type generateReplyLine struct {
	OK         bool     `json:"ok"`
	Message    string   `json:"message,omitempty"`
	WAVPaths   []string `json:"wav_paths,omitempty"`
	SampleRate int      `json:"sample_rate,omitempty"`
}

func (p *runnerProcess) Generate(ctx context.Context, req GenerateRequest) ([][]float32, int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	line, err := json.Marshal(generateRequestLine{
		Text:        req.Text,
		Language:    req.Language,
		RefAudio:    req.RefAudioWAV,
		RefText:     req.RefText,
		XVectorOnly: req.XVectorOnly,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("encode request: %w", err)
	}

	if _, err := p.stdin.Write(append(line, '\n')); err != nil {
		return nil, 0, fmt.Errorf("write to runner: %w", err)
	}

	var reply generateReplyLine
	if err := p.readLine(&reply); err != nil {
		return nil, 0, fmt.Errorf("read runner reply: %w", err)
	}
	if !reply.OK {
		return nil, 0, fmt.Errorf("%s", reply.Message)
	}

	segments := make([][]float32, 0, len(reply.WAVPaths))
	for _, path := range reply.WAVPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, 0, fmt.Errorf("read runner output %s: %w", path, err)
		}
		samples, _, err := audio.DecodeWAV(data)
		if err != nil {
			return nil, 0, fmt.Errorf("decode runner output %s: %w", path, err)
		}
		segments = append(segments, samples)
		// Segment files are scratch output owned by this call.
		_ = os.Remove(path)
	}

	return segments, reply.SampleRate, nil
}

// Close ends the runner session; the runner exits on stdin EOF.
func (p *runnerProcess) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	_ = p.stdin.Close()
	return p.wait()
}

func (p *runnerProcess) readLine(v any) error {
	if !p.stdout.Scan() {
		if err := p.stdout.Err(); err != nil {
			return err
		}
		// Stdout is closed, so the process is gone; reap it before
		// touching the stderr buffer its copier was writing to.
		_ = p.stdin.Close()
		_ = p.wait()
		detail := strings.TrimSpace(p.stderr.String())
		if detail == "" {
			detail = "runner exited without a reply"
		}
		return fmt.Errorf("%s", detail)
	}
	if err := json.Unmarshal(p.stdout.Bytes(), v); err != nil {
		return fmt.Errorf("malformed runner reply %q: %w", p.stdout.Text(), err)
	}
	return nil
}

func (p *runnerProcess) kill() {
	_ = p.stdin.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	_ = p.wait()
}
