// Package device maps a requested device token (auto/mps/cuda:*/cpu) to
// a concrete compute device and derives the runtime parameters (numeric
// precision, attention kernel) the model loader passes to the runner.
package device

import (
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
)

// Device tokens. A concrete device is one of CPU, MPS, or "cuda:<n>".
const (
	Auto = "auto"
	CPU  = "cpu"
	MPS  = "mps"
)

// Attention kernel implementations understood by the model runner.
const (
	AttnFlash = "flash_attention_2"
	AttnEager = "eager"
)

// Numeric precisions understood by the model runner.
const (
	PrecisionBF16 = "bfloat16"
	PrecisionFP16 = "float16"
	PrecisionFP32 = "float32"
)

// ErrUnavailable marks a device that was explicitly requested but cannot
// be used. It is never returned for the auto token.
var ErrUnavailable = errors.New("device unavailable")

// ErrInvalidToken is returned for device tokens outside auto/mps/cuda:*/cpu.
var ErrInvalidToken = errors.New("invalid device")

// Probe reports accelerator availability. Fields are injectable so the
// resolver stays a pure state machine under test.
type Probe struct {
	// MPSAvailable reports whether the Apple-silicon accelerator is usable now.
	MPSAvailable func() bool
	// MPSBuilt reports whether the compute backend was built with MPS support.
	MPSBuilt func() bool
	// CUDAAvailable reports whether any CUDA device is usable now.
	CUDAAvailable func() bool
	// CUDABF16Supported reports whether the CUDA device supports bfloat16.
	CUDABF16Supported func() bool
}

// DefaultProbe detects accelerators from the host platform: Apple silicon
// implies MPS, an nvidia-smi binary on PATH implies CUDA. The bfloat16
// check queries the GPU compute capability (Ampere and newer support it).
func DefaultProbe() Probe {
	appleSilicon := runtime.GOOS == "darwin" && runtime.GOARCH == "arm64"
	return Probe{
		MPSAvailable:      func() bool { return appleSilicon },
		MPSBuilt:          func() bool { return appleSilicon },
		CUDAAvailable:     hasNvidiaSMI,
		CUDABF16Supported: cudaComputeCapAtLeast8,
	}
}

func hasNvidiaSMI() bool {
	_, err := exec.LookPath("nvidia-smi")
	return err == nil
}

func cudaComputeCapAtLeast8() bool {
	out, err := exec.Command("nvidia-smi", "--query-gpu=compute_cap", "--format=csv,noheader").Output()
	if err != nil {
		return false
	}
	first := strings.TrimSpace(strings.SplitN(string(out), "\n", 2)[0])
	major, _, found := strings.Cut(first, ".")
	if !found {
		return false
	}
	n, err := strconv.Atoi(strings.TrimSpace(major))
	if err != nil {
		return false
	}
	return n >= 8
}

// Resolve maps a device token to a concrete device. Only auto is allowed
// to choose silently; explicit tokens fail loudly when the requested
// device cannot be used, so a strict-GPU setup never degrades to CPU.
func Resolve(token string, p Probe) (string, error) {
	switch {
	case token == Auto:
		if p.MPSAvailable() {
			return MPS, nil
		}
		if p.CUDAAvailable() {
			return "cuda:0", nil
		}
		return CPU, nil

	case token == MPS:
		if p.MPSAvailable() {
			return MPS, nil
		}
		if p.MPSBuilt() {
			return "", fmt.Errorf("%w: mps was requested but no Apple-silicon accelerator is currently usable; pick auto or cpu", ErrUnavailable)
		}
		return "", fmt.Errorf("%w: the compute backend was built without MPS support; reinstall an Apple-silicon build or pick auto or cpu", ErrUnavailable)

	case strings.HasPrefix(token, "cuda"):
		if p.CUDAAvailable() {
			return token, nil
		}
		return "", fmt.Errorf("%w: no CUDA GPU is available; on macOS use mps instead", ErrUnavailable)

	case token == CPU:
		return CPU, nil

	default:
		return "", fmt.Errorf("%w %q: use mps, auto, cpu, or cuda:0", ErrInvalidToken, token)
	}
}

// Params holds the runtime parameters derived from a concrete device.
type Params struct {
	Precision string
	Attention string
}

// ResolveParams derives precision and attention kernel for a concrete
// device. Pure aside from the probe; recomputed on every model load.
func ResolveParams(dev string, p Probe) Params {
	switch {
	case strings.HasPrefix(dev, "cuda"):
		precision := PrecisionFP16
		if p.CUDABF16Supported() {
			precision = PrecisionBF16
		}
		return Params{Precision: precision, Attention: AttnFlash}
	case dev == MPS:
		// The fused attention kernel is not supported on MPS.
		return Params{Precision: PrecisionFP16, Attention: AttnEager}
	default:
		return Params{Precision: PrecisionFP32, Attention: AttnEager}
	}
}

// IsCUDA reports whether a concrete device is a CUDA device.
func IsCUDA(dev string) bool {
	return strings.HasPrefix(dev, "cuda")
}
