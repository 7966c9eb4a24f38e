// Package engine defines the voice-clone model capability and its
// external runner implementation. The neural model itself lives in a
// separate runner process; this package only manages loading it onto a
// device and exchanging synthesis requests with it.
package engine

import "context"

// GenerateRequest carries one utterance's synthesis inputs. RefAudioWAV
// must already be a mono 16 kHz WAV path.
type GenerateRequest struct {
	Text        string
	Language    string
	RefAudioWAV string
	RefText     string
	XVectorOnly bool
}

// Generator is the opaque model capability: given a reference clip, its
// transcript, and target text, produce waveform segments sharing one
// sample rate. Failures carry a message string; numeric-instability
// failures are recognized downstream from that message.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (segments [][]float32, sampleRate int, err error)
	Close() error
}

// LoadSpec identifies one model instance: what to load, where, and with
// which runtime parameters.
type LoadSpec struct {
	Model     string
	Device    string
	Precision string
	Attention string
}

// Loader loads a model onto a device. Loading is the expensive step
// (minutes for the larger checkpoints); callers cache the returned
// Generator per (model, device).
type Loader interface {
	Load(ctx context.Context, spec LoadSpec) (Generator, error)
}
