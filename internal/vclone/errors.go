// Package vclone orchestrates the voice-clone pipeline: input
// validation, device-aware model loading with caching, synthesis
// execution with failure classification, and result persistence.
package vclone

import (
	"errors"
	"fmt"
	"strings"
)

// Failure categories surfaced to users. Callers match them with
// errors.Is; the message carried alongside is what the user sees.
var (
	// ErrInput marks missing or blank required fields; no work was attempted.
	ErrInput = errors.New("invalid input")
	// ErrModelLoad marks a load failure after the CUDA fallback attempt
	// is exhausted. Not cached: the next call retries loading fresh.
	ErrModelLoad = errors.New("model load failed")
	// ErrNumericStability marks the model sampler's known inf/nan failure
	// mode, detected from the failure message.
	ErrNumericStability = errors.New("NUMERIC_STABILITY_ERROR")
	// ErrSynthesis marks any other generation failure.
	ErrSynthesis = errors.New("synthesis failed")
	// ErrPersist marks output directory or file write failures.
	ErrPersist = errors.New("could not save output")
)

// IsNumericInstabilityMessage reports whether a failure message carries
// the sampler's numeric-instability signature (probability-tensor
// corruption, NaN, or infinity markers).
func IsNumericInstabilityMessage(msg string) bool {
	lowered := strings.ToLower(msg)
	return strings.Contains(lowered, "probability tensor contains either") ||
		strings.Contains(lowered, "nan") ||
		strings.Contains(lowered, "inf")
}

// ClassifyGenerateError translates a raw model failure into the error
// taxonomy. Numeric-instability failures get remediation guidance
// instead of a raw stack trace; everything else becomes a generic
// synthesis failure carrying the underlying message.
func ClassifyGenerateError(err error) error {
	if err == nil {
		return nil
	}
	if IsNumericInstabilityMessage(err.Error()) {
		return fmt.Errorf("%w: generation hit an inf/nan numeric error; split the text into shorter lines or try the faster 0.6B model: %v",
			ErrNumericStability, err)
	}
	return fmt.Errorf("%w: %v", ErrSynthesis, err)
}
