package vclone

import (
	"os"
	"strings"
)

// Validation messages. The reference-audio messages are matched by the
// interactive surface, keep them stable.
const (
	MsgRefAudioRequired  = "select a reference audio file"
	MsgRefAudioNotFound  = "reference audio not found"
	MsgRefTextRequired   = "enter the reference transcript (ref_text)"
	MsgTextRequired      = "enter the text to synthesize"
	MsgOutputDirRequired = "specify an output directory"
)

// ValidateInputs checks the four required synthesis inputs and returns
// one human-readable problem per failed check, in declaration order.
// Checks are independent, not short-circuiting, so the user sees every
// problem at once. An empty slice means the inputs are valid. No side
// effects beyond a stat on the audio path.
func ValidateInputs(refAudioPath, refText, text, outputDir string) []string {
	var problems []string

	if refAudioPath == "" {
		problems = append(problems, MsgRefAudioRequired)
	} else if _, err := os.Stat(refAudioPath); err != nil {
		problems = append(problems, MsgRefAudioNotFound)
	}

	if strings.TrimSpace(refText) == "" {
		problems = append(problems, MsgRefTextRequired)
	}

	if strings.TrimSpace(text) == "" {
		problems = append(problems, MsgTextRequired)
	}

	if outputDir == "" {
		problems = append(problems, MsgOutputDirRequired)
	}

	return problems
}

// ValidateRequest applies ValidateInputs to a full request, honoring
// x-vector-only mode where the reference transcript may be empty.
func ValidateRequest(req Request) []string {
	problems := ValidateInputs(req.RefAudioPath, req.RefText, req.Text, req.OutputDir)
	if !req.XVectorOnly {
		return problems
	}
	kept := problems[:0]
	for _, p := range problems {
		if p != MsgRefTextRequired {
			kept = append(kept, p)
		}
	}
	return kept
}
