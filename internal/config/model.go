package config

import "strings"

// Model presets. The quality/speed split mirrors the 1.7B vs 0.6B
// checkpoint tradeoff; anything that is not a preset name is treated as
// a verbatim model ID.
const (
	ModelQuality     = "Qwen/Qwen3-TTS-12Hz-1.7B-Base"
	ModelSpeed       = "Qwen/Qwen3-TTS-12Hz-0.6B-Base"
	ModelCustomVoice = "Qwen/Qwen3-TTS-12Hz-1.7B-CustomVoice"
)

// ResolveModel maps a preset name to its model ID. An empty value means
// the quality preset.
func ResolveModel(name string) string {
	switch strings.TrimSpace(name) {
	case "", "quality":
		return ModelQuality
	case "speed":
		return ModelSpeed
	case "custom-voice":
		return ModelCustomVoice
	default:
		return strings.TrimSpace(name)
	}
}
