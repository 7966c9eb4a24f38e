package audio

// ConcatWithSilence joins waveform segments into one buffer, inserting
// silenceSec seconds of zero samples strictly between consecutive
// segments. A single segment is returned unchanged in content; zero
// segments yield an empty buffer. Segment order and amplitude are
// preserved.
func ConcatWithSilence(segments [][]float32, sampleRate int, silenceSec float64) []float32 {
	if len(segments) == 0 {
		return []float32{}
	}

	gap := int(float64(sampleRate) * silenceSec)
	if gap < 0 {
		gap = 0
	}

	total := gap * (len(segments) - 1)
	for _, seg := range segments {
		total += len(seg)
	}

	out := make([]float32, 0, total)
	for i, seg := range segments {
		out = append(out, seg...)
		if i != len(segments)-1 {
			out = append(out, make([]float32, gap)...)
		}
	}
	return out
}
