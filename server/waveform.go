package neurales

import (
	"fmt"
	"math"

	Nt "github.com/maroda/neurales/types"
)

// ValidateWaveform checks the decoder contract: positive rate, unique names,
// one row per channel and rows of equal length.
func ValidateWaveform(w *Nt.Waveform) error {
	if w == nil {
		return &LoadError{Reason: "no waveform"}
	}
	if !(w.SampleRate > 0) || math.IsInf(w.SampleRate, 0) {
		return &LoadError{Reason: fmt.Sprintf("sample rate must be positive, got %v", w.SampleRate)}
	}
	if len(w.Channels) == 0 {
		return &LoadError{Reason: "no channels"}
	}
	if len(w.Samples) != len(w.Channels) {
		return &LoadError{Reason: fmt.Sprintf("%d channel names but %d sample rows", len(w.Channels), len(w.Samples))}
	}

	seen := make(map[string]struct{}, len(w.Channels))
	for _, name := range w.Channels {
		if _, dup := seen[name]; dup {
			return &LoadError{Reason: fmt.Sprintf("duplicate channel %q", name)}
		}
		seen[name] = struct{}{}
	}

	n := len(w.Samples[0])
	for i, row := range w.Samples {
		if len(row) != n {
			return &LoadError{Reason: fmt.Sprintf("row %d (%s) has %d samples, want %d", i, w.Channels[i], len(row), n)}
		}
	}
	return nil
}

// SampleCount is the length of the sample axis.
func SampleCount(w *Nt.Waveform) int {
	if w == nil || len(w.Samples) == 0 {
		return 0
	}
	return len(w.Samples[0])
}

// ChunkSize is round(sampleRate * chunkSeconds), never less than one sample.
func ChunkSize(sampleRate, chunkSeconds float64) int {
	return max(1, int(math.Round(sampleRate*chunkSeconds)))
}

// ChunkCount is how many chunks a recording of n samples splits into.
func ChunkCount(n, size int) int {
	if n <= 0 || size <= 0 {
		return 0
	}
	return (n + size - 1) / size
}

// Slice returns the [start,end) view of every channel. No copy is made.
func Slice(w *Nt.Waveform, start, end int) [][]float64 {
	out := make([][]float64, len(w.Samples))
	for ch, row := range w.Samples {
		out[ch] = row[start:end]
	}
	return out
}
