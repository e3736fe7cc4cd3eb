package types

/*

	These are the "immutable" core types of neurales,
	provided for cross-package use (e.g. Plugins) and testing.

	There are no functions defined here.
	Struct constructors and validation are housed in their own packages.

*/

import "time"

// Waveform is a decoded multi-channel recording.
// Samples is channels x samples, one row per entry in Channels.
// It is produced once by a decoder and read-only for the lifetime of a stream.
type Waveform struct {
	SampleRate float64     // Hz, positive
	Channels   []string    // unique channel labels, ordered
	Samples    [][]float64 // [channel][sample]
}

// ScoringConfig holds the band edges and ratio domain for fatigue scoring.
// Bands are half-open [min,max) in Hz. The ratio domain maps linearly onto 0-100.
type ScoringConfig struct {
	ThetaMin        float64 `json:"theta_min" yaml:"theta_min" mapstructure:"theta_min"`
	ThetaMax        float64 `json:"theta_max" yaml:"theta_max" mapstructure:"theta_max"`
	AlphaMin        float64 `json:"alpha_min" yaml:"alpha_min" mapstructure:"alpha_min"`
	AlphaMax        float64 `json:"alpha_max" yaml:"alpha_max" mapstructure:"alpha_max"`
	FatigueRatioMin float64 `json:"fatigue_ratio_min" yaml:"fatigue_ratio_min" mapstructure:"fatigue_ratio_min"`
	FatigueRatioMax float64 `json:"fatigue_ratio_max" yaml:"fatigue_ratio_max" mapstructure:"fatigue_ratio_max"`
}

// Payload is what a client receives for every chunk.
type Payload struct {
	T0            float64     `json:"t0"`             // seconds from stream start to chunk start
	SFreq         float64     `json:"sfreq"`          // sample rate, Hz
	Channels      []string    `json:"channels"`       // same order every payload
	Samples       [][]float64 `json:"samples"`        // the chunk's own raw samples
	Fatigue       int         `json:"fatigue"`        // 0-100
	Quality       string      `json:"quality"`        // signal quality label
	Alerts        []string    `json:"alerts"`         // never nil on the wire
	ChunkSeconds  float64     `json:"chunk_seconds"`  // configured chunk duration
	WindowSeconds float64     `json:"window_seconds"` // configured window duration
}

// ErrorPayload replaces a Payload when something went wrong.
type ErrorPayload struct {
	Error string `json:"error"`
}

// ScoreRecord is the persisted trace of one scored chunk.
type ScoreRecord struct {
	SessionID string
	T0        float64
	Fatigue   int
	Timestamp time.Time
}
