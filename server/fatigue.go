package neurales

import (
	"math"

	Nt "github.com/maroda/neurales/types"
)

// alphaFloor keeps theta/alpha finite when the alpha band carries no power
const alphaFloor = 1e-9

// DefaultScoringConfig is the theta/alpha setup used when nothing else is configured.
func DefaultScoringConfig() Nt.ScoringConfig {
	return Nt.ScoringConfig{
		ThetaMin:        4.0,
		ThetaMax:        8.0,
		AlphaMin:        8.0,
		AlphaMax:        12.0,
		FatigueRatioMin: 0.5,
		FatigueRatioMax: 3.0,
	}
}

// ValidateScoring checks band and ratio bounds.
func ValidateScoring(c Nt.ScoringConfig) error {
	if !(c.ThetaMin < c.ThetaMax) {
		return &ConfigError{Field: "scoring.theta", Reason: "theta_min must be below theta_max"}
	}
	if !(c.AlphaMin < c.AlphaMax) {
		return &ConfigError{Field: "scoring.alpha", Reason: "alpha_min must be below alpha_max"}
	}
	if !(c.FatigueRatioMin < c.FatigueRatioMax) {
		return &ConfigError{Field: "scoring.fatigue_ratio", Reason: "fatigue_ratio_min must be below fatigue_ratio_max"}
	}
	if c.ThetaMin < 0 || c.AlphaMin < 0 {
		return &ConfigError{Field: "scoring", Reason: "band edges cannot be negative"}
	}
	return nil
}

// FatigueScorer maps the theta/alpha power ratio of a window onto 0-100.
// Higher theta relative to alpha gives a higher score. The score is a
// qualitative heuristic, not a clinical measurement.
type FatigueScorer struct {
	Config Nt.ScoringConfig
}

// NewFatigueScorer validates the config and returns a scorer.
func NewFatigueScorer(c Nt.ScoringConfig) (*FatigueScorer, error) {
	if err := ValidateScoring(c); err != nil {
		return nil, err
	}
	return &FatigueScorer{Config: c}, nil
}

// Score returns the fatigue score of a channels x samples window.
// An empty window scores 0.
func (fs *FatigueScorer) Score(win [][]float64, sampleRate float64) int {
	x := ChannelMean(win)
	if len(x) == 0 {
		return 0
	}

	c := fs.Config
	theta := BandPower(x, sampleRate, c.ThetaMin, c.ThetaMax)
	alpha := BandPower(x, sampleRate, c.AlphaMin, c.AlphaMax) + alphaFloor

	return RatioToScore(theta/alpha, c.FatigueRatioMin, c.FatigueRatioMax)
}

// RatioToScore normalises ratio into [rmin, rmax] and scales it to an int in [0,100].
// Halves round to even, so 12.5 scores 12.
func RatioToScore(ratio, rmin, rmax float64) int {
	norm := (ratio - rmin) / (rmax - rmin)
	if math.IsNaN(norm) {
		return 0
	}
	norm = math.Max(0, math.Min(1, norm))
	return int(math.RoundToEven(norm * 100))
}

// ChannelMean averages the channel axis, one value per sample.
// Rows shorter than the first are treated as ending early.
func ChannelMean(win [][]float64) []float64 {
	if len(win) == 0 || len(win[0]) == 0 {
		return nil
	}

	n := len(win[0])
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		var sum float64
		var count int
		for _, row := range win {
			if i < len(row) {
				sum += row[i]
				count++
			}
		}
		out[i] = sum / float64(count)
	}
	return out
}
