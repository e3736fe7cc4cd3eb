package decoder

import (
	"fmt"
	"math"
	"math/rand/v2"

	Nt "github.com/maroda/neurales/types"
)

// SynthConfig describes a generated recording: a theta and an alpha sinusoid plus noise.
// Theta amplitude ramps linearly from ThetaStart to ThetaEnd over the recording,
// so the fatigue score drifts upward when ThetaEnd > ThetaStart.
type SynthConfig struct {
	SampleRate float64
	Seconds    float64
	Channels   []string
	ThetaHz    float64
	AlphaHz    float64
	ThetaStart float64
	ThetaEnd   float64
	Alpha      float64
	Noise      float64
	Seed       uint64
}

// DefaultSynthConfig is a two minute, two channel, 100 Hz recording.
func DefaultSynthConfig() SynthConfig {
	return SynthConfig{
		SampleRate: 100,
		Seconds:    120,
		Channels:   []string{"Fpz-Cz", "Pz-Oz"},
		ThetaHz:    6,
		AlphaHz:    10,
		ThetaStart: 10,
		ThetaEnd:   30,
		Alpha:      20,
		Noise:      2,
		Seed:       1,
	}
}

// Synthesize builds a deterministic Waveform from c.
func Synthesize(c SynthConfig) (*Nt.Waveform, error) {
	if !(c.SampleRate > 0) || !(c.Seconds > 0) {
		return nil, fmt.Errorf("synthetic recording needs a positive rate and duration")
	}
	if len(c.Channels) == 0 {
		return nil, fmt.Errorf("synthetic recording needs at least one channel")
	}

	n := int(math.Round(c.SampleRate * c.Seconds))
	rng := rand.New(rand.NewPCG(c.Seed, c.Seed^0x9e3779b97f4a7c15))

	samples := make([][]float64, len(c.Channels))
	for ch := range samples {
		row := make([]float64, n)
		phase := float64(ch) * math.Pi / 4
		for i := range row {
			t := float64(i) / c.SampleRate
			ramp := c.ThetaStart
			if n > 1 {
				ramp += (c.ThetaEnd - c.ThetaStart) * float64(i) / float64(n-1)
			}
			row[i] = ramp*math.Sin(2*math.Pi*c.ThetaHz*t+phase) +
				c.Alpha*math.Sin(2*math.Pi*c.AlphaHz*t+phase) +
				c.Noise*rng.NormFloat64()
		}
		samples[ch] = row
	}

	return &Nt.Waveform{
		SampleRate: c.SampleRate,
		Channels:   append([]string(nil), c.Channels...),
		Samples:    samples,
	}, nil
}
