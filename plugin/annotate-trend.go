package plugin

/*
	Trend

	Labels a chunk by its raw amplitude and raises alerts
	when the fatigue score climbs fast or stays high.

	The labels are heuristics for demos, not clinical findings.
*/

import (
	"math"
)

const (
	QualityFlat     = "Flat"
	QualityArtifact = "Artifact"

	AlertRising = "fatigue_rising"
	AlertHigh   = "fatigue_high"
)

type TrendAnnotator struct {
	// FlatRange is the peak-to-peak amplitude below which a chunk is called flat
	FlatRange float64
	// ArtifactRange is the peak-to-peak amplitude above which a chunk is called an artifact
	ArtifactRange float64
	// RiseStep is how many points per chunk the score must gain to count as rising
	RiseStep int
	// HighLevel and HighChunks: fatigue at or above HighLevel for HighChunks chunks in a row
	HighLevel  int
	HighChunks int

	prev     int
	havePrev bool
	highRun  int
}

func NewTrendAnnotator() *TrendAnnotator {
	return &TrendAnnotator{
		FlatRange:     0.5,
		ArtifactRange: 500,
		RiseStep:      5,
		HighLevel:     80,
		HighChunks:    20,
	}
}

// Annotate is called once per chunk in stream order.
func (a *TrendAnnotator) Annotate(chunk [][]float64, fatigue int) (string, []string) {
	alerts := []string{}

	if a.havePrev && CalcRise(fatigue, a.prev) >= a.RiseStep {
		alerts = append(alerts, AlertRising)
	}
	a.prev = fatigue
	a.havePrev = true

	if fatigue >= a.HighLevel {
		a.highRun++
	} else {
		a.highRun = 0
	}
	if a.HighChunks > 0 && a.highRun >= a.HighChunks {
		alerts = append(alerts, AlertHigh)
	}

	return a.quality(chunk), alerts
}

func (a *TrendAnnotator) quality(chunk [][]float64) string {
	flat := true
	for _, row := range chunk {
		if len(row) == 0 {
			continue
		}
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, v := range row {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		span := hi - lo
		if math.IsNaN(span) || span > a.ArtifactRange {
			return QualityArtifact
		}
		if span >= a.FlatRange {
			flat = false
		}
	}
	if flat {
		return QualityFlat
	}
	return DefaultQuality
}

// CalcRise is the change between two sequential scores, negative when falling
func CalcRise(curr, prev int) int {
	return curr - prev
}

func (a *TrendAnnotator) Type() string { return "trend" }
