package dsp

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// PowerFloor is the smallest power converted to decibels; anything at or
// below it (including zero and negative values) reads as FloorDB.
const (
	PowerFloor = 1e-12
	FloorDB    = -120.0
)

// DbPower converts a power ratio to decibels, substituting FloorDB for
// values at or below PowerFloor.
func DbPower(v float64) float64 {
	if !(v > PowerFloor) {
		return FloorDB
	}
	return 10 * math.Log10(v)
}

// MeanMagSq returns the mean squared magnitude of raw 16 bit samples,
// normalized to full scale. Empty input yields 0.
func MeanMagSq(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	return floats.Dot(samples, samples) / (float64(len(samples)) * FullScale * FullScale)
}
