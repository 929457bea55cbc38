// Package devicecore implements the per-sensor acquisition and
// environment-subtraction pipeline (THE CORE component C1): it turns raw
// polar scans into candidate foreground objects.
package devicecore

import (
	"math"
	"time"

	"github.com/kaelari/lumagrid/pkg/utils"
)

// NumSamples is the fixed number of angle buckets a DeviceCore maintains,
// matching spec.md's NUM_SAMPLES ≈ 3072.
const NumSamples = 3072

// Sample is a single angular reading (spec §3).
type Sample struct {
	Angle    float64 // radians, [0, 2*pi)
	Distance float64 // meters
	Quality  int     // 0 = invalid
}

// Valid reports whether the sample carries a usable reading.
func (s Sample) Valid() bool { return s.Quality != 0 && s.Distance > 0 }

// Coord returns the sample's Cartesian coordinate in the device's local
// frame: angle is measured from the device's forward axis.
func (s Sample) Coord() utils.Point2D {
	return utils.Point2D{X: s.Distance * math.Sin(s.Angle), Y: s.Distance * math.Cos(s.Angle)}
}

// Bucket returns the angle-bucket index for angle, rounding to the lower
// bucket at seams (spec §8 boundary behavior).
func Bucket(angle float64, n int) int {
	b := int(math.Floor(angle * float64(n) / (2 * math.Pi)))
	b %= n
	if b < 0 {
		b += n
	}
	return b
}

// RawFrame is one full rotation of Samples from a single sensor (spec §3).
type RawFrame struct {
	Samples     []Sample
	TimestampMS uint64
	SequenceID  uint64
}

// EnvironmentEntry is one bucket of the background model (spec §3).
type EnvironmentEntry struct {
	Distance     float64
	Quality      int
	LastUpdateMS uint64
	Valid        bool
}

// EnvironmentModel is the per-sensor background model: a fixed-length
// array of NumSamples background entries indexed by angle bucket.
type EnvironmentModel struct {
	Entries [NumSamples]EnvironmentEntry
}

// PopulatedFraction returns the fraction of buckets that carry a valid
// background entry.
func (e *EnvironmentModel) PopulatedFraction() float64 {
	n := 0
	for _, entry := range e.Entries {
		if entry.Valid {
			n++
		}
	}
	return float64(n) / float64(len(e.Entries))
}

// DetectedObject is a contiguous run of foreground samples within one
// frame (spec §3). Its lifetime ends at the end of the frame that produced
// it.
type DetectedObject struct {
	DeviceIndex  int // which sensor produced this object, for Tracker bookkeeping
	FirstSample  int
	LastSample   int
	Extent       float64 // chord length, meters
	ClosestRange float64
	Center       utils.Point2D // world-frame centroid
	Normal       utils.Point2D // unit radial normal from the sensor
	PersonSized  float64       // 0..1 triangular-kernel score
	Curvature    float64       // 0..1 discrete second-derivative score
	Confidence   float64

	LowerCoord  utils.Point2D
	HigherCoord utils.Point2D
	CurvePoints []utils.Point2D

	IsSplit    bool
	SplitProb  float64
	User       int // opaque split-lineage tag, see SPEC_FULL §3.1

	Timestamp time.Time
}

// Confidence constants from the original tracker's confidence() function
// (α = 0.4), restated in spec.md §4.2 step 6.
const confidenceAlpha = 0.4

// ComputeConfidence applies confidence = α(person+curvature) + (1-α)(person*curvature).
func ComputeConfidence(personSized, curvature float64) float64 {
	return confidenceAlpha*(personSized+curvature) + (1-confidenceAlpha)*(personSized*curvature)
}

// PersonSizedScore scores extent against a triangular kernel over
// [minPerson, maxPerson] meters (spec §4.2 step 6).
func PersonSizedScore(extent, minPerson, maxPerson float64) float64 {
	med := 0.5 * (minPerson + maxPerson)
	rng := maxPerson - minPerson
	if rng <= 0 {
		return 0
	}
	diff := math.Abs(med-extent) / (0.5 * rng)
	if diff > 1 {
		diff = 1
	}
	return 1 - diff
}
