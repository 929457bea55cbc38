package tracker

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/kaelari/lumagrid/internal/devicecore"
)

// votingWindow bounds how many recent confidence samples each
// device's rolling population keeps.
const votingWindow = 20

// ConfidenceVoter discounts spurious high-confidence DetectedObjects
// before they reach the merge stage (spec §4.4.2), grounded on
// redundancy/fault_tolerance.go's SensorVoter: an outlier test on the
// relative deviation from the device's mean recent confidence, and
// the same "confidence *= 0.5 on low agreement" idiom,
// repurposed from triple-redundant flight-sensor voting to rejecting
// a confidence spike that no other device corroborates.
type ConfidenceVoter struct {
	mu        sync.Mutex
	threshold float64
	history   map[int][]float64
	logger    *logrus.Logger
}

// NewConfidenceVoter creates a voter with the given relative-deviation
// threshold (0.35 default, matching SensorVoter's tuned-threshold
// idiom scaled for confidence scores instead of raw sensor units).
func NewConfidenceVoter(threshold float64) *ConfidenceVoter {
	if threshold <= 0 {
		threshold = 0.35
	}
	return &ConfidenceVoter{
		threshold: threshold,
		history:   make(map[int][]float64),
		logger:    logrus.New(),
	}
}

func (v *ConfidenceVoter) record(deviceIndex int, confidence float64) {
	h := append(v.history[deviceIndex], confidence)
	if len(h) > votingWindow {
		h = h[len(h)-votingWindow:]
	}
	v.history[deviceIndex] = h
}

func (v *ConfidenceVoter) deviceBaseline(deviceIndex int) (float64, bool) {
	h := v.history[deviceIndex]
	if len(h) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, c := range h {
		sum += c
	}
	return sum / float64(len(h)), true
}

// Corroborate records every object's confidence into its device's
// rolling population, then halves the confidence of any object whose
// reading is an outlier against its own device's recent history and
// has no corroborating object from a different device within
// uniteDistance.
func (v *ConfidenceVoter) Corroborate(objs []*devicecore.DetectedObject, uniteDistance float64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, o := range objs {
		v.record(o.DeviceIndex, o.Confidence)
	}

	for _, o := range objs {
		baseline, ok := v.deviceBaseline(o.DeviceIndex)
		if !ok || baseline <= 0 {
			continue
		}
		deviation := (o.Confidence - baseline) / baseline
		if deviation <= v.threshold {
			continue
		}
		if corroboratedByAnotherDevice(o, objs, uniteDistance) {
			continue
		}
		v.logger.WithFields(logrus.Fields{
			"device":     o.DeviceIndex,
			"confidence": o.Confidence,
			"baseline":   baseline,
		}).Warn("uncorroborated confidence spike, discounting")
		o.Confidence *= 0.5
	}
}

func corroboratedByAnotherDevice(o *devicecore.DetectedObject, objs []*devicecore.DetectedObject, uniteDistance float64) bool {
	for _, other := range objs {
		if other == o || other.DeviceIndex == o.DeviceIndex {
			continue
		}
		if o.Center.Distance(other.Center) <= uniteDistance {
			return true
		}
	}
	return false
}
