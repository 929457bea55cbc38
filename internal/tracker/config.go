package tracker

import "time"

// UniteMethod selects one of the three mutually exclusive unification
// strategies (spec §4.4).
type UniteMethod int

const (
	// UniteObjects tracks per-device objects into device-local stages,
	// then merges tracked points. Default.
	UniteObjects UniteMethod = iota
	// UniteBlobs is specified as merging raw foreground samples before
	// segmentation; Tracker approximates it post-segmentation instead
	// by merging already-segmented objects whose silhouettes touch or
	// overlap, unweighted by confidence or split penalties (see
	// uniteByTouchingExtents and DESIGN.md for why true pre-segmentation
	// fusion isn't wired here).
	UniteBlobs
	// UniteStages merges per-device DetectedObjects into a single
	// stage before tracking, skipping UniteObjects' weighted-distance
	// merge step.
	UniteStages
)

// Config holds the Tracker's tunables (spec §4.4). Defaults are taken
// from original_source/lidartool/Trackable/TrackBase.cpp's
// TrackBase constructor, which seeds the same three fields on its
// TrackableMultiStage.
type Config struct {
	Method UniteMethod

	UniteDistance      float64       // meters; TrackBase.cpp: 0.4
	ObjectMaxSize      float64       // meters; bounding-circle limit before a merge group is split
	TrackDistance      float64       // meters; TrackBase.cpp: 1.0
	TrackFilterWeight  float64       // TrackBase.cpp: 0.125
	KeepAliveMs        int64         // ms an unassociated Trackable survives before Leave
	ImmobileDistance   float64       // meters; spec §8 scenario S5
	ImmobileTimeout    time.Duration // spec §8 scenario S5: 60s

	ConfidenceWeight float64 // weight of confidence in objsMeanSquare's distance term (lidarTrack.cpp: 0.2)
	ConfWeight       float64 // weight of confidence penalty in the unite-distance formula (lidarTrack.cpp: 0.8)
	SplitWeight      float64 // weight of the isSplit penalty (lidarTrack.cpp: 1.0)
	MaxSpeed         float64 // m/sec, bounds objTimeOffset (lidarTrack.cpp: 4.0)
	MaxTimeOffsetMs  float64 // ms, objTimeOffset only applies under this gap (lidarTrack.cpp: 250)

	MinExtentRun int // minimum run length before personSized scoring matters (devicecore parity, unused directly here)
}

// DefaultConfig returns the Tracker defaults.
func DefaultConfig() Config {
	return Config{
		Method:            UniteObjects,
		UniteDistance:     0.4,
		ObjectMaxSize:     0.7,
		TrackDistance:     1.0,
		TrackFilterWeight: 0.125,
		KeepAliveMs:       1000,
		ImmobileDistance:  1.0,
		ImmobileTimeout:   60 * time.Second,
		ConfidenceWeight:  0.2,
		ConfWeight:        0.8,
		SplitWeight:       1.0,
		MaxSpeed:          4.0,
		MaxTimeOffsetMs:   250,
	}
}
