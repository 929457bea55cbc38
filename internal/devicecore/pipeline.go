package devicecore

import (
	"math"
	"time"

	"github.com/kaelari/lumagrid/pkg/utils"
)

// PipelineConfig holds the per-sensor tunables of spec §4.2.
type PipelineConfig struct {
	EnvThreshold    float64 // meters; <= 0 disables env subtraction (spec §8)
	MinExtentRun    int     // minimum consecutive foreground buckets to open a run
	SplitDistance   float64 // meters; internal gap larger than this splits a run
	CloseWidth      int     // background-neighborhood width that closes a run
	MinPersonSize   float64 // meters
	MaxPersonSize   float64 // meters
	DenoiseFrames   int     // history depth for temporal denoise
	ErodeSmoothK    int
	AdaptTimeConst  time.Duration
}

// DefaultPipelineConfig mirrors the constants used by the original tracker.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		EnvThreshold:   0.05,
		MinExtentRun:   2,
		SplitDistance:  0.30,
		CloseWidth:     2,
		MinPersonSize:  0.30,
		MaxPersonSize:  0.70,
		DenoiseFrames:  1,
		ErodeSmoothK:   1,
		AdaptTimeConst: 30 * time.Second,
	}
}

// foregroundBucket classifies one bucket as foreground using spec §4.2
// step 3: a sample is foreground iff it is valid and
// (env.distance - sample.distance) > envThreshold, OR the env bucket is
// invalid (nothing learned there yet).
func foregroundBucket(sample Sample, env EnvironmentEntry, cfg PipelineConfig) bool {
	if !sample.Valid() {
		return false
	}
	if !env.Valid {
		return true
	}
	if cfg.EnvThreshold <= 0 {
		return false
	}
	return (env.Distance - sample.Distance) > cfg.EnvThreshold
}

// denoiseHistory suppresses one-frame isolated foreground pixels: a bucket
// flagged foreground this frame but background in every one of the last
// DenoiseFrames frames in all of its immediate neighbors is treated as
// background (spec §4.2 step 4).
type denoiseHistory struct {
	frames [][NumSamples]bool // ring of recent foreground masks, oldest first
	depth  int
}

func newDenoiseHistory(depth int) *denoiseHistory {
	return &denoiseHistory{depth: depth}
}

func (h *denoiseHistory) push(mask [NumSamples]bool) {
	h.frames = append(h.frames, mask)
	if len(h.frames) > h.depth+1 {
		h.frames = h.frames[1:]
	}
}

// filtered returns mask with isolated single-frame foreground flickers
// removed, using the frames recorded before mask was pushed.
func (h *denoiseHistory) filtered(mask [NumSamples]bool) [NumSamples]bool {
	if h.depth <= 0 || len(h.frames) < h.depth+1 {
		return mask
	}
	out := mask
	prior := h.frames[:len(h.frames)-1]
	for i := 0; i < NumSamples; i++ {
		if !mask[i] {
			continue
		}
		neighborsBackground := true
		for d := -1; d <= 1; d++ {
			j := wrap(i+d, NumSamples)
			for _, f := range prior {
				if f[j] {
					neighborsBackground = false
					break
				}
			}
			if !neighborsBackground {
				break
			}
		}
		if neighborsBackground {
			out[i] = false
		}
	}
	return out
}

// segmentRun describes one contiguous candidate object while it is being
// assembled, before it is closed into a DetectedObject.
type segmentRun struct {
	start, end int // inclusive bucket indices, may wrap
	buckets    []int
}

// segment sweeps buckets angularly and splits them into runs following
// spec §4.2 step 5: opens a run once MinExtentRun consecutive foreground
// buckets are seen, splits a run when an internal gap wider than
// SplitDistance appears, and closes a run once CloseWidth background
// buckets are seen.
func segment(mask [NumSamples]bool, samples [NumSamples]Sample, cfg PipelineConfig) []segmentRun {
	var runs []segmentRun
	var cur []int
	bgRun := 0

	flush := func() {
		if len(cur) >= cfg.MinExtentRun {
			runs = append(runs, splitByGap(cur, samples, cfg.SplitDistance)...)
		}
		cur = nil
	}

	for i := 0; i < 2*NumSamples; i++ {
		b := i % NumSamples
		if mask[b] {
			cur = append(cur, b)
			bgRun = 0
		} else {
			bgRun++
			if bgRun >= cfg.CloseWidth {
				flush()
			}
		}
	}
	flush()
	return dedupWrapped(runs)
}

// splitByGap splits a run of bucket indices wherever the Cartesian distance
// between consecutive foreground samples exceeds splitDistance.
func splitByGap(buckets []int, samples [NumSamples]Sample, splitDistance float64) []segmentRun {
	if splitDistance <= 0 || len(buckets) == 0 {
		return []segmentRun{{buckets: buckets}}
	}
	var out []segmentRun
	start := 0
	for i := 1; i < len(buckets); i++ {
		p0 := samples[buckets[i-1]].Coord()
		p1 := samples[buckets[i]].Coord()
		if p0.Distance(p1) > splitDistance {
			out = append(out, segmentRun{buckets: buckets[start:i]})
			start = i
		}
	}
	out = append(out, segmentRun{buckets: buckets[start:]})
	return out
}

// dedupWrapped removes a duplicate run produced when the angular sweep
// wraps past bucket 0 and re-closes a run already flushed once.
func dedupWrapped(runs []segmentRun) []segmentRun {
	seen := map[int]bool{}
	var out []segmentRun
	for _, r := range runs {
		if len(r.buckets) == 0 {
			continue
		}
		key := r.buckets[0]
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

// buildObject computes the chord extent, closest range, centroid, radial
// normal, person-sized score, curvature score and confidence for one run
// (spec §4.2 step 6).
func buildObject(run segmentRun, samples [NumSamples]Sample, cfg PipelineConfig, pose utils.Pose, ts time.Time) DetectedObject {
	bounds := utils.NewBounds()
	closest := math.Inf(1)
	pts := make([]utils.Point2D, 0, len(run.buckets))

	for _, b := range run.buckets {
		s := samples[b]
		p := s.Coord()
		pts = append(pts, p)
		bounds.Adjust(p)
		if s.Distance < closest {
			closest = s.Distance
		}
	}

	centerLocal := bounds.Center()
	first, last := pts[0], pts[len(pts)-1]
	extent := first.Distance(last)

	curvature := curvatureScore(pts)
	personSized := PersonSizedScore(extent, cfg.MinPersonSize, cfg.MaxPersonSize)
	confidence := ComputeConfidence(personSized, curvature)

	normalLocal := radialNormal(centerLocal)

	world := make([]utils.Point2D, len(pts))
	for i, p := range pts {
		world[i] = pose.ToWorld(p)
	}

	return DetectedObject{
		FirstSample:  run.buckets[0],
		LastSample:   run.buckets[len(run.buckets)-1],
		Extent:       extent,
		ClosestRange: closest,
		Center:       pose.ToWorld(centerLocal),
		Normal:       pose.ToWorld(normalLocal).Sub(pose.ToWorld(utils.Point2D{})),
		PersonSized:  personSized,
		Curvature:    curvature,
		Confidence:   confidence,
		LowerCoord:   world[0],
		HigherCoord:  world[len(world)-1],
		CurvePoints:  world,
		Timestamp:    ts,
	}
}

// radialNormal returns the unit vector from the sensor origin through p.
func radialNormal(p utils.Point2D) utils.Point2D {
	d := math.Hypot(p.X, p.Y)
	if d == 0 {
		return utils.Point2D{}
	}
	return utils.Point2D{X: p.X / d, Y: p.Y / d}
}

// curvatureScore computes a discrete second-derivative of adjacent sample
// positions, scaled into [0,1] (spec §4.2 step 6).
func curvatureScore(pts []utils.Point2D) float64 {
	if len(pts) < 3 {
		return 0
	}
	sum := 0.0
	for i := 1; i < len(pts)-1; i++ {
		d2x := pts[i+1].X - 2*pts[i].X + pts[i-1].X
		d2y := pts[i+1].Y - 2*pts[i].Y + pts[i-1].Y
		sum += math.Hypot(d2x, d2y)
	}
	mean := sum / float64(len(pts)-2)
	// Saturate at 0.5m of discrete second derivative: empirically this is
	// already a sharp corner at typical LiDAR sample spacing.
	return utils.Clamp(mean/0.5, 0, 1)
}
