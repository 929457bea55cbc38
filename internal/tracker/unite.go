package tracker

import (
	"math"
	"sort"
	"time"

	"github.com/kaelari/lumagrid/internal/devicecore"
	"github.com/kaelari/lumagrid/pkg/utils"
)

// mergedPoint is one candidate Trackable produced by the UniteObjects
// merge stage, before association against the existing Trackable
// table (spec §4.4 step 5).
type mergedPoint struct {
	Center     utils.Point2D
	Size       float64
	Confidence float64
	SplitProb  float64
	User2      int
	Timestamp  time.Time
}

// uniteObjects ports lidarTrack.cpp's mergeObjects: build weighted
// candidate pairs, greedily union them, then split or finalize each
// resulting group. Grounded function-for-function on
// original_source/lidartool/cpp/lidarTrack.cpp.
func uniteObjects(objs []*devicecore.DetectedObject, cfg Config, ts time.Time) []mergedPoint {
	candidates := buildCandidates(objs, cfg)
	groups := greedyUnion(objs, candidates)

	var out []mergedPoint
	for _, g := range groups {
		members := make([]*devicecore.DetectedObject, len(g))
		for i, idx := range g {
			members[i] = objs[idx]
		}
		addObjectsToMerged(members, cfg, ts, &out)
	}
	return out
}

type pairCandidate struct {
	i, j int
	dist float64
}

// buildCandidates computes every pair's weighted distance and keeps
// the ones within uniteDistance plus the pair's time offset
// (lidarTrack.cpp's candidate-building loop in mergeObjects).
func buildCandidates(objs []*devicecore.DetectedObject, cfg Config) []pairCandidate {
	var candidates []pairCandidate
	for i := 0; i < len(objs); i++ {
		for j := i + 1; j < len(objs); j++ {
			weight, reject := pairWeight(objs[i], objs[j], cfg)
			if reject {
				continue
			}
			d := objs[i].Center.Distance(objs[j].Center) * weight
			if d <= cfg.UniteDistance+objTimeOffset(objs[i], objs[j], cfg) {
				candidates = append(candidates, pairCandidate{i: i, j: j, dist: d})
			}
		}
	}
	sort.Slice(candidates, func(a, b int) bool { return candidates[a].dist < candidates[b].dist })
	return candidates
}

// pairWeight computes the confidence- and split-penalized weight
// applied to a raw center distance. Split halves from the same
// source device are never re-merged (reject=true).
func pairWeight(a, b *devicecore.DetectedObject, cfg Config) (weight float64, reject bool) {
	objWeightA := 1 - a.Confidence
	objWeightB := 1 - b.Confidence
	weight = 1 + 0.5*(objWeightA+objWeightB)*cfg.ConfWeight

	if a.IsSplit || b.IsSplit {
		if a.DeviceIndex == b.DeviceIndex {
			return 0, true
		}
		both := 0.0
		if a.IsSplit && b.IsSplit {
			both = 0.5
		}
		weight += 0.5 * ((objWeightA + objWeightB) + both) * cfg.SplitWeight
	}
	return weight, false
}

// objTimeOffset bounds how far apart in time two objects may be and
// still be considered for merging, scaled by a maximum walking speed
// (lidarTrack.cpp's objTimeOffset).
func objTimeOffset(a, b *devicecore.DetectedObject, cfg Config) float64 {
	diffMs := math.Abs(float64(a.Timestamp.Sub(b.Timestamp).Milliseconds()))
	if diffMs < cfg.MaxTimeOffsetMs {
		return cfg.MaxSpeed * diffMs / 1000.0
	}
	return 0.0
}

// maxTimeOffset returns the largest pairwise objTimeOffset within a
// group (lidarTrack.cpp's maxTimeOffset).
func maxTimeOffset(group []*devicecore.DetectedObject, cfg Config) float64 {
	max := 0.0
	for i := 0; i < len(group); i++ {
		for j := i + 1; j < len(group); j++ {
			if d := objTimeOffset(group[i], group[j], cfg); d > max {
				max = d
			}
		}
	}
	return max
}

// greedyUnion unions candidate pairs via a parent-pointer array,
// producing the final connected components. Processing order doesn't
// change the resulting partition, but candidates are still consumed
// in ascending-distance order to match the spec's description
// (lidarTrack.cpp's mixedIndex union loop).
func greedyUnion(objs []*devicecore.DetectedObject, candidates []pairCandidate) [][]int {
	parent := make([]int, len(objs))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	for _, c := range candidates {
		ri, rj := find(c.i), find(c.j)
		if ri != rj {
			parent[rj] = ri
		}
	}

	groups := make(map[int][]int)
	for i := range objs {
		r := find(i)
		groups[r] = append(groups[r], i)
	}
	out := make([][]int, 0, len(groups))
	for _, g := range groups {
		out = append(out, g)
	}
	sort.Slice(out, func(a, b int) bool { return out[a][0] < out[b][0] })
	return out
}

// addObjectsToMerged finalizes one merge group into a mergedPoint,
// splitting it first if its bounding size exceeds objectMaxSize plus
// the group's time slack (lidarTrack.cpp's addObjectsToMerged).
func addObjectsToMerged(group []*devicecore.DetectedObject, cfg Config, ts time.Time, out *[]mergedPoint) {
	if len(group) == 0 {
		return
	}

	bounds := utils.NewBounds()
	for _, o := range group {
		bounds.Adjust(o.Center)
		bounds.Adjust(o.LowerCoord)
		bounds.Adjust(o.HigherCoord)
	}
	center := bounds.Center()

	size := 0.0
	for _, o := range group {
		for _, p := range [3]utils.Point2D{o.Center, o.LowerCoord, o.HigherCoord} {
			if d := center.Distance(p); d > size {
				size = d
			}
		}
	}
	objSize := 2 * size
	splitProb := 0.0

	if cfg.ObjectMaxSize > 0 && len(group) > 1 {
		maxSize := cfg.ObjectMaxSize + maxTimeOffset(group, cfg)
		if objSize > maxSize {
			sp := splitGroup(group, cfg, ts, out)
			if sp == 1.0 {
				return // halves were already appended by the recursive splitGroup calls
			}
			splitProb = sp
		}
	}

	*out = append(*out, mergedPoint{
		Center:     center,
		Size:       objSize,
		Confidence: aggregateConfidence(group),
		SplitProb:  splitProb,
		User2:      group[0].DeviceIndex,
		Timestamp:  ts,
	})
}

// splitGroup seeds two halves from the farthest pair in group, and
// either recurses into both halves or annotates a single group with a
// split probability, exactly mirroring lidarTrack.cpp's
// splitObjectsToMerged (including its asymmetric mean-square
// division: the combined group's mean square is divided by its
// member count, but each half's is used raw before being combined and
// divided by the total member count).
func splitGroup(group []*devicecore.DetectedObject, cfg Config, ts time.Time, out *[]mergedPoint) float64 {
	i1, i2 := farthestPair(group)

	var group1, group2 []*devicecore.DetectedObject
	for i, o := range group {
		switch {
		case i == i1:
			group1 = append(group1, o)
		case i == i2:
			group2 = append(group2, o)
		default:
			d1 := o.Center.Distance(group[i1].Center)
			d2 := o.Center.Distance(group[i2].Center)
			if d1 <= d2 {
				group1 = append(group1, o)
			} else {
				group2 = append(group2, o)
			}
		}
	}

	center := centroidOf(group)
	center1 := centroidOf(group1)
	center2 := centroidOf(group2)

	ms := meanSquareFactor(group, center, cfg) / float64(len(group))
	ms1 := meanSquareFactor(group1, center1, cfg)
	ms2 := meanSquareFactor(group2, center2, cfg)
	msa := (ms1 + ms2) / float64(len(group1)+len(group2))
	msf := msa / ms

	var isHull1, isHull2 bool
	if msf >= 1 {
		isHull1 = isHullEnveloped(group1, center2)
		if !isHull1 {
			isHull2 = isHullEnveloped(group2, center1)
		}
	}

	if msf < 1 || isHull1 || isHull2 {
		addObjectsToMerged(group1, cfg, ts, out)
		addObjectsToMerged(group2, cfg, ts, out)
		return 1.0
	}
	return 1.0 / msf
}

// farthestPair finds the two group members with the largest center
// distance.
func farthestPair(group []*devicecore.DetectedObject) (int, int) {
	i1, i2 := 0, 1
	maxD := -1.0
	for i := 0; i < len(group); i++ {
		for j := i + 1; j < len(group); j++ {
			if d := group[i].Center.Distance(group[j].Center); d > maxD {
				maxD, i1, i2 = d, i, j
			}
		}
	}
	return i1, i2
}

// meanSquareFactor computes the (un-normalized) sum-of-squares used by
// splitGroup, weighting each member's distance to center by a
// confidence-dependent factor (lidarTrack.cpp's objsMeanSquare). The
// caller decides whether to divide by member count.
func meanSquareFactor(group []*devicecore.DetectedObject, center utils.Point2D, cfg Config) float64 {
	cw := cfg.ConfidenceWeight
	omcw := 1 - cw
	sum := 0.0
	for _, o := range group {
		dist := center.Distance(o.Center)
		term := dist*(omcw+o.Confidence*cw) + 1
		sum += term * term
	}
	return sum
}

// isHullEnveloped reports whether center falls on the same side of
// every edge of every member's curve as that member's own center
// does — i.e. center is enveloped within the union of the members'
// silhouettes (lidarTrack.cpp's isHullObjs).
func isHullEnveloped(group []*devicecore.DetectedObject, center utils.Point2D) bool {
	for _, o := range group {
		if len(o.CurvePoints) < 2 {
			continue
		}
		for i := 1; i < len(o.CurvePoints); i++ {
			prev := o.CurvePoints[i-1]
			cur := o.CurvePoints[i]
			edge := utils.Point2D{X: prev.X - cur.X, Y: prev.Y - cur.Y}
			toOwn := utils.Point2D{X: o.Center.X - cur.X, Y: o.Center.Y - cur.Y}
			toCenter := utils.Point2D{X: center.X - cur.X, Y: center.Y - cur.Y}
			signOwn := edge.X*toOwn.Y - edge.Y*toOwn.X
			signCenter := edge.X*toCenter.Y - edge.Y*toCenter.X
			if (signOwn >= 0) != (signCenter >= 0) {
				return false
			}
		}
	}
	return true
}

func centroidOf(group []*devicecore.DetectedObject) utils.Point2D {
	var sum utils.Point2D
	for _, o := range group {
		sum = sum.Add(o.Center)
	}
	return sum.Scale(1 / float64(len(group)))
}

// aggregateConfidence combines member confidences for the merged
// point. Corroboration across devices should not dilute confidence,
// so the strongest member's score wins rather than an average.
func aggregateConfidence(group []*devicecore.DetectedObject) float64 {
	best := 0.0
	for _, o := range group {
		if o.Confidence > best {
			best = o.Confidence
		}
	}
	return best
}
