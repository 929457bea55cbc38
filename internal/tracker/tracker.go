package tracker

import (
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kaelari/lumagrid/internal/devicecore"
)

// Tracker is the Tracker component (C2): it fuses every active
// device's per-frame DetectedObjects into the persistent Trackable
// table via one of three unification strategies (spec §4.4).
type Tracker struct {
	cfg    Config
	stage  *stage
	voter  *ConfidenceVoter
	logger *logrus.Logger
}

// New creates a Tracker under cfg.
func New(cfg Config) *Tracker {
	return &Tracker{
		cfg:    cfg,
		stage:  newStage(cfg),
		voter:  NewConfidenceVoter(0),
		logger: logrus.New(),
	}
}

// SetOcclusionMap installs the trackOcclusionMap bitmap used to flag
// Occluded/Portal/Private Trackables (spec §4.4).
func (t *Tracker) SetOcclusionMap(m *OcclusionMap) {
	t.stage.setOcclusionMap(m)
}

// Update runs one tracking cycle: flattens every active device's
// DetectedObjects (tagging each with its device index), discounts
// uncorroborated confidence spikes, unites them per the configured
// strategy, and associates the result against the Trackable table.
func (t *Tracker) Update(perDevice map[string][]devicecore.DetectedObject, ts time.Time) []*Trackable {
	names := make([]string, 0, len(perDevice))
	for n := range perDevice {
		names = append(names, n)
	}
	sort.Strings(names)

	var objs []*devicecore.DetectedObject
	for idx, name := range names {
		for i := range perDevice[name] {
			o := perDevice[name][i]
			o.DeviceIndex = idx
			objs = append(objs, &o)
		}
	}

	if len(objs) == 0 {
		return t.stage.update(nil, ts)
	}

	t.voter.Corroborate(objs, t.cfg.UniteDistance)

	var points []mergedPoint
	switch t.cfg.Method {
	case UniteBlobs:
		points = uniteByTouchingExtents(objs, t.cfg, ts)
	case UniteStages:
		points = uniteByPlainDistance(objs, t.cfg, ts)
	default:
		points = uniteObjects(objs, t.cfg, ts)
	}

	return t.stage.update(points, ts)
}

// uniteByTouchingExtents approximates UniteBlobs: true pre-segmentation
// fusion would pool every device's raw foreground samples into one
// spatial index before segment() ever runs, but DeviceCore's per-device
// Bucket(angle) masking has no shared index to pool into without
// restructuring the per-device pipeline (spec §4.4 names this as one
// of three strategies; see DESIGN.md for why raw fusion isn't wired
// here). As a labeled approximation, objects are merged
// post-segmentation whenever their silhouettes physically touch or
// overlap — distance at or under the sum of their radii — unweighted
// by confidence or split penalties, standing in for "would have been
// one contiguous foreground blob."
func uniteByTouchingExtents(objs []*devicecore.DetectedObject, cfg Config, ts time.Time) []mergedPoint {
	var candidates []pairCandidate
	for i := 0; i < len(objs); i++ {
		for j := i + 1; j < len(objs); j++ {
			d := objs[i].Center.Distance(objs[j].Center)
			touchDistance := objs[i].Extent/2 + objs[j].Extent/2
			if d <= touchDistance {
				candidates = append(candidates, pairCandidate{i: i, j: j, dist: d})
			}
		}
	}
	sort.Slice(candidates, func(a, b int) bool { return candidates[a].dist < candidates[b].dist })

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

// uniteByPlainDistance implements UniteStages: merge per-device
// objects into a single stage using unweighted center distance only
// (no confidence or split penalty), before tracking.
func uniteByPlainDistance(objs []*devicecore.DetectedObject, cfg Config, ts time.Time) []mergedPoint {
	var candidates []pairCandidate
	for i := 0; i < len(objs); i++ {
		for j := i + 1; j < len(objs); j++ {
			d := objs[i].Center.Distance(objs[j].Center)
			if d <= cfg.UniteDistance+objTimeOffset(objs[i], objs[j], cfg) {
				candidates = append(candidates, pairCandidate{i: i, j: j, dist: d})
			}
		}
	}
	sort.Slice(candidates, func(a, b int) bool { return candidates[a].dist < candidates[b].dist })

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
