package tracker

import (
	"testing"
	"time"

	"github.com/kaelari/lumagrid/internal/devicecore"
	"github.com/kaelari/lumagrid/pkg/utils"
)

func obj(x, y, confidence float64, device int, ts time.Time) *devicecore.DetectedObject {
	return &devicecore.DetectedObject{
		Center:      utils.Point2D{X: x, Y: y},
		LowerCoord:  utils.Point2D{X: x - 0.05, Y: y - 0.05},
		HigherCoord: utils.Point2D{X: x + 0.05, Y: y + 0.05},
		Confidence:  confidence,
		DeviceIndex: device,
		Timestamp:   ts,
	}
}

func TestUniteObjectsMergesCloseCorroboratingObjects(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Now()
	objs := []*devicecore.DetectedObject{
		obj(0, 0, 0.9, 0, now),
		obj(0.05, 0.02, 0.85, 1, now),
	}

	points := uniteObjects(objs, cfg, now)
	if len(points) != 1 {
		t.Fatalf("expected the two close corroborating objects to merge into one point, got %d", len(points))
	}
}

// spec §8 scenario S2: two DetectedObjects 1.0m apart, confidence 0.9
// each, uniteDistance=1.0, split flag set on one. The Tracker must
// NOT merge them (weighted distance exceeds uniteDistance after the
// split penalty).
func TestUniteObjectsRespectsSplitPenalty(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UniteDistance = 1.0
	now := time.Now()

	a := obj(0, 0, 0.9, 0, now)
	b := obj(1.0, 0, 0.9, 1, now)
	b.IsSplit = true

	points := uniteObjects([]*devicecore.DetectedObject{a, b}, cfg, now)
	if len(points) != 2 {
		t.Fatalf("expected the split pair to remain separate, got %d points", len(points))
	}
}

func TestUniteObjectsNeverRemergesSameDeviceSplitHalves(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UniteDistance = 10 // would otherwise merge everything
	now := time.Now()

	a := obj(0, 0, 0.9, 0, now)
	b := obj(0.1, 0, 0.9, 0, now)
	a.IsSplit = true
	b.IsSplit = true

	points := uniteObjects([]*devicecore.DetectedObject{a, b}, cfg, now)
	if len(points) != 2 {
		t.Fatalf("expected same-device split halves to never re-merge, got %d points", len(points))
	}
}

func TestGreedyUnionProducesConnectedComponents(t *testing.T) {
	objs := []*devicecore.DetectedObject{obj(0, 0, 0.5, 0, time.Time{}), obj(1, 1, 0.5, 1, time.Time{}), obj(2, 2, 0.5, 2, time.Time{})}
	candidates := []pairCandidate{{i: 0, j: 1, dist: 0.1}, {i: 1, j: 2, dist: 0.1}}

	groups := greedyUnion(objs, candidates)
	if len(groups) != 1 || len(groups[0]) != 3 {
		t.Fatalf("expected one group of 3 via transitive union, got %v", groups)
	}
}

func TestIsHullEnvelopedDetectsSharedCenter(t *testing.T) {
	o := &devicecore.DetectedObject{
		Center: utils.Point2D{X: 0, Y: 0},
		CurvePoints: []utils.Point2D{
			{X: -1, Y: 1}, {X: 0, Y: 1.2}, {X: 1, Y: 1},
		},
	}
	if !isHullEnveloped([]*devicecore.DetectedObject{o}, utils.Point2D{X: 0, Y: 0}) {
		t.Fatal("expected the object's own center to be enveloped within its own curve")
	}
}

func TestAddObjectsToMergedSplitsOversizedGroup(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ObjectMaxSize = 0.3
	now := time.Now()

	far := []*devicecore.DetectedObject{
		obj(0, 0, 0.9, 0, now),
		obj(5, 5, 0.9, 1, now),
	}

	var out []mergedPoint
	addObjectsToMerged(far, cfg, now, &out)
	if len(out) != 2 {
		t.Fatalf("expected an oversized group with no hull envelopment to split into two points, got %d", len(out))
	}
}
