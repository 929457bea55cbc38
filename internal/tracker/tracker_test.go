package tracker

import (
	"testing"
	"time"

	"github.com/kaelari/lumagrid/internal/devicecore"
	"github.com/kaelari/lumagrid/pkg/utils"
)

func detected(x, y, confidence float64) devicecore.DetectedObject {
	return devicecore.DetectedObject{
		Center:      utils.Point2D{X: x, Y: y},
		LowerCoord:  utils.Point2D{X: x - 0.05, Y: y - 0.05},
		HigherCoord: utils.Point2D{X: x + 0.05, Y: y + 0.05},
		Confidence:  confidence,
	}
}

func TestTrackerMergesTwoDevicesIntoOneTrackable(t *testing.T) {
	tr := New(DefaultConfig())
	now := time.Now()

	perDevice := map[string][]devicecore.DetectedObject{
		"north": {detected(0, 0, 0.9)},
		"south": {detected(0.05, 0.03, 0.85)},
	}
	for name := range perDevice {
		for i := range perDevice[name] {
			perDevice[name][i].Timestamp = now
		}
	}

	out := tr.Update(perDevice, now)
	if len(out) != 1 {
		t.Fatalf("expected the two devices' close objects to merge into one Trackable, got %d", len(out))
	}
}

func TestTrackerUniteStagesMethodBypassesWeighting(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Method = UniteStages
	tr := New(cfg)
	now := time.Now()

	perDevice := map[string][]devicecore.DetectedObject{
		"a": {func() devicecore.DetectedObject { d := detected(0, 0, 0.9); d.Timestamp = now; return d }()},
		"b": {func() devicecore.DetectedObject { d := detected(0.1, 0.02, 0.9); d.Timestamp = now; return d }()},
	}

	out := tr.Update(perDevice, now)
	if len(out) != 1 {
		t.Fatalf("expected UniteStages to merge nearby objects on plain distance, got %d", len(out))
	}
}

func TestTrackerUniteBlobsMethodMergesTouchingSilhouettes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Method = UniteBlobs
	tr := New(cfg)
	now := time.Now()

	touching := func(x, y, extent float64) devicecore.DetectedObject {
		d := detected(x, y, 0.9)
		d.Extent = extent
		d.Timestamp = now
		return d
	}

	// Centers 0.3m apart; each has a 0.4m chord (0.2m radius), so their
	// silhouettes overlap: 0.3 <= 0.2+0.2.
	perDevice := map[string][]devicecore.DetectedObject{
		"a": {touching(0, 0, 0.4)},
		"b": {touching(0.3, 0, 0.4)},
	}
	out := tr.Update(perDevice, now)
	if len(out) != 1 {
		t.Fatalf("expected UniteBlobs to merge two objects whose silhouettes overlap, got %d", len(out))
	}

	far := map[string][]devicecore.DetectedObject{
		"a": {touching(0, 0, 0.1)},
		"b": {touching(5, 5, 0.1)},
	}
	out = tr.Update(far, now)
	if len(out) != 2 {
		t.Fatalf("expected UniteBlobs to leave non-touching objects unmerged, got %d", len(out))
	}
}

func TestTrackerEmptyInputProducesNoTrackables(t *testing.T) {
	tr := New(DefaultConfig())
	out := tr.Update(map[string][]devicecore.DetectedObject{}, time.Now())
	if len(out) != 0 {
		t.Fatalf("expected no Trackables from an empty cycle, got %d", len(out))
	}
}
