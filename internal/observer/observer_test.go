package observer

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kaelari/lumagrid/internal/region"
	"github.com/kaelari/lumagrid/internal/tracker"
	"github.com/kaelari/lumagrid/pkg/utils"
)

// recordingSink captures every Emit call's rendered lines for
// assertions, standing in for a real Sink in these tests.
type recordingSink struct {
	lines []string
}

func (s *recordingSink) Start(ts time.Time) error { return nil }
func (s *recordingSink) Stop(ts time.Time) error  { return nil }
func (s *recordingSink) Emit(regionName string, ts time.Time, events []Event) error {
	for _, ev := range events {
		s.lines = append(s.lines, formatLine(ev.Fields))
	}
	return nil
}

func newTrackable(id string, x, y, size float64, flags tracker.Flags) *tracker.Trackable {
	return &tracker.Trackable{
		ID:       id,
		UUID:     uuid.New(),
		Position: utils.Point2D{X: x, Y: y},
		Size:     size,
		Flags:    flags,
	}
}

// TestObserverEnterMoveLeaveLifecycle is scenario S1 (spec §8): a
// Trackable entering, persisting for several frames, then vanishing
// must produce exactly one Enter, four Move, and one Leave event,
// rendered as "Enter id=1 x=0.5 y=0.0" by a File-sink-style filter.
func TestObserverEnterMoveLeaveLifecycle(t *testing.T) {
	reg := region.New("R", 0, 0, 2, 2, region.Rectangle)
	registry := region.NewRegistry()
	registry.Add(reg)
	binding := region.ParseBinding("R", registry)

	sink := &recordingSink{}
	filter := ParseFilter("action,id,x,y")
	obs := NewObserver("obs", binding, filter, 0, sink)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		tr := newTrackable("1", 0.5, 0.0, 0.4, 0)
		ts := base.Add(time.Duration(i) * time.Second)
		if err := obs.Observe([]*tracker.Trackable{tr}, ts); err != nil {
			t.Fatalf("Observe frame %d: %v", i, err)
		}
	}
	// frame 6: the trackable vanished.
	if err := obs.Observe(nil, base.Add(5*time.Second)); err != nil {
		t.Fatalf("Observe frame 6: %v", err)
	}

	want := []string{
		"Enter id=1 x=0.5 y=0.0",
		"Move id=1 x=0.5 y=0.0",
		"Move id=1 x=0.5 y=0.0",
		"Move id=1 x=0.5 y=0.0",
		"Move id=1 x=0.5 y=0.0",
		"Leave id=1 x=0.5 y=0.0",
	}
	if len(sink.lines) != len(want) {
		t.Fatalf("got %d lines, want %d: %v", len(sink.lines), len(want), sink.lines)
	}
	for i, line := range want {
		if sink.lines[i] != line {
			t.Errorf("line %d = %q, want %q", i, sink.lines[i], line)
		}
	}
}

// TestObserverCountInvariant checks invariant I5 (spec §7): the
// region's reported count equals the number of Enter/Move objects.
func TestObserverCountInvariant(t *testing.T) {
	reg := region.New("R", 0, 0, 4, 4, region.Rectangle)
	registry := region.NewRegistry()
	registry.Add(reg)
	binding := region.ParseBinding("R", registry)

	sink := &recordingSink{}
	filter := ParseFilter("action,id,count")
	obs := NewObserver("obs", binding, filter, 0, sink)

	ts := time.Now()
	trackables := []*tracker.Trackable{
		newTrackable("1", 0, 0, 0.2, 0),
		newTrackable("2", 1, 1, 0.2, 0),
	}
	if err := obs.Observe(trackables, ts); err != nil {
		t.Fatal(err)
	}
	for _, line := range sink.lines {
		if !strings.Contains(line, "count=2") {
			t.Errorf("line %q does not report count=2", line)
		}
	}
}

// TestObserverUnboundUsesWorldTable verifies an observer with no
// region binding falls back to the implicit whole-world table.
func TestObserverUnboundUsesWorldTable(t *testing.T) {
	sink := &recordingSink{}
	filter := ParseFilter("action,id,region")
	obs := NewObserver("obs", region.Binding{}, filter, 0, sink)

	tr := newTrackable("7", 100, 100, 0.1, 0)
	if err := obs.Observe([]*tracker.Trackable{tr}, time.Now()); err != nil {
		t.Fatal(err)
	}
	if len(sink.lines) != 1 {
		t.Fatalf("got %d lines, want 1: %v", len(sink.lines), sink.lines)
	}
	if !strings.Contains(sink.lines[0], "region=world") {
		t.Errorf("line %q does not report region=world", sink.lines[0])
	}
}

// TestObserverBoundRegionOnlyEmitsOnce guards against the duplicate-
// emission bug: a region-bound observer must not also emit from an
// always-on world table.
func TestObserverBoundRegionOnlyEmitsOnce(t *testing.T) {
	reg := region.New("R", 0, 0, 2, 2, region.Rectangle)
	registry := region.NewRegistry()
	registry.Add(reg)
	binding := region.ParseBinding("R", registry)

	sink := &recordingSink{}
	filter := ParseFilter("action,id")
	obs := NewObserver("obs", binding, filter, 0, sink)

	tr := newTrackable("1", 0, 0, 0.1, 0)
	if err := obs.Observe([]*tracker.Trackable{tr}, time.Now()); err != nil {
		t.Fatal(err)
	}
	if len(sink.lines) != 1 {
		t.Fatalf("got %d lines, want exactly 1 (no duplicate world-table emission): %v", len(sink.lines), sink.lines)
	}
}

// TestObserverOcclusionAndPrivacyMasking verifies occluded/private
// Trackables never appear in any table.
func TestObserverOcclusionAndPrivacyMasking(t *testing.T) {
	sink := &recordingSink{}
	filter := DefaultFilter()
	obs := NewObserver("obs", region.Binding{}, filter, 0, sink)

	occluded := newTrackable("occ", 0, 0, 0.1, tracker.FlagOccluded)
	private := newTrackable("priv", 0, 0, 0.1, tracker.FlagPrivate)
	visible := newTrackable("vis", 0, 0, 0.1, 0)

	if err := obs.Observe([]*tracker.Trackable{occluded, private, visible}, time.Now()); err != nil {
		t.Fatal(err)
	}
	if len(sink.lines) != 1 {
		t.Fatalf("got %d lines, want exactly 1 (only the unmasked Trackable): %v", len(sink.lines), sink.lines)
	}
	if !strings.Contains(sink.lines[0], "id=vis") {
		t.Errorf("expected the visible trackable's line, got %q", sink.lines[0])
	}
}

// TestObserverMaxFPSThrottlesObserve verifies frames arriving faster
// than maxFPS are dropped and a frame past the interval is reported.
func TestObserverMaxFPSThrottlesObserve(t *testing.T) {
	sink := &recordingSink{}
	obs := NewObserver("obs", region.Binding{}, DefaultFilter(), 1 /* 1 fps */, sink)

	base := time.Now()
	tr := newTrackable("1", 0, 0, 0.1, 0)

	if err := obs.Observe([]*tracker.Trackable{tr}, base); err != nil {
		t.Fatal(err)
	}
	if err := obs.Observe([]*tracker.Trackable{tr}, base.Add(10*time.Millisecond)); err != nil {
		t.Fatal(err)
	}
	if len(sink.lines) != 1 {
		t.Fatalf("second frame should have been throttled, got %d lines: %v", len(sink.lines), sink.lines)
	}

	if err := obs.Observe([]*tracker.Trackable{tr}, base.Add(2*time.Second)); err != nil {
		t.Fatal(err)
	}
	if len(sink.lines) != 2 {
		t.Fatalf("frame past the interval should have been reported, got %d lines: %v", len(sink.lines), sink.lines)
	}
}

// TestObserverImmobileMoveSuppression is scenario S5 (spec §8): a
// Trackable unchanged past immobileTimeout must stop receiving Move
// events from a useImmobile=false observer, while a useImmobile=true
// observer keeps receiving them.
func TestObserverImmobileMoveSuppression(t *testing.T) {
	base := time.Now()
	tr := newTrackable("1", 0, 0, 0.2, 0)

	strict := &recordingSink{}
	strictObs := NewObserver("strict", region.Binding{}, ParseFilter("action,id"), 0, strict)
	strictObs.UseImmobile = false
	strictObs.ImmobileTimeout = 60 * time.Second
	strictObs.ImmobileDistance = 1.0

	lenient := &recordingSink{}
	lenientObs := NewObserver("lenient", region.Binding{}, ParseFilter("action,id"), 0, lenient)
	lenientObs.UseImmobile = true
	lenientObs.ImmobileTimeout = 60 * time.Second
	lenientObs.ImmobileDistance = 1.0

	// Enter, then a Move well before the timeout: both observers emit.
	if err := strictObs.Observe([]*tracker.Trackable{tr}, base); err != nil {
		t.Fatal(err)
	}
	if err := lenientObs.Observe([]*tracker.Trackable{tr}, base); err != nil {
		t.Fatal(err)
	}
	if err := strictObs.Observe([]*tracker.Trackable{tr}, base.Add(30*time.Second)); err != nil {
		t.Fatal(err)
	}
	if err := lenientObs.Observe([]*tracker.Trackable{tr}, base.Add(30*time.Second)); err != nil {
		t.Fatal(err)
	}
	if len(strict.lines) != 2 || len(lenient.lines) != 2 {
		t.Fatalf("expected 2 lines each before the timeout, got strict=%v lenient=%v", strict.lines, lenient.lines)
	}

	// First frame past the 60s immobile timeout, position unchanged.
	past := base.Add(61 * time.Second)
	if err := strictObs.Observe([]*tracker.Trackable{tr}, past); err != nil {
		t.Fatal(err)
	}
	if err := lenientObs.Observe([]*tracker.Trackable{tr}, past); err != nil {
		t.Fatal(err)
	}
	if len(strict.lines) != 2 {
		t.Fatalf("useImmobile=false observer should have suppressed the Move, got %v", strict.lines)
	}
	if len(lenient.lines) != 3 {
		t.Fatalf("useImmobile=true observer should have kept emitting Move, got %v", lenient.lines)
	}

	// The row must still be alive (no spurious Leave), just silent.
	if _, ok := strictObs.tables[worldTableName].rows["1"]; !ok {
		t.Fatal("expected the suppressed row to remain alive, not be swept as a Leave")
	}
}

func TestFilterAliasRendersAsKey(t *testing.T) {
	f := ParseFilter("x,y,name=label")
	obj := ObservedObject{ID: "1", X: 1.5, Y: -2, Status: StatusMove}
	fields := f.Project(obj, "world", 1)
	found := false
	for _, field := range fields {
		if field.Key == "label" {
			found = true
		}
		if field.Key == "name" {
			t.Errorf("unaliased key %q leaked through", field.Key)
		}
	}
	if !found {
		t.Errorf("expected alias %q to render as key %q, got %v", "name=label", "label", fields)
	}
}

func TestPipelineStartObserveStop(t *testing.T) {
	sink := &recordingSink{}
	obs := NewObserver("obs", region.Binding{}, DefaultFilter(), 0, sink)

	p := NewPipeline()
	ts := time.Now()
	if err := p.Add(obs, ts); err != nil {
		t.Fatal(err)
	}
	if err := p.Start(ts); err != nil {
		t.Fatal(err)
	}
	tr := newTrackable("1", 0, 0, 0.1, 0)
	if err := p.Observe([]*tracker.Trackable{tr}, ts); err != nil {
		t.Fatal(err)
	}
	if err := p.Stop(ts); err != nil {
		t.Fatal(err)
	}
	if len(sink.lines) != 1 {
		t.Fatalf("expected exactly one Enter event through the pipeline, got %v", sink.lines)
	}
}

func ExampleFilter_Project() {
	f := ParseFilter("action,id,x,y")
	obj := ObservedObject{ID: "1", X: 0.5, Y: 0, Status: StatusEnter}
	fmt.Println(formatLine(f.Project(obj, "R", 1)))
	// Output: Enter id=1 x=0.5 y=0.0
}
