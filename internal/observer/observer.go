package observer

import (
	"sort"
	"time"

	"github.com/kaelari/lumagrid/internal/region"
	"github.com/kaelari/lumagrid/internal/tracker"
)

// worldTableName is the implicit whole-world table every Observer
// maintains in addition to its bound regions' tables (spec §4.6).
const worldTableName = ""

// Observer binds a named filter+sink set to zero or more regions and
// replays Trackables through the Enter/Move/Leave lifecycle each
// frame (spec §4.6).
//
// UseImmobile/ImmobileTimeout/ImmobileDistance implement spec §8 S5's
// per-observer immobility policy: once a table row's own immobility
// clock (ObservedObject.ImmobileLifetime, ticked independently per
// observer in table.upsert) reaches ImmobileTimeout, an observer with
// UseImmobile == false stops emitting Move for that row, while one
// with UseImmobile == true keeps emitting it unchanged.
type Observer struct {
	Name    string
	Binding region.Binding
	Filter  Filter
	MaxFPS  float64
	Sinks   []Sink

	UseImmobile      bool
	ImmobileTimeout  time.Duration
	ImmobileDistance float64

	tables         map[string]*table
	lastReportTime time.Time
}

// NewObserver constructs an Observer bound to binding, rendering
// through filter and maxFPS, delivering to sinks. An observer bound to
// no regions falls back to the implicit whole-world table; one bound
// to regions gets one table per bound region instead (the world table
// is the unbound-observer's fallback, not an always-on duplicate of
// every bound region's table). UseImmobile defaults to true (keep
// emitting Move for immobile Trackables) with the same
// ImmobileTimeout/ImmobileDistance defaults as tracker.DefaultConfig,
// since most observers have no reason to opt into S5's Move-suppression
// behavior.
func NewObserver(name string, binding region.Binding, filter Filter, maxFPS float64, sinks ...Sink) *Observer {
	tables := make(map[string]*table)
	if len(binding.Regions) == 0 {
		tables[worldTableName] = newTable()
	}
	for _, br := range binding.Regions {
		tables[br.Region.Name] = newTable()
	}
	return &Observer{
		Name: name, Binding: binding, Filter: filter, MaxFPS: maxFPS, Sinks: sinks, tables: tables,
		UseImmobile:      true,
		ImmobileTimeout:  60 * time.Second,
		ImmobileDistance: 1.0,
	}
}

// Start notifies every sink the session has started, bypassing rate
// limiting (spec §4.6: "start is called when the session starts").
func (o *Observer) Start(ts time.Time) error {
	o.lastReportTime = time.Time{}
	for _, sink := range o.Sinks {
		if err := sink.Start(ts); err != nil {
			return err
		}
	}
	return nil
}

// Stop notifies every sink the session has stopped, bypassing rate
// limiting (spec §4.6: "guaranteed by an exit hook").
func (o *Observer) Stop(ts time.Time) error {
	for _, sink := range o.Sinks {
		if err := sink.Stop(ts); err != nil {
			return err
		}
	}
	return nil
}

// Observe replays trackables through this observer's lifecycle for
// one frame, subject to maxFPS throttling (spec §4.6).
func (o *Observer) Observe(trackables []*tracker.Trackable, ts time.Time) error {
	if o.MaxFPS > 0 && !o.lastReportTime.IsZero() {
		minInterval := time.Duration(1000/o.MaxFPS) * time.Millisecond
		if ts.Sub(o.lastReportTime) < minInterval {
			return nil
		}
	}
	o.lastReportTime = ts

	for _, tbl := range o.tables {
		tbl.beginFrame()
	}

	active := make(map[string][]ObservedObject)
	for _, tr := range trackables {
		if !o.passesFilter(tr) {
			continue
		}
		obj := ObservedObject{ID: tr.ID, UUID: tr.UUID, X: tr.Position.X, Y: tr.Position.Y, Size: tr.Size, Timestamp: ts}

		if worldTbl, ok := o.tables[worldTableName]; ok {
			result := worldTbl.upsert(tr.ID, obj, o.ImmobileDistance)
			if o.emitsMove(result) {
				active[worldTableName] = append(active[worldTableName], result)
			}
		}

		for _, br := range o.Binding.Regions {
			inside := br.Region.Contains(tr.Position.X, tr.Position.Y)
			if br.Invert {
				inside = !inside
			}
			if !inside {
				continue
			}
			result := o.tables[br.Region.Name].upsert(tr.ID, obj, o.ImmobileDistance)
			if o.emitsMove(result) {
				active[br.Region.Name] = append(active[br.Region.Name], result)
			}
		}
	}

	names := make([]string, 0, len(o.tables))
	for name := range o.tables {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		tbl := o.tables[name]
		events := append(active[name], tbl.sweep(ts)...)
		count := tbl.count()

		rendered := make([]Event, len(events))
		for i, obj := range events {
			rendered[i] = Event{Object: obj, RegionName: regionLabel(name), Count: count, Fields: o.Filter.Project(obj, regionLabel(name), count)}
		}
		for _, sink := range o.Sinks {
			if err := sink.Emit(regionLabel(name), ts, rendered); err != nil {
				return err
			}
		}
	}
	return nil
}

func regionLabel(name string) string {
	if name == worldTableName {
		return "world"
	}
	return name
}

// emitsMove reports whether obj should be emitted this frame. Enter
// and Leave always are; a Move is suppressed once this table row's own
// immobility clock has reached ImmobileTimeout and UseImmobile is
// false (spec §8 S5).
func (o *Observer) emitsMove(obj ObservedObject) bool {
	if obj.Status != StatusMove {
		return true
	}
	if o.UseImmobile || o.ImmobileTimeout <= 0 {
		return true
	}
	return obj.ImmobileLifetime < o.ImmobileTimeout
}

// passesFilter reports whether a Trackable should be observed:
// occluded or private Trackables are masked out of every observer's
// view (spec §4.6 step b: "not masked by the occlusion bitmap").
func (o *Observer) passesFilter(tr *tracker.Trackable) bool {
	return !tr.Flags.Has(tracker.FlagOccluded) && !tr.Flags.Has(tracker.FlagPrivate)
}
