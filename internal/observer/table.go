package observer

import (
	"time"

	"github.com/kaelari/lumagrid/pkg/utils"
)

// table holds one region's ObservedObjects (spec §4.6: "a `rects`
// structure holding one ObservedObjects table per bound region plus
// one implicit whole-world table").
type table struct {
	rows map[string]*tableRow
}

type tableRow struct {
	object ObservedObject
	live   bool // set true each time Upsert touches this row this frame

	// immobileRef is the last position the row's immobility clock was
	// reset at, mirroring Trackable.immobileRef but kept per-table so
	// each observer's own immobileDistance governs its own clock.
	immobileRef utils.Point2D
}

func newTable() *table {
	return &table{rows: make(map[string]*tableRow)}
}

// beginFrame marks every row as not yet touched (spec §4.6 step a:
// "mark all rows in every table as Invalid").
func (t *table) beginFrame() {
	for _, row := range t.rows {
		row.live = false
	}
}

// upsert records a Trackable's presence this frame: Enter on first
// appearance, Move afterward (spec §4.6 step b). immobileDistance
// governs this table's own immobility clock (ObservedObject.
// ImmobileSince/ImmobileLifetime): the clock resets whenever the
// object has moved more than immobileDistance since the last reset,
// mirroring Tracker.applyImmobility but scoped to one observer.
func (t *table) upsert(id string, obj ObservedObject, immobileDistance float64) ObservedObject {
	pos := utils.Point2D{X: obj.X, Y: obj.Y}
	row, exists := t.rows[id]
	if !exists {
		obj.Status = StatusEnter
		obj.ImmobileSince = obj.Timestamp
		t.rows[id] = &tableRow{object: obj, live: true, immobileRef: pos}
		return obj
	}
	obj.Status = StatusMove
	if pos.Distance(row.immobileRef) > immobileDistance {
		row.immobileRef = pos
		row.object.ImmobileSince = obj.Timestamp
	}
	obj.ImmobileSince = row.object.ImmobileSince
	obj.ImmobileLifetime = obj.Timestamp.Sub(obj.ImmobileSince)
	row.object = obj
	row.live = true
	return obj
}

// sweep finalizes the frame: rows not touched by upsert this frame
// transition to Leave and are emitted once, then removed (spec §4.6
// step c). It returns every row not upserted this frame with its
// Leave event.
func (t *table) sweep(ts time.Time) []ObservedObject {
	var left []ObservedObject
	for id, row := range t.rows {
		if row.live {
			continue
		}
		row.object.Status = StatusLeave
		row.object.Timestamp = ts
		left = append(left, row.object)
		delete(t.rows, id)
	}
	return left
}

// count returns the number of rows currently in Enter or Move state
// (spec invariant I5).
func (t *table) count() int {
	n := 0
	for _, row := range t.rows {
		if row.live {
			n++
		}
	}
	return n
}
