// Package observer implements the ObserverPipeline component (C3):
// per-observer ObservedObjects tables, Enter/Move/Leave lifecycle
// tracking, rate limiting, filter-field projection, and the sink
// contract each delivery mechanism (file, packed file, bash, UDP/OSC,
// websocket, heatmap family, eval, InfluxDB) implements (spec §4.6).
package observer

import (
	"time"

	"github.com/google/uuid"
)

// Status is an ObservedObject's lifecycle state within one region's
// table for the current frame (spec §4.6).
type Status int

const (
	StatusEnter Status = iota
	StatusMove
	StatusLeave
	StatusInvalid
)

func (s Status) String() string {
	switch s {
	case StatusEnter:
		return "enter"
	case StatusMove:
		return "move"
	case StatusLeave:
		return "leave"
	default:
		return "invalid"
	}
}

// ObservedObject is a snapshot of a Trackable as seen by one observer,
// in one region's table, for one frame (spec §3/§4.6).
//
// ImmobileSince/ImmobileLifetime are this table row's own immobility
// clock, restored from packedPlayer.cpp's checkImmobile(timestamp,
// immobileTimeout, immobileDistance) (SPEC_FULL §3.1): distinct from
// the originating Trackable's own immobileSince, since two observers
// may apply different immobileTimeout/immobileDistance settings to
// the same Trackable (spec §8 S5).
type ObservedObject struct {
	ID        string
	UUID      uuid.UUID
	X, Y      float64
	Size      float64
	Status    Status
	Timestamp time.Time

	ImmobileSince    time.Time
	ImmobileLifetime time.Duration
}

// Event pairs a table row's current ObservedObject with the fields a
// sink actually renders, already filtered/aliased per the observer's
// Filter (spec §4.6: "Filter semantics"). RegionName and Count are
// repeated per-event so a Sink can render them without holding the
// enclosing table.
type Event struct {
	Object     ObservedObject
	RegionName string
	Count      int
	Fields     []FilterField
}
