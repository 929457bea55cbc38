// Package tracker implements the Tracker component (C2): it fuses
// per-device DetectedObjects into persistent Trackables, predicts
// their motion, and maintains their lifecycle across frames.
package tracker

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kaelari/lumagrid/pkg/utils"
)

// Flags classify a Trackable's current context (spec §3).
type Flags uint16

const (
	FlagActivated Flags = 1 << iota
	FlagPrivate
	FlagImmobile
	FlagOccluded
	FlagPortal
	FlagLatent
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// Trackable is a persistent identity tracked across frames (spec §3).
type Trackable struct {
	ID   string
	UUID uuid.UUID

	Position  utils.Point2D
	Size      float64
	Confidence float64

	FirstSeen  time.Time
	LastTouched time.Time

	Motion    utils.Point2D // smoothed velocity, meters/second
	Predicted utils.Point2D // position predicted for the next frame

	Flags Flags

	// User2 carries the split-lineage tag copied from the originating
	// DetectedObject's device index (lidarTrack.cpp's trackable.user2).
	User2 int

	// SplitProb is the recursive-split probability recorded when this
	// Trackable was produced from a group that could not be cleanly
	// divided in two (lidarTrack.cpp's splitObjectsToMerged).
	SplitProb float64

	// pendingLeaveSince is non-zero once this Trackable stopped being
	// associated with an incoming merge group; it is deleted once
	// keepAliveMs has elapsed since this timestamp.
	pendingLeaveSince time.Time

	// immobileRef/immobileSince track the last position+time the
	// Trackable was seen to move more than immobileDistance, for the
	// Immobile flag's rolling-window test.
	immobileRef   utils.Point2D
	immobileSince time.Time
}

func (t *Trackable) String() string {
	return fmt.Sprintf("Trackable{id=%s pos=%v size=%.2f conf=%.2f}", t.ID, t.Position, t.Size, t.Confidence)
}

var idCounter uint64

// nextID returns a monotonically increasing, session-stable id (spec
// §4.4 tie-breaking: "ids are assigned monotonically per session").
func nextID() string {
	n := atomic.AddUint64(&idCounter, 1)
	return fmt.Sprintf("%d", n)
}

func newTrackable(pos utils.Point2D, size, confidence float64, ts time.Time) *Trackable {
	return &Trackable{
		ID:            nextID(),
		UUID:          uuid.New(),
		Position:      pos,
		Predicted:     pos,
		Size:          size,
		Confidence:    confidence,
		FirstSeen:     ts,
		LastTouched:   ts,
		immobileRef:   pos,
		immobileSince: ts,
	}
}
