package observer

import (
	"strconv"
	"time"

	"github.com/kaelari/lumagrid/internal/recorder"
	"github.com/kaelari/lumagrid/internal/wire"
)

// PackedFileSink writes the same Start/Stop/Frame sequence as the
// recorder log, so a packed observer sink and a recorded session share
// one decoder (spec §4.6 "PackedFile (binary)"; §6.1).
type PackedFileSink struct {
	w *recorder.Writer
}

// NewPackedFileSink wraps an already-open recorder.Writer.
func NewPackedFileSink(w *recorder.Writer) *PackedFileSink {
	return &PackedFileSink{w: w}
}

func (s *PackedFileSink) Start(ts time.Time) error {
	return s.w.WriteStart(uint64(ts.UnixMilli()))
}

func (s *PackedFileSink) Stop(ts time.Time) error {
	return s.w.WriteStop(uint64(ts.UnixMilli()))
}

func (s *PackedFileSink) Emit(regionName string, ts time.Time, events []Event) error {
	records := make([]wire.ObjectRecord, len(events))
	for i, ev := range events {
		records[i] = toObjectRecord(ev.Object)
	}
	return s.w.WriteFrame(uint64(ts.UnixMilli()), records)
}

func toObjectRecord(obj ObservedObject) wire.ObjectRecord {
	var flags wire.ObjectFlag
	if obj.Status != StatusLeave {
		flags |= wire.FlagActivated
	}
	ts := uint64(obj.Timestamp.UnixMilli())
	id, _ := strconv.ParseUint(obj.ID, 10, 32)
	return wire.ObjectRecord{
		ID:             uint32(id),
		UUID:           wire.UUIDBytes(obj.UUID),
		X:              float32(obj.X),
		Y:              float32(obj.Y),
		Size:           float32(obj.Size),
		Flags:          flags,
		TimestampEnter: ts,
		TimestampTouch: ts,
	}
}
