// Package recorder implements the binary append-only log of observer
// frames described in spec §4.7/§6.1: a Writer appends Start/Stop/Frame
// records, a Player replays them with seek, pause/resume and wall-clock
// sync. Framing follows actuators/mavlink_protocol.go's approach (fixed
// header, length-prefixed payload, resync-by-scanning-one-byte) applied
// to the recorder's simpler fixed Header instead of MAVLink's
// magic-byte-plus-CRC message layout.
package recorder

import (
	"encoding/binary"
	"io"

	"github.com/kaelari/lumagrid/internal/wire"
)

// Writer appends records to an underlying io.Writer in a single,
// file-consistent byte order (spec §6.1: "big- or little-endian per
// platform, but consistent within a file").
type Writer struct {
	w     io.Writer
	order binary.ByteOrder
}

// NewWriter returns a Writer that encodes records using order.
func NewWriter(w io.Writer, order binary.ByteOrder) *Writer {
	return &Writer{w: w, order: order}
}

// WriteStart appends a Start record with no payload.
func (rw *Writer) WriteStart(timestampMs uint64) error {
	return rw.writeHeader(wire.RecordStart, timestampMs, 0, 0)
}

// WriteStop appends a Stop record with no payload.
func (rw *Writer) WriteStop(timestampMs uint64) error {
	return rw.writeHeader(wire.RecordStop, timestampMs, 0, 0)
}

// WriteFrame appends a Frame record: a u32 object count followed by
// count packed ObjectRecord tuples (spec §4.7).
func (rw *Writer) WriteFrame(timestampMs uint64, objects []wire.ObjectRecord) error {
	payload := make([]byte, 4+len(objects)*wire.ObjectRecordSize)
	rw.order.PutUint32(payload[0:4], uint32(len(objects)))
	for i, obj := range objects {
		off := 4 + i*wire.ObjectRecordSize
		if err := obj.Encode(rw.order, payload[off:off+wire.ObjectRecordSize]); err != nil {
			return err
		}
	}

	if err := rw.writeHeader(wire.RecordFrame, timestampMs, 0, uint32(len(payload))); err != nil {
		return err
	}
	_, err := rw.w.Write(payload)
	return err
}

func (rw *Writer) writeHeader(recordType wire.RecordType, timestampMs uint64, flags uint16, size uint32) error {
	buf := make([]byte, wire.HeaderSize)
	h := wire.Header{Timestamp: timestampMs, Type: recordType, Flags: flags, Size: size}
	if err := h.Encode(rw.order, buf); err != nil {
		return err
	}
	_, err := rw.w.Write(buf)
	return err
}
