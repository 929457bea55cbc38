// Package wire defines the binary record layouts shared by the local
// serial sensor driver, the virtual UDP sensor driver, the recorder/player
// log format and the packed file/websocket observer sinks (spec §6.1/§6.2).
package wire

import (
	"encoding/binary"
	"errors"
	"io"
	"math"

	"github.com/google/uuid"
)

// ErrShortBuffer is returned when a buffer is too small to hold the record
// being decoded.
var ErrShortBuffer = errors.New("wire: short buffer")

// RecordType identifies the kind of record following a Header.
type RecordType uint16

const (
	RecordStart RecordType = 0x01
	RecordStop  RecordType = 0x02
	RecordFrame RecordType = 0x03
)

// HeaderSize is the encoded size of Header in bytes.
const HeaderSize = 16

// Header prefixes every record in the packed log / websocket wire format
// (spec §6.1): { timestamp: u64, type: u16, flags: u16, size: u32 }.
type Header struct {
	Timestamp uint64
	Type      RecordType
	Flags     uint16
	Size      uint32
}

// Encode writes the header in the given byte order.
func (h Header) Encode(order binary.ByteOrder, buf []byte) error {
	if len(buf) < HeaderSize {
		return ErrShortBuffer
	}
	order.PutUint64(buf[0:8], h.Timestamp)
	order.PutUint16(buf[8:10], uint16(h.Type))
	order.PutUint16(buf[10:12], h.Flags)
	order.PutUint32(buf[12:16], h.Size)
	return nil
}

// DecodeHeader reads a Header from buf.
func DecodeHeader(order binary.ByteOrder, buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, ErrShortBuffer
	}
	return Header{
		Timestamp: order.Uint64(buf[0:8]),
		Type:      RecordType(order.Uint16(buf[8:10])),
		Flags:     order.Uint16(buf[10:12]),
		Size:      order.Uint32(buf[12:16]),
	}, nil
}

// IsPlausible performs the sanity checks the Player uses to decide whether
// a candidate header is real data or garbage encountered while resyncing
// (spec §4.7): a known record type, a size that isn't absurd, and a
// millisecond timestamp below 2^48 (about 8900 years after the epoch).
func (h Header) IsPlausible() bool {
	switch h.Type {
	case RecordStart, RecordStop, RecordFrame:
	default:
		return false
	}
	if h.Timestamp >= 1<<48 {
		return false
	}
	return h.Size < 64*1024*1024
}

// ObjectRecordSize is the encoded size of one ObjectRecord in bytes:
// id(4) + uuid(16) + x(4) + y(4) + size(4) + flags(2) + enter(8) + touched(8)
// + reserved(4).
const ObjectRecordSize = 54

// ObjectFlag bits packed into ObjectRecord.Flags.
type ObjectFlag uint16

const (
	FlagActivated ObjectFlag = 1 << iota
	FlagPrivate
	FlagImmobile
	FlagOccluded
	FlagPortal
	FlagLatent
)

// ObjectRecord is the packed per-object tuple inside a Frame record
// (spec §4.7).
type ObjectRecord struct {
	ID              uint32
	UUID            [16]byte
	X, Y, Size      float32
	Flags           ObjectFlag
	TimestampEnter  uint64
	TimestampTouch  uint64
}

// Encode writes the record into buf, which must be at least
// ObjectRecordSize bytes.
func (r ObjectRecord) Encode(order binary.ByteOrder, buf []byte) error {
	if len(buf) < ObjectRecordSize {
		return ErrShortBuffer
	}
	order.PutUint32(buf[0:4], r.ID)
	copy(buf[4:20], r.UUID[:])
	order.PutUint32(buf[20:24], math.Float32bits(r.X))
	order.PutUint32(buf[24:28], math.Float32bits(r.Y))
	order.PutUint32(buf[28:32], math.Float32bits(r.Size))
	order.PutUint16(buf[32:34], uint16(r.Flags))
	order.PutUint64(buf[34:42], r.TimestampEnter)
	order.PutUint64(buf[42:50], r.TimestampTouch)
	// remaining 4 bytes (50:54) reserved/padding
	return nil
}

// DecodeObjectRecord reads one ObjectRecord from buf.
func DecodeObjectRecord(order binary.ByteOrder, buf []byte) (ObjectRecord, error) {
	if len(buf) < ObjectRecordSize {
		return ObjectRecord{}, ErrShortBuffer
	}
	var r ObjectRecord
	r.ID = order.Uint32(buf[0:4])
	copy(r.UUID[:], buf[4:20])
	r.X = math.Float32frombits(order.Uint32(buf[20:24]))
	r.Y = math.Float32frombits(order.Uint32(buf[24:28]))
	r.Size = math.Float32frombits(order.Uint32(buf[28:32]))
	r.Flags = ObjectFlag(order.Uint16(buf[32:34]))
	r.TimestampEnter = order.Uint64(buf[34:42])
	r.TimestampTouch = order.Uint64(buf[42:50])
	return r, nil
}

// UUIDBytes returns u packed into the 16-byte wire representation.
func UUIDBytes(u uuid.UUID) [16]byte {
	var b [16]byte
	copy(b[:], u[:])
	return b
}

// RawSampleSize is the encoded size of one RawSample in the virtual sensor
// protocol (spec §6.2): angle_q14(2) + dist_mm_q2(4) + quality(1) + pad(1).
const RawSampleSize = 8

// RawSample is one polar sample as carried over the wire.
type RawSample struct {
	AngleQ14  uint16 // angle in Q14 fixed point over [0, 2*pi)
	DistMMQ2  uint32 // distance in millimeters, Q2 fixed point
	Quality   int8
}

// Encode writes the sample into buf (>= RawSampleSize bytes).
func (s RawSample) Encode(order binary.ByteOrder, buf []byte) error {
	if len(buf) < RawSampleSize {
		return ErrShortBuffer
	}
	order.PutUint16(buf[0:2], s.AngleQ14)
	order.PutUint32(buf[2:6], s.DistMMQ2)
	buf[6] = byte(s.Quality)
	buf[7] = 0
	return nil
}

// DecodeRawSample reads one RawSample from buf.
func DecodeRawSample(order binary.ByteOrder, buf []byte) (RawSample, error) {
	if len(buf) < RawSampleSize {
		return RawSample{}, ErrShortBuffer
	}
	return RawSample{
		AngleQ14: order.Uint16(buf[0:2]),
		DistMMQ2: order.Uint32(buf[2:6]),
		Quality:  int8(buf[6]),
	}, nil
}

// ReadFull is a convenience wrapper around io.ReadFull that returns its
// error unchanged: io.EOF when no byte was read, which callers treat as
// a normal termination (spec §4.7: "End-of-file is a normal
// termination"), and io.ErrUnexpectedEOF for a partial read.
func ReadFull(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	return err
}

