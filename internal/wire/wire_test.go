package wire

import (
	"encoding/binary"
	"testing"

	"github.com/google/uuid"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{Timestamp: 123456789, Type: RecordFrame, Flags: 0, Size: 108}
	buf := make([]byte, HeaderSize)
	if err := h.Encode(binary.LittleEndian, buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeHeader(binary.LittleEndian, buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != h {
		t.Fatalf("got %+v, want %+v", got, h)
	}
	if !got.IsPlausible() {
		t.Fatalf("expected plausible header")
	}
}

func TestHeaderImplausible(t *testing.T) {
	h := Header{Type: RecordType(0x99), Size: 10}
	if h.IsPlausible() {
		t.Fatalf("expected implausible header for unknown type")
	}
}

func TestObjectRecordRoundTrip(t *testing.T) {
	id := uuid.New()
	r := ObjectRecord{
		ID:             7,
		UUID:           UUIDBytes(id),
		X:              1.5,
		Y:              -2.25,
		Size:           0.4,
		Flags:          FlagActivated | FlagImmobile,
		TimestampEnter: 1000,
		TimestampTouch: 5000,
	}
	buf := make([]byte, ObjectRecordSize)
	if err := r.Encode(binary.BigEndian, buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeObjectRecord(binary.BigEndian, buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != r.ID || got.X != r.X || got.Y != r.Y || got.Size != r.Size || got.Flags != r.Flags {
		t.Fatalf("got %+v, want %+v", got, r)
	}
	if got.UUID != r.UUID {
		t.Fatalf("uuid mismatch")
	}
}

func TestRawSampleRoundTrip(t *testing.T) {
	s := RawSample{AngleQ14: 12345, DistMMQ2: 98765, Quality: -5}
	buf := make([]byte, RawSampleSize)
	if err := s.Encode(binary.LittleEndian, buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeRawSample(binary.LittleEndian, buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != s {
		t.Fatalf("got %+v, want %+v", got, s)
	}
}

func TestShortBuffer(t *testing.T) {
	if err := (Header{}).Encode(binary.LittleEndian, make([]byte, 4)); err != ErrShortBuffer {
		t.Fatalf("expected ErrShortBuffer, got %v", err)
	}
	if _, err := DecodeHeader(binary.LittleEndian, make([]byte, 4)); err != ErrShortBuffer {
		t.Fatalf("expected ErrShortBuffer, got %v", err)
	}
}
