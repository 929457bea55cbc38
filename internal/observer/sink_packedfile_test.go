package observer

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kaelari/lumagrid/internal/recorder"
	"github.com/kaelari/lumagrid/internal/wire"
)

// TestPackedFileSinkRoundTripsThroughPlayer is scenario S6's shape
// (spec §8): Start/Frame(...)/Stop written by the PackedFile sink
// must decode back through the recorder's own Player.
func TestPackedFileSinkRoundTripsThroughPlayer(t *testing.T) {
	var buf bytes.Buffer
	w := recorder.NewWriter(&buf, binary.BigEndian)
	sink := NewPackedFileSink(w)

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := sink.Start(start); err != nil {
		t.Fatal(err)
	}

	id := uuid.New()
	obj := ObservedObject{ID: "42", UUID: id, X: 1, Y: 2, Size: 0.3, Status: StatusEnter, Timestamp: start}
	if err := sink.Emit("R", start, []Event{{Object: obj}}); err != nil {
		t.Fatal(err)
	}
	if err := sink.Stop(start.Add(time.Second)); err != nil {
		t.Fatal(err)
	}

	player := recorder.Open(bytes.NewReader(buf.Bytes()), binary.BigEndian)

	startFrame, err := player.NextFrame()
	if err != nil {
		t.Fatalf("decoding Start: %v", err)
	}
	if startFrame.Header.Type != wire.RecordStart {
		t.Fatalf("expected Start, got %v", startFrame.Header.Type)
	}

	frame, err := player.NextFrame()
	if err != nil {
		t.Fatalf("decoding Frame: %v", err)
	}
	if len(frame.Objects) != 1 {
		t.Fatalf("expected 1 object, got %d", len(frame.Objects))
	}
	if frame.Objects[0].ID != 42 {
		t.Errorf("ID = %d, want 42", frame.Objects[0].ID)
	}

	stopFrame, err := player.NextFrame()
	if err != nil {
		t.Fatalf("decoding Stop: %v", err)
	}
	if stopFrame.Header.Type != wire.RecordStop {
		t.Fatalf("expected Stop, got %v", stopFrame.Header.Type)
	}
}
