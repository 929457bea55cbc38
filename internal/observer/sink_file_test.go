package observer

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestFileSinkFormatsActionAsLeadingWord(t *testing.T) {
	var buf bytes.Buffer
	sink := NewFileSink(&buf)

	f := ParseFilter("action,id,x,y")
	obj := ObservedObject{ID: "1", X: 0.5, Y: 0, Status: StatusEnter}
	ev := Event{Object: obj, Fields: f.Project(obj, "R", 1)}

	if err := sink.Emit("R", time.Now(), []Event{ev}); err != nil {
		t.Fatal(err)
	}

	got := strings.TrimSpace(buf.String())
	want := "Enter id=1 x=0.5 y=0.0"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFileSinkOmitsActionWhenNotFiltered(t *testing.T) {
	var buf bytes.Buffer
	sink := NewFileSink(&buf)

	f := ParseFilter("id,x")
	obj := ObservedObject{ID: "2", X: 1.2, Status: StatusMove}
	ev := Event{Object: obj, Fields: f.Project(obj, "R", 1)}

	if err := sink.Emit("R", time.Now(), []Event{ev}); err != nil {
		t.Fatal(err)
	}

	got := strings.TrimSpace(buf.String())
	want := "id=2 x=1.2"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
