package observer

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// FileSink writes one text line per event (spec §4.6: "File (text):
// one line per event, format selected by filter"). The `action` field,
// if present, renders as a bare leading word (Enter/Move/Leave) ahead
// of the remaining `key=value` tokens (spec §8 S1: "Enter id=1
// x=0.5 y=0.0").
type FileSink struct {
	w io.Writer
}

// NewFileSink wraps w (typically an *os.File).
func NewFileSink(w io.Writer) *FileSink {
	return &FileSink{w: w}
}

func (s *FileSink) Start(ts time.Time) error {
	_, err := fmt.Fprintf(s.w, "%d Start\n", ts.UnixMilli())
	return err
}

func (s *FileSink) Stop(ts time.Time) error {
	_, err := fmt.Fprintf(s.w, "%d Stop\n", ts.UnixMilli())
	return err
}

func (s *FileSink) Emit(regionName string, ts time.Time, events []Event) error {
	for _, ev := range events {
		if _, err := fmt.Fprintln(s.w, formatLine(ev.Fields)); err != nil {
			return err
		}
	}
	return nil
}

func formatLine(fields []FilterField) string {
	var action string
	var rest []string
	for _, f := range fields {
		if f.Key == "action" {
			action = titleCase(f.Value)
			continue
		}
		rest = append(rest, fmt.Sprintf("%s=%s", f.Key, f.Value))
	}
	if action == "" {
		return strings.Join(rest, " ")
	}
	return strings.Join(append([]string{action}, rest...), " ")
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
