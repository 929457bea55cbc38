package observer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEvalSinkBinsByHourAndWritesSummaryOnStop(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "eval.json")
	sink := NewEvalSink(path)

	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, sink.Start(start))

	enter := Event{Object: ObservedObject{ID: "1", Status: StatusEnter}, Count: 1}
	move := Event{Object: ObservedObject{ID: "1", Status: StatusMove}, Count: 1}

	require.NoError(t, sink.Emit("R", start, []Event{enter}))
	require.NoError(t, sink.Emit("R", start.Add(30*time.Minute), []Event{move}))

	// A later frame lands in the next hour-of-day window.
	later := start.Add(90 * time.Minute)
	leave := Event{Object: ObservedObject{ID: "1", Status: StatusLeave}, Count: 0}
	require.NoError(t, sink.Emit("R", later, []Event{leave}))

	require.NoError(t, sink.Stop(later))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var summary map[string]*EvalSummary
	require.NoError(t, json.Unmarshal(data, &summary))

	rs, ok := summary["R"]
	require.True(t, ok, "expected a summary entry for region R")

	hour9, ok := rs.Windows[9]
	require.True(t, ok, "expected a window for hour 9")
	require.Equal(t, 2, hour9.FrameCount)
	require.Equal(t, 1, hour9.EnterCount)
	require.Equal(t, 1, hour9.MaxOccupancy)

	hour10, ok := rs.Windows[10]
	require.True(t, ok, "expected a window for hour 10")
	require.Equal(t, 1, hour10.FrameCount)
	require.Equal(t, 0, hour10.MaxOccupancy)
}

func TestEvalSinkStartResetsPriorSummary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "eval.json")
	sink := NewEvalSink(path)

	ts := time.Now()
	require.NoError(t, sink.Start(ts))
	require.NoError(t, sink.Emit("R", ts, []Event{{Object: ObservedObject{ID: "1", Status: StatusEnter}, Count: 1}}))
	require.NoError(t, sink.Start(ts)) // a new session should not carry over old data

	require.Empty(t, sink.summary, "Start should reset the accumulator for a new session")
}
