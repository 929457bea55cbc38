package observer

import "time"

// Sink is the delivery contract every observer output mechanism
// implements (spec §4.6: File, PackedFile, Bash, UDP/OSC, WebSocket,
// the HeatMap/FlowMap/TraceMap family, Eval, InfluxDB).
type Sink interface {
	// Start is called once when the observing session starts,
	// bypassing rate limiting.
	Start(ts time.Time) error
	// Emit delivers one table's events for one frame. events is empty
	// when a table produced no Enter/Move/Leave transitions this
	// frame but the observer still reached its maxFPS tick.
	Emit(regionName string, ts time.Time, events []Event) error
	// Stop is called once on session stop and on process exit,
	// bypassing rate limiting.
	Stop(ts time.Time) error
}
