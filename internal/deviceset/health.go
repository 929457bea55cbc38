package deviceset

// HealthStatus reports a device's liveness as seen by DeviceSet's update
// cycle (spec §4.3, §6.5 status endpoint).
type HealthStatus int

const (
	HealthStopped HealthStatus = iota
	HealthOK
	HealthWarning
	HealthError
)

// String returns the status endpoint's human label (spec §6.5: "per-device
// {stopped, ok, warning, error} with a human reason string").
func (h HealthStatus) String() string {
	switch h {
	case HealthStopped:
		return "stopped"
	case HealthOK:
		return "ok"
	case HealthWarning:
		return "warning"
	case HealthError:
		return "error"
	default:
		return "unknown"
	}
}

// DeviceHealth pairs a status with the human-readable reason behind it.
type DeviceHealth struct {
	Status HealthStatus
	Reason string
}
