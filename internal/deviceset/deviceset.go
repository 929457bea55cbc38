// Package deviceset groups DeviceCore instances under named groups,
// drives their per-cycle update, and solves cross-device registration
// (spec §4.3).
package deviceset

import (
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/kaelari/lumagrid/internal/devicecore"
	"github.com/kaelari/lumagrid/internal/driver"
	"github.com/kaelari/lumagrid/pkg/utils"
)

// FrameResult is one active device's output for one update cycle.
type FrameResult struct {
	Device  string
	Objects []devicecore.DetectedObject
}

type deviceEntry struct {
	name        string
	core        *devicecore.DeviceCore
	drv         driver.SensorDriver
	lastFrameAt time.Time
	health      DeviceHealth
}

// DeviceSet owns every DeviceCore plus its driver, named groups, the
// active-group selection, and the registration sub-mode.
type DeviceSet struct {
	mu sync.RWMutex

	devices map[string]*deviceEntry
	groups  map[string]map[string]bool
	active  map[string]bool // active group names; empty means "all devices"

	simulationMode   bool
	outEnvForwarding bool

	warnAfter time.Duration
	failAfter time.Duration

	registering       bool
	registrationUntil time.Time
	markerSamples     map[string][]utils.Point2D

	logger *logrus.Logger
}

// Config holds DeviceSet tunables.
type Config struct {
	WarnAfter time.Duration
	FailAfter time.Duration
}

// DefaultConfig mirrors typical operator defaults: warn at 1s stale,
// fail at 5s stale.
func DefaultConfig() Config {
	return Config{WarnAfter: time.Second, FailAfter: 5 * time.Second}
}

// New creates an empty DeviceSet.
func New(cfg Config) *DeviceSet {
	return &DeviceSet{
		devices:       make(map[string]*deviceEntry),
		groups:        make(map[string]map[string]bool),
		active:        make(map[string]bool),
		warnAfter:     cfg.WarnAfter,
		failAfter:     cfg.FailAfter,
		markerSamples: make(map[string][]utils.Point2D),
		logger:        logrus.New(),
	}
}

// AddDevice registers a device under name, with its DeviceCore and driver.
func (s *DeviceSet) AddDevice(name string, core *devicecore.DeviceCore, drv driver.SensorDriver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[name] = &deviceEntry{name: name, core: core, drv: drv, health: DeviceHealth{Status: HealthStopped}}
}

// SetGroup defines or replaces a named group's membership.
func (s *DeviceSet) SetGroup(name string, members []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := make(map[string]bool, len(members))
	for _, m := range members {
		set[m] = true
	}
	s.groups[name] = set
}

// ActivateGroup includes a group in the active union (CLI `+g`).
func (s *DeviceSet) ActivateGroup(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[name] = true
}

// DeactivateGroup excludes a group from the active union (CLI `-g`).
func (s *DeviceSet) DeactivateGroup(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, name)
}

// SetSimulationMode toggles the global simulation-mode flag.
func (s *DeviceSet) SetSimulationMode(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.simulationMode = on
}

// SimulationMode reports the global simulation-mode flag.
func (s *DeviceSet) SimulationMode() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.simulationMode
}

// activeDeviceNamesLocked returns the union of active groups' members, or
// every known device if no group is active.
func (s *DeviceSet) activeDeviceNamesLocked() []string {
	if len(s.active) == 0 {
		names := make([]string, 0, len(s.devices))
		for n := range s.devices {
			names = append(names, n)
		}
		return names
	}
	seen := make(map[string]bool)
	for group := range s.active {
		for member := range s.groups[group] {
			seen[member] = true
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		if _, ok := s.devices[n]; ok {
			names = append(names, n)
		}
	}
	return names
}

// Update runs one poll cycle over every active device (spec §4.3): polls
// each driver non-blockingly, hands new frames to DeviceCore, marks
// warning/failed on staleness, and feeds marker samples during
// registration.
func (s *DeviceSet) Update() []FrameResult {
	s.mu.Lock()
	names := s.activeDeviceNamesLocked()
	registering := s.registering
	s.mu.Unlock()

	var results []FrameResult
	now := time.Now()

	for _, name := range names {
		s.mu.RLock()
		entry := s.devices[name]
		s.mu.RUnlock()
		if entry == nil {
			continue
		}

		frame, err := entry.drv.GrabFrame(0)
		if err == nil {
			objs := entry.core.IngestFrame(frame)
			s.mu.Lock()
			entry.lastFrameAt = now
			entry.health = DeviceHealth{Status: HealthOK}
			s.mu.Unlock()
			results = append(results, FrameResult{Device: name, Objects: objs})

			if registering {
				s.collectMarkers(name, objs)
			}
			continue
		}

		s.mu.Lock()
		stale := now.Sub(entry.lastFrameAt)
		switch {
		case entry.lastFrameAt.IsZero():
			// never produced a frame yet; not an error condition on its own
		case stale > s.failAfter:
			entry.health = DeviceHealth{Status: HealthError, Reason: "no frame in " + stale.Round(time.Millisecond).String()}
		case stale > s.warnAfter:
			entry.health = DeviceHealth{Status: HealthWarning, Reason: "stale " + stale.Round(time.Millisecond).String()}
		}
		s.mu.Unlock()
	}

	s.mu.Lock()
	if registering && now.After(s.registrationUntil) {
		s.finishRegistrationLocked()
	}
	s.mu.Unlock()

	return results
}

// Health returns the current health of one device.
func (s *DeviceSet) Health(name string) (DeviceHealth, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.devices[name]
	if !ok {
		return DeviceHealth{}, false
	}
	return e.health, true
}

// Availability returns a device nikname → healthy (OK or Warning) set.
// The admin status and device-list handlers read it; the drive loop
// does not pass it to the Tracker.
func (s *DeviceSet) Availability() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]bool, len(s.devices))
	for name, e := range s.devices {
		out[name] = e.health.Status == HealthOK || e.health.Status == HealthWarning
	}
	return out
}

// StartRegistration begins scanning active devices for T to detect marker
// pairs and solve relative poses (spec §4.3).
func (s *DeviceSet) StartRegistration(duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registering = true
	s.registrationUntil = time.Now().Add(duration)
	s.markerSamples = make(map[string][]utils.Point2D)
}

const (
	markerMaxExtent     = 0.15 // meters; retro-reflective markers are small
	markerMinConfidence = 0.2
)

// collectMarkers records this frame's marker-sized, high-confidence object
// centroids for the ongoing registration scan.
func (s *DeviceSet) collectMarkers(device string, objs []devicecore.DetectedObject) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range objs {
		if o.Extent <= markerMaxExtent && o.Confidence >= markerMinConfidence {
			s.markerSamples[device] = append(s.markerSamples[device], o.Center)
		}
	}
}

// finishRegistrationLocked solves a 2D rigid transform between every pair
// of devices with overlapping marker observations, and writes the result
// into each device's pose (caller holds s.mu).
func (s *DeviceSet) finishRegistrationLocked() {
	s.registering = false

	names := make([]string, 0, len(s.markerSamples))
	for n := range s.markerSamples {
		names = append(names, n)
	}

	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			a, b := names[i], names[j]
			pa, pb := s.markerSamples[a], s.markerSamples[b]
			n := len(pa)
			if len(pb) < n {
				n = len(pb)
			}
			if n == 0 {
				continue
			}
			pose, ok := solveRigidTransform(pa[:n], pb[:n])
			if !ok {
				continue
			}
			if entry, exists := s.devices[b]; exists {
				entry.core.Pose = pose
			}
		}
	}
}

// solveRigidTransform finds the pose mapping b-frame points onto a-frame
// points with minimum sum-of-squared residuals (spec §4.3), via a 2D
// Kabsch alignment built on gonum's SVD.
func solveRigidTransform(a, b []utils.Point2D) (utils.Pose, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return utils.Pose{}, false
	}

	ca, cb := centroid(a), centroid(b)

	if len(a) == 1 {
		return utils.Pose{TX: ca.X - cb.X, TY: ca.Y - cb.Y}, true
	}

	h := mat.NewDense(2, 2, nil)
	for i := range a {
		pa := utils.Point2D{X: a[i].X - ca.X, Y: a[i].Y - ca.Y}
		pb := utils.Point2D{X: b[i].X - cb.X, Y: b[i].Y - cb.Y}
		h.Set(0, 0, h.At(0, 0)+pb.X*pa.X)
		h.Set(0, 1, h.At(0, 1)+pb.X*pa.Y)
		h.Set(1, 0, h.At(1, 0)+pb.Y*pa.X)
		h.Set(1, 1, h.At(1, 1)+pb.Y*pa.Y)
	}

	var svd mat.SVD
	if !svd.Factorize(h, mat.SVDFull) {
		return utils.Pose{}, false
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var r mat.Dense
	r.Mul(&v, u.T())

	if mat.Det(&r) < 0 {
		v.Set(0, 1, -v.At(0, 1))
		v.Set(1, 1, -v.At(1, 1))
		r.Mul(&v, u.T())
	}

	theta := math.Atan2(r.At(1, 0), r.At(0, 0))
	tx := ca.X - (r.At(0, 0)*cb.X + r.At(0, 1)*cb.Y)
	ty := ca.Y - (r.At(1, 0)*cb.X + r.At(1, 1)*cb.Y)

	return utils.Pose{TX: tx, TY: ty, Theta: theta}, true
}

func centroid(pts []utils.Point2D) utils.Point2D {
	var sum utils.Point2D
	for _, p := range pts {
		sum = sum.Add(p)
	}
	return sum.Scale(1 / float64(len(pts)))
}
