package devicecore

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kaelari/lumagrid/pkg/utils"
)

// DeviceCore owns one sensor's environment model, current frame and the
// acquisition state machine (THE CORE component C1). All exported object
// coordinates are in the world frame via Pose.
type DeviceCore struct {
	mu sync.Mutex

	Name string
	Pose utils.Pose

	config PipelineConfig
	state  State

	env        *EnvironmentModel
	envAccum   *envAccumulator
	denoise    *denoiseHistory
	prevFrame  [NumSamples]Sample
	haveFrame  bool

	lastOpenAt    time.Time
	reopenAfter   time.Duration
	activeMask    map[int]bool // buckets currently covered by an active Trackable

	logger *logrus.Logger

	frameCount uint64
}

// New creates a DeviceCore with the given config. Logging follows the
// teacher's per-subsystem *logrus.Logger convention (spec SPEC_FULL §1.1).
func New(name string, pose utils.Pose, cfg PipelineConfig) *DeviceCore {
	return &DeviceCore{
		Name:        name,
		Pose:        pose,
		config:      cfg,
		state:       StateClosed,
		denoise:     newDenoiseHistory(cfg.DenoiseFrames),
		reopenAfter: 2 * time.Second,
		activeMask:  make(map[int]bool),
		logger:      logrus.New(),
	}
}

// State returns the current lifecycle state.
func (d *DeviceCore) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Open transitions Closed -> PoweringUp -> Acquiring.
func (d *DeviceCore) Open() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = StatePoweringUp
	d.lastOpenAt = time.Now()
	d.logger.WithField("device", d.Name).Info("device powering up")
	d.state = StateAcquiring
}

// Close transitions to Closed from any state.
func (d *DeviceCore) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = StateClosed
	d.logger.WithField("device", d.Name).Info("device closed")
}

// StartEnvScan transitions Acquiring -> EnvScanning and begins a fresh
// environment accumulation.
func (d *DeviceCore) StartEnvScan() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != StateAcquiring {
		return
	}
	d.state = StateEnvScanning
	d.envAccum = newEnvAccumulator()
}

// FinishEnvScan closes the accumulation, erodes+smooths it, and installs
// it as the active EnvironmentModel iff readEnv accepts it (spec §4.2:
// "Envs with < 50% buckets populated are rejected by readEnv").
func (d *DeviceCore) FinishEnvScan() (accepted bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != StateEnvScanning || d.envAccum == nil {
		return false
	}
	env, ok := d.envAccum.finish(d.config.ErodeSmoothK)
	d.envAccum = nil
	d.state = StateAcquiring
	if !ok {
		d.logger.WithField("device", d.Name).Warn("environment scan rejected: under 50% populated")
		return false
	}
	d.env = env
	d.logger.WithField("device", d.Name).Info("environment scan accepted")
	return true
}

// ReadEnv returns the active environment model, or nil if none is loaded.
func (d *DeviceCore) ReadEnv() *EnvironmentModel {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.env
}

// MarkIOError transitions into ReopenPending; the caller (DeviceSet) is
// expected to retry Open after ReopenAfter has elapsed (spec §4.2: "On
// IOError with recent open: -> [ReopenPending], automatic reopen after
// N ms").
func (d *DeviceCore) MarkIOError() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = StateReopenPending
	d.lastOpenAt = time.Now()
	d.logger.WithField("device", d.Name).Warn("IO error, scheduling reopen")
}

// ReopenDue reports whether ReopenAfter has elapsed since the last error.
func (d *DeviceCore) ReopenDue() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state == StateReopenPending && time.Since(d.lastOpenAt) >= d.reopenAfter
}

// ActivateBuckets marks angle buckets as covered by an active Trackable so
// Adapt never overwrites them (spec §4.2 step 7).
func (d *DeviceCore) ActivateBuckets(buckets map[int]bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.activeMask = buckets
}

// IngestFrame runs the per-frame pipeline (spec §4.2) and returns the
// DetectedObjects for this frame. Frames arriving while env-scanning are
// discarded, matching §4.2's error semantics.
func (d *DeviceCore) IngestFrame(frame RawFrame) []DetectedObject {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == StateEnvScanning {
		d.envAccum.accumulate(frame)
		return nil
	}
	if d.state != StateAcquiring {
		return nil
	}

	var samples [NumSamples]Sample
	var mask [NumSamples]bool

	for _, s := range frame.Samples {
		b := Bucket(s.Angle, NumSamples)
		samples[b] = s
		if d.env == nil {
			mask[b] = s.Valid()
			continue
		}
		mask[b] = foregroundBucket(s, d.env.Entries[b], d.config)
	}

	d.denoise.push(mask)
	filtered := d.denoise.filtered(mask)

	runs := segment(filtered, samples, d.config)

	ts := time.UnixMilli(int64(frame.TimestampMS))
	objects := make([]DetectedObject, 0, len(runs))
	for _, r := range runs {
		objects = append(objects, buildObject(r, samples, d.config, d.Pose, ts))
	}

	d.adapt(samples, filtered, frame.TimestampMS)

	d.frameCount++
	return objects
}

// adapt slowly moves the environment toward long-standing foreground,
// skipping buckets covered by an active Trackable (spec §4.2 step 7).
func (d *DeviceCore) adapt(samples [NumSamples]Sample, mask [NumSamples]bool, tsMS uint64) {
	if d.env == nil || d.config.AdaptTimeConst <= 0 {
		return
	}
	alpha := 1.0 / (d.config.AdaptTimeConst.Seconds() * 20) // ~20 Hz assumption
	for i := 0; i < NumSamples; i++ {
		if !mask[i] || d.activeMask[i] || !samples[i].Valid() {
			continue
		}
		e := &d.env.Entries[i]
		if !e.Valid {
			continue
		}
		e.Distance += alpha * (samples[i].Distance - e.Distance)
		e.LastUpdateMS = tsMS
	}
}

// FrameCount returns the number of frames processed since Open.
func (d *DeviceCore) FrameCount() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frameCount
}
