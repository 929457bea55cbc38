// Package driver abstracts one physical or virtual LiDAR sensor: a
// SensorDriver turns whatever transport it owns into timestamped
// RawFrames for devicecore to consume.
package driver

import (
	"errors"
	"time"

	"github.com/kaelari/lumagrid/internal/devicecore"
)

// Open errors (spec §4.1).
var (
	ErrDeviceBusy  = errors.New("driver: device busy")
	ErrNotReady    = errors.New("driver: not ready")
	ErrUnsupported = errors.New("driver: unsupported")
	ErrIOError     = errors.New("driver: io error")
	ErrTimeout     = errors.New("driver: timeout")
	ErrNoData      = errors.New("driver: no data")
	ErrClosed      = errors.New("driver: closed")
)

// SensorDriver is implemented by every sensor transport: local serial,
// virtual UDP, file playback, and the bitmap simulator.
type SensorDriver interface {
	Open() error
	Close() error
	GrabFrame(timeout time.Duration) (devicecore.RawFrame, error)

	IsReady() bool
	IsPoweringUp() bool
	IsSpinning() bool
}

// frameQueue is a small bounded, drop-oldest buffer shared by every
// driver variant so a slow consumer never blocks a fast producer
// (spec §4.1: "driver may drop older frames if caller is slow").
type frameQueue struct {
	ch chan devicecore.RawFrame
}

func newFrameQueue(depth int) *frameQueue {
	return &frameQueue{ch: make(chan devicecore.RawFrame, depth)}
}

func (q *frameQueue) push(f devicecore.RawFrame) {
	select {
	case q.ch <- f:
	default:
		select {
		case <-q.ch:
		default:
		}
		select {
		case q.ch <- f:
		default:
		}
	}
}

func (q *frameQueue) pop(timeout time.Duration) (devicecore.RawFrame, error) {
	select {
	case f := <-q.ch:
		return f, nil
	case <-time.After(timeout):
		return devicecore.RawFrame{}, ErrNoData
	}
}
