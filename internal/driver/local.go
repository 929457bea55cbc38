package driver

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/kaelari/lumagrid/internal/devicecore"
	"github.com/kaelari/lumagrid/internal/wire"
)

// LocalConfig configures a serial-attached sensor.
type LocalConfig struct {
	Port     string
	BaudRate int
}

// LocalDriver reads scan frames from a UART/USB-attached sensor. Vendor
// power-management specifics are out of scope; frames are expected
// wire-framed the same way a virtual sensor would send them, just over a
// serial byte stream instead of UDP datagrams.
type LocalDriver struct {
	mu sync.RWMutex

	cfg    LocalConfig
	port   serial.Port
	queue  *frameQueue
	logger *logrus.Logger

	poweringUp bool
	spinning   bool
	closed     bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewLocalDriver creates a LocalDriver for the given serial port.
func NewLocalDriver(cfg LocalConfig) *LocalDriver {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 115200
	}
	return &LocalDriver{
		cfg:    cfg,
		queue:  newFrameQueue(4),
		logger: logrus.New(),
	}
}

// ListPorts lists candidate USB serial ports for operator configuration.
func ListPorts() ([]string, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}
	var names []string
	for _, p := range ports {
		if p.IsUSB {
			names = append(names, p.Name)
		}
	}
	return names, nil
}

// Open starts the motor and begins reading scans (spec §4.1).
func (l *LocalDriver) Open() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.port != nil {
		return nil
	}

	l.poweringUp = true
	mode := &serial.Mode{BaudRate: l.cfg.BaudRate, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit}
	port, err := serial.Open(l.cfg.Port, mode)
	if err != nil {
		l.poweringUp = false
		return fmt.Errorf("%w: open %s: %v", ErrIOError, l.cfg.Port, err)
	}

	l.port = port
	l.stopCh = make(chan struct{})
	l.poweringUp = false
	l.spinning = true
	l.closed = false

	l.wg.Add(1)
	go l.readLoop()

	l.logger.WithField("port", l.cfg.Port).Info("local sensor opened")
	return nil
}

// Close stops acquisition and releases the serial port. Idempotent.
func (l *LocalDriver) Close() error {
	l.mu.Lock()
	if l.port == nil {
		l.closed = true
		l.mu.Unlock()
		return nil
	}
	port := l.port
	stopCh := l.stopCh
	l.port = nil
	l.spinning = false
	l.closed = true
	l.mu.Unlock()

	close(stopCh)
	err := port.Close()
	l.wg.Wait()
	return err
}

// GrabFrame returns the next RawFrame or blocks up to timeout.
func (l *LocalDriver) GrabFrame(timeout time.Duration) (devicecore.RawFrame, error) {
	l.mu.RLock()
	closed := l.closed
	l.mu.RUnlock()
	if closed {
		return devicecore.RawFrame{}, ErrClosed
	}
	return l.queue.pop(timeout)
}

func (l *LocalDriver) IsReady() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.port != nil && !l.poweringUp
}

func (l *LocalDriver) IsPoweringUp() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.poweringUp
}

func (l *LocalDriver) IsSpinning() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.spinning
}

// readLoop reads length-framed scans off the serial port until Close.
func (l *LocalDriver) readLoop() {
	defer l.wg.Done()

	order := binary.BigEndian
	var seq uint64

	for {
		select {
		case <-l.stopCh:
			return
		default:
		}

		l.mu.RLock()
		port := l.port
		l.mu.RUnlock()
		if port == nil {
			return
		}

		port.SetReadTimeout(200 * time.Millisecond)

		hdrBuf := make([]byte, 16)
		if _, err := io.ReadFull(port, hdrBuf); err != nil {
			continue
		}
		hdr, err := wire.DecodeHeader(order, hdrBuf)
		if err != nil || !hdr.IsPlausible() {
			l.logger.Warn("malformed frame header on local sensor, resyncing")
			continue
		}
		if hdr.Type != wire.RecordFrame {
			continue
		}

		payload := make([]byte, hdr.Size)
		if _, err := io.ReadFull(port, payload); err != nil {
			l.logger.WithError(err).Warn("local sensor read error")
			continue
		}
		if len(payload) < 2 {
			continue
		}
		count := order.Uint16(payload[:2])
		off := 2
		samples := make([]devicecore.Sample, 0, count)
		for i := uint16(0); i < count && off+8 <= len(payload); i++ {
			raw, err := wire.DecodeRawSample(order, payload[off:off+8])
			if err != nil {
				break
			}
			samples = append(samples, rawSampleToSample(raw))
			off += 8
		}

		seq++
		l.queue.push(devicecore.RawFrame{
			Samples:     samples,
			TimestampMS: hdr.Timestamp,
			SequenceID:  seq,
		})
	}
}

func rawSampleToSample(r wire.RawSample) devicecore.Sample {
	return devicecore.Sample{
		Angle:    float64(r.AngleQ14) / 16384.0 * 2 * 3.14159265358979323846,
		Distance: float64(r.DistMMQ2) / 4000.0,
		Quality:  int(r.Quality),
	}
}
