package driver

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kaelari/lumagrid/internal/devicecore"
	"github.com/kaelari/lumagrid/internal/wire"
)

// FileConfig configures playback of a previously captured raw scan log.
type FileConfig struct {
	Path string
	Loop bool
	// PlaybackRate scales wall-clock pacing between frames; 1.0 replays at
	// the original recorded cadence, 0 replays as fast as possible.
	PlaybackRate float64
}

// FileDriver replays a raw scan recording written in the same
// Header+RawSample framing as LocalDriver reads from serial (spec §4.1:
// "file (recording playback)"). It paces frames by their recorded
// timestamp delta, scaled by PlaybackRate.
type FileDriver struct {
	mu sync.RWMutex

	cfg    FileConfig
	f      *os.File
	queue  *frameQueue
	logger *logrus.Logger

	ready   bool
	closed  bool
	lastTS  uint64
	haveTS  bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewFileDriver creates a FileDriver over the recording at cfg.Path.
func NewFileDriver(cfg FileConfig) *FileDriver {
	return &FileDriver{
		cfg:    cfg,
		queue:  newFrameQueue(4),
		logger: logrus.New(),
	}
}

// Open opens the recording file and starts the playback loop.
func (f *FileDriver) Open() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.f != nil {
		return nil
	}

	file, err := os.Open(f.cfg.Path)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrIOError, f.cfg.Path, err)
	}

	f.f = file
	f.stopCh = make(chan struct{})
	f.closed = false
	f.ready = true

	f.wg.Add(1)
	go f.playbackLoop()

	f.logger.WithField("path", f.cfg.Path).Info("file playback opened")
	return nil
}

// Close stops playback and closes the file.
func (f *FileDriver) Close() error {
	f.mu.Lock()
	if f.f == nil {
		f.closed = true
		f.mu.Unlock()
		return nil
	}
	file := f.f
	stopCh := f.stopCh
	f.f = nil
	f.ready = false
	f.closed = true
	f.mu.Unlock()

	close(stopCh)
	f.wg.Wait()
	return file.Close()
}

func (f *FileDriver) GrabFrame(timeout time.Duration) (devicecore.RawFrame, error) {
	f.mu.RLock()
	closed := f.closed
	f.mu.RUnlock()
	if closed {
		return devicecore.RawFrame{}, ErrClosed
	}
	return f.queue.pop(timeout)
}

func (f *FileDriver) IsReady() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.ready
}

func (f *FileDriver) IsPoweringUp() bool { return false }

func (f *FileDriver) IsSpinning() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.ready
}

func (f *FileDriver) playbackLoop() {
	defer f.wg.Done()

	order := binary.BigEndian
	for {
		select {
		case <-f.stopCh:
			return
		default:
		}

		f.mu.RLock()
		file := f.f
		f.mu.RUnlock()
		if file == nil {
			return
		}

		hdrBuf := make([]byte, 16)
		if err := wire.ReadFull(file, hdrBuf); err != nil {
			if err == io.EOF {
				if f.cfg.Loop {
					file.Seek(0, io.SeekStart)
					f.mu.Lock()
					f.haveTS = false
					f.mu.Unlock()
					continue
				}
				return // EOF is a normal termination (spec §4.7)
			}
			return
		}

		hdr, err := wire.DecodeHeader(order, hdrBuf)
		if err != nil || !hdr.IsPlausible() || hdr.Type != wire.RecordFrame {
			f.logger.Warn("malformed record in playback file, resyncing")
			continue
		}

		payload := make([]byte, hdr.Size)
		if err := wire.ReadFull(file, payload); err != nil {
			return
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

		f.pace(hdr.Timestamp)

		f.queue.push(devicecore.RawFrame{
			Samples:     samples,
			TimestampMS: hdr.Timestamp,
			SequenceID:  hdr.Timestamp,
		})
	}
}

// pace sleeps to reproduce the recorded inter-frame interval, scaled by
// PlaybackRate; PlaybackRate <= 0 disables pacing entirely.
func (f *FileDriver) pace(ts uint64) {
	if f.cfg.PlaybackRate <= 0 {
		return
	}
	f.mu.Lock()
	last := f.lastTS
	have := f.haveTS
	f.lastTS = ts
	f.haveTS = true
	f.mu.Unlock()

	if !have || ts <= last {
		return
	}
	delta := time.Duration(float64(ts-last) / f.cfg.PlaybackRate) * time.Millisecond
	if delta > 2*time.Second {
		delta = 2 * time.Second
	}
	time.Sleep(delta)
}
