package recorder

import (
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kaelari/lumagrid/internal/wire"
)

// ErrNotSeekable is returned by Seek when the underlying reader does not
// implement io.Seeker.
var ErrNotSeekable = errors.New("recorder: underlying reader is not seekable")

// Player replays a recorder log: open, seek(playPos in [0,1]),
// pause/resume, sync to wall clock, current time, nextHeader/nextFrame
// (spec §4.7). A malformed header is resynced by scanning forward one
// byte at a time until a plausible header is found, logging one
// warning when the scan starts; EOF is a normal termination, not an error condition the
// caller needs to distinguish from "ran out of log".
type Player struct {
	mu    sync.Mutex
	r     io.Reader
	seek  io.Seeker
	size  int64
	order binary.ByteOrder

	paused bool

	haveBaseline  bool
	baselineWall  time.Time
	baselineTrack uint64
	lastTimestamp uint64

	logger *logrus.Logger
}

// Open wraps r for playback. If r also implements io.Seeker, Seek and
// playPos-based positioning become available; otherwise the Player is
// still usable as a forward-only stream.
func Open(r io.Reader, order binary.ByteOrder) *Player {
	p := &Player{r: r, order: order, logger: logrus.StandardLogger()}
	if seeker, ok := r.(io.Seeker); ok {
		p.seek = seeker
		if size, err := seeker.Seek(0, io.SeekEnd); err == nil {
			p.size = size
			_, _ = seeker.Seek(0, io.SeekStart)
		}
	}
	return p
}

// Pause suspends wall-clock synchronized playback; NextHeader/NextFrame
// remain callable (a caller driving its own cadence is unaffected) but
// WaitForWallClock returns immediately until Resume.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
}

// Resume re-arms wall-clock synchronized playback and rebases the
// baseline to now, so playback doesn't "catch up" in a burst after a
// long pause.
func (p *Player) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
	p.haveBaseline = false
}

// SyncToWallClock rebases playback so that the next record's timestamp
// lines up with now; subsequent WaitForWallClock calls pace records at
// the same relative offsets they were recorded at.
func (p *Player) SyncToWallClock(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.baselineWall = now
	p.baselineTrack = p.lastTimestamp
	p.haveBaseline = true
}

// CurrentTime returns the timestamp of the most recently read record.
func (p *Player) CurrentTime() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastTimestamp
}

// WaitForWallClock blocks until wall-clock time has caught up to
// timestampMs relative to the last SyncToWallClock baseline. It
// returns immediately if paused, unsynced, or already caught up.
func (p *Player) WaitForWallClock(timestampMs uint64) {
	p.mu.Lock()
	paused := p.paused
	synced := p.haveBaseline
	baseWall := p.baselineWall
	baseTrack := p.baselineTrack
	p.mu.Unlock()

	if paused || !synced || timestampMs <= baseTrack {
		return
	}
	target := baseWall.Add(time.Duration(timestampMs-baseTrack) * time.Millisecond)
	if d := time.Until(target); d > 0 {
		time.Sleep(d)
	}
}

// Seek repositions playback to a fraction of the file's length
// (playPos in [0, 1]) and resyncs forward to the next plausible
// header, since a byte offset computed from a fraction will generally
// land mid-record.
func (p *Player) Seek(playPos float64) error {
	if p.seek == nil {
		return ErrNotSeekable
	}
	if playPos < 0 {
		playPos = 0
	}
	if playPos > 1 {
		playPos = 1
	}

	p.mu.Lock()
	offset := int64(playPos * float64(p.size))
	_, err := p.seek.Seek(offset, io.SeekStart)
	p.haveBaseline = false
	p.mu.Unlock()
	return err
}

// NextHeader reads the next record header, resyncing past malformed
// data if necessary. io.EOF signals normal end of log.
func (p *Player) NextHeader() (wire.Header, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nextHeaderLocked()
}

func (p *Player) nextHeaderLocked() (wire.Header, error) {
	buf := make([]byte, wire.HeaderSize)
	if err := wire.ReadFull(p.r, buf); err != nil {
		return wire.Header{}, err
	}
	h, err := wire.DecodeHeader(p.order, buf)
	if err == nil && h.IsPlausible() {
		p.lastTimestamp = h.Timestamp
		return h, nil
	}

	p.logger.WithField("bytes_skipped", 1).Warn("recorder: malformed header, resyncing")
	one := buf[1:]
	for {
		var next [1]byte
		if _, err := io.ReadFull(p.r, next[:]); err != nil {
			return wire.Header{}, err
		}
		one = append(one, next[0])
		if len(one) > wire.HeaderSize {
			one = one[len(one)-wire.HeaderSize:]
		}
		if len(one) < wire.HeaderSize {
			continue
		}
		h, err := wire.DecodeHeader(p.order, one)
		if err == nil && h.IsPlausible() {
			p.lastTimestamp = h.Timestamp
			return h, nil
		}
	}
}

// Frame is a decoded Frame record: its header plus the packed object
// tuples that followed it.
type Frame struct {
	Header  wire.Header
	Objects []wire.ObjectRecord
}

// NextFrame reads the next record. If it is a Frame record its
// payload is decoded into Objects; Start/Stop records are returned
// with a nil Objects slice, still advancing the stream past their
// (empty) payload.
func (p *Player) NextFrame() (Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	h, err := p.nextHeaderLocked()
	if err != nil {
		return Frame{}, err
	}
	if h.Size == 0 {
		return Frame{Header: h}, nil
	}

	payload := make([]byte, h.Size)
	if err := wire.ReadFull(p.r, payload); err != nil {
		return Frame{}, err
	}
	if h.Type != wire.RecordFrame {
		return Frame{Header: h}, nil
	}

	count := p.order.Uint32(payload[0:4])
	objects := make([]wire.ObjectRecord, 0, count)
	off := 4
	for i := uint32(0); i < count; i++ {
		if off+wire.ObjectRecordSize > len(payload) {
			break
		}
		obj, err := wire.DecodeObjectRecord(p.order, payload[off:off+wire.ObjectRecordSize])
		if err != nil {
			break
		}
		objects = append(objects, obj)
		off += wire.ObjectRecordSize
	}
	return Frame{Header: h, Objects: objects}, nil
}
