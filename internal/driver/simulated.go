package driver

import (
	"fmt"
	"image"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kaelari/lumagrid/internal/devicecore"
)

// Bitmap is the occupancy grid the simulated driver ray-marches against.
// A pixel is occupied if its grayscale value is below OccupiedThreshold.
type Bitmap struct {
	Img               image.Image
	MetersPerPixel    float64
	OccupiedThreshold uint8
}

func (b Bitmap) occupied(wx, wy float64) bool {
	bounds := b.Img.Bounds()
	px := bounds.Min.X + int(wx/b.MetersPerPixel)
	py := bounds.Min.Y + int(wy/b.MetersPerPixel)
	if px < bounds.Min.X || px >= bounds.Max.X || py < bounds.Min.Y || py >= bounds.Max.Y {
		return true // out of bitmap extent counts as a wall
	}
	r, g, bl, _ := b.Img.At(px, py).RGBA()
	gray := uint8((r + g + bl) / 3 >> 8)
	return gray < b.OccupiedThreshold
}

// SimulatedConfig configures a bitmap-driven synthetic sensor.
type SimulatedConfig struct {
	Bitmap       Bitmap
	OriginX      float64 // sensor position in bitmap world coordinates, meters
	OriginY      float64
	MaxRange     float64 // meters
	RangeStep    float64 // ray-march step, meters
	SamplesPerRev int
	ScanHz       float64
	NoiseStdDev  float64 // meters, 0 disables
}

// SimulatedDriver synthesizes RawFrames by ray-marching against a bitmap,
// returning a structure identical to a real device (spec §4.1).
type SimulatedDriver struct {
	mu sync.RWMutex

	cfg    SimulatedConfig
	queue  *frameQueue
	logger *logrus.Logger

	ready  bool
	closed bool
	seq    uint64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewSimulatedDriver creates a SimulatedDriver over cfg.
func NewSimulatedDriver(cfg SimulatedConfig) *SimulatedDriver {
	if cfg.SamplesPerRev == 0 {
		cfg.SamplesPerRev = devicecore.NumSamples
	}
	if cfg.ScanHz == 0 {
		cfg.ScanHz = 10
	}
	if cfg.RangeStep == 0 {
		cfg.RangeStep = 0.02
	}
	if cfg.MaxRange == 0 {
		cfg.MaxRange = 20
	}
	return &SimulatedDriver{
		cfg:    cfg,
		queue:  newFrameQueue(4),
		logger: logrus.New(),
	}
}

func (s *SimulatedDriver) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}
	if s.cfg.Bitmap.Img == nil {
		return fmt.Errorf("%w: simulated driver requires a bitmap", ErrUnsupported)
	}
	s.ready = true
	s.closed = false
	s.stopCh = make(chan struct{})
	s.wg.Add(1)
	go s.scanLoop()
	s.logger.Info("simulated sensor opened")
	return nil
}

func (s *SimulatedDriver) Close() error {
	s.mu.Lock()
	if !s.ready {
		s.closed = true
		s.mu.Unlock()
		return nil
	}
	stopCh := s.stopCh
	s.ready = false
	s.closed = true
	s.mu.Unlock()

	close(stopCh)
	s.wg.Wait()
	return nil
}

func (s *SimulatedDriver) GrabFrame(timeout time.Duration) (devicecore.RawFrame, error) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return devicecore.RawFrame{}, ErrClosed
	}
	return s.queue.pop(timeout)
}

func (s *SimulatedDriver) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

func (s *SimulatedDriver) IsPoweringUp() bool { return false }

func (s *SimulatedDriver) IsSpinning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

func (s *SimulatedDriver) scanLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(time.Duration(float64(time.Second) / s.cfg.ScanHz))
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.mu.Lock()
			s.seq++
			seq := s.seq
			s.mu.Unlock()
			s.queue.push(s.synthesize(seq))
		}
	}
}

// synthesize ray-marches every angle bucket against the bitmap.
func (s *SimulatedDriver) synthesize(seq uint64) devicecore.RawFrame {
	s.mu.RLock()
	cfg := s.cfg
	s.mu.RUnlock()

	samples := make([]devicecore.Sample, cfg.SamplesPerRev)
	for i := 0; i < cfg.SamplesPerRev; i++ {
		angle := 2 * math.Pi * float64(i) / float64(cfg.SamplesPerRev)
		dist, hit := castRay(cfg.Bitmap, cfg.OriginX, cfg.OriginY, angle, cfg.MaxRange, cfg.RangeStep)
		quality := 0
		if hit {
			quality = 47
			if cfg.NoiseStdDev > 0 {
				dist += gaussianNoise(cfg.NoiseStdDev, seq, i)
			}
		}
		samples[i] = devicecore.Sample{Angle: angle, Distance: dist, Quality: quality}
	}

	return devicecore.RawFrame{
		Samples:     samples,
		TimestampMS: uint64(time.Now().UnixMilli()),
		SequenceID:  seq,
	}
}

func castRay(bmp Bitmap, ox, oy, angle, maxRange, step float64) (float64, bool) {
	dx, dy := math.Sin(angle), math.Cos(angle)
	for r := step; r <= maxRange; r += step {
		x, y := ox+dx*r, oy+dy*r
		if bmp.occupied(x, y) {
			return r, true
		}
	}
	return maxRange, false
}

// gaussianNoise produces a deterministic pseudo-Gaussian offset from a
// Box-Muller transform seeded by (seq, bucket) so repeated runs against
// the same bitmap are reproducible.
func gaussianNoise(stddev float64, seq uint64, bucket int) float64 {
	u1 := frac(math.Sin(float64(seq)*12.9898+float64(bucket)*78.233) * 43758.5453)
	u2 := frac(math.Sin(float64(seq)*93.9898+float64(bucket)*67.345) * 24634.6345)
	if u1 <= 0 {
		u1 = 1e-9
	}
	z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
	return z * stddev
}

func frac(v float64) float64 {
	return v - math.Floor(v)
}
