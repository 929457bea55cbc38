package observer

import (
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/kaelari/lumagrid/pkg/utils"
)

// imageTransform maps world meters to a pixel grid, reusing the same
// rotation+translation affine (utils.Pose) DeviceCore uses for device
// registration, with an added scale factor (spec §4.6: "keyed by a
// world-to-pixel transform").
type imageTransform struct {
	Origin utils.Pose
	Scale  float64 // pixels per meter
	Width  int
	Height int
}

// NewImageTransform builds the world-to-pixel transform the HeatMap/
// FlowMap/TraceMap constructors take: origin is the world pose mapped
// to pixel (0,0), scale is pixels per meter.
func NewImageTransform(origin utils.Pose, scale float64, width, height int) imageTransform {
	return imageTransform{Origin: origin, Scale: scale, Width: width, Height: height}
}

func (t imageTransform) pixel(world utils.Point2D) (int, int, bool) {
	local := t.Origin.ToLocal(world)
	px := int(local.X * t.Scale)
	py := int(local.Y * t.Scale)
	if px < 0 || px >= t.Width || py < 0 || py >= t.Height {
		return 0, 0, false
	}
	return px, py, true
}

// imageAccumulator is the shared [...]uint8 buffer every HeatMap/
// FlowMap/TraceMap sink accumulates into between flushes.
type imageAccumulator struct {
	mu        sync.Mutex
	transform imageTransform
	cells     []uint8 // row-major, Width*Height

	path          string
	flushInterval time.Duration
	lastFlush     time.Time
}

func newImageAccumulator(t imageTransform, path string, flushInterval time.Duration) *imageAccumulator {
	return &imageAccumulator{
		transform:     t,
		cells:         make([]uint8, t.Width*t.Height),
		path:          path,
		flushInterval: flushInterval,
	}
}

func (a *imageAccumulator) addAt(px, py int, amount uint8) {
	idx := py*a.transform.Width + px
	if v := int(a.cells[idx]) + int(amount); v > 255 {
		a.cells[idx] = 255
	} else {
		a.cells[idx] = uint8(v)
	}
}

func (a *imageAccumulator) dueToFlush(ts time.Time) bool {
	return a.flushInterval > 0 && (a.lastFlush.IsZero() || ts.Sub(a.lastFlush) >= a.flushInterval)
}

// HeatMapSink adds a Gaussian kernel at every Trackable's pixel per
// frame and periodically flushes the accumulation to a PNG heatmap
// plot (spec §4.6: "HeatMap adds a Gaussian kernel at every Trackable
// per frame"). Grounded on gonum.org/v1/plot's heatmap plotter, the
// same gonum family the teacher uses for EKF/registration math.
type HeatMapSink struct {
	acc        *imageAccumulator
	kernelSize int
	sigma      float64
}

// NewHeatMapSink accumulates into an image sized per transform,
// flushed to path no more often than flushInterval.
func NewHeatMapSink(t imageTransform, path string, flushInterval time.Duration, kernelSize int, sigma float64) *HeatMapSink {
	return &HeatMapSink{acc: newImageAccumulator(t, path, flushInterval), kernelSize: kernelSize, sigma: sigma}
}

func (s *HeatMapSink) Start(ts time.Time) error { return nil }
func (s *HeatMapSink) Stop(ts time.Time) error  { return s.flush(ts) }

func (s *HeatMapSink) Emit(regionName string, ts time.Time, events []Event) error {
	s.acc.mu.Lock()
	for _, ev := range events {
		if ev.Object.Status == StatusLeave {
			continue
		}
		px, py, ok := s.acc.transform.pixel(utils.Point2D{X: ev.Object.X, Y: ev.Object.Y})
		if !ok {
			continue
		}
		s.splat(px, py)
	}
	due := s.acc.dueToFlush(ts)
	s.acc.mu.Unlock()

	if due {
		return s.flush(ts)
	}
	return nil
}

func (s *HeatMapSink) splat(cx, cy int) {
	r := s.kernelSize / 2
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			px, py := cx+dx, cy+dy
			if px < 0 || px >= s.acc.transform.Width || py < 0 || py >= s.acc.transform.Height {
				continue
			}
			dist2 := float64(dx*dx + dy*dy)
			weight := math.Exp(-dist2 / (2 * s.sigma * s.sigma))
			s.acc.addAt(px, py, uint8(weight*32))
		}
	}
}

func (s *HeatMapSink) flush(ts time.Time) error {
	s.acc.mu.Lock()
	grid := heatGrid{acc: s.acc}
	s.acc.lastFlush = ts
	s.acc.mu.Unlock()

	p := plot.New()
	hm := plotter.NewHeatMap(grid, palette.Heat(120, 1))
	p.Add(hm)

	return p.Save(vg.Length(s.acc.transform.Width)*vg.Millimeter, vg.Length(s.acc.transform.Height)*vg.Millimeter, s.acc.path)
}

// heatGrid adapts imageAccumulator to gonum/plot's GridXYZ interface.
type heatGrid struct {
	acc *imageAccumulator
}

func (g heatGrid) Dims() (c, r int) { return g.acc.transform.Width, g.acc.transform.Height }
func (g heatGrid) X(c int) float64  { return float64(c) }
func (g heatGrid) Y(r int) float64  { return float64(r) }
func (g heatGrid) Z(c, r int) float64 {
	return float64(g.acc.cells[r*g.acc.transform.Width+c])
}

// FlowMapSink draws segments between a Trackable's successive
// positions (spec §4.6: "FlowMap draws segments between successive
// positions"). It writes a raw PPM rather than a gonum/plot figure:
// a flow field is a dense set of short line segments, better served
// by direct pixel writes than a scatter/line plot abstraction.
type FlowMapSink struct {
	acc     *imageAccumulator
	lastPos map[string]utils.Point2D
}

// NewFlowMapSink tracks per-id last position to draw motion segments.
func NewFlowMapSink(t imageTransform, path string, flushInterval time.Duration) *FlowMapSink {
	return &FlowMapSink{acc: newImageAccumulator(t, path, flushInterval), lastPos: make(map[string]utils.Point2D)}
}

func (s *FlowMapSink) Start(ts time.Time) error { return nil }
func (s *FlowMapSink) Stop(ts time.Time) error  { return s.flush(ts) }

func (s *FlowMapSink) Emit(regionName string, ts time.Time, events []Event) error {
	s.acc.mu.Lock()
	for _, ev := range events {
		world := utils.Point2D{X: ev.Object.X, Y: ev.Object.Y}
		if ev.Object.Status == StatusLeave {
			delete(s.lastPos, ev.Object.ID)
			continue
		}
		if prev, ok := s.lastPos[ev.Object.ID]; ok {
			s.drawSegment(prev, world)
		}
		s.lastPos[ev.Object.ID] = world
	}
	due := s.acc.dueToFlush(ts)
	s.acc.mu.Unlock()

	if due {
		return s.flush(ts)
	}
	return nil
}

func (s *FlowMapSink) drawSegment(from, to utils.Point2D) {
	x0, y0, ok0 := s.acc.transform.pixel(from)
	x1, y1, ok1 := s.acc.transform.pixel(to)
	if !ok0 || !ok1 {
		return
	}
	for _, p := range bresenham(x0, y0, x1, y1) {
		s.acc.addAt(p[0], p[1], 64)
	}
}

func (s *FlowMapSink) flush(ts time.Time) error {
	s.acc.mu.Lock()
	defer s.acc.mu.Unlock()
	s.acc.lastFlush = ts
	return writePPM(s.acc)
}

// TraceMapSink overlays each Trackable's id as an integer-colored
// pixel (spec §4.6: "TraceMap overlays ids as integer-colored
// pixels"). Like FlowMap, this is a sparse per-frame pixel write, so
// it uses the same raw PPM writer rather than gonum/plot.
type TraceMapSink struct {
	acc *imageAccumulator
}

// NewTraceMapSink accumulates id-colored pixels.
func NewTraceMapSink(t imageTransform, path string, flushInterval time.Duration) *TraceMapSink {
	return &TraceMapSink{acc: newImageAccumulator(t, path, flushInterval)}
}

func (s *TraceMapSink) Start(ts time.Time) error { return nil }
func (s *TraceMapSink) Stop(ts time.Time) error  { return s.flush(ts) }

func (s *TraceMapSink) Emit(regionName string, ts time.Time, events []Event) error {
	s.acc.mu.Lock()
	for _, ev := range events {
		if ev.Object.Status == StatusLeave {
			continue
		}
		px, py, ok := s.acc.transform.pixel(utils.Point2D{X: ev.Object.X, Y: ev.Object.Y})
		if !ok {
			continue
		}
		s.acc.addAt(px, py, idColor(ev.Object.ID))
	}
	due := s.acc.dueToFlush(ts)
	s.acc.mu.Unlock()

	if due {
		return s.flush(ts)
	}
	return nil
}

func idColor(id string) uint8 {
	var h uint32
	for _, r := range id {
		h = h*31 + uint32(r)
	}
	return uint8(h%200) + 55
}

func (s *TraceMapSink) flush(ts time.Time) error {
	s.acc.mu.Lock()
	defer s.acc.mu.Unlock()
	s.acc.lastFlush = ts
	return writePPM(s.acc)
}

// writePPM flushes acc's grayscale cells to a binary PPM (P6) file.
func writePPM(acc *imageAccumulator) error {
	f, err := os.Create(acc.path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "P6\n%d %d\n255\n", acc.transform.Width, acc.transform.Height); err != nil {
		return err
	}
	for _, v := range acc.cells {
		if _, err := f.Write([]byte{v, v, v}); err != nil {
			return err
		}
	}
	return nil
}

// bresenham returns the integer pixel coordinates on the line from
// (x0,y0) to (x1,y1).
func bresenham(x0, y0, x1, y1 int) [][2]int {
	var points [][2]int
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy
	x, y := x0, y0
	for {
		points = append(points, [2]int{x, y})
		if x == x1 && y == y1 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x += sx
		}
		if e2 <= dx {
			err += dx
			y += sy
		}
	}
	return points
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
