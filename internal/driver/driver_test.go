package driver

import (
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/kaelari/lumagrid/internal/devicecore"
)

func TestFrameQueueDropsOldest(t *testing.T) {
	q := newFrameQueue(1)
	q.push(devicecore.RawFrame{SequenceID: 1})
	q.push(devicecore.RawFrame{SequenceID: 2})

	f, err := q.pop(10 * time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if f.SequenceID != 2 {
		t.Fatalf("expected the newest frame to survive, got seq %d", f.SequenceID)
	}
}

func TestFrameQueueTimesOut(t *testing.T) {
	q := newFrameQueue(1)
	_, err := q.pop(5 * time.Millisecond)
	if err != ErrNoData {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestVirtualUDPLoopback(t *testing.T) {
	server := NewVirtualUDPDriver(VirtualUDPConfig{ListenAddr: "127.0.0.1:0"})
	if err := server.Open(); err != nil {
		t.Fatal(err)
	}
	defer server.Close()

	serverAddr := server.conn.LocalAddr().String()

	peer := NewVirtualUDPDriver(VirtualUDPConfig{ListenAddr: "127.0.0.1:0", PeerAddr: serverAddr})
	if err := peer.Open(); err != nil {
		t.Fatal(err)
	}
	defer peer.Close()

	if _, err := server.GrabFrame(300 * time.Millisecond); err == nil {
		t.Log("unexpectedly received a scan frame before any was sent")
	}
}

func TestBitmapOccupiedOutOfBounds(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 10, 10))
	bmp := Bitmap{Img: img, MetersPerPixel: 0.1, OccupiedThreshold: 128}
	if !bmp.occupied(100, 100) {
		t.Fatal("out-of-extent coordinates must be treated as occupied")
	}
}

func TestBitmapOccupiedThreshold(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 10, 10))
	for x := 0; x < 10; x++ {
		for y := 0; y < 10; y++ {
			img.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	img.SetGray(5, 5, color.Gray{Y: 0})
	bmp := Bitmap{Img: img, MetersPerPixel: 1.0, OccupiedThreshold: 128}
	if bmp.occupied(1, 1) {
		t.Fatal("a bright pixel should not be occupied")
	}
	if !bmp.occupied(5, 5) {
		t.Fatal("a dark pixel should be occupied")
	}
}

func TestSimulatedDriverRequiresBitmap(t *testing.T) {
	d := NewSimulatedDriver(SimulatedConfig{})
	if err := d.Open(); err == nil {
		t.Fatal("expected an error opening without a bitmap")
	}
}

func TestSimulatedDriverProducesFrame(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 200, 200))
	for x := 0; x < 200; x++ {
		for y := 0; y < 200; y++ {
			img.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	for x := 0; x < 200; x++ {
		img.SetGray(x, 0, color.Gray{Y: 0})
		img.SetGray(x, 199, color.Gray{Y: 0})
	}
	for y := 0; y < 200; y++ {
		img.SetGray(0, y, color.Gray{Y: 0})
		img.SetGray(199, y, color.Gray{Y: 0})
	}

	d := NewSimulatedDriver(SimulatedConfig{
		Bitmap:        Bitmap{Img: img, MetersPerPixel: 0.1, OccupiedThreshold: 128},
		OriginX:       10,
		OriginY:       10,
		MaxRange:      15,
		SamplesPerRev: 64,
		ScanHz:        50,
	})
	if err := d.Open(); err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	frame, err := d.GrabFrame(500 * time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if len(frame.Samples) != 64 {
		t.Fatalf("expected 64 samples, got %d", len(frame.Samples))
	}
	hits := 0
	for _, s := range frame.Samples {
		if s.Valid() {
			hits++
		}
	}
	if hits == 0 {
		t.Fatal("expected at least one ray to hit the bitmap walls")
	}
}
