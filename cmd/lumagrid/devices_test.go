package main

import (
	"image"
	"testing"

	"github.com/kaelari/lumagrid/internal/configstore"
	"github.com/sirupsen/logrus"
)

func TestDefaultSimulatedConfigFreeSpaceBitmap(t *testing.T) {
	cfg := defaultSimulatedConfig()
	if cfg.Bitmap.Img == nil {
		t.Fatal("expected a non-nil bitmap image")
	}
	gray, ok := cfg.Bitmap.Img.(*image.Gray)
	if !ok {
		t.Fatalf("expected an *image.Gray bitmap, got %T", cfg.Bitmap.Img)
	}
	for _, px := range gray.Pix {
		if px != 255 {
			t.Fatalf("expected an all-free bitmap, found pixel value %d", px)
		}
	}
	if cfg.SamplesPerRev <= 0 {
		t.Errorf("SamplesPerRev = %d, want > 0", cfg.SamplesPerRev)
	}
	if cfg.MaxRange <= 0 || cfg.RangeStep <= 0 {
		t.Errorf("MaxRange=%v RangeStep=%v, want both > 0", cfg.MaxRange, cfg.RangeStep)
	}
}

func TestParseDeviceSpecRejectsEmptyAddress(t *testing.T) {
	if _, err := parseDeviceSpec("local:"); err == nil {
		t.Fatal("expected a usage error for an empty address")
	}
}

func TestParseDeviceSpecRejectsEmptyType(t *testing.T) {
	if _, err := parseDeviceSpec(":/dev/ttyUSB0"); err == nil {
		t.Fatal("expected a usage error for an empty type")
	}
}

func TestSimulatedConfigFallsBackWithoutStore(t *testing.T) {
	a := &app{logger: logrus.New()}
	cfg := a.simulatedConfig("lobby")
	if cfg.Bitmap.Img == nil {
		t.Fatal("expected the free-space fallback bitmap when no store is set")
	}
}

func TestSimulatedConfigFallsBackOnUnknownBlueprint(t *testing.T) {
	a := &app{logger: logrus.New(), store: configstore.New(t.TempDir())}
	cfg := a.simulatedConfig("no-such-blueprint")
	if cfg.Bitmap.MetersPerPixel != defaultSimulatedConfig().Bitmap.MetersPerPixel {
		t.Fatal("expected the free-space fallback when the blueprint name isn't registered")
	}
}
