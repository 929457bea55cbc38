package configstore

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func TestReadBlueprintsMissingFileReturnsEmptyMap(t *testing.T) {
	s := New(t.TempDir())
	out, err := s.ReadBlueprints()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("got %v, want empty map", out)
	}
}

func TestBlueprintRoundTripDecodesRelativeImage(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	imgPath := filepath.Join(dir, "lobby.png")
	writeTestPNG(t, imgPath, 10, 10)

	desc := BlueprintDescriptor{Path: "lobby.png", MetersPerPixel: 0.05, OccupiedThreshold: 32, OriginX: 1, OriginY: 2}
	if err := s.writeJSON(BlueprintsFile, map[string]BlueprintDescriptor{"lobby": desc}); err != nil {
		t.Fatal(err)
	}

	blueprints, err := s.ReadBlueprints()
	if err != nil {
		t.Fatalf("read blueprints: %v", err)
	}
	got, ok := blueprints["lobby"]
	if !ok {
		t.Fatal("expected a lobby blueprint entry")
	}
	if got.MetersPerPixel != 0.05 || got.OriginX != 1 {
		t.Errorf("got %+v", got)
	}

	img, err := s.ReadBlueprintImage(got)
	if err != nil {
		t.Fatalf("read blueprint image: %v", err)
	}
	if img.Bounds().Dx() != 10 || img.Bounds().Dy() != 10 {
		t.Errorf("image bounds = %v, want 10x10", img.Bounds())
	}
}

func writeTestPNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}
