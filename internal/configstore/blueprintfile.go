package configstore

import (
	"fmt"
	"image"
	_ "image/png"
	"os"
	"path/filepath"
)

// BlueprintDescriptor is one blueprints.json entry: an image path plus
// the world extent/transform needed to ray-march against it (spec
// §6.3: "blueprints.json — image paths + world extent + transform").
type BlueprintDescriptor struct {
	Path              string  `json:"path"`
	MetersPerPixel    float64 `json:"metersPerPixel"`
	OccupiedThreshold uint8   `json:"occupiedThreshold"`
	OriginX           float64 `json:"originX"`
	OriginY           float64 `json:"originY"`
}

// ReadBlueprints loads blueprints.json, keyed by blueprint name. A
// missing file returns an empty map, matching every other optional
// config document's missing-file behavior.
func (s *Store) ReadBlueprints() (map[string]BlueprintDescriptor, error) {
	out := make(map[string]BlueprintDescriptor)
	if err := s.readJSON(BlueprintsFile, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ReadBlueprintImage decodes desc.Path's raster, resolved relative to
// the store's own directory when it isn't already absolute. Grounded
// on driver.Bitmap's own stdlib image.Image consumer: no pack example
// reaches for a third-party decoder over a PNG/JPEG blueprint, so the
// stdlib `image` registry (png registered here, jpeg/gif addable the
// same way) is the idiomatic fit rather than an outlier.
func (s *Store) ReadBlueprintImage(desc BlueprintDescriptor) (image.Image, error) {
	path := desc.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.dir, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("configstore: blueprint image %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("configstore: decode blueprint image %s: %w", path, err)
	}
	return img, nil
}
