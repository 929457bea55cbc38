package tracker

import "image"

// OcclusionMap samples an RGBA bitmap to classify a world position
// per the trackOcclusionMap rule (spec §4.4): red+green → Occluded,
// red → Portal, blue → Private. A green-only pixel marks a region
// that simply permits tracking (no restriction), mapped here to
// FlagActivated since it otherwise carries no listed flag.
type OcclusionMap struct {
	Img            image.Image
	MetersPerPixel float64
	OriginX        float64
	OriginY        float64
}

// Classify returns the flag bits contributed by the bitmap at world
// position (x, y). A position outside the bitmap's extent or a nil
// map contributes no flags.
func (m *OcclusionMap) Classify(x, y float64) Flags {
	if m == nil || m.Img == nil {
		return 0
	}
	bounds := m.Img.Bounds()
	px := bounds.Min.X + int((x-m.OriginX)/m.MetersPerPixel)
	py := bounds.Min.Y + int((y-m.OriginY)/m.MetersPerPixel)
	if px < bounds.Min.X || px >= bounds.Max.X || py < bounds.Min.Y || py >= bounds.Max.Y {
		return 0
	}

	r, g, b, _ := m.Img.At(px, py).RGBA()
	red := r>>8 > 127
	green := g>>8 > 127
	blue := b>>8 > 127

	switch {
	case red && green:
		return FlagOccluded
	case red:
		return FlagPortal
	case blue:
		return FlagPrivate
	case green:
		return FlagActivated
	default:
		return 0
	}
}
