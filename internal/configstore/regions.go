package configstore

import (
	"github.com/kaelari/lumagrid/internal/region"
)

// RegionDescriptor is the on-disk shape of one regions.json entry
// (spec §6.3): { x, y, w, h, shape, edge, invert, tags, layers }.
type RegionDescriptor struct {
	X      float64  `json:"x"`
	Y      float64  `json:"y"`
	W      float64  `json:"w"`
	H      float64  `json:"h"`
	Shape  string   `json:"shape"`
	Edge   string   `json:"edge"`
	Invert bool     `json:"invert"`
	Tags   []string `json:"tags"`
	Layers []string `json:"layers"`
}

var shapeNames = map[region.Shape]string{region.Rectangle: "rectangle", region.Ellipse: "ellipse"}
var shapeValues = map[string]region.Shape{"rectangle": region.Rectangle, "ellipse": region.Ellipse}

var edgeNames = map[region.Edge]string{
	region.EdgeNone: "none", region.EdgeLeft: "left", region.EdgeRight: "right",
	region.EdgeTop: "top", region.EdgeBottom: "bottom",
}
var edgeValues = map[string]region.Edge{
	"none": region.EdgeNone, "left": region.EdgeLeft, "right": region.EdgeRight,
	"top": region.EdgeTop, "bottom": region.EdgeBottom,
}

// WriteRegions persists the registry's regions as regions.json.
func (s *Store) WriteRegions(reg *region.Registry) error {
	out := make(map[string]RegionDescriptor)
	for _, r := range reg.All() {
		out[r.Name] = toDescriptor(r)
	}
	return s.writeJSON(RegionsFile, out)
}

// ReadRegions loads regions.json into reg, adding or replacing each
// named Region.
func (s *Store) ReadRegions(reg *region.Registry) error {
	var in map[string]RegionDescriptor
	if err := s.readJSON(RegionsFile, &in); err != nil {
		return err
	}
	for name, d := range in {
		reg.Add(fromDescriptor(name, d))
	}
	return nil
}

func toDescriptor(r *region.Region) RegionDescriptor {
	d := RegionDescriptor{
		X: r.CX, Y: r.CY, W: r.Width, H: r.Height,
		Shape: shapeNames[r.Shape], Edge: edgeNames[r.Edge], Invert: r.Invert,
	}
	for t := range r.Tags {
		d.Tags = append(d.Tags, t)
	}
	for l := range r.Layers {
		d.Layers = append(d.Layers, l)
	}
	return d
}

func fromDescriptor(name string, d RegionDescriptor) *region.Region {
	r := region.New(name, d.X, d.Y, d.W, d.H, shapeValues[d.Shape])
	r.Edge = edgeValues[d.Edge]
	r.Invert = d.Invert
	for _, t := range d.Tags {
		r.Tags[t] = true
	}
	for _, l := range d.Layers {
		r.Layers[l] = true
	}
	return r
}
