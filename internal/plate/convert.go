package plate

import (
	"fmt"
	"math"
)

// Detection is one raw detector record in cropped-frame pixels.
type Detection struct {
	Class string `json:"class"`
	X     int    `json:"x"`
	Y     int    `json:"y"`
}

// Snapshot is one detector result. Crop dimensions belong to the frame that
// was actually analysed and vary between captures.
type Snapshot struct {
	Detections []Detection `json:"objects"`
	CropWidth  int         `json:"crop_width"`
	CropHeight int         `json:"crop_height"`
}

// Validate checks the crop dimensions accompanying the detections.
func (s Snapshot) Validate() error {
	if s.CropWidth <= 0 || s.CropHeight <= 0 {
		return fmt.Errorf("invalid crop dimensions %dx%d", s.CropWidth, s.CropHeight)
	}
	return nil
}

// Labels returns the distinct detected labels in first-seen order.
func (s Snapshot) Labels() []string {
	seen := make(map[string]bool)
	var out []string
	for _, d := range s.Detections {
		if !seen[d.Class] {
			seen[d.Class] = true
			out = append(out, d.Class)
		}
	}
	return out
}

// Mapping is the frozen label -> bin class assignment for a run. It is a
// value; callers pass it explicitly to every conversion.
type Mapping map[string]int

// Dropped records a detection that could not be converted into an Object.
type Dropped struct {
	Index  int
	Label  string
	Reason string
}

// EdgeTolerance is how far, in mm, a mapped detection may fall outside the
// plate and still be clamped onto it. Anything further out is dropped.
const EdgeTolerance = 15.0

// Convert builds a fresh Object set from a snapshot. IDs are assigned 1..n
// in detection order, so they only identify objects within this snapshot.
// Detections whose label has no mapping, or whose mapped class has no bin,
// are dropped and reported. Positions slightly off the plate are clamped to
// its edge; positions more than EdgeTolerance outside are dropped.
func (p *Plate) Convert(s Snapshot, mapping Mapping) ([]Object, []Dropped) {
	m := NewMapper(p)
	var objects []Object
	var dropped []Dropped
	for i, d := range s.Detections {
		idx := i + 1
		class, ok := mapping[d.Class]
		if !ok {
			dropped = append(dropped, Dropped{Index: idx, Label: d.Class, Reason: "no bin assigned to label"})
			continue
		}
		if _, ok := p.Bins[class]; !ok {
			dropped = append(dropped, Dropped{Index: idx, Label: d.Class, Reason: "mapped bin does not exist"})
			continue
		}
		x, y := m.ToPlate(float64(d.X), float64(d.Y), float64(s.CropWidth), float64(s.CropHeight))
		if !m.Contains(x, y) {
			cx, cy := m.Clamp(x, y)
			if math.Abs(cx-x) > EdgeTolerance || math.Abs(cy-y) > EdgeTolerance {
				dropped = append(dropped, Dropped{Index: idx, Label: d.Class, Reason: "outside plate"})
				continue
			}
			x, y = cx, cy
		}
		objects = append(objects, Object{ID: idx, X: x, Y: y, Class: class, Label: d.Class})
	}
	return objects, dropped
}
