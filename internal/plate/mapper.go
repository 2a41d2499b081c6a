package plate

import "math"

// Mapper converts cropped-frame pixel centroids into plate millimetres.
// Pixel origin is the top-left of the crop; plate origin is bottom-left.
// Camera X is mirrored relative to plate X.
type Mapper struct {
	Width  float64
	Height float64
}

// NewMapper returns a Mapper for a plate of the given size.
func NewMapper(p *Plate) Mapper {
	return Mapper{Width: p.Width, Height: p.Height}
}

// ToPlate maps (px, py) in a cropW x cropH frame to plate coordinates,
// rounded to 0.01 mm. Inputs outside the frame are not clamped; callers
// decide whether to clamp or reject.
func (m Mapper) ToPlate(px, py, cropW, cropH float64) (x, y float64) {
	x = (1 - px/cropW) * m.Width
	y = (py / cropH) * m.Height
	return round2(x), round2(y)
}

// Contains reports whether (x, y) lies on the plate.
func (m Mapper) Contains(x, y float64) bool {
	return x >= 0 && x <= m.Width && y >= 0 && y <= m.Height
}

// Clamp limits (x, y) to the plate bounds.
func (m Mapper) Clamp(x, y float64) (float64, float64) {
	return math.Min(math.Max(x, 0), m.Width), math.Min(math.Max(y, 0), m.Height)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
