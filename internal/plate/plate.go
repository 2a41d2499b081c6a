// Package plate models the working surface: the movable objects detected on
// it, the fixed collection bins along its far edge, and the geometric queries
// the scheduler ranks objects by.
package plate

import (
	"fmt"
	"math"
	"sort"
)

// DefaultMargin is the half-width of the push corridors in millimetres.
const DefaultMargin = 20.0

// Object is one detected movable item. IDs are only unique within the scan
// that produced them and must not be compared across scans.
type Object struct {
	ID    int     `json:"id"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Class int     `json:"class"`
	Label string  `json:"label,omitempty"`
}

func (o Object) String() string {
	return fmt.Sprintf("P%d(pos=(%.1f,%.1f)mm, cl=%d)", o.ID, o.X, o.Y, o.Class)
}

// Bin is a fixed collection point on the edge x = Plate.Width.
type Bin struct {
	Class        int     `json:"class"`
	EdgePosition float64 `json:"edge_position"`
}

// Plate is the working surface geometry. It is immutable for a run.
type Plate struct {
	Width  float64
	Height float64
	Bins   map[int]Bin
}

// New builds a Plate from bin edge positions keyed by class.
func New(width, height float64, edges map[int]float64) (*Plate, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("plate dimensions must be positive, got %.2fx%.2f", width, height)
	}
	bins := make(map[int]Bin, len(edges))
	for class, pos := range edges {
		bins[class] = Bin{Class: class, EdgePosition: pos}
	}
	return &Plate{Width: width, Height: height, Bins: bins}, nil
}

// Bin returns the destination bin for class.
func (p *Plate) Bin(class int) (Bin, bool) {
	b, ok := p.Bins[class]
	return b, ok
}

// BinPoint returns the 2-D coordinate of the bin for class.
func (p *Plate) BinPoint(class int) (x, y float64, ok bool) {
	b, ok := p.Bins[class]
	if !ok {
		return 0, 0, false
	}
	return p.Width, b.EdgePosition, true
}

// BinEdges returns the bin geometry as {class: edge_position}, for display.
func (p *Plate) BinEdges() map[int]float64 {
	out := make(map[int]float64, len(p.Bins))
	for class, b := range p.Bins {
		out[class] = b.EdgePosition
	}
	return out
}

// Classes returns the bin classes in ascending order.
func (p *Plate) Classes() []int {
	out := make([]int, 0, len(p.Bins))
	for class := range p.Bins {
		out = append(out, class)
	}
	sort.Ints(out)
	return out
}

// EdgeDistance is the remaining X travel to the collection edge.
func (p *Plate) EdgeDistance(o Object) float64 {
	return p.Width - o.X
}

// LateralDistance is the Y travel needed to align o with its bin.
func (p *Plate) LateralDistance(o Object) float64 {
	_, by, ok := p.BinPoint(o.Class)
	if !ok {
		return math.Inf(1)
	}
	return math.Abs(o.Y - by)
}

// ManhattanDistance is the total axis-aligned travel from o to its bin.
// Objects without a bin report +Inf.
func (p *Plate) ManhattanDistance(o Object) float64 {
	bx, by, ok := p.BinPoint(o.Class)
	if !ok {
		return math.Inf(1)
	}
	return math.Abs(o.X-bx) + math.Abs(o.Y-by)
}

// OnPath reports whether other lies inside one of the two corridors swept
// when o is pushed to its bin: the vertical corridor around o.X spanning o.Y
// to the bin row, and the horizontal corridor around the bin row spanning
// o.X to the edge. The test is not symmetric in o and other.
func (p *Plate) OnPath(o, other Object, margin float64) bool {
	bx, by, ok := p.BinPoint(o.Class)
	if !ok {
		return false
	}

	yMin, yMax := math.Min(o.Y, by), math.Max(o.Y, by)
	if math.Abs(other.X-o.X) <= margin && yMin-margin <= other.Y && other.Y <= yMax+margin {
		return true
	}

	xMin, xMax := math.Min(o.X, bx), math.Max(o.X, bx)
	if xMin-margin <= other.X && other.X <= xMax+margin && math.Abs(other.Y-by) <= margin {
		return true
	}
	return false
}

// PathCollisionCount counts the objects in others, excluding o itself, that
// lie on o's push path.
func (p *Plate) PathCollisionCount(o Object, others []Object, margin float64) int {
	n := 0
	for _, other := range others {
		if other.ID == o.ID {
			continue
		}
		if p.OnPath(o, other, margin) {
			n++
		}
	}
	return n
}
