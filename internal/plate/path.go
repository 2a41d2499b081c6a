package plate

import (
	"fmt"
	"math"
	"strings"
)

// DescribePath renders the travel from o to its bin as a diagonal run over
// min(|dx|, |dy|) followed by the remainder along the longer axis.
func (p *Plate) DescribePath(o Object) string {
	bx, by, ok := p.BinPoint(o.Class)
	if !ok {
		return fmt.Sprintf("(%.1f,%.1f) -> no bin for class %d", o.X, o.Y, o.Class)
	}

	dx, dy := bx-o.X, by-o.Y
	diag := math.Min(math.Abs(dx), math.Abs(dy))
	restX := math.Abs(dx) - diag
	restY := math.Abs(dy) - diag

	dirX := "right"
	if dx < 0 {
		dirX = "left"
	}
	dirY := "up"
	if dy > 0 {
		dirY = "down"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "(%.1f,%.1f)", o.X, o.Y)
	if diag > 0 {
		fmt.Fprintf(&b, " -> diagonal %s-%s %.1fmm", dirX, dirY, diag)
	}
	if restX > 0 {
		fmt.Fprintf(&b, " then %s %.1fmm", dirX, restX)
	} else if restY > 0 {
		fmt.Fprintf(&b, " then %s %.1fmm", dirY, restY)
	}
	fmt.Fprintf(&b, " -> (%.1f,%.1f)", bx, by)
	return b.String()
}
