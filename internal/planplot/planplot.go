// Package planplot renders a scheduled plan as a PNG of the plate.
package planplot

import (
	"fmt"
	"image/color"
	"os"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/platesort/internal/plate"
	"github.com/banshee-data/platesort/internal/schedule"
	"github.com/banshee-data/platesort/internal/security"
)

// Renderer writes plan plots into a directory.
type Renderer struct {
	dir  string
	size vg.Length
}

// New returns a renderer writing into dir, creating it if needed.
func New(dir string) (*Renderer, error) {
	if dir == "" {
		return nil, fmt.Errorf("plot directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create plot directory: %w", err)
	}
	return &Renderer{dir: dir, size: 8 * vg.Inch}, nil
}

// PlotPlan saves the plan of one round and returns the file path.
func (r *Renderer) PlotPlan(runID string, round int, p *plate.Plate, plan []schedule.Entry) (string, error) {
	pl, err := Render(p, plan)
	if err != nil {
		return "", err
	}
	pl.Title.Text = fmt.Sprintf("Run %s round %d: %d objects", shortID(runID), round, len(plan))

	file, err := security.JoinWithin(r.dir, fmt.Sprintf("plan_%s_round%02d.png", shortID(runID), round))
	if err != nil {
		return "", err
	}
	if err := pl.Save(r.size, r.size, file); err != nil {
		return "", fmt.Errorf("save plan plot: %w", err)
	}
	return file, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Render builds the plot: plate outline, bin points on the edge, objects
// coloured by class with their push path and rank.
func Render(p *plate.Plate, plan []schedule.Entry) (*plot.Plot, error) {
	pl := plot.New()
	pl.X.Label.Text = "X (mm)"
	pl.Y.Label.Text = "Y (mm)"
	pl.X.Min, pl.X.Max = 0, p.Width
	pl.Y.Min, pl.Y.Max = 0, p.Height
	pl.Add(plotter.NewGrid())

	outline, err := plotter.NewLine(plotter.XYs{
		{X: 0, Y: 0}, {X: p.Width, Y: 0}, {X: p.Width, Y: p.Height}, {X: 0, Y: p.Height}, {X: 0, Y: 0},
	})
	if err != nil {
		return nil, fmt.Errorf("outline: %w", err)
	}
	outline.Width = vg.Points(1)
	pl.Add(outline)

	classes := p.Classes()
	colors := classColors(len(classes))
	colorOf := make(map[int]color.Color, len(classes))
	for i, c := range classes {
		colorOf[c] = colors[i]
	}

	for _, c := range classes {
		x, y, _ := p.BinPoint(c)
		bin, err := plotter.NewScatter(plotter.XYs{{X: x, Y: y}})
		if err != nil {
			return nil, fmt.Errorf("bin %d: %w", c, err)
		}
		bin.GlyphStyle.Shape = draw.TriangleGlyph{}
		bin.GlyphStyle.Radius = vg.Points(6)
		bin.GlyphStyle.Color = colorOf[c]
		pl.Add(bin)
		pl.Legend.Add(fmt.Sprintf("bin %d", c), bin)
	}

	labels := plotter.XYLabels{}
	for _, e := range plan {
		o := e.Object
		bx, by, ok := p.BinPoint(o.Class)
		if !ok {
			continue
		}
		path, err := plotter.NewLine(plotter.XYs{{X: o.X, Y: o.Y}, {X: bx, Y: by}})
		if err != nil {
			return nil, fmt.Errorf("path %d: %w", e.Rank, err)
		}
		path.Color = colorOf[o.Class]
		path.Width = vg.Points(0.75)
		path.Dashes = []vg.Length{vg.Points(3), vg.Points(2)}

		dot, err := plotter.NewScatter(plotter.XYs{{X: o.X, Y: o.Y}})
		if err != nil {
			return nil, fmt.Errorf("object %d: %w", e.Rank, err)
		}
		dot.GlyphStyle.Shape = draw.CircleGlyph{}
		dot.GlyphStyle.Radius = vg.Points(4)
		dot.GlyphStyle.Color = colorOf[o.Class]
		pl.Add(path, dot)

		labels.XYs = append(labels.XYs, plotter.XY{X: o.X, Y: o.Y})
		labels.Labels = append(labels.Labels, strconv.Itoa(e.Rank))
	}
	if len(labels.XYs) > 0 {
		l, err := plotter.NewLabels(labels)
		if err != nil {
			return nil, fmt.Errorf("labels: %w", err)
		}
		for i := range l.TextStyle {
			l.TextStyle[i].XAlign = draw.XLeft
		}
		l.Offset = vg.Point{X: vg.Points(5), Y: vg.Points(3)}
		pl.Add(l)
	}

	pl.Legend.Top = true
	pl.Legend.Left = true
	return pl, nil
}

// classColors creates a palette of distinct colors for bins
func classColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.45)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64
	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}
	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	if t < 1.0/6.0 {
		return p + (q-p)*6*t
	}
	if t < 1.0/2.0 {
		return q
	}
	if t < 2.0/3.0 {
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
