package trace

import(
	"fmt"
	"image/color"

	"github.com/fogleman/gg"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/abworrall/echelle/pkg/aperture"
	"github.com/abworrall/echelle/pkg/emath"
)

// WriteOverlay draws every fitted order over a log-scaled rendering of
// the flat, and saves it as a PNG no bigger than maxSide pixels.
func WriteOverlay(data emath.FloatGrid, set *aperture.Set, title, filename string, maxSide int) error {
	lo, hi := data.FindMaxMinAtPercentile(0.01, 0.999)
	dc := gg.NewContextForImage(data.ToImage(lo, hi))
	dc.SetLineWidth(1.5)

	keys := set.Keys()
	cols := aperture.OrderColors(len(keys))
	for i, k := range keys {
		l, _ := set.Get(k)
		if l.Position == nil {
			continue
		}
		frame := emath.Identity()
		if l.Direct == aperture.AlongY {
			frame = frame.SwapXY()
		}
		dc.SetColor(cols[i])
		along := emath.Linspace(l.Position.Domain[0], l.Position.Domain[1], 100)
		for j, a := range along {
			x, y := frame.Apply(a, l.PositionAt(a))
			if j == 0 {
				dc.MoveTo(x, y)
			} else {
				dc.LineTo(x, y)
			}
		}
		dc.Stroke()

		x, y := frame.Apply(along[0], l.PositionAt(along[0]))
		dc.DrawString(fmt.Sprintf("%d", k), x+4, y-4)
	}

	dc.SetRGB(1,1,0)
	dc.DrawString(title, 20, 20)
	return gg.SavePNG(filename, emath.Thumbnail(dc.Image(), maxSide))
}

// WriteStackPlot plots the stacked cross-section, with the accepted
// orders marked.
func WriteStackPlot(diag *Diagnostics, title, filename string) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "position at central column (px)"
	p.Y.Label.Text = "stacked flux"

	pts := plotter.XYs{}
	for i, v := range diag.Mean {
		if diag.Count[i] > 0 && v > 0 {
			pts = append(pts, plotter.XY{X: float64(i + diag.Offset), Y: v})
		}
	}
	if len(pts) == 0 {
		return fmt.Errorf("stack plot: nothing to plot")
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("stack plot: %v", err)
	}
	line.LineStyle.Width = vg.Points(0.7)
	p.Add(line)

	marks := plotter.XYs{}
	for _, y := range diag.Orders {
		i := int(y) - diag.Offset
		if i >= 0 && i < len(diag.Mean) {
			marks = append(marks, plotter.XY{X: y, Y: diag.Mean[i]})
		}
	}
	if len(marks) > 0 {
		sc, err := plotter.NewScatter(marks)
		if err != nil {
			return fmt.Errorf("stack plot: %v", err)
		}
		sc.GlyphStyle.Color = color.RGBA{R: 220, A: 255}
		p.Add(sc)
	}
	p.Add(plotter.NewGrid())

	return p.Save(10*vg.Inch, 4*vg.Inch, filename)
}

// WriteSeparationPlot compares the measured spacing of the orders with
// the expected separation.
func WriteSeparationPlot(set *aperture.Set, sep Separation, title, filename string) error {
	keys := set.Keys()
	if len(keys) < 2 {
		return fmt.Errorf("separation plot: need 2 apertures")
	}
	measured := plotter.XYs{}
	expected := plotter.XYs{}
	for i:=1; i<len(keys); i++ {
		l0, _ := set.Get(keys[i-1])
		l1, _ := set.Get(keys[i])
		c0, c1 := l0.CenterPosition(), l1.CenterPosition()
		y := 0.5 * (c0 + c1)
		measured = append(measured, plotter.XY{X: y, Y: c1 - c0})
		expected = append(expected, plotter.XY{X: y, Y: sep.At(y)})
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "position (px)"
	p.Y.Label.Text = "order separation (px)"

	m, err := plotter.NewScatter(measured)
	if err != nil {
		return fmt.Errorf("separation plot: %v", err)
	}
	e, err := plotter.NewLine(expected)
	if err != nil {
		return fmt.Errorf("separation plot: %v", err)
	}
	e.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(m, e, plotter.NewGrid())
	p.Legend.Add("measured", m)
	p.Legend.Add("expected "+sep.String(), e)

	return p.Save(6*vg.Inch, 4*vg.Inch, filename)
}
