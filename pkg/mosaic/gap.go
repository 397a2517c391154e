package mosaic

import(
	"fmt"
	"log"
	"math"

	"gonum.org/v1/gonum/optimize"

	"github.com/abworrall/echelle/pkg/aperture"
	"github.com/abworrall/echelle/pkg/emath"
	"github.com/abworrall/echelle/pkg/epoly"
)

type GapOptions struct {
	Left      int   // window width below the current estimate
	Right     int   // window width above it
	Step      int   // rows between correlated cross-sections
	Degree    int
	MaxShift  int   // shifts in [-MaxShift, MaxShift) are tried
	Verbosity int
}

func DefaultGapOptions() GapOptions {
	return GapOptions{Left: 50, Right: 50, Step: 50, Degree: 4, MaxShift: 10}
}

// A Gap is a boundary traced between two orders. Coeff maps the row
// fraction to the column fraction. Lost is set when the trace left the
// image before reaching the first or last row, in which case Coeff only
// fits the part that was followed.
type Gap struct {
	Coeff []float64
	Nodes []aperture.Node   // Along = row, Across = column
	Lost  bool
}

// DetectGap follows a boundary through view, whose row number is the
// position along the dispersion, starting at column x0 on the middle
// row. Each step cross correlates a window around the current column
// with the same window Step rows further on, and moves the column by
// the best shift.
func DetectGap(view emath.FloatGrid, x0 float64, opt GapOptions) (Gap, error) {
	h, w := view.Dy(), view.Dx()
	if x0 < 0 || x0 > float64(w-1) {
		return Gap{}, fmt.Errorf("detect gap: start column %.1f outside image", x0)
	}
	if opt.Step < 1 || opt.MaxShift < 1 {
		return Gap{}, fmt.Errorf("detect gap: bad options %+v", opt)
	}

	row0 := h/2
	nodes := []aperture.Node{{Along: float64(row0), Across: x0}}
	lost := false

	for _, dir := range []int{+1, -1} {
		row1, xpoint := row0, x0
		for {
			row2 := row1 + dir*opt.Step
			if row2 < 0 || row2 > h-1 {
				break
			}
			shift, ok := bestShift(view, row1, row2, xpoint, opt)
			if !ok {
				if opt.Verbosity > 0 {
					log.Printf("detect gap: window at row %d col %.1f left the image", row2, xpoint)
				}
				lost = true
				break
			}
			xpoint += shift
			if xpoint <= -float64(w)/2 || xpoint >= 1.5*float64(w) {
				if opt.Verbosity > 0 {
					log.Printf("detect gap: drifted to col %.1f at row %d", xpoint, row2)
				}
				lost = true
				break
			}
			nodes = append(nodes, aperture.Node{Along: float64(row2), Across: xpoint})
			row1 = row2
		}
	}

	if len(nodes) < 2 {
		return Gap{Nodes: nodes, Lost: true}, fmt.Errorf("detect gap from column %.1f: %w", x0, ErrGapLost)
	}

	xs := make([]float64, len(nodes))
	ys := make([]float64, len(nodes))
	for i, n := range nodes {
		xs[i] = n.Along / float64(h)
		ys[i] = n.Across / float64(w)
	}
	deg := opt.Degree
	if deg > len(nodes)-1 { deg = len(nodes)-1 }
	coeff, err := epoly.Polyfit(xs, ys, deg)
	if err != nil {
		return Gap{Nodes: nodes, Lost: lost}, fmt.Errorf("detect gap: %v", err)
	}
	return Gap{Coeff: epoly.PadLeft(coeff, opt.Degree+1), Nodes: nodes, Lost: lost}, nil
}

// bestShift finds the sub-pixel shift that best registers row2 against
// row1 in a window around xpoint. It is false when the window no
// longer fits in the image.
func bestShift(view emath.FloatGrid, row1, row2 int, xpoint float64, opt GapOptions) (float64, bool) {
	w := view.Dx()
	x1 := int(xpoint) - opt.Left
	x2 := int(xpoint) + opt.Right
	if x1 < 0 { x1 = 0 }
	if x2 > w { x2 = w }
	if x2-x1 < 2*opt.MaxShift+4 {
		return 0, false
	}

	data1 := view.Row(row1)[x1:x2]
	spl2, err := emath.NewIndexSpline(view.Row(row2))
	if err != nil {
		return 0, false
	}

	norm1 := 0.0
	for _, v := range data1 {
		norm1 += v*v
	}

	shifts := []float64{}
	negCorr := []float64{}
	for j:=-opt.MaxShift; j<opt.MaxShift; j++ {
		dot, norm3 := 0.0, 0.0
		for i, v := range data1 {
			d3 := spl2.Predict(float64(x1+i+j))
			dot += v*d3
			norm3 += d3*d3
		}
		c := 0.0
		if norm1 > 0 && norm3 > 0 {
			c = dot / math.Sqrt(norm1*norm3)
		}
		shifts = append(shifts, float64(j))
		negCorr = append(negCorr, -c)
	}

	start := shifts[emath.ArgMax(negate(negCorr))]
	corrSpl, err := emath.NewSpline(shifts, negCorr)
	if err != nil {
		return start, true
	}

	lo, hi := shifts[0], shifts[len(shifts)-1]
	prob := optimize.Problem{Func: func(x []float64) float64 {
		if x[0] < lo || x[0] > hi {
			return math.Inf(1)
		}
		return corrSpl.Predict(x[0])
	}}
	res, err := optimize.Minimize(prob, []float64{start}, &optimize.Settings{MajorIterations: 200}, &optimize.NelderMead{})
	if err != nil || res == nil || math.IsNaN(res.X[0]) {
		return start, true
	}
	return res.X[0], true
}

func negate(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = -f
	}
	return out
}
