package aperture

import(
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/abworrall/echelle/pkg/emath"
	"github.com/abworrall/echelle/pkg/epoly"
)

// Direction is the image axis an order runs along.
type Direction int

const(
	AlongY Direction = 0
	AlongX Direction = 1
)

func (d Direction)String() string {
	if d == AlongX {
		return "x"
	}
	return "y"
}

// ParseDirection accepts x/X/1 and y/Y/0.
func ParseDirection(s string) (Direction, error) {
	switch strings.TrimSpace(s) {
	case "x", "X", "1": return AlongX, nil
	case "y", "Y", "0": return AlongY, nil
	}
	return AlongY, fmt.Errorf("direction '%s' is not one of x, y", s)
}

// Line picks one of the three lines that can be fitted for an order.
type Line int

const(
	Lower Line = iota
	Center
	Upper
)

var Lines = []Line{Lower, Center, Upper}

func (l Line)String() string {
	return [...]string{"lower", "center", "upper"}[l]
}

func parseLine(s string) (Line, bool) {
	for _, l := range Lines {
		if l.String() == s {
			return l, true
		}
	}
	return Lower, false
}

// A Node is a sample point of a line, in the dispersion frame: Along is
// the coordinate on the axis the order runs along, Across the other.
type Node struct {
	Along  float64
	Across float64
}

// Stats describe the flux under an order's centerline.
type Stats struct {
	NSat   int      // columns with any saturated pixel within the trace mask
	Mean   float64
	Median float64
	Max    float64
}

// A Location is one echelle order. Everything other than the direction
// and shape is optional: a nil pointer or slice means "not fitted yet".
type Location struct {
	Direct  Direction
	Height  int
	Width   int

	Position *epoly.Chebyshev   // along -> across, in pixels
	Nodes    [3][]Node          // indexed by Line
	Coeffs   [3][]float64       // indexed by Line; normalised power series, highest first
	Stats    *Stats
}

func NewLocation(direct Direction, height, width int) *Location {
	return &Location{Direct: direct, Height: height, Width: width}
}

// AlongLength is the image size along the dispersion direction.
func (l *Location)AlongLength() int {
	if l.Direct == AlongX {
		return l.Width
	}
	return l.Height
}

// AcrossLength is the image size across the dispersion direction.
func (l *Location)AcrossLength() int {
	if l.Direct == AlongX {
		return l.Height
	}
	return l.Width
}

// SetPosition installs a fitted centerline; its domain must lie in the image.
func (l *Location)SetPosition(c epoly.Chebyshev) error {
	n := float64(l.AlongLength())
	if c.Domain[0] < 0 || c.Domain[1] > n-1 || c.Domain[0] > c.Domain[1] {
		return fmt.Errorf("position domain [%g, %g] outside [0, %g]", c.Domain[0], c.Domain[1], n-1)
	}
	if len(c.Coeff) == 0 {
		return fmt.Errorf("position has no coefficients")
	}
	l.Position = &c
	return nil
}

// PositionAt is the centerline (across) coordinate at along coordinate x.
func (l *Location)PositionAt(x float64) float64 {
	if l.Position == nil {
		return math.NaN()
	}
	return l.Position.Eval(x)
}

// CenterPosition is the centerline evaluated half way along the order.
func (l *Location)CenterPosition() float64 {
	return l.PositionAt(float64(l.AlongLength()) / 2)
}

// SetNodes stores the nodes for a line, sorted along the dispersion.
func (l *Location)SetNodes(line Line, nodes []Node) {
	nodes = append([]Node(nil), nodes...)
	sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].Along < nodes[j].Along })
	l.Nodes[line] = nodes
}

// FitNodes fits a normalised polynomial to the nodes of a line, with
// sigma clipping. The degree drops to what the node count allows.
func (l *Location)FitNodes(line Line, degree int, clipping float64, maxiter int) (epoly.ClipResult, error) {
	nodes := l.Nodes[line]
	if len(nodes) == 0 {
		return epoly.ClipResult{}, fmt.Errorf("fit %s: no nodes", line)
	}
	if degree > len(nodes)-1 {
		degree = len(nodes)-1
	}

	along, across := float64(l.AlongLength()), float64(l.AcrossLength())
	xs := make([]float64, len(nodes))
	ys := make([]float64, len(nodes))
	for i, n := range nodes {
		xs[i] = n.Along / along
		ys[i] = n.Across / across
	}

	var coeff []float64
	fit := func(mask []bool) ([]float64, error) {
		fx, fy := []float64{}, []float64{}
		for i := range xs {
			if mask[i] {
				fx = append(fx, xs[i])
				fy = append(fy, ys[i])
			}
		}
		deg := degree
		if deg > len(fx)-1 { deg = len(fx)-1 }
		c, err := epoly.Polyfit(fx, fy, deg)
		if err != nil {
			return nil, err
		}
		coeff = epoly.PadLeft(c, degree+1)
		res := make([]float64, len(xs))
		for i := range xs {
			res[i] = ys[i] - epoly.Polyval(coeff, xs[i])
		}
		return res, nil
	}

	clip, err := epoly.SigmaClip(len(xs), fit, epoly.ClipOptions{
		Upper: clipping, Lower: clipping, MaxIter: maxiter, DDof: 1, MinKeep: degree+1,
	})
	if err != nil {
		return clip, fmt.Errorf("fit %s: %w", line, err)
	}
	l.Coeffs[line] = coeff
	return clip, nil
}

// LineAt evaluates a fitted line (in pixels) at along coordinate x.
func (l *Location)LineAt(line Line, x float64) float64 {
	c := l.Coeffs[line]
	if c == nil {
		return math.NaN()
	}
	return epoly.Polyval(c, x/float64(l.AlongLength())) * float64(l.AcrossLength())
}

// MeasureStats computes the quality metrics from the pixels within
// +-halfWidth of the centerline, over the columns of the position domain.
func (l *Location)MeasureStats(data emath.FloatGrid, sat emath.BoolGrid, halfWidth float64) *Stats {
	st := &Stats{}
	if l.Position == nil {
		return st
	}
	d1 := int(math.Ceil(l.Position.Domain[0]))
	d2 := int(math.Floor(l.Position.Domain[1]))
	across := l.AcrossLength()

	peaks := []float64{}
	for x:=d1; x<=d2; x++ {
		c := l.PositionAt(float64(x))
		y1 := int(math.Floor(c - halfWidth)) + 1
		y2 := int(math.Ceil(c + halfWidth)) - 1
		if y1 < 0        { y1 = 0 }
		if y2 > across-1 { y2 = across-1 }
		if y1 > y2 {
			continue
		}

		peak, anySat := math.Inf(-1), false
		for y:=y1; y<=y2; y++ {
			px, py := x, y
			if l.Direct == AlongY {
				px, py = y, x
			}
			if v := data.Get(px, py); v > peak { peak = v }
			if !sat.IsEmpty() && sat.Get(px, py) { anySat = true }
		}
		if anySat { st.NSat++ }
		peaks = append(peaks, peak)
	}

	if len(peaks) > 0 {
		sum := 0.0
		st.Max = peaks[0]
		for _, p := range peaks {
			sum += p
			if p > st.Max { st.Max = p }
		}
		st.Mean = sum / float64(len(peaks))
		st.Median = emath.Median(peaks)
	}
	l.Stats = st
	return st
}

func (l *Location)String() string {
	x := float64(l.AlongLength()) / 2
	c := l.PositionAt(x)
	if l.Direct == AlongY {
		return fmt.Sprintf("Echelle aperture centered at (%4.0f, %4.0f) along y axis", c, x)
	}
	return fmt.Sprintf("Echelle aperture centered at (%4.0f, %4.0f) along x axis", x, c)
}
