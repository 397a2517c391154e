package trace

import(
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Separation is the expected distance, in pixels, between neighbouring
// order centers at cross-dispersion position y.
type Separation interface {
	At(y float64) float64
	String() string
}

// LinearSeparation changes by PerKilo pixels for every 1000 pixels of y.
type LinearSeparation struct {
	Sep     float64
	PerKilo float64
}

func (s LinearSeparation)At(y float64) float64 { return s.Sep + y/1000.0*s.PerKilo }
func (s LinearSeparation)String() string       { return fmt.Sprintf("%g%+g/1000px", s.Sep, s.PerKilo) }

// AnchoredSeparation interpolates linearly between (Y, Sep) anchors,
// and extrapolates the end segments.
type AnchoredSeparation struct {
	Y   []float64
	Sep []float64
}

func (s AnchoredSeparation)At(y float64) float64 {
	n := len(s.Y)
	switch n {
	case 0: return 0
	case 1: return s.Sep[0]
	}
	i := sort.SearchFloat64s(s.Y, y)
	if i < 1   { i = 1 }
	if i > n-1 { i = n-1 }
	f := (y - s.Y[i-1]) / (s.Y[i] - s.Y[i-1])
	return s.Sep[i-1] + f*(s.Sep[i]-s.Sep[i-1])
}

func (s AnchoredSeparation)String() string {
	strs := []string{}
	for i := range s.Y {
		strs = append(strs, fmt.Sprintf("%g:%g", s.Y[i], s.Sep[i]))
	}
	return strings.Join(strs, ", ")
}

// ParseSeparation reads either a plain number ("30", combined with
// perKilo) or a list of position:separation anchors ("500:26, 1500:15").
func ParseSeparation(str string, perKilo float64) (Separation, error) {
	str = strings.TrimSpace(str)
	if !strings.Contains(str, ":") {
		v, err := strconv.ParseFloat(str, 64)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("separation '%s': want a positive number or pos:sep list", str)
		}
		return LinearSeparation{Sep: v, PerKilo: perKilo}, nil
	}

	a := AnchoredSeparation{}
	for _, item := range strings.Split(str, ",") {
		g := strings.Split(item, ":")
		if len(g) != 2 {
			return nil, fmt.Errorf("separation '%s': bad anchor '%s'", str, item)
		}
		y, err1 := strconv.ParseFloat(strings.TrimSpace(g[0]), 64)
		v, err2 := strconv.ParseFloat(strings.TrimSpace(g[1]), 64)
		if err1 != nil || err2 != nil || v <= 0 {
			return nil, fmt.Errorf("separation '%s': bad anchor '%s'", str, item)
		}
		a.Y = append(a.Y, y)
		a.Sep = append(a.Sep, v)
	}
	idx := make([]int, len(a.Y))
	for i := range idx { idx[i] = i }
	sort.Slice(idx, func(i, j int) bool { return a.Y[idx[i]] < a.Y[idx[j]] })
	sorted := AnchoredSeparation{}
	for _, i := range idx {
		if n := len(sorted.Y); n > 0 && sorted.Y[n-1] == a.Y[i] {
			return nil, fmt.Errorf("separation '%s': position %g given twice", str, a.Y[i])
		}
		sorted.Y = append(sorted.Y, a.Y[i])
		sorted.Sep = append(sorted.Sep, a.Sep[i])
	}
	return sorted, nil
}

// Params drive FindApertures.
type Params struct {
	ScanStep   int         // columns between scanned cross-sections
	Minimum    float64     // floor applied before taking log10
	Separation Separation
	Filling    float64     // fraction of contributing columns a order must be seen in
	Degree     int         // polynomial degree of the traces
	Clipping   float64     // sigma clipping of the edge line fits
	MaxIter    int
	Verbosity  int
}

func DefaultParams() Params {
	return Params{
		ScanStep:   100,
		Minimum:    1e-3,
		Separation: LinearSeparation{Sep: 30},
		Filling:    0.3,
		Degree:     3,
		Clipping:   3,
		MaxIter:    5,
	}
}

func (p Params)Validate() error {
	switch {
	case p.ScanStep < 1:                  return fmt.Errorf("scan step %d < 1", p.ScanStep)
	case p.Minimum <= 0:                  return fmt.Errorf("minimum %g <= 0", p.Minimum)
	case p.Separation == nil:             return fmt.Errorf("no separation")
	case p.Filling < 0 || p.Filling > 1:  return fmt.Errorf("filling %g outside [0,1]", p.Filling)
	case p.Degree < 0:                    return fmt.Errorf("degree %d < 0", p.Degree)
	}
	return nil
}
