package emath

import(
	"fmt"

	"gonum.org/v1/gonum/interp"
)

// A Spline is a cubic spline through (xs, ys). Outside the knots it
// holds the end values. Fewer than three knots fall back to linear
// interpolation.
type Spline struct {
	cubic  *interp.NaturalCubic
	linear *interp.PiecewiseLinear
	slope  float64
	x0, x1 float64
}

// NewSpline fits a spline; xs must be strictly increasing.
func NewSpline(xs, ys []float64) (*Spline, error) {
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("spline: %d xs but %d ys", len(xs), len(ys))
	}
	if len(xs) < 2 {
		return nil, fmt.Errorf("spline: need at least 2 knots, have %d", len(xs))
	}
	for i:=1; i<len(xs); i++ {
		if !(xs[i] > xs[i-1]) {
			return nil, fmt.Errorf("spline: knots not increasing at %d (%g, %g)", i, xs[i-1], xs[i])
		}
	}

	s := &Spline{}
	if len(xs) < 3 {
		s.linear = &interp.PiecewiseLinear{}
		s.slope = (ys[1] - ys[0]) / (xs[1] - xs[0])
		s.x0, s.x1 = xs[0], xs[1]
		return s, s.linear.Fit(xs, ys)
	}
	s.cubic = &interp.NaturalCubic{}
	if err := s.cubic.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("spline: %w", err)
	}
	return s, nil
}

// NewIndexSpline is a spline through ys sampled at 0,1,2,...
func NewIndexSpline(ys []float64) (*Spline, error) {
	xs := make([]float64, len(ys))
	for i := range xs {
		xs[i] = float64(i)
	}
	return NewSpline(xs, ys)
}

func (s *Spline)Predict(x float64) float64 {
	if s.linear != nil {
		return s.linear.Predict(x)
	}
	return s.cubic.Predict(x)
}

// PredictDerivative is zero outside the knots for the linear fallback.
func (s *Spline)PredictDerivative(x float64) float64 {
	if s.linear != nil {
		if x < s.x0 || x > s.x1 {
			return 0
		}
		return s.slope
	}
	return s.cubic.PredictDerivative(x)
}

func (s *Spline)Resample(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = s.Predict(x)
	}
	return out
}
