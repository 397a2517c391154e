package epoly

// Power series polynomials. Coefficients are ordered highest degree
// first, the layout the trace and mosaic files use.

import(
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

func Polyval(coeff []float64, x float64) float64 {
	v := 0.0
	for _, c := range coeff {
		v = v*x + c
	}
	return v
}

// Polyfit is the least squares polynomial of degree deg through (x,y).
func Polyfit(x, y []float64, deg int) ([]float64, error) {
	if len(x) != len(y) {
		return nil, fmt.Errorf("polyfit: %d x but %d y", len(x), len(y))
	}
	if deg < 0 {
		return nil, fmt.Errorf("polyfit: bad degree %d", deg)
	}
	if len(x) == 0 {
		return nil, fmt.Errorf("polyfit: no points")
	}

	a := mat.NewDense(len(x), deg+1, nil)
	for i, xi := range x {
		p := 1.0
		for j:=deg; j>=0; j-- {
			a.Set(i, j, p)
			p *= xi
		}
	}
	return solveLeastSquares(a, y)
}

// PadLeft prepends zeros so coeff has n entries. For a power series
// this raises the nominal degree without changing the curve.
func PadLeft(coeff []float64, n int) []float64 {
	if len(coeff) >= n {
		return coeff
	}
	out := make([]float64, n)
	copy(out[n-len(coeff):], coeff)
	return out
}

func solveLeastSquares(a *mat.Dense, y []float64) ([]float64, error) {
	var coef mat.VecDense
	err := coef.SolveVec(a, mat.NewVecDense(len(y), append([]float64(nil), y...)))
	if err != nil {
		// An ill conditioned system still yields a usable solution
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, fmt.Errorf("least squares: %w", err)
		}
	}
	return append([]float64(nil), coef.RawVector().Data...), nil
}
