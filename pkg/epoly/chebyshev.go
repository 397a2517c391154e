package epoly

import(
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// A Chebyshev series over a bounded domain, mapped onto [-1,1].
type Chebyshev struct {
	Coeff  []float64  // lowest order first
	Domain [2]float64
}

func (c Chebyshev)Degree() int { return len(c.Coeff) - 1 }

func (c Chebyshev)String() string {
	return fmt.Sprintf("Cheb[deg %d, domain %g..%g]", c.Degree(), c.Domain[0], c.Domain[1])
}

func (c Chebyshev)mapX(x float64) float64 {
	span := c.Domain[1] - c.Domain[0]
	if span == 0 {
		return 0
	}
	return (2*x - (c.Domain[0] + c.Domain[1])) / span
}

// Eval uses Clenshaw's recurrence.
func (c Chebyshev)Eval(x float64) float64 {
	n := len(c.Coeff)
	switch n {
	case 0: return 0
	case 1: return c.Coeff[0]
	}
	t := c.mapX(x)
	b1, b2 := 0.0, 0.0
	for k:=n-1; k>=1; k-- {
		b1, b2 = 2*t*b1 - b2 + c.Coeff[k], b1
	}
	return t*b1 - b2 + c.Coeff[0]
}

// FitChebyshev is the least squares series of degree deg through (x,y),
// with x mapped from domain.
func FitChebyshev(x, y []float64, deg int, domain [2]float64) (Chebyshev, error) {
	c := Chebyshev{Domain: domain}
	if len(x) != len(y) || len(x) == 0 {
		return c, fmt.Errorf("chebfit: %d x, %d y", len(x), len(y))
	}
	if deg < 0 {
		return c, fmt.Errorf("chebfit: bad degree %d", deg)
	}
	if domain[1] <= domain[0] {
		return c, fmt.Errorf("chebfit: empty domain %v", domain)
	}

	a := mat.NewDense(len(x), deg+1, nil)
	for i, xi := range x {
		t := c.mapX(xi)
		t0, t1 := 1.0, t
		a.Set(i, 0, t0)
		if deg >= 1 { a.Set(i, 1, t1) }
		for k:=2; k<=deg; k++ {
			t0, t1 = t1, 2*t*t1 - t0
			a.Set(i, k, t1)
		}
	}
	coeff, err := solveLeastSquares(a, y)
	if err != nil {
		return c, fmt.Errorf("chebfit: %w", err)
	}
	c.Coeff = coeff
	return c, nil
}
