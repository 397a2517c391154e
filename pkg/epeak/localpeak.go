package epeak

import(
	"github.com/abworrall/echelle/pkg/emath"
)

// FindLocalPeak returns the sub-pixel position of the maximum of ys,
// sampled at xs. If two or more samples are flagged in sat, the
// samples are first smoothed with a short Hann kernel to soften a
// clipped top. A maximum too close to either end of the window gives
// back the middle sample.
func FindLocalPeak(xs, ys []float64, sat []bool) float64 {
	n := len(ys)
	if n == 0 {
		return 0
	}
	mid := xs[n/2]

	nsat := 0
	for _, s := range sat {
		if s { nsat++ }
	}
	if nsat >= 2 {
		m := 5
		if n < m { m = n }
		ys = emath.ConvolveSame(ys, emath.Hanning(m))
	}

	i := emath.ArgMax(ys)
	if i < 2 || i > n-3 {
		return mid
	}

	// parabola through the three samples around the maximum
	x1, x2, x3 := xs[i-1], xs[i], xs[i+1]
	y1, y2, y3 := ys[i-1], ys[i], ys[i+1]
	denom := (x1-x2) * (x1-x3) * (x2-x3)
	if denom == 0 {
		return x2
	}
	a := (x3*(y2-y1) + x2*(y1-y3) + x1*(y3-y2)) / denom
	b := (x3*x3*(y1-y2) + x2*x2*(y3-y1) + x1*x1*(y2-y3)) / denom
	if a >= 0 {
		return x2
	}
	return -b / (2*a)
}
