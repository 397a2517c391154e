package epoly

import(
	"fmt"
	"math"
)

// ClipOptions control SigmaClip. Upper and Lower are in units of the
// residual standard deviation; a side with a non-positive value is
// never clipped.
type ClipOptions struct {
	Upper   float64
	Lower   float64
	MaxIter int
	DDof    int   // delta degrees of freedom for the std
	MinKeep int   // stop rather than keep fewer points than this
}

// ClipResult reports how the clipping went. Mask is the set of points
// used by the final call to the fit.
type ClipResult struct {
	Mask       []bool
	Iterations int
	Converged  bool
	Mean       float64
	Std        float64
}

func (r ClipResult)Kept() int { return countTrue(r.Mask) }

func (r ClipResult)String() string {
	return fmt.Sprintf("clip[kept %d/%d, iter %d, converged %v, std %.4g]",
		r.Kept(), len(r.Mask), r.Iterations, r.Converged, r.Std)
}

// A FitFunc fits to the points flagged in mask, and returns the
// residual of every point (masked or not).
type FitFunc func(mask []bool) ([]float64, error)

// SigmaClip repeatedly fits, masks points whose residual lies beyond
// the clipping limits, and refits, until the number of kept points
// stops changing or MaxIter fits have been made. Running out of
// iterations is not an error; it shows up as Converged == false.
func SigmaClip(n int, fit FitFunc, opt ClipOptions) (ClipResult, error) {
	res := ClipResult{Mask: make([]bool, n)}
	for i := range res.Mask {
		res.Mask[i] = true
	}
	return SigmaClipFrom(res.Mask, fit, opt)
}

// SigmaClipFrom is SigmaClip starting from an initial mask.
func SigmaClipFrom(initial []bool, fit FitFunc, opt ClipOptions) (ClipResult, error) {
	res := ClipResult{Mask: append([]bool(nil), initial...)}
	if opt.MaxIter < 1 {
		opt.MaxIter = 1
	}

	for res.Iterations < opt.MaxIter {
		resid, err := fit(res.Mask)
		res.Iterations++
		if err != nil {
			return res, fmt.Errorf("sigma clip, iteration %d: %w", res.Iterations, err)
		}
		if len(resid) != len(res.Mask) {
			return res, fmt.Errorf("sigma clip: fit returned %d residuals for %d points", len(resid), len(res.Mask))
		}

		res.Mean, res.Std = maskedMeanStd(resid, res.Mask, opt.DDof)
		if res.Std == 0 || math.IsNaN(res.Std) {
			res.Converged = true
			break
		}

		newMask := make([]bool, len(res.Mask))
		for i, r := range resid {
			keep := !math.IsNaN(r)
			if opt.Upper > 0 && r >= res.Mean + opt.Upper*res.Std { keep = false }
			if opt.Lower > 0 && r <= res.Mean - opt.Lower*res.Std { keep = false }
			newMask[i] = keep
		}

		nNew := countTrue(newMask)
		if nNew == countTrue(res.Mask) {
			res.Converged = true
			break
		}
		if nNew < opt.MinKeep || nNew == 0 {
			break
		}
		if res.Iterations == opt.MaxIter {
			break
		}
		res.Mask = newMask
	}

	return res, nil
}

func maskedMeanStd(vals []float64, mask []bool, ddof int) (float64, float64) {
	n, sum := 0, 0.0
	for i, v := range vals {
		if mask[i] {
			sum += v
			n++
		}
	}
	if n == 0 {
		return math.NaN(), math.NaN()
	}
	mean := sum / float64(n)
	if n - ddof <= 0 {
		return mean, 0
	}
	ss := 0.0
	for i, v := range vals {
		if mask[i] {
			ss += (v-mean)*(v-mean)
		}
	}
	return mean, math.Sqrt(ss / float64(n-ddof))
}

func countTrue(mask []bool) int {
	n := 0
	for _, m := range mask {
		if m { n++ }
	}
	return n
}
