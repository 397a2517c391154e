package epeak

import(
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/abworrall/echelle/pkg/emath"
	"github.com/abworrall/echelle/pkg/epoly"
)

// A Registration maps an index i of one cross-section onto the
// equivalent (fractional) index i*Slope + Shift of another, whose flux
// is offset by Zoom.
type Registration struct {
	Slope      float64
	Shift      float64
	Zoom       float64

	Mask       []bool  // points kept by the final fit
	Iterations int     // clipping rounds
	Converged  bool
}

func IdentityRegistration() Registration {
	return Registration{Slope: 1}
}

func (r Registration)String() string {
	return fmt.Sprintf("reg[slope %.6f, shift %+.4f, zoom %+.4g, conv %v]", r.Slope, r.Shift, r.Zoom, r.Converged)
}

// Forward maps a position in the reference section into the other one.
func (r Registration)Forward(y float64) float64 { return y*r.Slope + r.Shift }

// Inverse maps a position in the other section back to the reference.
func (r Registration)Inverse(y float64) float64 { return (y - r.Shift) / r.Slope }

// IsUsable is false for registrations that would fold or collapse the axis.
func (r Registration)IsUsable() bool {
	return r.Slope > 0 && !math.IsNaN(r.Slope) && !math.IsInf(r.Slope, 0) &&
		!math.IsNaN(r.Shift) && !math.IsInf(r.Shift, 0)
}

type ShiftOptions struct {
	Clipping float64
	MaxIter  int
}

func DefaultShiftOptions() ShiftOptions {
	return ShiftOptions{Clipping: 5, MaxIter: 10}
}

// FindShift fits flux0[i] ~ S1(i*slope + shift) + zoom, where S1 is a
// cubic spline through flux1, with sigma clipping of the residuals.
// It never fails: on short or degenerate input it returns its best
// estimate (the identity if nothing better) with Converged false.
func FindShift(flux0, flux1 []float64, opt ShiftOptions) Registration {
	reg := IdentityRegistration()
	n := len(flux0)
	if n < 4 || len(flux1) < 4 {
		return reg
	}
	spl, err := emath.NewIndexSpline(flux1)
	if err != nil {
		return reg
	}

	p := [3]float64{1, 0, 0}
	fit := func(mask []bool) ([]float64, error) {
		p = levenbergMarquardt(spl, flux0, mask, p)
		return shiftResiduals(spl, flux0, p), nil
	}

	clip, _ := epoly.SigmaClip(n, fit, epoly.ClipOptions{
		Upper: opt.Clipping, Lower: opt.Clipping, MaxIter: opt.MaxIter, MinKeep: 4,
	})

	reg.Slope, reg.Shift, reg.Zoom = p[0], p[1], p[2]
	reg.Mask = clip.Mask
	reg.Iterations = clip.Iterations
	reg.Converged = clip.Converged
	if !reg.IsUsable() {
		return Registration{Slope: 1, Mask: clip.Mask, Iterations: clip.Iterations}
	}
	return reg
}

func shiftResiduals(spl *emath.Spline, flux0 []float64, p [3]float64) []float64 {
	res := make([]float64, len(flux0))
	for i, f := range flux0 {
		res[i] = f - (spl.Predict(float64(i)*p[0] + p[1]) + p[2])
	}
	return res
}

func maskedCost(res []float64, mask []bool) float64 {
	c := 0.0
	for i, r := range res {
		if mask[i] { c += r*r }
	}
	return c
}

// levenbergMarquardt minimises the masked squared residuals over
// (slope, shift, zoom), using the spline derivative for the Jacobian.
func levenbergMarquardt(spl *emath.Spline, flux0 []float64, mask []bool, p [3]float64) [3]float64 {
	const maxSteps = 100
	lambda := 1e-3

	res := shiftResiduals(spl, flux0, p)
	cost := maskedCost(res, mask)

	for step:=0; step<maxSteps && cost > 0; step++ {
		var jtj [9]float64
		var jtr [3]float64
		for i := range flux0 {
			if !mask[i] { continue }
			x := float64(i)
			d := spl.PredictDerivative(x*p[0] + p[1])
			j := [3]float64{d*x, d, 1}
			for a:=0; a<3; a++ {
				jtr[a] += j[a] * res[i]
				for b:=0; b<3; b++ {
					jtj[3*a+b] += j[a] * j[b]
				}
			}
		}

		improved := false
		for tries:=0; tries<10; tries++ {
			a := mat.NewDense(3, 3, nil)
			for r:=0; r<3; r++ {
				for c:=0; c<3; c++ {
					a.Set(r, c, jtj[3*r+c])
				}
				a.Set(r, r, jtj[3*r+r]*(1+lambda) + 1e-12)
			}
			var delta mat.VecDense
			if err := delta.SolveVec(a, mat.NewVecDense(3, jtr[:])); err != nil {
				if _, ok := err.(mat.Condition); !ok {
					return p
				}
			}

			trial := p
			for k:=0; k<3; k++ {
				trial[k] += delta.AtVec(k)
			}
			trialRes := shiftResiduals(spl, flux0, trial)
			trialCost := maskedCost(trialRes, mask)
			if trialCost < cost {
				rel := (cost - trialCost) / cost
				p, res, cost = trial, trialRes, trialCost
				lambda /= 10
				improved = true
				if rel < 1e-12 {
					return p
				}
				break
			}
			lambda *= 10
		}
		if !improved {
			break
		}
	}
	return p
}
