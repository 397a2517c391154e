package ecombine

import(
	"fmt"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/abworrall/echelle/pkg/emath"
	"github.com/abworrall/echelle/pkg/epoly"
)

// Options for combining a stack of exposures. Clipping only happens if
// Upper or Lower is positive.
type Options struct {
	Mode    string    `yaml:"mode"`     // mean, sum or median
	Upper   float64   `yaml:"upper_clip"`
	Lower   float64   `yaml:"lower_clip"`
	MaxIter int       `yaml:"maxiter"`
	Workers int       `yaml:"-"`
}

func DefaultOptions() Options {
	return Options{Mode: "mean", Upper: 3, Lower: 3, MaxIter: 5, Workers: 8}
}

func (o Options)String() string {
	return fmt.Sprintf("combine[%s, clip -%g/+%g, maxiter %d]", o.Mode, o.Lower, o.Upper, o.MaxIter)
}

func (o Options)clips() bool { return o.Upper > 0 || o.Lower > 0 }

// {{{ Images

// Images combines a stack of identically shaped frames into one, pixel
// by pixel. With clipping, the values of each pixel are sigma clipped
// against their own mean and std before combining; sum is then the
// clipped mean scaled up to the full number of frames.
func Images(cube []emath.FloatGrid, opt Options) (emath.FloatGrid, error) {
	if len(cube) == 0 {
		return emath.FloatGrid{}, fmt.Errorf("combine: no images")
	}
	switch opt.Mode {
	case "mean", "sum", "median":
	default:
		return emath.FloatGrid{}, fmt.Errorf("combine: unknown mode '%s'", opt.Mode)
	}
	for i, g := range cube {
		if !g.SameShape(cube[0]) {
			return emath.FloatGrid{}, fmt.Errorf("combine: image %d is %dx%d, expected %dx%d",
				i, g.Dx(), g.Dy(), cube[0].Dx(), cube[0].Dy())
		}
	}

	w, h := cube[0].Dx(), cube[0].Dy()
	out := emath.NewFloatGrid(w, h)

	nWorkers := opt.Workers
	if nWorkers < 1 { nWorkers = 1 }

	var wg sync.WaitGroup
	rowsChan := make(chan int, h)
	for i:=0; i<nWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vals := make([]float64, len(cube))
			for y := range rowsChan {
				for x:=0; x<w; x++ {
					for k := range cube {
						vals[k] = cube[k].Get(x, y)
					}
					out.Set(x, y, combinePixel(vals, opt))
				}
			}
		}()
	}
	for y:=0; y<h; y++ {
		rowsChan<- y
	}
	close(rowsChan)
	wg.Wait()

	return out, nil
}

// }}}
// {{{ combinePixel

func combinePixel(vals []float64, opt Options) float64 {
	n := len(vals)
	mask := make([]bool, n)
	for i := range mask {
		mask[i] = true
	}

	if opt.clips() && n > 2 {
		identity := func([]bool) ([]float64, error) { return vals, nil }
		res, err := epoly.SigmaClip(n, identity, epoly.ClipOptions{
			Upper: opt.Upper, Lower: opt.Lower, MaxIter: opt.MaxIter, MinKeep: 1,
		})
		if err == nil && res.Kept() > 0 {
			mask = res.Mask
		}
	}

	kept := make([]float64, 0, n)
	for i, v := range vals {
		if mask[i] {
			kept = append(kept, v)
		}
	}

	switch opt.Mode {
	case "median":
		return emath.Median(kept)
	case "sum":
		return stat.Mean(kept, nil) * float64(n)
	}
	return stat.Mean(kept, nil)
}

// }}}
// {{{ SaturationMask

// SaturationMask flags the pixels at or above level in more than half
// of the frames.
func SaturationMask(cube []emath.FloatGrid, level float64) (emath.BoolGrid, error) {
	if len(cube) == 0 {
		return emath.BoolGrid{}, fmt.Errorf("saturation mask: no images")
	}
	w, h := cube[0].Dx(), cube[0].Dy()
	for i, g := range cube {
		if !g.SameShape(cube[0]) {
			return emath.BoolGrid{}, fmt.Errorf("saturation mask: image %d has a different shape", i)
		}
	}

	mask := emath.NewBoolGrid(w, h)
	for y:=0; y<h; y++ {
		for x:=0; x<w; x++ {
			n := 0
			for _, g := range cube {
				if g.Get(x, y) >= level { n++ }
			}
			mask.Set(x, y, 2*n > len(cube))
		}
	}
	return mask, nil
}

// }}}

// {{{ -------------------------={ E N D }=----------------------------------

// Local variables:
// folded-file: t
// end:

// }}}
