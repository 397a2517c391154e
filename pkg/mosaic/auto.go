package mosaic

import(
	"fmt"
	"log"
	"math"
	"sort"

	"github.com/abworrall/echelle/pkg/aperture"
	"github.com/abworrall/echelle/pkg/emath"
	"github.com/abworrall/echelle/pkg/epoly"
)

// A Flat is one exposure that can contribute to a mosaic, with the
// orders traced on it (already aligned to a common numbering).
type Flat struct {
	Name      string
	Data      emath.FloatGrid
	Apertures *aperture.Set
}

type AutoOptions struct {
	MaxCount  float64   // orders peaking above this are not trusted
	Statistic string    // "median" (default), "mean" or "max"
	Verbosity int
}

func DefaultAutoOptions() AutoOptions {
	return AutoOptions{MaxCount: 60000, Statistic: "median"}
}

// AutoResult is the outcome of MosaicFlatAuto.
type AutoResult struct {
	Choice    map[int]int      // aperture number -> index of the flat chosen for it
	Fallback  []int            // apertures with no unsaturated flat; best effort choice used
	Owner     []int            // flat index owning each pixel, row major
	Image     emath.FloatGrid
	Apertures *aperture.Set    // the chosen flat's trace for every order
	Width     int
	Height    int
}

// Mask flags the pixels owned by one flat.
func (r *AutoResult)Mask(flat int) emath.BoolGrid {
	m := emath.NewBoolGrid(r.Width, r.Height)
	for i, o := range r.Owner {
		if o == flat {
			m.Set(i%r.Width, i/r.Width, true)
		}
	}
	return m
}

func statistic(st *aperture.Stats, name string) float64 {
	switch name {
	case "mean": return st.Mean
	case "max":  return st.Max
	}
	return st.Median
}

// MosaicFlatAuto picks, for every order, the flat with the highest flux
// statistic among those with no saturated pixels and a peak at or below
// MaxCount. Between neighbouring orders that come from different flats
// the image is split along the average of the lower order's upper edge
// and the upper order's lower edge; pixels beyond the split go to the
// upper order's flat.
func MosaicFlatAuto(flats []Flat, opt AutoOptions) (*AutoResult, error) {
	if len(flats) == 0 {
		return nil, fmt.Errorf("mosaic: no flats")
	}
	switch opt.Statistic {
	case "", "median", "mean", "max":
	default:
		return nil, &ValidationError{Field: "statistic", Msg: fmt.Sprintf("unknown statistic '%s'", opt.Statistic)}
	}

	w, h := flats[0].Data.Dx(), flats[0].Data.Dy()
	union := map[int]bool{}
	for _, f := range flats {
		if f.Data.Dx() != w || f.Data.Dy() != h {
			return nil, &ValidationError{File: f.Name, Field: "shape",
				Msg: fmt.Sprintf("%dx%d, expected %dx%d", f.Data.Dx(), f.Data.Dy(), w, h)}
		}
		if f.Apertures == nil || f.Apertures.Len() == 0 {
			return nil, &ValidationError{File: f.Name, Field: "apertures", Msg: "no traced orders"}
		}
		for _, k := range f.Apertures.Keys() {
			union[k] = true
		}
	}
	orders := make([]int, 0, len(union))
	for k := range union {
		orders = append(orders, k)
	}
	sort.Ints(orders)

	res := &AutoResult{
		Choice:    map[int]int{},
		Apertures: aperture.NewSet(),
		Width:     w,
		Height:    h,
	}
	for _, k := range orders {
		best, fallback := chooseFlat(flats, k, opt)
		if fallback {
			res.Fallback = append(res.Fallback, k)
			log.Printf("mosaic: aperture %d saturated in every flat, using %s", k, flats[best].Name)
		} else if opt.Verbosity > 0 {
			log.Printf("mosaic: aperture %d from %s", k, flats[best].Name)
		}
		res.Choice[k] = best
		loc, _ := flats[best].Apertures.Get(k)
		res.Apertures.Put(k, loc)
	}

	// Split the image between flats
	res.Owner = make([]int, w*h)
	first := res.Choice[orders[0]]
	for i := range res.Owner {
		res.Owner[i] = first
	}
	for i:=1; i<len(orders); i++ {
		kPrev, k := orders[i-1], orders[i]
		fPrev, f := res.Choice[kPrev], res.Choice[k]
		if fPrev == f {
			continue
		}
		prev, _ := flats[fPrev].Apertures.Get(kPrev)
		cur, _ := flats[f].Apertures.Get(k)
		cut := splitLine(prev, cur)
		assignAbove(res.Owner, w, h, cur.Direct, cut, f)
	}

	res.Image = emath.NewFloatGrid(w, h)
	for y:=0; y<h; y++ {
		for x:=0; x<w; x++ {
			res.Image.Set(x, y, flats[res.Owner[y*w+x]].Data.Get(x, y))
		}
	}
	return res, nil
}

func chooseFlat(flats []Flat, k int, opt AutoOptions) (int, bool) {
	best, bestVal := -1, math.Inf(-1)
	for i, f := range flats {
		l, ok := f.Apertures.Get(k)
		if !ok || l.Stats == nil {
			continue
		}
		if l.Stats.NSat == 0 && l.Stats.Max <= opt.MaxCount {
			if v := statistic(l.Stats, opt.Statistic); v > bestVal {
				best, bestVal = i, v
			}
		}
	}
	if best >= 0 {
		return best, false
	}

	// Nothing clean: take the least saturated, then the faintest peak
	best = -1
	for i, f := range flats {
		l, ok := f.Apertures.Get(k)
		if !ok {
			continue
		}
		if best < 0 {
			best = i
			continue
		}
		lb, _ := flats[best].Apertures.Get(k)
		switch {
		case lb.Stats == nil && l.Stats != nil:
			best = i
		case lb.Stats != nil && l.Stats != nil:
			if l.Stats.NSat < lb.Stats.NSat || (l.Stats.NSat == lb.Stats.NSat && l.Stats.Max < lb.Stats.Max) {
				best = i
			}
		}
	}
	return best, true
}

// splitLine gives the across position of the split between the two
// orders, as a function of the along position.
func splitLine(prev, cur *aperture.Location) func(float64) float64 {
	up, lo := prev.Coeffs[aperture.Upper], cur.Coeffs[aperture.Lower]
	along := float64(cur.AlongLength())
	across := float64(cur.AcrossLength())

	switch {
	case up != nil && lo != nil:
		n := len(up)
		if len(lo) > n { n = len(lo) }
		a, b := epoly.PadLeft(up, n), epoly.PadLeft(lo, n)
		avg := make([]float64, n)
		for i := range avg {
			avg[i] = 0.5 * (a[i] + b[i])
		}
		return func(x float64) float64 { return epoly.Polyval(avg, x/along) * across }
	case lo != nil:
		return func(x float64) float64 { return epoly.Polyval(lo, x/along) * across }
	case up != nil:
		return func(x float64) float64 { return epoly.Polyval(up, x/along) * across }
	}
	return func(x float64) float64 { return 0.5 * (prev.PositionAt(x) + cur.PositionAt(x)) }
}

func assignAbove(owner []int, w, h int, direct aperture.Direction, cut func(float64) float64, flat int) {
	alongLen, acrossLen := w, h
	if direct == aperture.AlongY {
		alongLen, acrossLen = h, w
	}
	for a:=0; a<alongLen; a++ {
		c0 := int(math.Round(cut(float64(a))))
		if c0 < -1 { c0 = -1 }
		for c:=c0+1; c<acrossLen; c++ {
			x, y := a, c
			if direct == aperture.AlongY {
				x, y = c, a
			}
			owner[y*w+x] = flat
		}
	}
}
