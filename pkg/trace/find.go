package trace

import(
	"errors"
	"fmt"
	"log"
	"math"
	"sort"

	"github.com/skypies/util/histogram"

	"github.com/abworrall/echelle/pkg/aperture"
	"github.com/abworrall/echelle/pkg/emath"
	"github.com/abworrall/echelle/pkg/epeak"
	"github.com/abworrall/echelle/pkg/epoly"
)

// ErrTooFewOrders means tracing could not find enough orders to trust.
var ErrTooFewOrders = errors.New("fewer than 3 orders found")

const(
	density       = 10   // oversampling of cross-sections when looking for peaks
	edgeMargin    = 10   // scanning stops this close to the image edge
	maskHalfWidth = 3.0  // half width of the trace mask used for stats
	minPeakWindow = 5
)

// Diagnostics records the intermediate products of a trace, for
// figures and logs.
type Diagnostics struct {
	Offset         int        // reference position of stacked bin 0
	Mean           []float64  // stacked cross-section
	Max            []float64
	Count          []int      // columns contributing to each stacked bin
	PeakCount      []int      // peaks per stacked bin (singles removed)
	Candidates     []float64  // stacked peaks, before the filling test
	Accepted       []float64  // after the filling test
	Orders         []float64  // after trimming the ends
	Columns        []int      // scanned columns, in scan order
	Registrations  []epeak.Registration
	PeaksPerColumn []int
	NotConverged   int
}

// scan holds the registration chain for one scan direction.
type scan struct {
	columns []int
	chain   []epeak.Registration
}

// toReference maps a position in the column at chain[n-1] back to the
// central column.
func (s scan)toReference(y float64, n int) float64 {
	for j:=n-1; j>=0; j-- {
		y = s.chain[j].Inverse(y)
	}
	return y
}

// FindApertures locates the echelle orders on a flat field. data is
// the image, sat flags saturated pixels (it may be empty) and direct
// tells which image axis the orders run along. The returned set is
// keyed 0..N-1 by increasing center position.
func FindApertures(data emath.FloatGrid, sat emath.BoolGrid, direct aperture.Direction, p Params) (*aperture.Set, *Diagnostics, error) {
	if err := p.Validate(); err != nil {
		return nil, nil, fmt.Errorf("find apertures: %v", err)
	}
	if !sat.IsEmpty() && (sat.Dx() != data.Dx() || sat.Dy() != data.Dy()) {
		return nil, nil, fmt.Errorf("find apertures: mask %dx%d does not match image %dx%d", sat.Dx(), sat.Dy(), data.Dx(), data.Dy())
	}

	// Work in a frame where the orders run along x
	view, satView := data, sat
	if direct == aperture.AlongY {
		view = data.Transpose()
		if !sat.IsEmpty() {
			satView = sat.Transpose()
		}
	}
	w, h := view.Dx(), view.Dy()
	if w < 2*edgeMargin+2 || h < 8 {
		return nil, nil, fmt.Errorf("find apertures: image %dx%d too small", w, h)
	}

	sepAt := p.Separation.At
	logdata := view.Log10Floor(p.Minimum)
	kernel := int(sepAt(float64(h)/2))
	if kernel < 1 { kernel = 1 }
	core := emath.NormalizedHanning(kernel)

	denseY := emath.Linspace(0, float64(h-1), (h-1)*density+1)
	denseWin := make([]int, len(denseY))
	for i, y := range denseY {
		denseWin[i] = 2*int(math.Round(sepAt(y)))*density + 1
	}

	profile := func(x int) []float64 { return emath.ConvolveSame(logdata.Column(x), core) }
	peaksOf := func(flux []float64) []float64 {
		spl, err := emath.NewIndexSpline(flux)
		if err != nil {
			return nil
		}
		idx := epeak.LocalMaxima(spl.Resample(denseY), denseWin)
		ys := make([]float64, len(idx))
		for i, j := range idx {
			ys[i] = denseY[j]
		}
		return ys
	}

	diag := &Diagnostics{}
	st := newStack(h)
	x0 := w/2
	flux0 := profile(x0)

	addColumn := func(x int, flux []float64, sc scan) {
		peaks := peaksOf(flux)
		diag.Columns = append(diag.Columns, x)
		diag.PeaksPerColumn = append(diag.PeaksPerColumn, len(peaks))
		n := len(sc.chain)
		for _, y := range peaks {
			st.addPeak(sc.toReference(y, n))
		}
		ysta, yend := sc.toReference(0, n), sc.toReference(float64(h-1), n)
		if err := st.addProfile(view.MedianColumns(x, 2), ysta, yend); err != nil && p.Verbosity > 0 {
			log.Printf("trace: column %d not stacked: %v", x, err)
		}
	}
	addColumn(x0, flux0, scan{})

	scans := map[int]*scan{}
	shiftOpts := epeak.DefaultShiftOptions()
	for _, dir := range []int{-1, +1} {
		sc := &scan{}
		scans[dir] = sc
		prev := flux0
		for x1 := x0 + dir*p.ScanStep; x1 > edgeMargin && x1 < w-edgeMargin; x1 += dir*p.ScanStep {
			flux1 := profile(x1)
			reg := epeak.FindShift(prev, flux1, shiftOpts)
			if !reg.Converged {
				diag.NotConverged++
				if p.Verbosity > 1 {
					log.Printf("trace: column %d registration did not converge: %s", x1, reg)
				}
			}
			sc.columns = append(sc.columns, x1)
			sc.chain = append(sc.chain, reg)
			diag.Registrations = append(diag.Registrations, reg)
			addColumn(x1, flux1, *sc)
			prev = flux1
		}
	}
	st.dropSingles()

	if p.Verbosity > 0 {
		hist := histogram.Histogram{NumBuckets:64, ValMin:0, ValMax:256}
		for _, n := range diag.PeaksPerColumn {
			hist.Add(histogram.ScalarVal(n))
		}
		log.Printf("trace: scanned %d columns, %d registrations unconverged; peaks per column %v",
			len(diag.Columns), diag.NotConverged, &hist)
	}

	// Orders are the peaks of the stacked cross-section seen often enough
	mean := st.mean()
	i1, i2 := st.span()
	if i1 < 0 {
		return nil, diag, fmt.Errorf("find apertures: nothing stacked")
	}
	win := make([]int, i2-i1)
	for i := range win {
		win[i] = 2*int(math.Round(sepAt(float64(i1+i+st.offset)))) + 1
	}
	for _, j := range epeak.LocalMaxima(mean[i1:i2], win) {
		i := i1 + j
		y := float64(i + st.offset)
		diag.Candidates = append(diag.Candidates, y)
		r := int(sepAt(y) / 3)
		if float64(st.support(i, r)) > float64(st.count[i])*p.Filling {
			diag.Accepted = append(diag.Accepted, y)
		}
	}
	mids := trimEnds(diag.Accepted, sepAt)
	diag.Orders = mids
	diag.Offset, diag.Mean, diag.Max, diag.Count, diag.PeakCount = st.offset, mean, st.max, st.count, st.peakCount

	if len(mids) < 3 {
		return nil, diag, fmt.Errorf("find apertures: %w (%d)", ErrTooFewOrders, len(mids))
	}

	set := aperture.NewSet()
	for _, mid := range mids {
		nodes := trajectory(view, satView, mid, x0, scans, sepAt)
		loc, err := fitOrder(nodes, direct, data.Dy(), data.Dx(), p)
		if err != nil {
			if p.Verbosity > 0 {
				log.Printf("trace: order at %.1f dropped: %v", mid, err)
			}
			continue
		}
		loc.MeasureStats(data, sat, maskHalfWidth)
		set.Add(loc)
	}
	if set.Len() < 3 {
		return nil, diag, fmt.Errorf("find apertures: %w (%d fitted)", ErrTooFewOrders, set.Len())
	}
	set.Sort()

	if err := fitEdges(set, p); err != nil {
		return nil, diag, fmt.Errorf("find apertures: %v", err)
	}
	if p.Verbosity > 0 {
		log.Printf("trace: found %s", set)
	}
	return set, diag, nil
}

// trimEnds drops an end order while it lies more than twice the
// expected separation from its neighbour, keeping at least 3.
func trimEnds(mids []float64, sepAt func(float64) float64) []float64 {
	mids = append([]float64(nil), mids...)
	for len(mids) > 3 {
		n := len(mids)
		if mids[1]-mids[0] > 2*sepAt(mids[0]) {
			mids = mids[1:]
			continue
		}
		if mids[n-1]-mids[n-2] > 2*sepAt(mids[n-1]) {
			mids = mids[:n-1]
			continue
		}
		break
	}
	return mids
}

// trajectory follows one order out from the central column, refining
// the predicted position in every scanned column.
func trajectory(view emath.FloatGrid, sat emath.BoolGrid, mid float64, x0 int, scans map[int]*scan, sepAt func(float64) float64) []aperture.Node {
	h := view.Dy()
	refine := func(x int, y float64) (float64, bool) {
		half := sepAt(y) / 2
		y1, y2 := int(y-half), int(y+half)
		if y1 < 0 { y1 = 0 }
		if y2 > h { y2 = h }
		if y2-y1 <= minPeakWindow {
			return 0, false
		}
		xs := make([]float64, y2-y1)
		ys := make([]float64, y2-y1)
		flags := make([]bool, y2-y1)
		for i := range xs {
			xs[i] = float64(y1+i)
			ys[i] = view.Get(x, y1+i)
			if !sat.IsEmpty() { flags[i] = sat.Get(x, y1+i) }
		}
		return epeak.FindLocalPeak(xs, ys, flags), true
	}

	nodes := []aperture.Node{}
	if y, ok := refine(x0, mid); ok {
		nodes = append(nodes, aperture.Node{Along: float64(x0), Across: y})
	} else {
		nodes = append(nodes, aperture.Node{Along: float64(x0), Across: mid})
	}
	for _, dir := range []int{-1, +1} {
		sc := scans[dir]
		y := mid
		for j, reg := range sc.chain {
			y = reg.Forward(y)
			if y < 0 || y > float64(h-1) {
				break
			}
			if yp, ok := refine(sc.columns[j], y); ok {
				nodes = append(nodes, aperture.Node{Along: float64(sc.columns[j]), Across: yp})
			}
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Along < nodes[j].Along })
	return nodes
}

// fitOrder fits the centerline through the trajectory nodes. The
// domain extends one scan step past the outermost nodes, or to the
// image edge when that is close.
func fitOrder(nodes []aperture.Node, direct aperture.Direction, height, width int, p Params) (*aperture.Location, error) {
	if len(nodes) < 2 {
		return nil, fmt.Errorf("only %d nodes", len(nodes))
	}
	loc := aperture.NewLocation(direct, height, width)
	n := float64(loc.AlongLength())
	step := float64(p.ScanStep)

	xs := make([]float64, len(nodes))
	ys := make([]float64, len(nodes))
	for i, nd := range nodes {
		xs[i], ys[i] = nd.Along, nd.Across
	}

	dom := [2]float64{xs[0] - step, xs[len(xs)-1] + step}
	if xs[0] <= step + edgeMargin     { dom[0] = 0 }
	if xs[len(xs)-1] >= n - step - edgeMargin { dom[1] = n-1 }
	if dom[0] < 0   { dom[0] = 0 }
	if dom[1] > n-1 { dom[1] = n-1 }

	deg := p.Degree
	if deg > len(nodes)-1 { deg = len(nodes)-1 }
	cheb, err := epoly.FitChebyshev(xs, ys, deg, dom)
	if err != nil {
		return nil, err
	}
	if err := loc.SetPosition(cheb); err != nil {
		return nil, err
	}
	loc.SetNodes(aperture.Center, nodes)
	return loc, nil
}

// fitEdges places lower and upper nodes half way to the neighbouring
// orders at every center node, and fits all three lines.
func fitEdges(set *aperture.Set, p Params) error {
	for _, k := range set.Keys() {
		loc, _ := set.Get(k)
		lower, upper := []aperture.Node{}, []aperture.Node{}
		for _, nd := range loc.Nodes[aperture.Center] {
			bounds, err := set.Boundaries(nd.Along)
			if err != nil {
				return err
			}
			lower = append(lower, aperture.Node{Along: nd.Along, Across: bounds[k].Lower})
			upper = append(upper, aperture.Node{Along: nd.Along, Across: bounds[k].Upper})
		}
		loc.SetNodes(aperture.Lower, lower)
		loc.SetNodes(aperture.Upper, upper)

		for _, line := range aperture.Lines {
			clip, err := loc.FitNodes(line, p.Degree, p.Clipping, p.MaxIter)
			if err != nil {
				return fmt.Errorf("aperture %d: %v", k, err)
			}
			if !clip.Converged && p.Verbosity > 0 {
				log.Printf("trace: aperture %d %s line: %s", k, line, clip)
			}
		}
	}
	return nil
}
