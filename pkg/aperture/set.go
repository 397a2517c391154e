package aperture

import(
	"fmt"
	"math"
	"sort"

	"github.com/abworrall/echelle/pkg/emath"
)

// A Set is a collection of orders keyed by aperture number. Keys need
// not be contiguous, and may go negative after a Shift.
type Set struct {
	items map[int]*Location
}

func NewSet() *Set {
	return &Set{items: map[int]*Location{}}
}

func (s *Set)Len() int { return len(s.items) }

func (s *Set)Keys() []int {
	keys := make([]int, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func (s *Set)Get(aper int) (*Location, bool) {
	l, ok := s.items[aper]
	return l, ok
}

func (s *Set)Put(aper int, l *Location) { s.items[aper] = l }
func (s *Set)Remove(aper int)           { delete(s.items, aper) }

func (s *Set)String() string {
	str := fmt.Sprintf("ApertureSet[%d apertures", s.Len())
	if keys := s.Keys(); len(keys) > 0 {
		str += fmt.Sprintf(", %d..%d", keys[0], keys[len(keys)-1])
	}
	return str + "]"
}

// Add stores l under one more than the largest key (0 for the first).
func (s *Set)Add(l *Location) int {
	aper := 0
	if keys := s.Keys(); len(keys) > 0 {
		aper = keys[len(keys)-1] + 1
	}
	s.items[aper] = l
	return aper
}

// Sort re-keys the set 0..n-1 in order of increasing center position.
func (s *Set)Sort() {
	locs := make([]*Location, 0, len(s.items))
	for _, k := range s.Keys() {
		locs = append(locs, s.items[k])
	}
	sort.SliceStable(locs, func(i, j int) bool { return locs[i].CenterPosition() < locs[j].CenterPosition() })
	s.items = map[int]*Location{}
	for i, l := range locs {
		s.items[i] = l
	}
}

// Shift adds offset to every aperture number.
func (s *Set)Shift(offset int) {
	shifted := make(map[int]*Location, len(s.items))
	for k, l := range s.items {
		shifted[k+offset] = l
	}
	s.items = shifted
}

// Positions is the centerline of every order at along coordinate x.
func (s *Set)Positions(x float64) map[int]float64 {
	pos := map[int]float64{}
	for k, l := range s.items {
		pos[k] = l.PositionAt(x)
	}
	return pos
}

// Bounds holds the lower and upper edge of an order.
type Bounds struct {
	Lower float64
	Upper float64
}

// Boundaries splits the gaps between neighbouring orders at their
// midpoints. The outer edges of the first and last orders mirror their
// inner edges.
func (s *Set)Boundaries(x float64) (map[int]Bounds, error) {
	keys := s.Keys()
	if len(keys) < 2 {
		return nil, fmt.Errorf("boundaries need at least 2 apertures, have %d", len(keys))
	}
	out := map[int]Bounds{}
	for i, k := range keys {
		b := Bounds{}
		pos := s.items[k].PositionAt(x)
		if i > 0 {
			b.Lower = 0.5 * (pos + s.items[keys[i-1]].PositionAt(x))
		}
		if i < len(keys)-1 {
			b.Upper = 0.5 * (pos + s.items[keys[i+1]].PositionAt(x))
		}
		out[k] = b
	}

	first, last := keys[0], keys[len(keys)-1]
	b := out[first]
	pos := s.items[first].PositionAt(x)
	b.Lower = pos - (b.Upper - pos)
	out[first] = b

	b = out[last]
	pos = s.items[last].PositionAt(x)
	b.Upper = pos + (pos - b.Lower)
	out[last] = b

	return out, nil
}

// LocalSeparation is the spacing, in pixels per aperture number, of the
// order centers around aperture aper.
func (s *Set)LocalSeparation(aper int) (float64, error) {
	keys := s.Keys()
	if len(keys) < 2 {
		return 0, fmt.Errorf("separation needs at least 2 apertures, have %d", len(keys))
	}
	idx := -1
	xs := make([]float64, len(keys))
	ys := make([]float64, len(keys))
	for i, k := range keys {
		xs[i] = float64(k)
		ys[i] = s.items[k].CenterPosition()
		if k == aper { idx = i }
	}
	if idx < 0 {
		return 0, fmt.Errorf("no aperture %d", aper)
	}
	return emath.Derivative(xs, ys)[idx], nil
}

// FindOffset returns the integer offset such that aperture n of s sits
// where aperture n+offset of other does.
func (s *Set)FindOffset(other *Set) (int, error) {
	common := -1
	found := false
	for _, k := range s.Keys() {
		if _, ok := other.items[k]; ok {
			common, found = k, true
			break
		}
	}
	if !found {
		return 0, fmt.Errorf("find offset: no aperture number in common")
	}

	sep1, err := s.LocalSeparation(common)
	if err != nil {
		return 0, fmt.Errorf("find offset: %w", err)
	}
	sep2, err := other.LocalSeparation(common)
	if err != nil {
		return 0, fmt.Errorf("find offset: %w", err)
	}
	sep := 0.5 * (sep1 + sep2)
	if sep == 0 {
		return 0, fmt.Errorf("find offset: zero order separation")
	}

	diff := s.items[common].CenterPosition() - other.items[common].CenterPosition()
	offset0 := int(math.Round(diff / sep))
	o1, o2 := -offset0, 3*offset0
	if o1 > o2 { o1, o2 = o2, o1 }
	if o1 > -3 { o1 = -3 }
	if o2 < 3  { o2 = 3 }

	best, bestDiff := 0, math.Inf(1)
	for offset:=o1; offset<o2; offset++ {
		diffs := []float64{}
		for _, k := range s.Keys() {
			if l2, ok := other.items[k+offset]; ok {
				diffs = append(diffs, s.items[k].CenterPosition() - l2.CenterPosition())
			}
		}
		if len(diffs) == 0 {
			continue
		}
		if d := math.Abs(emath.Median(diffs)); d < bestDiff {
			best, bestDiff = offset, d
		}
	}
	if math.IsInf(bestDiff, 1) {
		return 0, fmt.Errorf("find offset: no overlap for offsets %d..%d", o1, o2-1)
	}
	return best, nil
}
