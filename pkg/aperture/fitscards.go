package aperture

import(
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/astrogo/fitsio"
)

const cardPrefix = "EDRS TRACE"

func cardRoot(channel string) string {
	if channel == "" {
		return cardPrefix
	}
	return cardPrefix + " CHANNEL " + channel
}

// Cards encodes the set as FITS header cards, one group per aperture:
// "EDRS TRACE [CHANNEL c] APERTURE n FIELD".
func (s *Set)Cards(channel string) []fitsio.Card {
	root := cardRoot(channel)
	cards := []fitsio.Card{}
	add := func(aper int, field string, v interface{}) {
		cards = append(cards, fitsio.Card{Name: fmt.Sprintf("%s APERTURE %d %s", root, aper, field), Value: v})
	}

	for _, k := range s.Keys() {
		l := s.items[k]
		if l.Position == nil {
			continue
		}
		add(k, "DIRECT", int(l.Direct))
		add(k, "SHAPE0", l.Height)
		add(k, "SHAPE1", l.Width)
		for i, c := range l.Position.Coeff {
			add(k, fmt.Sprintf("COEFF %d", i), c)
		}
		add(k, "DOMAIN0", l.Position.Domain[0])
		add(k, "DOMAIN1", l.Position.Domain[1])
		if st := l.Stats; st != nil {
			add(k, "NSAT", st.NSat)
			add(k, "MEAN", st.Mean)
			add(k, "MEDIAN", st.Median)
			add(k, "MAX", st.Max)
		}
	}
	return cards
}

// HeaderCards pulls every card out of a FITS header.
func HeaderCards(hdr *fitsio.Header) []fitsio.Card {
	cards := []fitsio.Card{}
	for _, k := range hdr.Keys() {
		if c := hdr.Get(k); c != nil {
			cards = append(cards, *c)
		}
	}
	return cards
}

// CardFloat reads a numeric card value, whatever type it was decoded as.
func CardFloat(v interface{}) (float64, error) {
	switch t := v.(type) {
	case float64: return t, nil
	case float32: return float64(t), nil
	case int:     return float64(t), nil
	case int64:   return float64(t), nil
	case int32:   return float64(t), nil
	case string:  return strconv.ParseFloat(strings.TrimSpace(t), 64)
	}
	return 0, fmt.Errorf("value %v (%T) is not a number", v, v)
}

// SetFromCards is the inverse of Cards. Cards for other channels, and
// unrelated cards, are ignored. A leading "HIERARCH " is tolerated.
func SetFromCards(cards []fitsio.Card, channel string) (*Set, error) {
	root := cardRoot(channel) + " APERTURE "

	type raw struct {
		p      pending
		coeff  map[int]float64
	}
	byAper := map[int]*raw{}

	for _, c := range cards {
		name := strings.TrimPrefix(strings.TrimSpace(c.Name), "HIERARCH ")
		if !strings.HasPrefix(name, root) {
			continue
		}
		fields := strings.Fields(name[len(root):])
		if len(fields) < 2 {
			continue
		}
		aper, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("card %s: %v", c.Name, err)
		}
		r, ok := byAper[aper]
		if !ok {
			r = &raw{p: pending{aper: aper, loc: &Location{}}, coeff: map[int]float64{}}
			byAper[aper] = r
		}

		v, err := CardFloat(c.Value)
		if err != nil {
			return nil, fmt.Errorf("card %s: %v", c.Name, err)
		}
		switch fields[1] {
		case "DIRECT":
			r.p.direct = Direction(int(v))
			if r.p.direct != AlongX && r.p.direct != AlongY {
				return nil, fmt.Errorf("card %s: bad direction %v", c.Name, v)
			}
		case "SHAPE0":  r.p.h = int(v)
		case "SHAPE1":  r.p.w = int(v)
		case "DOMAIN0":
			if r.p.domain == nil { r.p.domain = make([]float64, 2) }
			r.p.domain[0] = v
		case "DOMAIN1":
			if r.p.domain == nil { r.p.domain = make([]float64, 2) }
			r.p.domain[1] = v
		case "COEFF":
			if len(fields) < 3 {
				return nil, fmt.Errorf("card %s: no coefficient index", c.Name)
			}
			i, err := strconv.Atoi(fields[2])
			if err != nil {
				return nil, fmt.Errorf("card %s: %v", c.Name, err)
			}
			r.coeff[i] = v
		case "NSAT":   r.p.hasStats = true; r.p.stats.NSat = int(v)
		case "MEAN":   r.p.hasStats = true; r.p.stats.Mean = v
		case "MEDIAN": r.p.hasStats = true; r.p.stats.Median = v
		case "MAX":    r.p.hasStats = true; r.p.stats.Max = v
		}
	}

	s := NewSet()
	for aper, r := range byAper {
		idx := []int{}
		for i := range r.coeff {
			idx = append(idx, i)
		}
		sort.Ints(idx)
		for n, i := range idx {
			if n != i {
				return nil, fmt.Errorf("aperture %d: coefficient %d missing", aper, n)
			}
			r.p.position = append(r.p.position, r.coeff[i])
		}
		l, err := r.p.finish()
		if err != nil {
			return nil, err
		}
		s.Put(aper, l)
	}
	return s, nil
}
