package aperture

import(
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abworrall/echelle/pkg/emath"
	"github.com/abworrall/echelle/pkg/epoly"
)

// flatOrder is a horizontal order at a constant row.
func flatOrder(t *testing.T, row float64) *Location {
	l := NewLocation(AlongX, 1000, 2000)
	require.NoError(t, l.SetPosition(epoly.Chebyshev{Coeff: []float64{row}, Domain: [2]float64{0, 1999}}))
	return l
}

func evenSet(t *testing.T, first int, rows ...float64) *Set {
	s := NewSet()
	for i, r := range rows {
		s.Put(first+i, flatOrder(t, r))
	}
	return s
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("x")
	require.NoError(t, err)
	assert.Equal(t, AlongX, d)
	d, err = ParseDirection("0")
	require.NoError(t, err)
	assert.Equal(t, AlongY, d)
	_, err = ParseDirection("z")
	assert.Error(t, err)
}

func TestLengths(t *testing.T) {
	l := NewLocation(AlongX, 100, 300)
	assert.Equal(t, 300, l.AlongLength())
	assert.Equal(t, 100, l.AcrossLength())
	l = NewLocation(AlongY, 100, 300)
	assert.Equal(t, 100, l.AlongLength())
	assert.Equal(t, 300, l.AcrossLength())
}

func TestSetPositionDomain(t *testing.T) {
	l := NewLocation(AlongX, 100, 300)
	assert.Error(t, l.SetPosition(epoly.Chebyshev{Coeff: []float64{1}, Domain: [2]float64{0, 300}}))
	assert.Error(t, l.SetPosition(epoly.Chebyshev{Coeff: []float64{1}, Domain: [2]float64{-1, 10}}))
	assert.NoError(t, l.SetPosition(epoly.Chebyshev{Coeff: []float64{1}, Domain: [2]float64{0, 299}}))
}

func TestAddSortShift(t *testing.T) {
	s := NewSet()
	assert.Equal(t, 0, s.Add(flatOrder(t, 300)))
	assert.Equal(t, 1, s.Add(flatOrder(t, 100)))
	assert.Equal(t, 2, s.Add(flatOrder(t, 200)))

	s.Sort()
	assert.Equal(t, []int{0, 1, 2}, s.Keys())
	l, _ := s.Get(0)
	assert.Equal(t, 100.0, l.CenterPosition())

	s.Shift(-5)
	assert.Equal(t, []int{-5, -4, -3}, s.Keys())
	l, _ = s.Get(-3)
	assert.Equal(t, 300.0, l.CenterPosition())
	assert.Equal(t, -2, s.Add(flatOrder(t, 400)))
}

func TestBoundaries(t *testing.T) {
	s := evenSet(t, 0, 100, 150, 200)
	b, err := s.Boundaries(500)
	require.NoError(t, err)
	assert.Equal(t, Bounds{Lower: 75, Upper: 125}, b[0])
	assert.Equal(t, Bounds{Lower: 125, Upper: 175}, b[1])
	assert.Equal(t, Bounds{Lower: 175, Upper: 225}, b[2])

	_, err = evenSet(t, 0, 100).Boundaries(0)
	assert.Error(t, err)
}

func TestLocalSeparation(t *testing.T) {
	s := evenSet(t, 0, 100, 150, 210)
	sep, err := s.LocalSeparation(1)
	require.NoError(t, err)
	assert.InDelta(t, 55.0, sep, 1e-9)
	sep, err = s.LocalSeparation(0)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, sep, 1e-9)
	_, err = s.LocalSeparation(7)
	assert.Error(t, err)
}

func TestFindOffset(t *testing.T) {
	rows := []float64{}
	for k:=0; k<10; k++ {
		rows = append(rows, 100 + 50*float64(k))
	}
	ref := evenSet(t, 0, rows...)
	other := evenSet(t, 2, rows...)

	off, err := ref.FindOffset(other)
	require.NoError(t, err)
	assert.Equal(t, 2, off)

	other.Shift(-off)
	assert.Equal(t, ref.Keys(), other.Keys())

	// A set missing some orders still lines up
	part := evenSet(t, 5, rows[3:8]...)
	off, err = ref.FindOffset(part)
	require.NoError(t, err)
	assert.Equal(t, 2, off)

	_, err = ref.FindOffset(evenSet(t, 50, 100, 150))
	assert.Error(t, err)
}

func TestFitNodes(t *testing.T) {
	l := NewLocation(AlongX, 1000, 2000)
	nodes := []Node{}
	for x:=0.0; x<2000; x+=100 {
		nodes = append(nodes, Node{Along: x, Across: 300 + 0.01*x})
	}
	nodes[7].Across += 40
	l.SetNodes(Center, nodes)

	clip, err := l.FitNodes(Center, 3, 3, 5)
	require.NoError(t, err)
	assert.False(t, clip.Mask[7])
	assert.Len(t, l.Coeffs[Center], 4)
	assert.InDelta(t, 310.0, l.LineAt(Center, 1000), 1e-6)

	// Too few nodes drops the degree
	l.SetNodes(Upper, []Node{{0, 10}, {1000, 20}})
	_, err = l.FitNodes(Upper, 3, 3, 5)
	require.NoError(t, err)
	assert.Len(t, l.Coeffs[Upper], 2)
	assert.InDelta(t, 15.0, l.LineAt(Upper, 500), 1e-9)

	_, err = l.FitNodes(Lower, 3, 3, 5)
	assert.Error(t, err)
}

func TestMeasureStats(t *testing.T) {
	data := emath.NewFloatGrid(100, 100)
	for x:=0; x<100; x++ {
		for y:=0; y<100; y++ {
			data.Set(x, y, 10)
		}
		data.Set(x, 50, 1000)
	}
	data.Set(30, 50, 2000)
	sat := emath.NewBoolGrid(100, 100)
	sat.Set(20, 52, true)
	sat.Set(21, 53, true)   // outside the mask
	sat.Set(22, 47, true)   // outside the mask

	l := NewLocation(AlongX, 100, 100)
	require.NoError(t, l.SetPosition(epoly.Chebyshev{Coeff: []float64{50}, Domain: [2]float64{10, 89}}))
	st := l.MeasureStats(data, sat, 3)
	assert.Equal(t, 1, st.NSat)
	assert.Equal(t, 2000.0, st.Max)
	assert.Equal(t, 1000.0, st.Median)
	assert.InDelta(t, (79*1000.0 + 2000)/80, st.Mean, 1e-9)
	assert.Same(t, st, l.Stats)
}

func TestTextRoundTrip(t *testing.T) {
	s := evenSet(t, 3, 100.125, 157.3)
	l, _ := s.Get(3)
	l.Position.Coeff = []float64{100.125, -0.333333333333, 1e-7}
	l.SetNodes(Center, []Node{{0, 100.5}, {1000, 101.25}})
	l.Coeffs[Lower] = []float64{0, 1.23456789e-3, 0.0931}
	l.Stats = &Stats{NSat: 4, Mean: 1234.5, Median: 1200.25, Max: 65535}

	v := NewLocation(AlongY, 300, 200)
	require.NoError(t, v.SetPosition(epoly.Chebyshev{Coeff: []float64{50, 2}, Domain: [2]float64{12, 250}}))
	s.Put(9, v)

	var buf bytes.Buffer
	require.NoError(t, s.WriteTxt(&buf))
	assert.True(t, strings.HasPrefix(buf.String(), "# 3 apertures\nAPERTURE LOCATION 3\n"))

	back, err := ReadTxt(&buf)
	require.NoError(t, err)
	assert.Equal(t, s.Keys(), back.Keys())
	for _, k := range s.Keys() {
		want, _ := s.Get(k)
		got, _ := back.Get(k)
		assert.Equal(t, want, got, "aperture %d", k)
	}
}

func TestReadTxtErrors(t *testing.T) {
	_, err := ReadTxt(strings.NewReader("APERTURE LOCATION x\n"))
	assert.Error(t, err)

	_, err = ReadTxt(strings.NewReader("APERTURE LOCATION 0\ndirect = 1\nshape = (10, 20)\nposition = [1]\ndomain = [0, 50]\n"))
	assert.Error(t, err, "domain beyond the image")

	s, err := ReadTxt(strings.NewReader("; comment\n! other\n\nAPERTURE LOCATION 0\n  direct = 0\n  shape = (10, 20)\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())
}

func TestCardsRoundTrip(t *testing.T) {
	s := evenSet(t, 0, 100, 200)
	l, _ := s.Get(1)
	l.Stats = &Stats{NSat: 2, Mean: 10, Median: 9, Max: 40}

	for _, channel := range []string{"", "A"} {
		cards := s.Cards(channel)
		assert.True(t, strings.HasPrefix(cards[0].Name, "EDRS TRACE"))
		back, err := SetFromCards(cards, channel)
		require.NoError(t, err)
		require.Equal(t, []int{0, 1}, back.Keys())
		for _, k := range back.Keys() {
			want, _ := s.Get(k)
			got, _ := back.Get(k)
			assert.Equal(t, want.Position, got.Position)
			assert.Equal(t, want.Stats, got.Stats)
			assert.Equal(t, want.Direct, got.Direct)
		}
	}

	// Another channel's cards are ignored
	back, err := SetFromCards(s.Cards("A"), "B")
	require.NoError(t, err)
	assert.Equal(t, 0, back.Len())

	// A gap in the coefficients is an error
	cards := s.Cards("")
	cards[3].Name = strings.Replace(cards[3].Name, "COEFF 0", "COEFF 1", 1)
	_, err = SetFromCards(cards, "")
	assert.Error(t, err)
}

func TestWriteRegions(t *testing.T) {
	s := evenSet(t, 0, 100, 200)
	var buf bytes.Buffer
	require.NoError(t, s.WriteRegions(&buf, "", "A"))
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "# Region file format: DS9 version 4.1\n"))
	assert.Equal(t, 2*49, strings.Count(out, "\nline("))
	assert.Contains(t, out, "Channel A, Aperture   1")
	assert.Contains(t, out, "# color=#")

	// One based: the first point of aperture 0 is at x=1, y=101
	assert.Contains(t, out, "line(   1.00, 101.00,")
}

func TestCardFloat(t *testing.T) {
	v, err := CardFloat(" 2.5 ")
	require.NoError(t, err)
	assert.Equal(t, 2.5, v)
	v, err = CardFloat(int64(7))
	require.NoError(t, err)
	assert.Equal(t, 7.0, v)
	_, err = CardFloat(true)
	assert.Error(t, err)
}
