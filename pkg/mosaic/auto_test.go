package mosaic

import(
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abworrall/echelle/pkg/aperture"
	"github.com/abworrall/echelle/pkg/emath"
	"github.com/abworrall/echelle/pkg/epoly"
)

const imgSize = 100

// orderAt is a horizontal order on a 100x100 image with edges 10px
// either side of its center.
func orderAt(t *testing.T, row float64, st aperture.Stats) *aperture.Location {
	l := aperture.NewLocation(aperture.AlongX, imgSize, imgSize)
	require.NoError(t, l.SetPosition(epoly.Chebyshev{Coeff: []float64{row}, Domain: [2]float64{0, imgSize-1}}))
	l.Coeffs[aperture.Center] = []float64{row / imgSize}
	l.Coeffs[aperture.Lower] = []float64{(row - 10) / imgSize}
	l.Coeffs[aperture.Upper] = []float64{(row + 10) / imgSize}
	l.Stats = &st
	return l
}

func constGrid(v float64) emath.FloatGrid {
	g := emath.NewFloatGrid(imgSize, imgSize)
	for i := range g.Values() {
		g.Values()[i] = v
	}
	return g
}

// testFlat builds a flat with one order per stats entry, at rows 10, 30, ...
func testFlat(t *testing.T, name string, fill float64, stats []aperture.Stats) Flat {
	set := aperture.NewSet()
	for i, st := range stats {
		set.Put(i, orderAt(t, 10+20*float64(i), st))
	}
	return Flat{Name: name, Data: constGrid(fill), Apertures: set}
}

func TestMosaicFlatAuto(t *testing.T) {
	clean := aperture.Stats{Median: 1000, Mean: 1000, Max: 1500}
	hot := aperture.Stats{Median: 5000, Mean: 5000, Max: 9000}
	sat := aperture.Stats{NSat: 12, Median: 50000, Mean: 50000, Max: 65535}
	faint := aperture.Stats{Median: 300, Mean: 300, Max: 400}

	bright := testFlat(t, "long", 1, []aperture.Stats{hot, hot, sat, sat, hot})
	dim := testFlat(t, "short", 2, []aperture.Stats{faint, faint, clean, clean, faint})

	res, err := MosaicFlatAuto([]Flat{bright, dim}, DefaultAutoOptions())
	require.NoError(t, err)
	assert.Equal(t, map[int]int{0: 0, 1: 0, 2: 1, 3: 1, 4: 0}, res.Choice)
	assert.Empty(t, res.Fallback)
	assert.Equal(t, 5, res.Apertures.Len())

	// Splits at rows 40 and 80, pixels on the cut stay below it
	owner := func(y int) int { return res.Owner[y*imgSize+7] }
	assert.Equal(t, 0, owner(0))
	assert.Equal(t, 0, owner(40))
	assert.Equal(t, 1, owner(41))
	assert.Equal(t, 1, owner(80))
	assert.Equal(t, 0, owner(81))
	assert.Equal(t, 0, owner(99))

	assert.Equal(t, 1.0, res.Image.Get(50, 20))
	assert.Equal(t, 2.0, res.Image.Get(50, 60))
	assert.Equal(t, 1.0, res.Image.Get(50, 90))

	m := res.Mask(1)
	assert.Equal(t, 40*imgSize, m.Count())
}

func TestMosaicFlatAutoMaxCount(t *testing.T) {
	a := aperture.Stats{Median: 5000, Max: 70000}
	b := aperture.Stats{Median: 1000, Max: 2000}
	f1 := testFlat(t, "a", 1, []aperture.Stats{a, a, a})
	f2 := testFlat(t, "b", 2, []aperture.Stats{b, b, b})

	opt := DefaultAutoOptions()
	res, err := MosaicFlatAuto([]Flat{f1, f2}, opt)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Choice[1])

	opt.MaxCount = 100000
	res, err = MosaicFlatAuto([]Flat{f1, f2}, opt)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Choice[1])
}

func TestMosaicFlatAutoFallback(t *testing.T) {
	bad := aperture.Stats{NSat: 40, Median: 60000, Max: 65535}
	lessBad := aperture.Stats{NSat: 3, Median: 30000, Max: 65535}
	ok := aperture.Stats{Median: 1000, Max: 2000}

	f1 := testFlat(t, "a", 1, []aperture.Stats{ok, bad, ok})
	f2 := testFlat(t, "b", 2, []aperture.Stats{ok, lessBad, ok})

	res, err := MosaicFlatAuto([]Flat{f1, f2}, DefaultAutoOptions())
	require.NoError(t, err)
	assert.Equal(t, []int{1}, res.Fallback)
	assert.Equal(t, 1, res.Choice[1])
}

func TestMosaicFlatAutoStatistic(t *testing.T) {
	a := aperture.Stats{Median: 100, Mean: 900, Max: 1000}
	b := aperture.Stats{Median: 200, Mean: 300, Max: 1100}
	f1 := testFlat(t, "a", 1, []aperture.Stats{a, a, a})
	f2 := testFlat(t, "b", 2, []aperture.Stats{b, b, b})

	for stat, want := range map[string]int{"median": 1, "mean": 0, "max": 1} {
		opt := DefaultAutoOptions()
		opt.Statistic = stat
		res, err := MosaicFlatAuto([]Flat{f1, f2}, opt)
		require.NoError(t, err)
		assert.Equal(t, want, res.Choice[0], stat)
	}
}

func TestMosaicFlatAutoErrors(t *testing.T) {
	st := aperture.Stats{Median: 1}
	f := testFlat(t, "a", 1, []aperture.Stats{st, st, st})

	_, err := MosaicFlatAuto(nil, DefaultAutoOptions())
	assert.Error(t, err)

	opt := DefaultAutoOptions()
	opt.Statistic = "mode"
	_, err = MosaicFlatAuto([]Flat{f}, opt)
	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))

	small := Flat{Name: "small", Data: emath.NewFloatGrid(10, 10), Apertures: f.Apertures}
	_, err = MosaicFlatAuto([]Flat{f, small}, DefaultAutoOptions())
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "small", ve.File)

	empty := Flat{Name: "empty", Data: constGrid(0), Apertures: aperture.NewSet()}
	_, err = MosaicFlatAuto([]Flat{f, empty}, DefaultAutoOptions())
	assert.Error(t, err)
}

func TestAlignSets(t *testing.T) {
	mk := func(first int, rows ...float64) *aperture.Set {
		s := aperture.NewSet()
		for i, r := range rows {
			s.Put(first+i, orderAt(t, r, aperture.Stats{}))
		}
		return s
	}
	ref := mk(0, 10, 20, 30, 40, 50, 60)
	other := mk(0, 30, 40, 50, 60)

	sets := []*aperture.Set{other, ref}
	assert.Equal(t, 1, SelectReference(sets))
	assert.Equal(t, -1, SelectReference(nil))

	shifts, err := AlignSets(sets, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 0}, shifts)
	assert.Equal(t, []int{2, 3, 4, 5}, other.Keys())

	_, err = AlignSets(sets, 5)
	assert.Error(t, err)
}
