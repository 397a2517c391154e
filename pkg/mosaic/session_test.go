package mosaic

import(
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abworrall/echelle/pkg/aperture"
	"github.com/abworrall/echelle/pkg/emath"
)

// valleyImage has orders running along x, with a smooth dip in flux
// centred on row c0.
func valleyImage(w, h int, c0 float64) emath.FloatGrid {
	g := emath.NewFloatGrid(w, h)
	for y:=0; y<h; y++ {
		d := float64(y) - c0
		v := 10 + 1000*(1-math.Exp(-d*d/(2*15*15)))
		for x:=0; x<w; x++ {
			g.Set(x, y, v)
		}
	}
	return g
}

func TestDetectGap(t *testing.T) {
	img := valleyImage(300, 400, 150)
	view := DispersionView(img, aperture.AlongX)
	require.Equal(t, 400, view.Dx())
	require.Equal(t, 300, view.Dy())

	opt := DefaultGapOptions()
	opt.Degree = 1
	gap, err := DetectGap(view, 150, opt)
	require.NoError(t, err)
	assert.False(t, gap.Lost)
	assert.Len(t, gap.Nodes, 6)
	require.Len(t, gap.Coeff, 2)
	assert.InDelta(t, 0.0, gap.Coeff[0]*400, 1.0)
	assert.InDelta(t, 150.0, gap.Coeff[1]*400, 1.0)
	for _, n := range gap.Nodes {
		assert.InDelta(t, 150.0, n.Across, 1.0)
	}
}

func TestDetectGapErrors(t *testing.T) {
	view := DispersionView(valleyImage(300, 400, 150), aperture.AlongX)
	_, err := DetectGap(view, -5, DefaultGapOptions())
	assert.Error(t, err)

	opt := DefaultGapOptions()
	opt.Step = 0
	_, err = DetectGap(view, 150, opt)
	assert.Error(t, err)

	narrow := DispersionView(valleyImage(300, 20, 10), aperture.AlongX)
	gap, err := DetectGap(narrow, 10, DefaultGapOptions())
	assert.True(t, errors.Is(err, ErrGapLost))
	assert.True(t, gap.Lost)
}

// stepImage is already in the dispersion frame: rows run along the
// dispersion, and each row jumps from 100 to 1000 at column edge(row).
func stepImage(w, h int, edge func(row float64) float64) emath.FloatGrid {
	g := emath.NewFloatGrid(w, h)
	for y:=0; y<h; y++ {
		e := edge(float64(y))
		for x:=0; x<w; x++ {
			v := 1000.0
			if float64(x) < e { v = 100 }
			g.Set(x, y, v)
		}
	}
	return g
}

func TestDetectGapStep(t *testing.T) {
	w, h := 300, 400
	opt := DefaultGapOptions()
	opt.Degree = 1

	for _, tc := range []struct {
		slope, intercept float64
	}{
		{0, 150},
		{0.05, 140},
	} {
		view := stepImage(w, h, func(row float64) float64 { return tc.intercept + tc.slope*row })
		x0 := tc.intercept + tc.slope*float64(h/2)
		gap, err := DetectGap(view, x0, opt)
		require.NoError(t, err)
		assert.False(t, gap.Lost)
		assert.Len(t, gap.Nodes, 8)
		require.Len(t, gap.Coeff, 2)

		// back to pixels: column = slope*row + intercept
		assert.InDelta(t, tc.slope, gap.Coeff[0]*float64(w)/float64(h), 0.01)
		assert.InDelta(t, tc.intercept, gap.Coeff[1]*float64(w), 1.0)
	}
}

func twoFileSession() *Session {
	s := NewSession([]string{"a.fits", "b.fits"}, aperture.AlongX, 200, 100)
	s.AddBoundary([]float64{0.5})
	s.AddBoundary([]float64{0.25})
	s.Choose(0, 0)
	s.Choose(1, 1)
	s.Choose(0, 2)
	return s
}

func TestSessionEdit(t *testing.T) {
	s := NewSession([]string{"a.fits", "b.fits"}, aperture.AlongY, 100, 200)
	assert.Equal(t, 200, s.AlongLen)
	assert.Equal(t, 100, s.AcrossLen)
	assert.Equal(t, 1, s.Regions())

	add := func(c float64) int {
		at, err := s.AddBoundary([]float64{c})
		require.NoError(t, err)
		return at
	}
	assert.Equal(t, 0, add(0.5))
	assert.Equal(t, 0, add(0.25))
	assert.Equal(t, 2, add(0.75))
	assert.Equal(t, 4, s.Regions())
	assert.Equal(t, []float64{0, 25, 50, 75, 100}, s.Nodes())
	for _, sel := range s.Select {
		assert.Len(t, sel, 4)
	}

	assert.Equal(t, 0, s.RegionAt(10))
	assert.Equal(t, 0, s.RegionAt(25))
	assert.Equal(t, 1, s.RegionAt(26))
	assert.Equal(t, 3, s.RegionAt(99))
	assert.Equal(t, 1, s.NearestBoundary(49.5))
	assert.Equal(t, -1, s.NearestBoundary(48))
	assert.Equal(t, -1, s.NearestBoundary(37.5))

	require.NoError(t, s.Choose(1, 2))
	require.NoError(t, s.Toggle(0, 2))
	assert.Equal(t, []bool{false, false, true, false}, s.Select[0])
	assert.Equal(t, []bool{false, false, true, false}, s.Select[1])
	assert.Error(t, s.Choose(2, 0))
	assert.Error(t, s.Toggle(0, 4))

	// Deleting the boundary at 50 merges regions 1 and 2, keeping region 1's choice
	require.NoError(t, s.DeleteBoundary(1))
	assert.Equal(t, 3, s.Regions())
	assert.Equal(t, []bool{false, false, false}, s.Select[0])
	assert.Error(t, s.DeleteBoundary(5))
}

func TestSessionAddKeepsSelection(t *testing.T) {
	s := NewSession([]string{"a", "b"}, aperture.AlongX, 100, 100)
	require.NoError(t, s.Choose(1, 0))
	s.AddBoundary([]float64{0.4})
	assert.Equal(t, []bool{false, false}, s.Select[0])
	assert.Equal(t, []bool{true, true}, s.Select[1])
	assert.NoError(t, s.Validate())
}

func TestSessionAddBoundaryRefused(t *testing.T) {
	s := NewSession([]string{"a", "b"}, aperture.AlongX, 100, 100)
	_, err := s.AddBoundary([]float64{0.5})
	require.NoError(t, err)

	for _, c := range []float64{0.5, 0.505, 1.7, -0.2, 0.005, 0.998} {
		at, err := s.AddBoundary([]float64{c})
		assert.Error(t, err, c)
		assert.Equal(t, -1, at)
	}
	assert.Equal(t, []float64{0, 50, 100}, s.Nodes())
	assert.Len(t, s.Select[0], 2)
}

func TestSessionValidateBoundaries(t *testing.T) {
	s := twoFileSession()
	s.Boundaries[0], s.Boundaries[1] = s.Boundaries[1], s.Boundaries[0]
	var ve *ValidationError
	require.True(t, errors.As(s.Validate(), &ve))
	assert.Equal(t, "boundary", ve.Field)

	s = twoFileSession()
	s.Boundaries[1] = []float64{1.5}
	require.True(t, errors.As(s.Validate(), &ve))
	assert.Equal(t, "boundary", ve.Field)

	s = twoFileSession()
	s.Boundaries[1] = []float64{0.25}
	assert.Error(t, s.Validate())
	_, err := s.Compose([]emath.FloatGrid{emath.NewFloatGrid(200, 100), emath.NewFloatGrid(200, 100)})
	assert.Error(t, err)
}

func TestSessionValidate(t *testing.T) {
	s := twoFileSession()
	require.NoError(t, s.Validate())

	require.NoError(t, s.Toggle(1, 0))
	require.NoError(t, s.Toggle(1, 1))
	err := s.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIncomplete))
	var ce *CompletenessError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, []int{0, 1}, ce.Regions)
	assert.Equal(t, []int{2, 0}, ce.Counts)

	s.Select[0] = s.Select[0][:1]
	var ve *ValidationError
	assert.True(t, errors.As(s.Validate(), &ve))
}

func TestSessionCompose(t *testing.T) {
	s := twoFileSession()
	a, b := emath.NewFloatGrid(200, 100), emath.NewFloatGrid(200, 100)
	for i := range a.Values() {
		a.Values()[i] = 1
		b.Values()[i] = 2
	}

	out, err := s.Compose([]emath.FloatGrid{a, b})
	require.NoError(t, err)
	assert.Equal(t, 1.0, out.Get(10, 25))
	assert.Equal(t, 2.0, out.Get(10, 26))
	assert.Equal(t, 2.0, out.Get(199, 50))
	assert.Equal(t, 1.0, out.Get(0, 51))
	assert.Equal(t, 1.0, out.Get(0, 99))

	_, err = s.Compose([]emath.FloatGrid{a})
	assert.Error(t, err)
	_, err = s.Compose([]emath.FloatGrid{a, emath.NewFloatGrid(100, 200)})
	assert.Error(t, err)

	s.Toggle(0, 1)
	_, err = s.Compose([]emath.FloatGrid{a, b})
	assert.True(t, errors.Is(err, ErrIncomplete))
}

func TestSessionApply(t *testing.T) {
	img := valleyImage(300, 400, 150)
	views := []emath.FloatGrid{DispersionView(img, aperture.AlongX)}
	s := NewSession([]string{"flat"}, aperture.AlongX, 300, 400)
	opt := DefaultGapOptions()
	opt.Degree = 1

	require.NoError(t, s.Apply(Command{Kind: AddBoundary, File: 0, Across: 150}, views, opt))
	require.Equal(t, 2, s.Regions())
	assert.InDelta(t, 150.0, s.Nodes()[1], 1.0)

	require.NoError(t, s.Apply(Command{Kind: ChooseFile, File: 0, Across: 300}, views, opt))
	assert.Equal(t, []bool{false, true}, s.Select[0])
	require.NoError(t, s.Apply(Command{Kind: ToggleFile, File: 0, Across: 10}, views, opt))
	assert.NoError(t, s.Validate())

	assert.Error(t, s.Apply(Command{Kind: AddBoundary, File: 3, Across: 150}, views, opt))

	// a click too far from the boundary deletes nothing
	assert.Error(t, s.Apply(Command{Kind: DeleteBoundary, Across: 140}, views, opt))
	assert.Equal(t, 2, s.Regions())
	require.NoError(t, s.Apply(Command{Kind: DeleteBoundary, Across: 151}, views, opt))
	assert.Equal(t, 1, s.Regions())
	assert.Error(t, s.Apply(Command{Kind: DeleteBoundary, Across: 151}, views, opt))
}

func TestParseCommand(t *testing.T) {
	cmd, err := ParseCommand("add 1 512.5")
	require.NoError(t, err)
	assert.Equal(t, Command{Kind: AddBoundary, File: 1, Across: 512.5}, cmd)

	cmd, err = ParseCommand("  del 300 ")
	require.NoError(t, err)
	assert.Equal(t, Command{Kind: DeleteBoundary, Across: 300}, cmd)

	cmd, err = ParseCommand("tog 0 12")
	require.NoError(t, err)
	assert.Equal(t, ToggleFile, cmd.Kind)

	for _, bad := range []string{"", "zap 1 2", "sel 1", "del 1 2", "add x 3", "add 1 y"} {
		_, err := ParseCommand(bad)
		assert.Error(t, err, bad)
	}
}

func TestAsciiRoundTrip(t *testing.T) {
	s := twoFileSession()
	var buf bytes.Buffer
	require.NoError(t, s.WriteAscii(&buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "boundary"))
	assert.Equal(t, "file a.fits 1 0 1", lines[2])
	assert.Equal(t, "file b.fits 0 1 0", lines[3])

	s2, err := ReadAscii(&buf, aperture.AlongX, 200, 100)
	require.NoError(t, err)
	assert.Equal(t, s.Files, s2.Files)
	assert.Equal(t, s.Select, s2.Select)
	require.Len(t, s2.Boundaries, 2)
	assert.InDeltaSlice(t, s.Boundaries[0], s2.Boundaries[0], 1e-12)
	assert.InDeltaSlice(t, s.Boundaries[1], s2.Boundaries[1], 1e-12)

	s.Toggle(1, 2)
	assert.True(t, errors.Is(s.WriteAscii(&bytes.Buffer{}), ErrIncomplete))
}

func TestReadAsciiLegacy(t *testing.T) {
	in := "% written by the old tool\n" +
		"boundary +0.0000000000e+00 +5.0000000000e-01\n" +
		"select file a.fits 1 0\n" +
		"select file b.fits 0 1\n"
	s, err := ReadAscii(strings.NewReader(in), aperture.AlongX, 200, 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.fits", "b.fits"}, s.Files)
	assert.Equal(t, [][]bool{{true, false}, {false, true}}, s.Select)
	assert.Equal(t, 2, s.Regions())
	assert.Equal(t, 0, s.RegionAt(40))
}

func TestReadAsciiBoundaryOrder(t *testing.T) {
	for _, in := range []string{
		"boundary 0.75\nboundary 0.25\nfile a.fits 1 1 1\n",
		"boundary 0.5\nboundary 0.5\nfile a.fits 1 1 1\n",
		"boundary 1.7\nfile a.fits 1 1\n",
		"boundary -0.1\nfile a.fits 1 1\n",
	} {
		s, err := ReadAscii(strings.NewReader(in), aperture.AlongX, 200, 100)
		assert.Nil(t, s, in)
		var ve *ValidationError
		require.True(t, errors.As(err, &ve), in)
		assert.Equal(t, "boundary", ve.Field)
	}
}

func TestReadAsciiProblems(t *testing.T) {
	in := "file a.fits 1\nfile b.fits 1\nboundary 0.5\n"
	s, err := ReadAscii(strings.NewReader(in), aperture.AlongX, 200, 100)
	require.Error(t, err)
	require.NotNil(t, s)
	assert.Equal(t, []bool{true, false}, s.Select[0])
	assert.Equal(t, []bool{true, false}, s.Select[1])
	assert.True(t, errors.Is(err, ErrIncomplete))
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "a.fits", ve.File)

	for _, bad := range []string{"wibble 1 2\n", "boundary x\n", "boundary\n", "file\n", "file a 2\n"} {
		s, err := ReadAscii(strings.NewReader(bad), aperture.AlongX, 200, 100)
		assert.Error(t, err, bad)
		assert.Nil(t, s)
	}
}

func TestSessionRegions(t *testing.T) {
	s := twoFileSession()
	var buf bytes.Buffer
	require.NoError(t, s.WriteRegions(&buf, 5))

	n := 0
	first := ""
	for _, l := range strings.Split(buf.String(), "\n") {
		if strings.HasPrefix(l, "line(") {
			if n == 0 { first = l }
			n++
		}
	}
	assert.Equal(t, 8, n)
	assert.True(t, strings.HasPrefix(first, "line(1.5,26.0,"), first)
	assert.True(t, strings.HasSuffix(first, ",26.0) # line=0 0"), first)
	assert.True(t, strings.HasPrefix(buf.String(), "# Region file format"))

	assert.Error(t, s.WriteRegions(&bytes.Buffer{}, 1))
}
