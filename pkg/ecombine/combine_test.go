package ecombine

import(
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abworrall/echelle/pkg/emath"
)

// cube returns n 3x2 frames of constant value v, with frame `hot`
// holding outlier at pixel (1,1).
func cube(n int, v float64, hot int, outlier float64) []emath.FloatGrid {
	c := make([]emath.FloatGrid, n)
	for i := range c {
		c[i] = emath.NewFloatGrid(3, 2)
		for j := range c[i].Values() {
			c[i].Values()[j] = v
		}
	}
	if hot >= 0 {
		c[hot].Set(1, 1, outlier)
	}
	return c
}

func TestImagesClipped(t *testing.T) {
	frames := cube(16, 10, 5, 1000)

	for mode, want := range map[string]float64{"mean": 10, "sum": 160, "median": 10} {
		opt := DefaultOptions()
		opt.Mode = mode
		out, err := Images(frames, opt)
		require.NoError(t, err, mode)
		assert.InDelta(t, want, out.Get(1, 1), 1e-9, mode)
		assert.InDelta(t, want, out.Get(0, 0), 1e-9, mode)
	}
}

func TestImagesUnclipped(t *testing.T) {
	frames := cube(16, 10, 5, 1000)
	opt := Options{Mode: "mean", Workers: 0}
	out, err := Images(frames, opt)
	require.NoError(t, err)
	assert.InDelta(t, 71.875, out.Get(1, 1), 1e-9)
	assert.InDelta(t, 10.0, out.Get(2, 1), 1e-9)

	opt.Mode = "sum"
	out, err = Images(frames, opt)
	require.NoError(t, err)
	assert.InDelta(t, 1150.0, out.Get(1, 1), 1e-9)
}

func TestImagesFewFrames(t *testing.T) {
	// Two frames are never clipped
	frames := cube(2, 10, 0, 30)
	out, err := Images(frames, DefaultOptions())
	require.NoError(t, err)
	assert.InDelta(t, 20.0, out.Get(1, 1), 1e-9)

	opt := DefaultOptions()
	opt.Mode = "median"
	out, err = Images(frames, opt)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, out.Get(1, 1), 1e-9)
}

func TestImagesErrors(t *testing.T) {
	_, err := Images(nil, DefaultOptions())
	assert.Error(t, err)

	opt := DefaultOptions()
	opt.Mode = "max"
	_, err = Images(cube(3, 1, -1, 0), opt)
	assert.Error(t, err)

	frames := append(cube(2, 1, -1, 0), emath.NewFloatGrid(2, 3))
	_, err = Images(frames, DefaultOptions())
	assert.Error(t, err)
}

func TestSaturationMask(t *testing.T) {
	frames := cube(3, 100, -1, 0)
	frames[0].Set(0, 0, 65535)
	frames[1].Set(0, 0, 65535)
	frames[0].Set(2, 1, 65535)

	m, err := SaturationMask(frames, 60000)
	require.NoError(t, err)
	assert.True(t, m.Get(0, 0))
	assert.False(t, m.Get(2, 1))
	assert.Equal(t, 1, m.Count())

	// Exactly half is not a majority
	m, err = SaturationMask(frames[:2], 60000)
	require.NoError(t, err)
	assert.True(t, m.Get(0, 0))
	assert.False(t, m.Get(2, 1))

	_, err = SaturationMask(nil, 1)
	assert.Error(t, err)
	_, err = SaturationMask(append(frames, emath.NewFloatGrid(1, 1)), 1)
	assert.Error(t, err)
}

func TestOptionsString(t *testing.T) {
	assert.Equal(t, "combine[mean, clip -3/+3, maxiter 5]", DefaultOptions().String())
}
