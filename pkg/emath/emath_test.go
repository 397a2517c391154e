package emath

import(
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMedian(t *testing.T) {
	assert.Equal(t, 2.0, Median([]float64{3, 1, 2}))
	assert.Equal(t, 2.5, Median([]float64{4, 1, 3, 2}))
	assert.True(t, math.IsNaN(Median(nil)))

	in := []float64{3, 1, 2}
	Median(in)
	assert.Equal(t, []float64{3, 1, 2}, in, "input untouched")
}

func TestLinspace(t *testing.T) {
	assert.Equal(t, []float64{0, 0.25, 0.5, 0.75, 1}, Linspace(0, 1, 5))
	assert.Equal(t, []float64{2}, Linspace(2, 3, 1))
	assert.Nil(t, Linspace(0, 1, 0))
}

func TestDerivative(t *testing.T) {
	x := []float64{0, 1, 2, 3, 4}
	y := []float64{1, 3, 5, 7, 9}
	for _, d := range Derivative(x, y) {
		assert.InDelta(t, 2.0, d, 1e-12)
	}
}

func TestArgMax(t *testing.T) {
	assert.Equal(t, 1, ArgMax([]float64{1, 5, 5, 2}))
	assert.Equal(t, 0, ArgMax([]float64{7}))
}

func TestHanning(t *testing.T) {
	assert.InDeltaSlice(t, []float64{0, 0.5, 1, 0.5, 0}, Hanning(5), 1e-12)
	assert.Equal(t, []float64{1}, Hanning(1))

	k := NormalizedHanning(7)
	sum := 0.0
	for _, v := range k {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
}

func TestConvolveSame(t *testing.T) {
	a := []float64{0, 0, 1, 0, 0}
	k := []float64{1, 2, 3}
	assert.Equal(t, []float64{0, 1, 2, 3, 0}, ConvolveSame(a, k))

	// Even length kernels put the extra sample of the centre on the left
	assert.Equal(t, []float64{0, 0, 1, 1, 0}, ConvolveSame(a, []float64{1, 1}))
}

func TestSpline(t *testing.T) {
	xs := Linspace(0, 10, 41)
	ys := make([]float64, len(xs))
	for i, x := range xs {
		ys[i] = math.Sin(x)
	}
	s, err := NewSpline(xs, ys)
	require.NoError(t, err)
	assert.InDelta(t, math.Sin(3.3), s.Predict(3.3), 1e-3)
	assert.InDelta(t, math.Cos(3.3), s.PredictDerivative(3.3), 1e-2)

	// Knots are reproduced exactly
	for i, x := range xs {
		assert.InDelta(t, ys[i], s.Predict(x), 1e-12)
	}

	_, err = NewSpline([]float64{0, 1, 1}, []float64{0, 1, 2})
	assert.Error(t, err)
	_, err = NewSpline([]float64{0}, []float64{0})
	assert.Error(t, err)
}

func TestSplineTwoKnots(t *testing.T) {
	s, err := NewSpline([]float64{0, 2}, []float64{1, 5})
	require.NoError(t, err)
	assert.InDelta(t, 3.0, s.Predict(1), 1e-12)
	assert.InDelta(t, 2.0, s.PredictDerivative(1), 1e-12)
}

func TestFloatGridTranspose(t *testing.T) {
	g, err := NewFloatGridFromValues(3, 2, []float64{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 5}, g.Column(1))
	assert.Equal(t, []float64{4, 5, 6}, g.Row(1))

	tr := g.Transpose()
	assert.Equal(t, 2, tr.Dx())
	assert.Equal(t, 3, tr.Dy())
	assert.Equal(t, 6.0, tr.Get(1, 2))
	assert.Equal(t, 2.0, tr.Get(0, 1))

	_, err = NewFloatGridFromValues(3, 3, []float64{1, 2})
	assert.Error(t, err)
}

func TestMedianColumns(t *testing.T) {
	g := NewFloatGrid(5, 1)
	for x, v := range []float64{9, 1, 2, 3, 100} {
		g.Set(x, 0, v)
	}
	assert.Equal(t, []float64{3}, g.MedianColumns(2, 2))
	assert.Equal(t, []float64{5}, g.MedianColumns(0, 1), "clipped at the edge")
}

func TestBoolGrid(t *testing.T) {
	g := NewFloatGrid(3, 2)
	g.Set(2, 0, 10)
	g.Set(0, 1, 20)
	bg := Threshold(g, 10)
	assert.Equal(t, 2, bg.Count())
	assert.True(t, bg.Get(2, 0))

	tr := bg.Transpose()
	assert.Equal(t, 2, tr.Dx())
	assert.Equal(t, 3, tr.Dy())
	assert.True(t, tr.Get(0, 2))
	assert.True(t, tr.Get(1, 0))
}

func TestDS9Frame(t *testing.T) {
	x, y := DS9Frame(true).Apply(10, 20)
	assert.Equal(t, []float64{11, 21}, []float64{x, y})

	x, y = DS9Frame(false).Apply(10, 20)
	assert.Equal(t, []float64{21, 11}, []float64{x, y})
}
