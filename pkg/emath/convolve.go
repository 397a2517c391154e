package emath

import(
	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/floats"
)

// Hanning returns the n point symmetric Hann window, zero at both ends.
func Hanning(n int) []float64 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []float64{1}
	}
	seq := make([]float64, n)
	for i := range seq {
		seq[i] = 1
	}
	return window.Hann(seq)
}

// NormalizedHanning is a Hann window scaled to unit sum.
func NormalizedHanning(n int) []float64 {
	k := Hanning(n)
	if sum := floats.Sum(k); sum > 0 {
		floats.Scale(1/sum, k)
	}
	return k
}

// ConvolveSame is the discrete convolution of a with k, trimmed to the
// length of a. For even kernels the extra sample of the centre goes left.
// Samples beyond the ends of a are zero.
func ConvolveSame(a, k []float64) []float64 {
	n, m := len(a), len(k)
	if n == 0 || m == 0 {
		return make([]float64, n)
	}
	if m > n {
		a, k = k, a
		n, m = m, n
	}
	off := (m - 1) / 2
	out := make([]float64, n)
	for i := range out {
		full := i + off
		sum := 0.0
		for j:=0; j<m; j++ {
			ai := full - j
			if ai < 0 || ai >= n { continue }
			sum += a[ai] * k[j]
		}
		out[i] = sum
	}
	return out
}
