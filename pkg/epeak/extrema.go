package epeak

import(
	"fmt"
	"math"
)

const tieTolerance = 1e-13

// LocalMinima returns the indices, in increasing order, of the local
// minima of x that are not beaten by any other sample inside their own
// window. window[i] is the full window width (odd) to use around index
// i. A minimum that sits on a plateau is reported at the first sample of
// the plateau, and only if the plateau is a true valley (higher values
// on both sides). Equal minima further apart than one plateau are both
// kept; values within rounding of each other count as equal.
func LocalMinima(x []float64, window []int) []int {
	if len(window) != len(x) {
		panic(fmt.Sprintf("epeak: %d samples but %d windows", len(x), len(window)))
	}
	n := len(x)
	idx := []int{}

	for i:=1; i<n-1; i++ {
		// end of a descending run (or plateau) followed by a rise
		if !(x[i+1] > x[i] && x[i] <= x[i-1]) {
			continue
		}
		k := i
		for k > 0 && x[k-1] == x[i] {
			k--
		}
		if k == 0 {
			continue
		}

		half := (window[k] - 1) / 2
		if half < 0 { half = 0 }
		i1, i2 := k-half, k+half+1
		if i1 < 0 { i1 = 0 }
		if i2 > n { i2 = n }

		floor := x[k] - tieTolerance*math.Max(1, math.Abs(x[k]))
		ok := true
		for j:=i1; j<i2; j++ {
			if x[j] < floor {
				ok = false
				break
			}
		}
		if ok {
			idx = append(idx, k)
		}
	}

	return idx
}

// LocalMaxima is LocalMinima of -x.
func LocalMaxima(x []float64, window []int) []int {
	neg := make([]float64, len(x))
	for i, v := range x {
		neg[i] = -v
	}
	return LocalMinima(neg, window)
}

// ConstantWindow is a window slice of n copies of w.
func ConstantWindow(n, w int) []int {
	win := make([]int, n)
	for i := range win {
		win[i] = w
	}
	return win
}
