package trace

import(
	"math"

	"github.com/abworrall/echelle/pkg/emath"
)

// A stack accumulates cross-sections from many columns, all remapped
// onto the coordinate system of the central column. Bin i holds
// y = i + offset, covering [-h/2, 1.5h).
type stack struct {
	offset    int
	sum       []float64
	max       []float64
	count     []int   // columns that contributed flux to the bin
	peakCount []int   // peaks that landed in the bin
}

func newStack(h int) *stack {
	n := 2*h
	s := &stack{
		offset:    -h/2,
		sum:       make([]float64, n),
		max:       make([]float64, n),
		count:     make([]int, n),
		peakCount: make([]int, n),
	}
	for i := range s.max {
		s.max[i] = math.Inf(-1)
	}
	return s
}

func (s *stack)bin(y float64) (int, bool) {
	i := int(math.Round(y)) - s.offset
	return i, i >= 0 && i < len(s.sum)
}

func (s *stack)addPeak(y float64) {
	if i, ok := s.bin(y); ok {
		s.peakCount[i]++
	}
}

// addProfile resamples flux, whose samples 0..h-1 sit at reference
// positions ysta..yend, onto the integer reference positions in between.
func (s *stack)addProfile(flux []float64, ysta, yend float64) error {
	spl, err := emath.NewSpline(emath.Linspace(ysta, yend, len(flux)), flux)
	if err != nil {
		return err
	}
	for y := int(math.Round(ysta)); y <= int(math.Round(yend)); y++ {
		i, ok := s.bin(float64(y))
		if !ok {
			continue
		}
		v := spl.Predict(float64(y))
		s.sum[i] += v
		s.count[i]++
		if v > s.max[i] { s.max[i] = v }
	}
	return nil
}

func (s *stack)mean() []float64 {
	m := make([]float64, len(s.sum))
	for i := range m {
		if s.count[i] > 0 {
			m[i] = s.sum[i] / float64(s.count[i])
		}
	}
	return m
}

// dropSingles zeroes bins holding exactly one peak.
func (s *stack)dropSingles() {
	for i, n := range s.peakCount {
		if n == 1 { s.peakCount[i] = 0 }
	}
}

// span is the range of bins that received any flux.
func (s *stack)span() (int, int) {
	first, last := -1, -1
	for i, n := range s.count {
		if n > 0 {
			if first < 0 { first = i }
			last = i
		}
	}
	return first, last+1
}

// support sums the peak counts over bins [i-r, i+r).
func (s *stack)support(i, r int) int {
	i1, i2 := i-r, i+r
	if i1 < 0              { i1 = 0 }
	if i2 > len(s.peakCount) { i2 = len(s.peakCount) }
	n := 0
	for j:=i1; j<i2; j++ {
		n += s.peakCount[j]
	}
	return n
}
