package echelle

import(
	"fmt"
	"math"

	"github.com/codahale/hdrhistogram"

	"github.com/abworrall/echelle/pkg/emath"
)

// QuickLook summarises the pixel values of an image. Values are binned
// as integer counts, so it suits raw detector data.
type QuickLook struct {
	P1, P50, P99 float64
	Max          float64
	Mean         float64
	Saturated    int
}

func (q QuickLook)String() string {
	return fmt.Sprintf("p1 %.0f, median %.0f, p99 %.0f, max %.0f, mean %.1f, %d saturated",
		q.P1, q.P50, q.P99, q.Max, q.Mean, q.Saturated)
}

func NewQuickLook(g emath.FloatGrid, saturation float64) QuickLook {
	const top = 1 << 24
	h := hdrhistogram.New(1, top, 3)
	q := QuickLook{}
	for _, v := range g.Values() {
		if v >= saturation {
			q.Saturated++
		}
		n := int64(math.Round(v))
		if n < 0   { n = 0 }
		if n > top { n = top }
		h.RecordValue(n)
	}
	q.P1 = float64(h.ValueAtQuantile(1))
	q.P50 = float64(h.ValueAtQuantile(50))
	q.P99 = float64(h.ValueAtQuantile(99))
	q.Max = float64(h.Max())
	q.Mean = h.Mean()
	return q
}
