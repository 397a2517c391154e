package emath

import(
	"fmt"
	"image"
	"image/color"
	"math"
	"sort"

	"github.com/fogleman/gg" // Move to https://pkg.go.dev/golang.org/x/image/font#Drawer sometime
	"golang.org/x/image/draw"
)

// A FloatGrid is a grid of floats, used to hold a CCD frame. Rows are
// indexed by y (cross-dispersion for horizontal orders), columns by x.
type FloatGrid struct {
	stride int
	values []float64
}

func NewFloatGrid(w, h int) FloatGrid {
	return FloatGrid{
		stride: w,
		values: make([]float64, w*h),
	}
}

// NewFloatGridFromValues wraps a row-major slice, as read from a FITS
// primary HDU (NAXIS1 = w, NAXIS2 = h).
func NewFloatGridFromValues(w, h int, values []float64) (FloatGrid, error) {
	if w <= 0 || h <= 0 || len(values) != w*h {
		return FloatGrid{}, fmt.Errorf("grid %dx%d: have %d values", w, h, len(values))
	}
	return FloatGrid{stride: w, values: values}, nil
}

func (g1 *FloatGrid)NewFromThis() FloatGrid  { return NewFloatGrid(g1.Dx(), g1.Dy()) }
func (fg *FloatGrid)Set(x, y int, v float64) { fg.values[fg.stride*y + x] = v }
func (fg *FloatGrid)Get(x, y int) float64    { return fg.values[fg.stride*y + x] }
func (fg *FloatGrid)Dx() int                 { return fg.stride }
func (fg *FloatGrid)Values() []float64       { return fg.values }
func (fg *FloatGrid)IsEmpty() bool           { return fg.stride == 0 || len(fg.values) == 0 }

func (fg *FloatGrid)Dy() int {
	if fg.stride == 0 {
		return 0
	}
	return len(fg.values) / fg.stride
}

// SameShape is true when both grids have identical dimensions.
func (fg *FloatGrid)SameShape(g2 FloatGrid) bool {
	return fg.Dx() == g2.Dx() && fg.Dy() == g2.Dy()
}

func (g1 *FloatGrid)Copy() *FloatGrid {
	g2 := FloatGrid{stride: g1.stride, values:make([]float64, len(g1.values))}
	copy(g2.values, g1.values)
	return &g2
}

// Column returns a copy of column x, indexed by y.
func (fg *FloatGrid)Column(x int) []float64 {
	col := make([]float64, fg.Dy())
	for y:=0; y<len(col); y++ {
		col[y] = fg.values[fg.stride*y + x]
	}
	return col
}

// Row returns a copy of row y, indexed by x.
func (fg *FloatGrid)Row(y int) []float64 {
	row := make([]float64, fg.stride)
	copy(row, fg.values[fg.stride*y:fg.stride*(y+1)])
	return row
}

// Transpose swaps the axes, so that a frame with vertical orders can be
// handed to code that expects horizontal ones.
func (fg *FloatGrid)Transpose() FloatGrid {
	w, h := fg.Dx(), fg.Dy()
	t := NewFloatGrid(h, w)
	for y:=0; y<h; y++ {
		for x:=0; x<w; x++ {
			t.Set(y, x, fg.Get(x,y))
		}
	}
	return t
}

// Log10Floor returns log10(max(v, floor)) for every pixel.
func (fg *FloatGrid)Log10Floor(floor float64) FloatGrid {
	g2 := fg.NewFromThis()
	for i, v := range fg.values {
		if v < floor { v = floor }
		g2.values[i] = math.Log10(v)
	}
	return g2
}

// MedianColumns returns, for every row, the median of columns
// [x-half, x+half], clipped to the grid.
func (fg *FloatGrid)MedianColumns(x, half int) []float64 {
	x1, x2 := x-half, x+half+1
	if x1 < 0         { x1 = 0 }
	if x2 > fg.stride { x2 = fg.stride }

	out := make([]float64, fg.Dy())
	buf := make([]float64, x2-x1)
	for y:=0; y<len(out); y++ {
		copy(buf, fg.values[fg.stride*y+x1 : fg.stride*y+x2])
		out[y] = Median(buf)
	}
	return out
}

func (I *FloatGrid)FindMaxMinAtPercentile(minPrct, maxPrct float64) (float64, float64) {
	vI := []float64{}

	for i:=0 ; i<len(I.values) ; i++ {
		if val := I.values[i]; val != 0.0 && !math.IsNaN(val) {
			vI = append(vI, val)
		}
	}
	if len(vI) == 0 {
		return 0, 0
	}

	sort.Float64s(vI)

	iMin := int(minPrct * float64(len(vI)))
	iMax := int(maxPrct * float64(len(vI)))
	if iMin < 0        { iMin = 0 }
	if iMax >= len(vI) { iMax = len(vI)-1 }

	return vI[iMin], vI[iMax]
}

func (fg *FloatGrid)Stats() string {
	min := math.MaxFloat64
	max := -1.0  * min

	for i:=0 ; i<len(fg.values) ; i++ {
		if fg.values[i] > max { max = fg.values[i] }
		if fg.values[i] < min { min = fg.values[i] }
	}
	return fmt.Sprintf("fg[%dx%d, vals{%f,%f}]", fg.Dx(), fg.Dy(), min, max)
}

// ToImage renders the grid as gray, mapping [lo,hi] onto black..white
// on a log scale, and gamma scaling the gray to look normal for human
// vision. Row 0 is drawn at the top.
func (fg *FloatGrid)ToImage(lo, hi float64) *image.RGBA64 {
	if lo <= 0   { lo = 1 }
	if hi <= lo  { hi = lo * 10 }
	llo, lhi := math.Log10(lo), math.Log10(hi)

	img := image.NewRGBA64(image.Rectangle{Max:image.Point{fg.Dx(), fg.Dy()}})
	for x:=0; x<fg.Dx(); x++ {
		for y:=0; y<fg.Dy(); y++ {
			lum := fg.Get(x,y)
			if lum < lo { lum = lo }
			f := (math.Log10(lum) - llo) / (lhi - llo)
			if f > 1 { f = 1 }
			gray := GammaExpand_F64(f)
			col := color.RGBA64{uint16(gray * 65535.0), uint16(gray * 65535.0), uint16(gray * 65535.0), 0xFFFF}
			img.Set(x, y, col)
		}
	}
	return img
}

// Thumbnail shrinks an image so its longest side is at most maxSide.
func Thumbnail(src image.Image, maxSide int) image.Image {
	b := src.Bounds()
	if b.Dx() <= maxSide && b.Dy() <= maxSide {
		return src
	}
	scale := float64(maxSide) / math.Max(float64(b.Dx()), float64(b.Dy()))
	dst := image.NewRGBA(image.Rect(0, 0, int(float64(b.Dx())*scale), int(float64(b.Dy())*scale)))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// ToImg saves a simple grayscale, based on the 1-99.9 percentile range
// of values in the grid, with a title caption.
func (fg *FloatGrid)ToImg(title, filename string) error {
	lo, hi := fg.FindMaxMinAtPercentile(0.01, 0.999)

	dc := gg.NewContextForImage(fg.ToImage(lo, hi))
	dc.SetRGB(1,1,0)
	dc.DrawString(title, 50, 50)
	return dc.SavePNG(filename)
}
