package emath

// A BoolGrid flags pixels (saturated, bad, or owned by a mosaic source).
type BoolGrid struct {
	stride int
	values []bool
}

func NewBoolGrid(w, h int) BoolGrid {
	return BoolGrid{
		stride: w,
		values: make([]bool, w*h),
	}
}

func (bg *BoolGrid)Set(x, y int, v bool) { bg.values[bg.stride*y + x] = v }
func (bg *BoolGrid)Get(x, y int) bool    { return bg.values[bg.stride*y + x] }
func (bg *BoolGrid)Dx() int              { return bg.stride }
func (bg *BoolGrid)IsEmpty() bool        { return bg.stride == 0 }

func (bg *BoolGrid)Dy() int {
	if bg.stride == 0 {
		return 0
	}
	return len(bg.values) / bg.stride
}

func (bg *BoolGrid)Count() int {
	n := 0
	for _, v := range bg.values {
		if v { n++ }
	}
	return n
}

// Threshold flags every pixel of g at or above level.
func Threshold(g FloatGrid, level float64) BoolGrid {
	bg := NewBoolGrid(g.Dx(), g.Dy())
	for i, v := range g.values {
		bg.values[i] = v >= level
	}
	return bg
}

func (bg *BoolGrid)Transpose() BoolGrid {
	w, h := bg.Dx(), bg.Dy()
	out := NewBoolGrid(h, w)
	for y:=0; y<h; y++ {
		for x:=0; x<w; x++ {
			out.Set(y, x, bg.Get(x, y))
		}
	}
	return out
}
