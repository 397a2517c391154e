package emath

// Some basic affine transformations, used to move points between the
// dispersion frame the algorithms work in and image pixel frames.

import(
	"golang.org/x/image/math/f64"  // Will be "image/math/f64" at some point, hopefully make this file redundant
)

// Use a local type so we can hang methods off it
type Aff3 f64.Aff3

// Cut-n-pasted from image@0.7.0/draw/scale:matMul
func (p Aff3)Mult(q Aff3) Aff3 {
	return Aff3{
		p[3*0+0]*q[3*0+0] + p[3*0+1]*q[3*1+0],
		p[3*0+0]*q[3*0+1] + p[3*0+1]*q[3*1+1],
		p[3*0+0]*q[3*0+2] + p[3*0+1]*q[3*1+2] + p[3*0+2],
		p[3*1+0]*q[3*0+0] + p[3*1+1]*q[3*1+0],
		p[3*1+0]*q[3*0+1] + p[3*1+1]*q[3*1+1],
		p[3*1+0]*q[3*0+2] + p[3*1+1]*q[3*1+2] + p[3*1+2],
	}
}

func Identity() Aff3 {
	return Aff3{1, 0, 0,   0, 1, 0}
}

func (m1 Aff3)Translate(tx, ty float64) Aff3 {
	return m1.Mult(Aff3{1, 0, tx,   0, 1, ty})
}

// SwapXY exchanges the two input coordinates before applying m1.
func (m1 Aff3)SwapXY() Aff3 {
	return m1.Mult(Aff3{0, 1, 0,   1, 0, 0})
}

func (m Aff3)Apply(x, y float64) (float64, float64) {
	return m[0]*x + m[1]*y + m[2],   m[3]*x + m[4]*y + m[5]
}

// DS9Frame maps a zero based (along, across) point, where `along` is the
// coordinate on the image axis given by alongX, into the one based
// (x,y) pixel frame that DS9 region files use.
func DS9Frame(alongX bool) Aff3 {
	m := Identity().Translate(1, 1)
	if !alongX {
		m = m.SwapXY()
	}
	return m
}
