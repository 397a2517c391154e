package mosaic

import(
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/abworrall/echelle/pkg/aperture"
	"github.com/abworrall/echelle/pkg/emath"
)

// WriteRegions draws every boundary as npoints-1 DS9 line segments,
// sampled at pixel centres along the dispersion.
func (s *Session)WriteRegions(w io.Writer, npoints int) error {
	if npoints < 2 {
		return fmt.Errorf("regions: need at least 2 points, got %d", npoints)
	}
	bw := bufio.NewWriter(w)
	bw.WriteString(aperture.DS9Header("green"))

	frame := emath.DS9Frame(s.Direct == aperture.AlongX)
	along := emath.Linspace(0.5, float64(s.AlongLen)-0.5, npoints)
	for i := range s.Boundaries {
		for j:=0; j<len(along)-1; j++ {
			x1, y1 := frame.Apply(along[j], s.BoundaryAt(i, along[j]))
			x2, y2 := frame.Apply(along[j+1], s.BoundaryAt(i, along[j+1]))
			fmt.Fprintf(bw, "line(%.1f,%.1f,%.1f,%.1f) # line=0 0\n", x1, y1, x2, y2)
		}
	}
	return bw.Flush()
}

func (s *Session)SaveRegions(filename string, npoints int) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("save %s: %v", filename, err)
	}
	if err := s.WriteRegions(f, npoints); err != nil {
		f.Close()
		return fmt.Errorf("save %s: %v", filename, err)
	}
	return f.Close()
}
