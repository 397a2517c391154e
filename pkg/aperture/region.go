package aperture

import(
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/abworrall/echelle/pkg/emath"
)

// DS9Header starts every region file we write.
func DS9Header(color string) string {
	return "# Region file format: DS9 version 4.1\n" +
		"global color=" + color + " dashlist=8 3 width=1 " +
		"font=\"helvetica 10 normal roman\" select=1 highlite=1 " +
		"dash=0 fixed=0 edit=1 move=1 delete=1 include=1 source=1\n" +
		"physical\n"
}

// OrderColors gives n well separated colours, for drawing orders.
func OrderColors(n int) []colorful.Color {
	cols := make([]colorful.Color, n)
	for i := range cols {
		cols[i] = colorful.Hsv(300.0*float64(i)/float64(n+1), 0.8, 1.0)
	}
	return cols
}

// WriteRegions writes the centerline of every order as a DS9 region
// file, in one based pixel coordinates. An empty color draws each order
// in its own colour. A non-empty channel is written into the labels.
func (s *Set)WriteRegions(w io.Writer, color, channel string) error {
	bw := bufio.NewWriter(w)
	globalColor := color
	if globalColor == "" {
		globalColor = "green"
	}
	bw.WriteString(DS9Header(globalColor))

	keys := s.Keys()
	cols := OrderColors(len(keys))
	for i, k := range keys {
		l := s.items[k]
		if l.Position == nil {
			continue
		}
		frame := emath.DS9Frame(l.Direct == AlongX)
		suffix := ""
		if color == "" {
			suffix = " # color=" + cols[i].Hex()
		}

		d1 := float64(int(l.Position.Domain[0]))
		d2 := float64(int(l.Position.Domain[1]) + 1)
		fmt.Fprintf(bw, "# aperture %3d\n", k)

		label := func(along, dy float64, text string) {
			x, y := frame.Apply(along, l.PositionAt(along) + dy)
			fmt.Fprintf(bw, "# text(%7.2f, %7.2f) text={%s}\n", x, y, text)
		}
		label(d1-6, 0, fmt.Sprintf("%3d", k))
		label(d2-1+6, 0, fmt.Sprintf("%3d", k))
		if channel == "" {
			label((d1+d2)/2, 5, fmt.Sprintf("Aperture %3d", k))
		} else {
			label((d1+d2)/2, 5, fmt.Sprintf("Channel %s, Aperture %3d", channel, k))
		}

		along := emath.Linspace(d1, d2, 50)
		for j:=0; j<len(along)-1; j++ {
			x1, y1 := frame.Apply(along[j], l.PositionAt(along[j]))
			x2, y2 := frame.Apply(along[j+1], l.PositionAt(along[j+1]))
			fmt.Fprintf(bw, "line(%7.2f,%7.2f,%7.2f,%7.2f)%s\n", x1, y1, x2, y2, suffix)
		}
	}
	return bw.Flush()
}

func (s *Set)SaveRegions(filename, color, channel string) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("save %s: %v", filename, err)
	}
	if err := s.WriteRegions(f, color, channel); err != nil {
		f.Close()
		return fmt.Errorf("save %s: %v", filename, err)
	}
	return f.Close()
}
