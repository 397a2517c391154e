package mosaic

import(
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/abworrall/echelle/pkg/aperture"
	"github.com/abworrall/echelle/pkg/emath"
	"github.com/abworrall/echelle/pkg/epoly"
)

// A Session is the state of a hand built mosaic: the boundaries that
// cut the cross-dispersion axis into regions, and which flat supplies
// each region. It is what the editor commands change, and what gets
// saved and loaded.
type Session struct {
	Direct    aperture.Direction
	AlongLen  int          // image size along the dispersion
	AcrossLen int          // image size across it

	Files      []string
	Boundaries [][]float64  // normalised power series, along fraction -> across fraction
	Select     [][]bool     // [file][region]
}

func NewSession(files []string, direct aperture.Direction, width, height int) *Session {
	s := &Session{Direct: direct, Files: append([]string(nil), files...)}
	s.AlongLen, s.AcrossLen = width, height
	if direct == aperture.AlongY {
		s.AlongLen, s.AcrossLen = height, width
	}
	s.Select = make([][]bool, len(files))
	for i := range s.Select {
		s.Select[i] = make([]bool, 1)
	}
	return s
}

func (s *Session)Regions() int { return len(s.Boundaries) + 1 }

// BoundaryAt evaluates boundary i, in pixels, at along position a.
func (s *Session)BoundaryAt(i int, a float64) float64 {
	return epoly.Polyval(s.Boundaries[i], a/float64(s.AlongLen)) * float64(s.AcrossLen)
}

// Nodes are the region edges at the middle of the dispersion axis:
// 0, each boundary, then the full across size.
func (s *Session)Nodes() []float64 {
	mid := float64(s.AlongLen) / 2
	nodes := []float64{0}
	for i := range s.Boundaries {
		nodes = append(nodes, s.BoundaryAt(i, mid))
	}
	return append(nodes, float64(s.AcrossLen))
}

// RegionAt is the region holding across position c at the middle of
// the dispersion axis.
func (s *Session)RegionAt(c float64) int {
	nodes := s.Nodes()
	return sort.SearchFloat64s(nodes[1:len(nodes)-1], c)
}

// AddBoundary inserts a boundary, keeping them ordered, and returns
// its index. The region it splits keeps its selection on both sides. A
// boundary outside the image, or within a pixel of another, is refused.
func (s *Session)AddBoundary(coeff []float64) (int, error) {
	v := epoly.Polyval(coeff, 0.5) * float64(s.AcrossLen)
	for _, n := range s.Nodes() {
		if math.Abs(v - n) < 1 {
			return -1, fmt.Errorf("add boundary at %.1f: too close to %.1f", v, n)
		}
	}
	if v < 0 || v > float64(s.AcrossLen) {
		return -1, fmt.Errorf("add boundary at %.1f: outside 0-%d", v, s.AcrossLen)
	}
	at := s.RegionAt(v)

	s.Boundaries = append(s.Boundaries, nil)
	copy(s.Boundaries[at+1:], s.Boundaries[at:])
	s.Boundaries[at] = append([]float64(nil), coeff...)

	for f := range s.Select {
		sel := s.Select[f]
		sel = append(sel, false)
		copy(sel[at+1:], sel[at:])
		s.Select[f] = sel
	}
	return at, nil
}

// DeleteBoundary removes boundary i. The merged region takes the
// selection of the region below it.
func (s *Session)DeleteBoundary(i int) error {
	if i < 0 || i >= len(s.Boundaries) {
		return fmt.Errorf("no boundary %d (have %d)", i, len(s.Boundaries))
	}
	s.Boundaries = append(s.Boundaries[:i], s.Boundaries[i+1:]...)
	for f := range s.Select {
		s.Select[f] = append(s.Select[f][:i+1], s.Select[f][i+2:]...)
	}
	return nil
}

// NearestBoundary is the boundary closest to across position c at the
// middle of the dispersion axis. Only boundaries within a hundredth of
// the across size count; it is -1 if there are none.
func (s *Session)NearestBoundary(c float64) int {
	best, bestD := -1, float64(s.AcrossLen) / 100
	for i, n := range s.Nodes()[1:len(s.Boundaries)+1] {
		if d := math.Abs(n - c); d < bestD {
			best, bestD = i, d
		}
	}
	return best
}

// Choose makes file the only source of region.
func (s *Session)Choose(file, region int) error {
	if file < 0 || file >= len(s.Files) {
		return fmt.Errorf("no file %d", file)
	}
	if region < 0 || region >= s.Regions() {
		return fmt.Errorf("no region %d", region)
	}
	for f := range s.Select {
		s.Select[f][region] = f == file
	}
	return nil
}

// Toggle flips one entry of the selection matrix.
func (s *Session)Toggle(file, region int) error {
	if file < 0 || file >= len(s.Files) {
		return fmt.Errorf("no file %d", file)
	}
	if region < 0 || region >= s.Regions() {
		return fmt.Errorf("no region %d", region)
	}
	s.Select[file][region] = !s.Select[file][region]
	return nil
}

// checkNodes makes sure the region edges strictly increase from 0 to
// the across size.
func (s *Session)checkNodes() error {
	nodes := s.Nodes()
	for i:=1; i<len(nodes); i++ {
		if nodes[i] <= nodes[i-1] {
			return &ValidationError{Field: "boundary",
				Msg: fmt.Sprintf("edge %d at %.1f does not lie above %.1f", i, nodes[i], nodes[i-1])}
		}
	}
	return nil
}

// Validate checks that the boundaries are in order inside the image,
// that every selection vector covers every region, and that each region
// has exactly one file selected.
func (s *Session)Validate() error {
	if err := s.checkNodes(); err != nil {
		return err
	}
	for f, sel := range s.Select {
		if len(sel) != s.Regions() {
			return &ValidationError{File: s.Files[f], Field: "select",
				Msg: fmt.Sprintf("%d entries for %d regions", len(sel), s.Regions())}
		}
	}
	ce := &CompletenessError{}
	for r:=0; r<s.Regions(); r++ {
		n := 0
		for f := range s.Select {
			if s.Select[f][r] { n++ }
		}
		if n != 1 {
			ce.Regions = append(ce.Regions, r)
			ce.Counts = append(ce.Counts, n)
		}
	}
	if len(ce.Regions) > 0 {
		return ce
	}
	return nil
}

// source is the file selected for region r; Validate must have passed.
func (s *Session)source(r int) int {
	for f := range s.Select {
		if s.Select[f][r] {
			return f
		}
	}
	return -1
}

// Compose builds the mosaic from the images of the session's files, in
// the same order. A pixel belongs to the region above every boundary
// whose rounded position lies below it.
func (s *Session)Compose(images []emath.FloatGrid) (emath.FloatGrid, error) {
	if err := s.Validate(); err != nil {
		return emath.FloatGrid{}, fmt.Errorf("compose: %w", err)
	}
	if len(images) != len(s.Files) {
		return emath.FloatGrid{}, fmt.Errorf("compose: %d images for %d files", len(images), len(s.Files))
	}
	w, h := s.AlongLen, s.AcrossLen
	if s.Direct == aperture.AlongY {
		w, h = h, w
	}
	for i, img := range images {
		if img.Dx() != w || img.Dy() != h {
			return emath.FloatGrid{}, &ValidationError{File: s.Files[i], Field: "shape",
				Msg: fmt.Sprintf("%dx%d, expected %dx%d", img.Dx(), img.Dy(), w, h)}
		}
	}

	out := emath.NewFloatGrid(w, h)
	cuts := make([]int, len(s.Boundaries))
	for a:=0; a<s.AlongLen; a++ {
		for i := range s.Boundaries {
			cuts[i] = int(math.Round(s.BoundaryAt(i, float64(a))))
		}
		for c:=0; c<s.AcrossLen; c++ {
			r := 0
			for _, cut := range cuts {
				if c > cut { r++ }
			}
			x, y := a, c
			if s.Direct == aperture.AlongY {
				x, y = c, a
			}
			out.Set(x, y, images[s.source(r)].Get(x, y))
		}
	}
	return out, nil
}

// CommandKind names an editor action.
type CommandKind int

const(
	AddBoundary CommandKind = iota   // trace a new boundary from an across position
	DeleteBoundary                   // drop the boundary nearest an across position
	ChooseFile                       // make a file the source of the region at an across position
	ToggleFile                       // flip a file's selection for the region at an across position
)

// A Command is one discrete edit from the user.
type Command struct {
	Kind   CommandKind
	File   int
	Across float64
}

// Apply performs one edit. views holds each file's image as returned
// by DispersionView, and is only needed to trace new boundaries.
func (s *Session)Apply(cmd Command, views []emath.FloatGrid, opt GapOptions) error {
	switch cmd.Kind {
	case AddBoundary:
		if cmd.File < 0 || cmd.File >= len(views) {
			return fmt.Errorf("add boundary: no image for file %d", cmd.File)
		}
		gap, err := DetectGap(views[cmd.File], cmd.Across, opt)
		if err != nil {
			return fmt.Errorf("add boundary: %w", err)
		}
		if gap.Lost {
			return fmt.Errorf("add boundary from %.1f: trace stopped early: %w", cmd.Across, ErrGapLost)
		}
		if _, err := s.AddBoundary(gap.Coeff); err != nil {
			return err
		}
	case DeleteBoundary:
		i := s.NearestBoundary(cmd.Across)
		if i < 0 {
			return fmt.Errorf("delete boundary: none near %.1f", cmd.Across)
		}
		return s.DeleteBoundary(i)
	case ChooseFile:
		return s.Choose(cmd.File, s.RegionAt(cmd.Across))
	case ToggleFile:
		return s.Toggle(cmd.File, s.RegionAt(cmd.Across))
	default:
		return fmt.Errorf("unknown command %d", cmd.Kind)
	}
	return nil
}

// DispersionView returns the image indexed so that the row number is
// the position along the dispersion, which is the frame DetectGap
// works in.
func DispersionView(img emath.FloatGrid, direct aperture.Direction) emath.FloatGrid {
	if direct == aperture.AlongX {
		return img.Transpose()
	}
	return img
}

// ParseCommand reads an editor line: "add <file> <across>",
// "del <across>", "sel <file> <across>" or "tog <file> <across>".
func ParseCommand(line string) (Command, error) {
	f := strings.Fields(line)
	if len(f) == 0 {
		return Command{}, fmt.Errorf("empty command")
	}
	want := 3
	kind := AddBoundary
	switch f[0] {
	case "add": kind = AddBoundary
	case "del": kind, want = DeleteBoundary, 2
	case "sel": kind = ChooseFile
	case "tog": kind = ToggleFile
	default:
		return Command{}, fmt.Errorf("unknown command '%s'", f[0])
	}
	if len(f) != want {
		return Command{}, fmt.Errorf("%s: want %d arguments, have %d", f[0], want-1, len(f)-1)
	}

	cmd := Command{Kind: kind}
	var err error
	if want == 3 {
		if cmd.File, err = strconv.Atoi(f[1]); err != nil {
			return Command{}, fmt.Errorf("%s: bad file index '%s'", f[0], f[1])
		}
	}
	if cmd.Across, err = strconv.ParseFloat(f[want-1], 64); err != nil {
		return Command{}, fmt.Errorf("%s: bad position '%s'", f[0], f[want-1])
	}
	return cmd, nil
}
