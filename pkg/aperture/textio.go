package aperture

import(
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/abworrall/echelle/pkg/epoly"
)

const magic = "APERTURE LOCATION"

func fmtFloat(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }

func fmtCoeffs(c []float64) string {
	strs := make([]string, len(c))
	for i, v := range c {
		strs[i] = fmt.Sprintf("%+.16e", v)
	}
	return "[" + strings.Join(strs, ", ") + "]"
}

// WriteTxt writes the set in the plain text trace format, one
// "APERTURE LOCATION n" block per order.
func (s *Set)WriteTxt(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# %d apertures\n", s.Len())

	for _, k := range s.Keys() {
		l := s.items[k]
		fmt.Fprintf(bw, "%s %d\n", magic, k)
		fmt.Fprintf(bw, "%8s = %d\n", "direct", int(l.Direct))
		fmt.Fprintf(bw, "%8s = (%d, %d)\n", "shape", l.Height, l.Width)
		if l.Position != nil {
			fmt.Fprintf(bw, "%8s = %s\n", "position", fmtCoeffs(l.Position.Coeff))
			fmt.Fprintf(bw, "%8s = [%s, %s]\n", "domain", fmtFloat(l.Position.Domain[0]), fmtFloat(l.Position.Domain[1]))
		}
		for _, line := range Lines {
			if l.Nodes[line] == nil { continue }
			strs := make([]string, len(l.Nodes[line]))
			for i, n := range l.Nodes[line] {
				strs[i] = fmt.Sprintf("(%s, %s)", fmtFloat(n.Along), fmtFloat(n.Across))
			}
			fmt.Fprintf(bw, "%8s = [%s]\n", "nodes_"+line.String(), strings.Join(strs, ", "))
		}
		for _, line := range Lines {
			if l.Coeffs[line] == nil { continue }
			fmt.Fprintf(bw, "%8s = %s\n", "coeff_"+line.String(), fmtCoeffs(l.Coeffs[line]))
		}
		if st := l.Stats; st != nil {
			fmt.Fprintf(bw, "%8s = %d\n", "nsat", st.NSat)
			fmt.Fprintf(bw, "%8s = %s\n", "mean", fmtFloat(st.Mean))
			fmt.Fprintf(bw, "%8s = %s\n", "median", fmtFloat(st.Median))
			fmt.Fprintf(bw, "%8s = %s\n", "max", fmtFloat(st.Max))
		}
	}
	return bw.Flush()
}

func (s *Set)SaveTxt(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("save %s: %v", filename, err)
	}
	if err := s.WriteTxt(f); err != nil {
		f.Close()
		return fmt.Errorf("save %s: %v", filename, err)
	}
	return f.Close()
}

func LoadTxt(filename string) (*Set, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("load %s: %v", filename, err)
	}
	defer f.Close()

	s, err := ReadTxt(f)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", filename, err)
	}
	return s, nil
}

// pending gathers the fields of one block, so they can come in any order.
type pending struct {
	aper     int
	line     int
	direct   Direction
	h, w     int
	position []float64
	domain   []float64
	loc      *Location
	stats    Stats
	hasStats bool
}

func (p *pending)finish() (*Location, error) {
	l := p.loc
	l.Direct, l.Height, l.Width = p.direct, p.h, p.w
	if p.position != nil {
		dom := [2]float64{0, float64(l.AlongLength()-1)}
		if len(p.domain) == 2 {
			dom = [2]float64{p.domain[0], p.domain[1]}
		}
		if err := l.SetPosition(epoly.Chebyshev{Coeff: p.position, Domain: dom}); err != nil {
			return nil, fmt.Errorf("aperture %d (line %d): %w", p.aper, p.line, err)
		}
	}
	if p.hasStats {
		st := p.stats
		l.Stats = &st
	}
	return l, nil
}

// ReadTxt parses the text trace format. Blank lines and lines starting
// with any of #!; are skipped.
func ReadTxt(r io.Reader) (*Set, error) {
	s := NewSet()
	var cur *pending

	flush := func() error {
		if cur == nil {
			return nil
		}
		l, err := cur.finish()
		if err != nil {
			return err
		}
		s.Put(cur.aper, l)
		return nil
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		row := strings.TrimSpace(scanner.Text())
		if row == "" || strings.ContainsAny(row[:1], "#!;") {
			continue
		}

		if strings.HasPrefix(row, magic) {
			if err := flush(); err != nil {
				return nil, err
			}
			aper, err := strconv.Atoi(strings.TrimSpace(row[len(magic):]))
			if err != nil {
				return nil, fmt.Errorf("line %d: bad aperture number: %v", lineNo, err)
			}
			cur = &pending{aper: aper, line: lineNo, loc: &Location{}}
			continue
		}

		eq := strings.Index(row, "=")
		if cur == nil || eq < 0 {
			continue
		}
		key := strings.TrimSpace(row[:eq])
		val := strings.TrimSpace(row[eq+1:])
		if err := cur.set(key, val); err != nil {
			return nil, fmt.Errorf("line %d: %s: %v", lineNo, key, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return s, nil
}

func (p *pending)set(key, val string) error {
	var err error
	switch {
	case key == "direct":
		p.direct, err = ParseDirection(val)
	case key == "shape":
		var vals []float64
		if vals, err = parseFloats(val); err == nil {
			if len(vals) != 2 {
				return fmt.Errorf("want 2 values, have %d", len(vals))
			}
			p.h, p.w = int(vals[0]), int(vals[1])
		}
	case key == "position":
		p.position, err = parseFloats(val)
	case key == "domain":
		p.domain, err = parseFloats(val)
	case strings.HasPrefix(key, "nodes_"):
		line, ok := parseLine(strings.TrimPrefix(key, "nodes_"))
		if !ok {
			return fmt.Errorf("unknown line")
		}
		var vals []float64
		if vals, err = parseFloats(val); err == nil {
			if len(vals)%2 != 0 {
				return fmt.Errorf("odd number of node values")
			}
			nodes := make([]Node, 0, len(vals)/2)
			for i:=0; i<len(vals); i+=2 {
				nodes = append(nodes, Node{vals[i], vals[i+1]})
			}
			p.loc.Nodes[line] = nodes
		}
	case strings.HasPrefix(key, "coeff_"):
		line, ok := parseLine(strings.TrimPrefix(key, "coeff_"))
		if !ok {
			return fmt.Errorf("unknown line")
		}
		p.loc.Coeffs[line], err = parseFloats(val)
	case key == "nsat":
		p.hasStats = true
		p.stats.NSat, err = strconv.Atoi(val)
	case key == "mean":
		p.hasStats = true
		p.stats.Mean, err = strconv.ParseFloat(val, 64)
	case key == "median":
		p.hasStats = true
		p.stats.Median, err = strconv.ParseFloat(val, 64)
	case key == "max":
		p.hasStats = true
		p.stats.Max, err = strconv.ParseFloat(val, 64)
	}
	return err
}

// parseFloats reads every number out of a bracketed list such as
// "[1, 2]", "(3, 4)" or "[(1, 2), (3, 4)]".
func parseFloats(s string) ([]float64, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '[', ']', '(', ')': return ' '
		}
		return r
	}, s)
	vals := []float64{}
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" { continue }
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
	}
	return vals, nil
}
