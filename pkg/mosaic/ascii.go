package mosaic

import(
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/abworrall/echelle/pkg/aperture"
)

// WriteAscii saves the session as one `boundary` line per boundary,
// followed by one `file` line per source with its region selection.
// Incomplete sessions are refused.
func (s *Session)WriteAscii(w io.Writer) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("write mosaic: %w", err)
	}
	bw := bufio.NewWriter(w)
	for _, b := range s.Boundaries {
		bw.WriteString("boundary")
		for _, c := range b {
			fmt.Fprintf(bw, " %+12.10e", c)
		}
		bw.WriteString("\n")
	}
	for f, name := range s.Files {
		bw.WriteString("file " + name)
		for _, v := range s.Select[f] {
			if v {
				bw.WriteString(" 1")
			} else {
				bw.WriteString(" 0")
			}
		}
		bw.WriteString("\n")
	}
	return bw.Flush()
}

func (s *Session)SaveAscii(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("save %s: %v", filename, err)
	}
	if err := s.WriteAscii(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadAscii loads a session. Older files write `select file <name> ...`
// where newer ones write `file <name> ...`; both are read. Boundaries
// that are out of order or outside the image make the file unusable.
// Otherwise the session is returned even when it does not validate,
// along with an error naming every problem found, so that it can still
// be edited.
func ReadAscii(r io.Reader, direct aperture.Direction, width, height int) (*Session, error) {
	s := NewSession(nil, direct, width, height)
	s.Select = nil

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") || strings.HasPrefix(fields[0], "%") {
			continue
		}
		switch fields[0] {
		case "boundary":
			coeff := make([]float64, 0, len(fields)-1)
			for _, f := range fields[1:] {
				v, err := strconv.ParseFloat(f, 64)
				if err != nil {
					return nil, fmt.Errorf("mosaic line %d: bad coefficient '%s'", lineNo, f)
				}
				coeff = append(coeff, v)
			}
			if len(coeff) == 0 {
				return nil, fmt.Errorf("mosaic line %d: boundary with no coefficients", lineNo)
			}
			s.Boundaries = append(s.Boundaries, coeff)
		case "file", "select":
			if fields[0] == "select" && len(fields) > 1 && fields[1] == "file" {
				fields = fields[1:]
			}
			if len(fields) < 2 {
				return nil, fmt.Errorf("mosaic line %d: no file name", lineNo)
			}
			sel := make([]bool, 0, len(fields)-2)
			for _, f := range fields[2:] {
				switch f {
				case "0": sel = append(sel, false)
				case "1": sel = append(sel, true)
				default:
					return nil, fmt.Errorf("mosaic line %d: selection '%s' is not 0 or 1", lineNo, f)
				}
			}
			s.Files = append(s.Files, fields[1])
			s.Select = append(s.Select, sel)
		default:
			return nil, fmt.Errorf("mosaic line %d: unknown record '%s'", lineNo, fields[0])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if err := s.checkNodes(); err != nil {
		return nil, err
	}

	var errs []error
	for f, sel := range s.Select {
		if len(sel) != s.Regions() {
			errs = append(errs, &ValidationError{File: s.Files[f], Field: "select",
				Msg: fmt.Sprintf("%d entries for %d regions", len(sel), s.Regions())})
			// Pad or cut so the session stays editable
			fixed := make([]bool, s.Regions())
			copy(fixed, sel)
			s.Select[f] = fixed
		}
	}
	if err := s.Validate(); err != nil {
		errs = append(errs, err)
	}
	return s, errors.Join(errs...)
}

func LoadAscii(filename string, direct aperture.Direction, width, height int) (*Session, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("load %s: %v", filename, err)
	}
	defer f.Close()
	return ReadAscii(f, direct, width, height)
}
