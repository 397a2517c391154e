package echelle

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/astrogo/fitsio"

	"github.com/abworrall/echelle/pkg/aperture"
	"github.com/abworrall/echelle/pkg/emath"
	"github.com/abworrall/echelle/pkg/trace"
)

// A Flat holds one flat field exposure, and what we learn about it.
type Flat struct {
	LoadFilename  string
	Data          emath.FloatGrid
	Sat           emath.BoolGrid   // saturated pixels; empty until computed
	ExposureTime  float64          // seconds, 0 if unknown
	Cards         []fitsio.Card    // the header, for FITS inputs

	Apertures    *aperture.Set
	Diagnostics  *trace.Diagnostics
}

func (f Flat)String() string {
	n := 0
	if f.Apertures != nil {
		n = f.Apertures.Len()
	}
	return fmt.Sprintf("%s: %dx%d, exptime %gs, %d saturated px, %d orders",
		f.Filename(), f.Data.Dx(), f.Data.Dy(), f.ExposureTime, f.Sat.Count(), n)
}

func (f Flat)Filename() string {
	return filepath.Base(f.LoadFilename)
}

// Name is the file name without its extension; outputs are named after it.
func (f Flat)Name() string {
	base := f.Filename()
	return strings.TrimSuffix(base, filepath.Ext(base))
}
