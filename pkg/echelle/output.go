package echelle

import(
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log"
	"os"

	"github.com/astrogo/fitsio"

	"github.com/abworrall/echelle/pkg/aperture"
	"github.com/abworrall/echelle/pkg/emath"
	"github.com/abworrall/echelle/pkg/mosaic"
	"github.com/abworrall/echelle/pkg/trace"
)

const thumbnailSide = 1600

func WritePNG(img image.Image, filename string) error {
	if writer, err := os.Create(filename); err != nil {
		return fmt.Errorf("open+w '%s': %v", filename, err)
	} else {
		defer writer.Close()
		return png.Encode(writer, img)
	}
}

// WriteTraceOutputs writes the trace of one flat: <name>.trc, the DS9
// regions <name>_trc.reg, an overlay <name>_trc.png, and when the flat
// was traced here, the stacked cross-section and separation figures.
func (fs *FlatSet)WriteTraceOutputs(f *Flat) error {
	if f.Apertures == nil {
		return fmt.Errorf("%s: not traced", f.Filename())
	}
	name := f.Name()
	if err := f.Apertures.SaveTxt(fs.OutputPath(name + ".trc")); err != nil {
		return err
	}
	if err := f.Apertures.SaveRegions(fs.OutputPath(name + "_trc.reg"), "", fs.Config.Channel); err != nil {
		return err
	}
	if err := trace.WriteOverlay(f.Data, f.Apertures, f.Filename(), fs.OutputPath(name + "_trc.png"), thumbnailSide); err != nil {
		return err
	}
	if f.Diagnostics != nil {
		if err := trace.WriteStackPlot(f.Diagnostics, f.Filename(), fs.OutputPath(name + "_stack.png")); err != nil {
			return err
		}
		sep := fs.Config.TraceParams.Separation
		if err := trace.WriteSeparationPlot(f.Apertures, sep, f.Filename(), fs.OutputPath(name + "_sep.png")); err != nil {
			return err
		}
	}
	if fs.Config.Verbosity > 0 {
		log.Printf("Wrote trace outputs for %s\n", f.Filename())
	}
	return nil
}

// WriteMosaic writes the mosaic flat as FITS with the trace in its
// header, plus the trace as text, DS9 regions and an overlay.
func (fs *FlatSet)WriteMosaic(name string, img emath.FloatGrid, set *aperture.Set) error {
	cards := []fitsio.Card{}
	if fs.Reference >= 0 && fs.Reference < len(fs.Flats) {
		for _, c := range fs.Flats[fs.Reference].Cards {
			switch c.Name {
			case "SIMPLE", "BITPIX", "NAXIS", "NAXIS1", "NAXIS2", "EXTEND", "BZERO", "BSCALE", "END", "COMMENT", "HISTORY", "":
				continue
			}
			if len(c.Name) <= 8 {
				cards = append(cards, c)
			}
		}
	}
	cards = append(cards, set.Cards(fs.Config.Channel)...)

	if err := WriteFITS(fs.OutputPath(name + ".fits"), img, cards); err != nil {
		return err
	}
	if err := set.SaveTxt(fs.OutputPath(name + ".trc")); err != nil {
		return err
	}
	if err := set.SaveRegions(fs.OutputPath(name + "_trc.reg"), "", fs.Config.Channel); err != nil {
		return err
	}
	if err := trace.WriteOverlay(img, set, name, fs.OutputPath(name + "_trc.png"), thumbnailSide); err != nil {
		return err
	}
	log.Printf("Wrote mosaic %s (%d orders)\n", fs.OutputPath(name + ".fits"), set.Len())
	return nil
}

// WriteOwnerMap draws which flat each mosaic pixel came from, in the
// order colours.
func (fs *FlatSet)WriteOwnerMap(res *mosaic.AutoResult, filename string) error {
	cols := aperture.OrderColors(len(fs.Flats))
	img := image.NewRGBA(image.Rect(0, 0, res.Width, res.Height))
	for i, o := range res.Owner {
		r, g, b := cols[o].RGB255()
		img.Set(i%res.Width, i/res.Width, color.RGBA{r, g, b, 0xff})
	}
	return WritePNG(emath.Thumbnail(img, thumbnailSide), filename)
}
