package echelle

import (
	"fmt"
	"image"
	"image/color"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/astrogo/fitsio"
	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/tiff"

	"github.com/abworrall/echelle/pkg/aperture"
	"github.com/abworrall/echelle/pkg/emath"
)

func (fs *FlatSet)LoadFilesAndDirs(args ...string) (error) {
	for _, arg := range args {
		item, err := os.Stat(arg)

		switch {

		case err != nil:
			return fmt.Errorf("load %s: %v", arg, err)

		case item.IsDir():
			// Is a dir, recurse into contents
			contents, err := ioutil.ReadDir(arg)
			if err != nil {
				return fmt.Errorf("readdir %s: %v", arg, err)
			}
			for _, content := range contents {
				if err := fs.LoadFilesAndDirs(filepath.Join(arg, content.Name())); err != nil {
					return fmt.Errorf("load %s: %v", arg, err)
				}
			}

		default: // is a file, load it
			if err := fs.loadFile(arg); err != nil {
				return fmt.Errorf("loadfile %s: %v", arg, err)
			}
		}
	}

	return nil
}

func (fs *FlatSet)loadFile(filename string) error {
	ext := filepath.Ext(filename)

	switch strings.ToLower(ext) {

	case ".fits", ".fit", ".fts":
		f, err := LoadFITS(filename)
		if err != nil {
			return fmt.Errorf("Loading %s as FITS failed: %v", filename, err)
		}
		fs.AddFlat(f)

	case ".tif", ".tiff":
		f, err := loadTIFF(filename)
		if err != nil {
			return fmt.Errorf("Loading %s as TIFF failed: %v", filename, err)
		}
		fs.AddFlat(f)

	case ".yaml":
		cfg, err := loadConfig(filename)
		if err != nil {
			return fmt.Errorf("Loading %s as config YAML failed: %v", filename, err)
		}
		fs.Config = cfg
		log.Printf("Loaded base configuration from %s\n", filename)
	}

	return nil
}

func loadConfig(filename string) (Config, error) {
	contents, err := ioutil.ReadFile(filename)
	if err != nil {
		return Config{}, fmt.Errorf("config read %s: %v", filename, err)
	}

	return newConfigFromYaml(contents)
}

// LoadFITS reads the primary image of a FITS file, applying BSCALE and
// BZERO, and the exposure time from EXPTIME when there is one.
func LoadFITS(filename string) (Flat, error) {
	fl := Flat{LoadFilename: filename}

	r, err := os.Open(filename)
	if err != nil {
		return fl, fmt.Errorf("open+r '%s': %v", filename, err)
	}
	defer r.Close()

	f, err := fitsio.Open(r)
	if err != nil {
		return fl, fmt.Errorf("fits parsing '%s': %v", filename, err)
	}
	defer f.Close()

	img, ok := f.HDU(0).(fitsio.Image)
	if !ok {
		return fl, fmt.Errorf("'%s': primary HDU is not an image", filename)
	}
	hdr := img.Header()
	axes := hdr.Axes()
	if len(axes) != 2 {
		return fl, fmt.Errorf("'%s': want a 2-D image, have %d axes", filename, len(axes))
	}
	fl.Cards = aperture.HeaderCards(hdr)

	vals, err := readPixels(img, axes[0]*axes[1])
	if err != nil {
		return fl, fmt.Errorf("'%s': %v", filename, err)
	}

	bscale, bzero := 1.0, 0.0
	if c := hdr.Get("BSCALE"); c != nil {
		if v, err := aperture.CardFloat(c.Value); err == nil { bscale = v }
	}
	if c := hdr.Get("BZERO"); c != nil {
		if v, err := aperture.CardFloat(c.Value); err == nil { bzero = v }
	}
	if bscale != 1 || bzero != 0 {
		for i := range vals {
			vals[i] = vals[i]*bscale + bzero
		}
	}
	if c := hdr.Get("EXPTIME"); c != nil {
		if v, err := aperture.CardFloat(c.Value); err == nil { fl.ExposureTime = v }
	}

	fl.Data, err = emath.NewFloatGridFromValues(axes[0], axes[1], vals)
	return fl, err
}

// readPixels reads the raw image values, which must be read into a
// slice of the type matching BITPIX.
func readPixels(img fitsio.Image, n int) ([]float64, error) {
	out := make([]float64, n)
	switch bitpix := img.Header().Bitpix(); bitpix {
	case 8:
		raw := make([]uint8, n)
		if err := img.Read(&raw); err != nil { return nil, err }
		for i, v := range raw { out[i] = float64(v) }
	case 16:
		raw := make([]int16, n)
		if err := img.Read(&raw); err != nil { return nil, err }
		for i, v := range raw { out[i] = float64(v) }
	case 32:
		raw := make([]int32, n)
		if err := img.Read(&raw); err != nil { return nil, err }
		for i, v := range raw { out[i] = float64(v) }
	case 64:
		raw := make([]int64, n)
		if err := img.Read(&raw); err != nil { return nil, err }
		for i, v := range raw { out[i] = float64(v) }
	case -32:
		raw := make([]float32, n)
		if err := img.Read(&raw); err != nil { return nil, err }
		for i, v := range raw { out[i] = float64(v) }
	case -64:
		if err := img.Read(&out); err != nil { return nil, err }
	default:
		return nil, fmt.Errorf("unsupported BITPIX %d", bitpix)
	}
	return out, nil
}

// loadTIFF reads a 16 bit greyscale TIFF. The exposure time comes from
// the EXIF metadata, when it has any.
func loadTIFF(filename string) (Flat, error) {
	fl := Flat{LoadFilename: filename}

	// First, try to load the EXIF metadata.
	if reader, err := os.Open(filename); err != nil {
		return fl, fmt.Errorf("open+r exif '%s': %v", filename, err)

	} else if ex, err := exif.Decode(reader); err != nil {
		reader.Close()
		log.Printf("%s: no EXIF (%v), exposure time unknown\n", filename, err)

	} else {
		reader.Close()
		if tag,err := ex.Get(exif.ExposureTime); err != nil {
			log.Printf("%s: no EXIF ExposureTime: %v\n", filename, err)
		} else if num,denom,err := tag.Rat2(0); err != nil {
			return fl, fmt.Errorf("exif ExposureTime '%s': %v", filename, err)
		} else if denom != 0 {
			fl.ExposureTime = float64(num) / float64(denom)
		}
	}

	// Re-open the file, now for the image data
	reader, err := os.Open(filename)
	if err != nil {
		return fl, fmt.Errorf("open+r img '%s': %v", filename, err)
	}
	defer reader.Close()
	img, err := tiff.Decode(reader)
	if err != nil {
		return fl, fmt.Errorf("tiff loading '%s': %v", filename, err)
	}
	fl.Data = imageToGrid(img)

	return fl, nil
}

func imageToGrid(img image.Image) emath.FloatGrid {
	b := img.Bounds()
	g := emath.NewFloatGrid(b.Dx(), b.Dy())
	for y:=b.Min.Y; y<b.Max.Y; y++ {
		for x:=b.Min.X; x<b.Max.X; x++ {
			v := color.Gray16Model.Convert(img.At(x, y)).(color.Gray16).Y
			g.Set(x-b.Min.X, y-b.Min.Y, float64(v))
		}
	}
	return g
}
