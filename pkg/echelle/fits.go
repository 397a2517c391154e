package echelle

import(
	"fmt"
	"os"

	"github.com/astrogo/fitsio"

	"github.com/abworrall/echelle/pkg/emath"
)

// WriteFITS writes data as a 64 bit float primary image, with cards
// added to its header.
func WriteFITS(filename string, data emath.FloatGrid, cards []fitsio.Card) error {
	w, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("open+w '%s': %v", filename, err)
	}
	defer w.Close()

	f, err := fitsio.Create(w)
	if err != nil {
		return fmt.Errorf("fits create '%s': %v", filename, err)
	}
	defer f.Close()

	im := fitsio.NewImage(-64, []int{data.Dx(), data.Dy()})
	defer im.Close()
	if err := im.Header().Append(cards...); err != nil {
		return fmt.Errorf("fits header '%s': %v", filename, err)
	}
	if err := im.Write(data.Values()); err != nil {
		return fmt.Errorf("fits data '%s': %v", filename, err)
	}
	return f.Write(im)
}
