package mosaic

import(
	"fmt"
	"log"

	"github.com/abworrall/echelle/pkg/aperture"
)

// SelectReference picks the set with the most orders, the first one on
// a tie. It is -1 for no sets.
func SelectReference(sets []*aperture.Set) int {
	ref, n := -1, -1
	for i, s := range sets {
		if s != nil && s.Len() > n {
			ref, n = i, s.Len()
		}
	}
	return ref
}

// AlignSets renumbers every set in place so that the same order has the
// same aperture number as in sets[ref]. It returns the shift applied to
// each set.
func AlignSets(sets []*aperture.Set, ref int) ([]int, error) {
	if ref < 0 || ref >= len(sets) {
		return nil, fmt.Errorf("align: no reference set %d", ref)
	}
	shifts := make([]int, len(sets))
	for i, s := range sets {
		if i == ref {
			continue
		}
		off, err := sets[ref].FindOffset(s)
		if err != nil {
			return shifts, fmt.Errorf("align set %d: %w", i, err)
		}
		if off != 0 {
			log.Printf("align: set %d renumbered by %+d", i, -off)
		}
		s.Shift(-off)
		shifts[i] = -off
	}
	return shifts, nil
}
