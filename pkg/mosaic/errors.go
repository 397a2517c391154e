package mosaic

import(
	"errors"
	"fmt"
	"strings"
)

var(
	// ErrIncomplete means some region is not claimed by exactly one flat.
	ErrIncomplete = errors.New("mosaic incomplete")

	// ErrGapLost means a boundary trace wandered off the image.
	ErrGapLost = errors.New("gap lost")
)

// A ValidationError pins an input problem to a file and field.
type ValidationError struct {
	File  string
	Field string
	Msg   string
}

func (e *ValidationError)Error() string {
	if e.File == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.File, e.Field, e.Msg)
}

// A CompletenessError lists the regions that do not have exactly one
// flat selected, along with how many they have.
type CompletenessError struct {
	Regions []int
	Counts  []int
}

func (e *CompletenessError)Error() string {
	strs := make([]string, len(e.Regions))
	for i, r := range e.Regions {
		strs[i] = fmt.Sprintf("region %d has %d", r, e.Counts[i])
	}
	return fmt.Sprintf("%v: %s", ErrIncomplete, strings.Join(strs, ", "))
}

func (e *CompletenessError)Unwrap() error { return ErrIncomplete }
