package echelle

import(
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"sync"

	"github.com/abworrall/echelle/pkg/aperture"
	"github.com/abworrall/echelle/pkg/ecombine"
	"github.com/abworrall/echelle/pkg/emath"
	"github.com/abworrall/echelle/pkg/mosaic"
	"github.com/abworrall/echelle/pkg/trace"
)

// FlatSet holds the flats of one night, traces them, and mosaics them
// into a single flat.
type FlatSet struct {
	Flats     []Flat  // Ordered, ascending exposure time
	Config

	Reference int     // index of the flat whose aperture numbering the others follow
}

func NewFlatSet() FlatSet {
	return FlatSet{
		Flats:     []Flat{},
		Config:    NewConfig(),
		Reference: -1,
	}
}

func (fs FlatSet)String() string {
	str := "FlatSet [\n"
	for _, f := range fs.Flats {
		str += fmt.Sprintf("  %s\n", f)
	}
	return str + "]\n"
}

func (fs *FlatSet)AddFlat(f Flat) {
	fs.Flats = append(fs.Flats, f)
	sort.SliceStable(fs.Flats, func(i, j int) bool { return fs.Flats[i].ExposureTime < fs.Flats[j].ExposureTime })
}

func (fs *FlatSet)Names() []string {
	names := []string{}
	for _, f := range fs.Flats {
		names = append(names, f.Filename())
	}
	return names
}

// {{{ fs.CombineGroups

// CombineGroups replaces each configured group of flats with their
// combination. The group's saturation mask flags pixels saturated in
// more than half of its members.
func (fs *FlatSet)CombineGroups() error {
	groups := make([]string, 0, len(fs.Config.Groups))
	for name := range fs.Config.Groups {
		groups = append(groups, name)
	}
	sort.Strings(groups)

	for _, name := range groups {
		members := map[string]bool{}
		for _, m := range fs.Config.Groups[name] {
			members[m] = true
		}

		kept := []Flat{}
		cube := []emath.FloatGrid{}
		exptime := 0.0
		for _, f := range fs.Flats {
			if members[f.Filename()] {
				cube = append(cube, f.Data)
				exptime += f.ExposureTime
			} else {
				kept = append(kept, f)
			}
		}
		if len(cube) == 0 {
			return fmt.Errorf("group %s: none of its files were loaded", name)
		}

		data, err := ecombine.Images(cube, fs.Config.Combine)
		if err != nil {
			return fmt.Errorf("group %s: %w", name, err)
		}
		sat, err := ecombine.SaturationMask(cube, fs.Config.Saturation)
		if err != nil {
			return fmt.Errorf("group %s: %w", name, err)
		}
		log.Printf("Combined %d flats into %s, %s\n", len(cube), name, fs.Config.Combine)

		fs.Flats = kept
		fs.AddFlat(Flat{
			LoadFilename: name,
			Data:         data,
			Sat:          sat,
			ExposureTime: exptime / float64(len(cube)),
		})
	}
	return nil
}

// }}}
// {{{ fs.TraceAll

type traceJob struct {
	// Inputs for the job
	C     Config
	Index int
	Flat *Flat

	// Output
	Err   error
}

// TraceAll finds the orders on every flat, using a pool of goroutines.
// With ReuseTraces, a flat whose trace file already exists is read
// back instead.
func (fs *FlatSet)TraceAll() error {
	var wg sync.WaitGroup
	jobsChan    := make(chan traceJob, len(fs.Flats))
	resultsChan := make(chan traceJob, len(fs.Flats))

	// Kick off worker pool
	nWorkers := fs.Config.Workers
	if nWorkers < 1 { nWorkers = 1 }
	for i:=0; i<nWorkers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()
			for job := range jobsChan {
				job.Err = traceFlat(job.C, job.Flat)
				resultsChan<- job
			}
		}()
	}

	// Feed in jobs
	for i := range fs.Flats {
		jobsChan<- traceJob{C: fs.Config, Index: i, Flat: &fs.Flats[i]}
	}

	close(jobsChan)
	wg.Wait()
	close(resultsChan)

	// results processor
	var firstErr error
	for result := range resultsChan {
		if result.Err != nil {
			log.Printf(" -- trace %s: %v\n", result.Flat.Filename(), result.Err)
			if firstErr == nil {
				firstErr = fmt.Errorf("trace %s: %w", result.Flat.Filename(), result.Err)
			}
			continue
		}
		log.Printf(" -- traced %s\n", result.Flat)
	}
	return firstErr
}

func traceFlat(cfg Config, f *Flat) error {
	if f.Sat.IsEmpty() {
		f.Sat = emath.Threshold(f.Data, cfg.Saturation)
	}
	if cfg.Verbosity > 0 {
		log.Printf("%s: %s\n", f.Filename(), NewQuickLook(f.Data, cfg.Saturation))
	}

	if cfg.ReuseTraces {
		if set, err := aperture.LoadTxt(cfg.outputPath(f.Name() + ".trc")); err == nil {
			for _, k := range set.Keys() {
				l, _ := set.Get(k)
				if l.Stats == nil {
					l.MeasureStats(f.Data, f.Sat, 3)
				}
			}
			f.Apertures = set
			return nil
		}
	}

	set, diag, err := trace.FindApertures(f.Data, f.Sat, cfg.Direct, cfg.TraceParams)
	f.Diagnostics = diag
	if err != nil {
		return err
	}
	f.Apertures = set
	return nil
}

// }}}
// {{{ fs.Align

// Align renumbers the orders of every flat so that the same physical
// order carries the same aperture number everywhere.
func (fs *FlatSet)Align() error {
	sets := []*aperture.Set{}
	for i := range fs.Flats {
		if fs.Flats[i].Apertures == nil {
			return fmt.Errorf("align: %s has not been traced", fs.Flats[i].Filename())
		}
		sets = append(sets, fs.Flats[i].Apertures)
	}
	fs.Reference = mosaic.SelectReference(sets)
	if fs.Reference < 0 {
		return fmt.Errorf("align: no flats")
	}
	log.Printf("Aligning order numbers to %s\n", fs.Flats[fs.Reference].Filename())
	_, err := mosaic.AlignSets(sets, fs.Reference)
	return err
}

// }}}
// {{{ fs.MosaicAuto

func (fs *FlatSet)MosaicAuto() (*mosaic.AutoResult, error) {
	flats := []mosaic.Flat{}
	for _, f := range fs.Flats {
		flats = append(flats, mosaic.Flat{Name: f.Filename(), Data: f.Data, Apertures: f.Apertures})
	}
	res, err := mosaic.MosaicFlatAuto(flats, fs.Config.AutoOptions())
	if err != nil {
		return nil, err
	}
	if len(res.Fallback) > 0 {
		log.Printf("Mosaic: %d orders saturated in every flat: %v\n", len(res.Fallback), res.Fallback)
	}
	return res, nil
}

// }}}
// {{{ fs.Session

// NewSession starts an empty hand edited mosaic over the flats.
func (fs *FlatSet)NewSession() (*mosaic.Session, error) {
	if len(fs.Flats) == 0 {
		return nil, fmt.Errorf("session: no flats")
	}
	d := fs.Flats[0].Data
	return mosaic.NewSession(fs.Names(), fs.Config.Direct, d.Dx(), d.Dy()), nil
}

// LoadSession reads a saved mosaic, and checks its files are the
// loaded flats, in any order. The returned session lists them in the
// flat set's order. A file list that does not match gives no session.
func (fs *FlatSet)LoadSession(filename string) (*mosaic.Session, error) {
	if len(fs.Flats) == 0 {
		return nil, fmt.Errorf("session: no flats")
	}
	d := fs.Flats[0].Data
	s, err := mosaic.LoadAscii(filename, fs.Config.Direct, d.Dx(), d.Dy())
	if s == nil {
		return nil, err
	}

	byName := map[string][]bool{}
	for i, name := range s.Files {
		if _, exists := byName[name]; exists {
			return nil, &mosaic.ValidationError{File: name, Field: "file", Msg: "listed twice in " + filename}
		}
		byName[name] = s.Select[i]
	}
	names := fs.Names()
	sel := make([][]bool, len(names))
	for i, name := range names {
		v, ok := byName[name]
		if !ok {
			return nil, &mosaic.ValidationError{File: name, Field: "file", Msg: "not in " + filename}
		}
		sel[i] = v
		delete(byName, name)
	}
	if len(byName) > 0 {
		extra := []string{}
		for name := range byName {
			extra = append(extra, name)
		}
		sort.Strings(extra)
		return nil, &mosaic.ValidationError{File: extra[0], Field: "file", Msg: "listed in " + filename + " but not loaded"}
	}
	s.Files, s.Select = names, sel
	return s, err
}

// Views are the flats indexed the way mosaic.DetectGap wants.
func (fs *FlatSet)Views() []emath.FloatGrid {
	views := []emath.FloatGrid{}
	for _, f := range fs.Flats {
		views = append(views, mosaic.DispersionView(f.Data, fs.Config.Direct))
	}
	return views
}

// ComposeSession builds the mosaic image of a session, and the trace to
// go with it: each order comes from the flat selected for the region
// holding its centre.
func (fs *FlatSet)ComposeSession(s *mosaic.Session) (emath.FloatGrid, *aperture.Set, error) {
	names := fs.Names()
	if len(names) != len(s.Files) {
		return emath.FloatGrid{}, nil, fmt.Errorf("session has %d files, have %d flats", len(s.Files), len(names))
	}
	images := []emath.FloatGrid{}
	for i, f := range fs.Flats {
		if s.Files[i] != names[i] {
			return emath.FloatGrid{}, nil, &mosaic.ValidationError{File: s.Files[i], Field: "file",
				Msg: fmt.Sprintf("in slot %d, where %s is loaded", i, names[i])}
		}
		images = append(images, f.Data)
	}
	img, err := s.Compose(images)
	if err != nil {
		return img, nil, err
	}

	set := aperture.NewSet()
	for r:=0; r<s.Regions(); r++ {
		f := -1
		for i := range s.Select {
			if s.Select[i][r] { f = i }
		}
		if fs.Flats[f].Apertures == nil {
			continue
		}
		for _, k := range fs.Flats[f].Apertures.Keys() {
			l, _ := fs.Flats[f].Apertures.Get(k)
			if s.RegionAt(l.PositionAt(float64(s.AlongLen)/2)) == r {
				set.Put(k, l)
			}
		}
	}
	return img, set, nil
}

// }}}

// outputPath puts a file in the output dir.
func (c Config)outputPath(name string) string {
	return filepath.Join(c.OutputDir, name)
}

// OutputPath is where an output of the given name gets written.
func (fs *FlatSet)OutputPath(name string) string { return fs.Config.outputPath(name) }
