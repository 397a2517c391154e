package main

import(
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/abworrall/echelle/pkg/echelle"
	"github.com/abworrall/echelle/pkg/mosaic"
)

var(
	fVerbosity int
	fDirection string
	fSeparation string
	fOutputDir string
	fOutputName string
	fMosaicFile string
	fEditFile string
	fMaxCount float64
	fStatistic string
	fReuse bool
)

func init() {
	flag.IntVar(&fVerbosity, "v", 0, "how verbose to get")
	flag.StringVar(&fDirection, "direct", "", "axis the orders run along (x or y); overrides the config")
	flag.StringVar(&fSeparation, "sep", "", "order separation; overrides the config")
	flag.StringVar(&fOutputDir, "out", "", "directory for the outputs")
	flag.StringVar(&fOutputName, "name", "flat_mosaic", "basename of the mosaic outputs")
	flag.StringVar(&fMosaicFile, "mosaic", "", "build the mosaic from this saved boundary file, instead of automatically")
	flag.StringVar(&fEditFile, "edit", "", "edit this boundary file with commands read from stdin")
	flag.Float64Var(&fMaxCount, "maxcount", -1, "orders peaking above this are not trusted")
	flag.StringVar(&fStatistic, "stat", "", "flux statistic used to pick flats: median, mean or max")
	flag.BoolVar(&fReuse, "reuse", false, "read existing .trc files instead of tracing again")
	flag.Parse()

	log.Printf("echelle-mosaic starting\n")
}

func main() {
	fs := echelle.NewFlatSet()
	if err := fs.LoadFilesAndDirs(flag.Args()...); err != nil {
		log.Fatal(err)
	}

	c := &fs.Config
	if fVerbosity > 0    { c.Verbosity = fVerbosity }
	if fDirection != ""  { c.Direction = fDirection }
	if fSeparation != "" { c.Trace.Separation = fSeparation }
	if fOutputDir != ""  { c.OutputDir = fOutputDir }
	if fMaxCount > 0     { c.Mosaic.MaxCount = fMaxCount }
	if fStatistic != ""  { c.Mosaic.Statistic = fStatistic }
	if fReuse            { c.ReuseTraces = true }
	if err := c.FinalizeConfiguration(); err != nil {
		log.Fatal(err)
	}

	if err := fs.CombineGroups(); err != nil {
		log.Fatal(err)
	}
	if len(fs.Flats) < 2 {
		log.Fatalf("need at least two flats to mosaic, have %d", len(fs.Flats))
	}
	if err := fs.TraceAll(); err != nil {
		log.Fatal(err)
	}
	if err := fs.Align(); err != nil {
		log.Fatal(err)
	}
	log.Printf("Flats loaded, traced and aligned: %s", fs)

	switch {
	case fEditFile != "":
		edit(&fs, fEditFile)

	case fMosaicFile != "":
		s, err := fs.LoadSession(fMosaicFile)
		if err != nil {
			log.Fatal(err)
		}
		writeSession(&fs, s)

	default:
		res, err := fs.MosaicAuto()
		if err != nil {
			log.Fatal(err)
		}
		if err := fs.WriteMosaic(fOutputName, res.Image, res.Apertures); err != nil {
			log.Fatal(err)
		}
		if err := fs.WriteOwnerMap(res, fs.OutputPath(fOutputName + "_owner.png")); err != nil {
			log.Fatal(err)
		}
	}
}

func writeSession(fs *echelle.FlatSet, s *mosaic.Session) {
	img, set, err := fs.ComposeSession(s)
	if err != nil {
		log.Fatal(err)
	}
	if err := fs.WriteMosaic(fOutputName, img, set); err != nil {
		log.Fatal(err)
	}
	if err := s.SaveRegions(fs.OutputPath(fOutputName + "_bnd.reg"), 20); err != nil {
		log.Fatal(err)
	}
}

// edit runs the boundary editor: one command per line on stdin, with
// the session saved to filename on "save", and the mosaic written on
// "quit" if the session is complete.
func edit(fs *echelle.FlatSet, filename string) {
	var s *mosaic.Session
	if _, err := os.Stat(filename); err == nil {
		s, err = fs.LoadSession(filename)
		if s == nil {
			log.Fatal(err)
		} else if err != nil {
			log.Printf("%s needs fixing: %v\n", filename, err)
		}
	} else {
		s, err = fs.NewSession()
		if err != nil {
			log.Fatal(err)
		}
	}

	views := fs.Views()
	opt := fs.Config.GapOptions()
	show := func() {
		for i, name := range s.Files {
			fmt.Printf("  file %d %-30s %v\n", i, name, s.Select[i])
		}
		fmt.Printf("  nodes %.1f\n", s.Nodes())
	}
	show()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "show":
			show()
			continue
		case "save":
			if err := s.SaveAscii(filename); err != nil {
				log.Printf("not saved: %v\n", err)
			} else if err := s.SaveRegions(fs.OutputPath(fOutputName + "_bnd.reg"), 20); err != nil {
				log.Printf("regions not saved: %v\n", err)
			} else {
				log.Printf("saved %s\n", filename)
			}
			continue
		case "quit":
			if err := s.Validate(); err != nil {
				log.Printf("mosaic not written: %v\n", err)
				return
			}
			writeSession(fs, s)
			return
		}

		cmd, err := mosaic.ParseCommand(line)
		if err != nil {
			log.Printf("%v\n", err)
			continue
		}
		if err := s.Apply(cmd, views, opt); err != nil {
			log.Printf("%v\n", err)
			continue
		}
		show()
	}
}
