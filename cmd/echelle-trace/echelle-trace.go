package main

import(
	"flag"
	"log"

	"github.com/abworrall/echelle/pkg/echelle"
)

var(
	fVerbosity int
	fDirection string
	fSeparation string
	fSepDer float64
	fFilling float64
	fDegree int
	fScanStep int
	fOutputDir string
	fWorkers int
	fReuse bool
)

func init() {
	flag.IntVar(&fVerbosity, "v", 0, "how verbose to get")
	flag.StringVar(&fDirection, "direct", "", "axis the orders run along (x or y); overrides the config")
	flag.StringVar(&fSeparation, "sep", "", "order separation in px, or 'pos:sep, pos:sep' anchors; overrides the config")
	flag.Float64Var(&fSepDer, "sepder", 0, "change of separation per 1000px, with a single -sep value")
	flag.Float64Var(&fFilling, "filling", -1, "fraction of scanned columns an order must be seen in")
	flag.IntVar(&fDegree, "degree", -1, "polynomial degree of the traces")
	flag.IntVar(&fScanStep, "scanstep", -1, "columns between scanned cross-sections")
	flag.StringVar(&fOutputDir, "out", "", "directory for the outputs")
	flag.IntVar(&fWorkers, "workers", 0, "flats to trace at once")
	flag.BoolVar(&fReuse, "reuse", false, "read existing .trc files instead of tracing again")
	flag.Parse()

	log.Printf("echelle-trace starting\n")
}

func applyFlags(c *echelle.Config) {
	if fVerbosity > 0        { c.Verbosity = fVerbosity }
	if fDirection != ""      { c.Direction = fDirection }
	if fSeparation != ""     { c.Trace.Separation = fSeparation; c.Trace.SepDer = fSepDer }
	if fFilling >= 0         { c.Trace.Filling = fFilling }
	if fDegree >= 0          { c.Trace.Degree = fDegree }
	if fScanStep > 0         { c.Trace.ScanStep = fScanStep }
	if fOutputDir != ""      { c.OutputDir = fOutputDir }
	if fWorkers > 0          { c.Workers = fWorkers }
	if fReuse                { c.ReuseTraces = true }
}

func main() {
	fs := echelle.NewFlatSet()
	if err := fs.LoadFilesAndDirs(flag.Args()...); err != nil {
		log.Fatal(err)
	}
	applyFlags(&fs.Config)
	if err := fs.Config.FinalizeConfiguration(); err != nil {
		log.Fatal(err)
	}

	if fs.Verbosity > 0 {
		log.Printf("Final configuration:-\n\n%s\n", fs.Config.AsYaml())
	}

	if err := fs.CombineGroups(); err != nil {
		log.Fatal(err)
	}
	if len(fs.Flats) == 0 {
		log.Fatal("no flats loaded")
	}

	err := fs.TraceAll()
	for i := range fs.Flats {
		if fs.Flats[i].Apertures == nil {
			continue
		}
		if werr := fs.WriteTraceOutputs(&fs.Flats[i]); werr != nil {
			log.Printf("%s: %v\n", fs.Flats[i].Filename(), werr)
		}
	}
	if err != nil {
		log.Fatal(err)
	}
}
