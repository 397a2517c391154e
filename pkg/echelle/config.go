package echelle

import(
	"fmt"
	"log"
	"gopkg.in/yaml.v2"

	"github.com/abworrall/echelle/pkg/aperture"
	"github.com/abworrall/echelle/pkg/ecombine"
	"github.com/abworrall/echelle/pkg/mosaic"
	"github.com/abworrall/echelle/pkg/trace"
)

type TraceConfig struct {
	ScanStep   int       `yaml:"scan_step"`
	Minimum    float64   `yaml:"minimum"`
	Separation string    `yaml:"separation"`   // "30", or anchors like "500:26, 1500:15"
	SepDer     float64   `yaml:"sep_der"`      // change of separation per 1000 px
	Filling    float64   `yaml:"filling"`
	Degree     int       `yaml:"degree"`
	Clipping   float64   `yaml:"clipping"`
	MaxIter    int       `yaml:"maxiter"`
}

type MosaicConfig struct {
	MaxCount   float64   `yaml:"max_count"`
	Statistic  string    `yaml:"statistic"`
	GapWindow  int       `yaml:"gap_window"`   // px either side of a boundary
	GapStep    int       `yaml:"gap_step"`
	GapDegree  int       `yaml:"gap_degree"`
}

type Config struct {
	Verbosity   int                  `yaml:"verbosity"`
	Direction   string               `yaml:"direction"`    // axis the orders run along
	Channel     string               `yaml:"channel"`
	Saturation  float64              `yaml:"saturation"`
	OutputDir   string               `yaml:"output_dir"`
	Workers     int                  `yaml:"workers"`
	ReuseTraces bool                 `yaml:"reuse_traces"` // read <name>.trc from OutputDir when present

	Trace       TraceConfig          `yaml:"trace"`
	Mosaic      MosaicConfig         `yaml:"mosaic"`
	Combine     ecombine.Options     `yaml:"combine"`

	// Flats to combine before tracing: the group name becomes the flat's
	// name, the members are file basenames.
	Groups      map[string][]string  `yaml:"groups"`

	// Values we figure out in FinalizeConfiguration
	Direct      aperture.Direction   `yaml:"-"`
	TraceParams trace.Params         `yaml:"-"`
}

func newConfigFromYaml(b []byte) (Config, error) {
	c := NewConfig()
	err := yaml.Unmarshal(b, &c)
	return c, err
}

func (c Config)AsYaml() string {
	b, err := yaml.Marshal(c)
	if err != nil {
		log.Fatalf("Can't marshal config yaml: %v\n", err)
	}
	return string(b)
}

func NewConfig() Config {
	tp := trace.DefaultParams()
	ao := mosaic.DefaultAutoOptions()
	gap := mosaic.DefaultGapOptions()
	return Config{
		Direction:  "x",
		Saturation: 63000,
		OutputDir:  ".",
		Workers:    4,
		Trace: TraceConfig{
			ScanStep:   tp.ScanStep,
			Minimum:    tp.Minimum,
			Separation: "30",
			Filling:    tp.Filling,
			Degree:     tp.Degree,
			Clipping:   tp.Clipping,
			MaxIter:    tp.MaxIter,
		},
		Mosaic: MosaicConfig{
			MaxCount:  ao.MaxCount,
			Statistic: ao.Statistic,
			GapWindow: gap.Left,
			GapStep:   gap.Step,
			GapDegree: gap.Degree,
		},
		Combine: ecombine.DefaultOptions(),
		Groups:  map[string][]string{},
	}
}

// FinalizeConfiguration parses the string valued settings, and checks
// the result is usable.
func (c *Config)FinalizeConfiguration() error {
	d, err := aperture.ParseDirection(c.Direction)
	if err != nil {
		return fmt.Errorf("config direction: %v", err)
	}
	c.Direct = d

	sep, err := trace.ParseSeparation(c.Trace.Separation, c.Trace.SepDer)
	if err != nil {
		return fmt.Errorf("config separation: %v", err)
	}
	c.TraceParams = trace.Params{
		ScanStep:   c.Trace.ScanStep,
		Minimum:    c.Trace.Minimum,
		Separation: sep,
		Filling:    c.Trace.Filling,
		Degree:     c.Trace.Degree,
		Clipping:   c.Trace.Clipping,
		MaxIter:    c.Trace.MaxIter,
		Verbosity:  c.Verbosity,
	}
	if err := c.TraceParams.Validate(); err != nil {
		return fmt.Errorf("config trace: %v", err)
	}

	if c.Workers < 1 {
		c.Workers = 1
	}
	c.Combine.Workers = c.Workers
	return nil
}

func (c Config)AutoOptions() mosaic.AutoOptions {
	return mosaic.AutoOptions{MaxCount: c.Mosaic.MaxCount, Statistic: c.Mosaic.Statistic, Verbosity: c.Verbosity}
}

func (c Config)GapOptions() mosaic.GapOptions {
	opt := mosaic.DefaultGapOptions()
	opt.Left, opt.Right = c.Mosaic.GapWindow, c.Mosaic.GapWindow
	opt.Step = c.Mosaic.GapStep
	opt.Degree = c.Mosaic.GapDegree
	opt.Verbosity = c.Verbosity
	return opt
}
