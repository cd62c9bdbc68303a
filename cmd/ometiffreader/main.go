package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ometiffreader/internal/models"
	"ometiffreader/pkg/config"
	"ometiffreader/pkg/ome"
	"ometiffreader/pkg/reader"
	"ometiffreader/pkg/tiffio"
	"ometiffreader/pkg/visualization"
)

func main() {
	// Parse command line arguments
	inputFile := flag.String("input", "", "OME-TIFF file to read")
	configPath := flag.String("config", "", "YAML configuration file (optional)")
	timepoint := flag.Int("timepoint", 0, "Timepoint to extract")
	infoOnly := flag.Bool("info", false, "Print the acquisition geometry without decoding pixels")
	exportDir := flag.String("export-dir", "", "Directory to save slices of the extracted timepoint (overrides config)")
	axis := flag.String("axis", "", "Slice axis for export: x, y or z (overrides config)")
	channel := flag.Int("channel", 1, "Channel to export (1-based)")
	format := flag.String("format", "", "Slice format for export: jpeg or tiff (overrides config)")
	synthesize := flag.String("synthesize", "", "Write a synthetic 2-channel, 3-timepoint OME-TIFF to this path and read it back")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	numCores := flag.Int("cores", 0, "Number of CPU cores used to build the timepoint cache (overrides config, default: all available)")
	flag.Parse()

	cfg := config.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
	}
	applyOverrides(cfg, overrides{
		logLevel: *logLevel,
		axis:     *axis,
		format:   *format,
		numCores: *numCores,
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid settings: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)

	if *synthesize != "" {
		if err := writeSynthetic(*synthesize); err != nil {
			logger.Fatal().Err(err).Str("file", *synthesize).Msg("failed to write synthetic OME-TIFF")
		}
		fmt.Printf("Synthetic OME-TIFF written to: %s\n", *synthesize)
		if *inputFile == "" {
			*inputFile = *synthesize
		}
	}

	// Validate inputs
	if *inputFile == "" {
		flag.Usage()
		os.Exit(1)
	}

	policy, _ := reader.ParseOutOfRangePolicy(cfg.Reader.OutOfRange)
	r := reader.NewReader(&reader.Params{
		FileName:   *inputFile,
		OutOfRange: policy,
		NumCores:   cfg.Reader.NumCores,
		Logger:     &logger,
	})
	defer r.Close()

	info, err := r.RequestInformation()
	if err != nil {
		logger.Fatal().Err(err).Str("file", *inputFile).Msg("failed to read metadata")
	}
	printInformation(*inputFile, info)
	if *infoOnly {
		return
	}

	fmt.Printf("\nExtracting timepoint %d...\n", *timepoint)
	startTime := time.Now()
	vol := &models.ImageData{}
	if err := r.RequestData(*timepoint, vol); err != nil {
		logger.Fatal().Err(err).Int("timepoint", *timepoint).Msg("failed to extract timepoint")
	}
	fmt.Printf("Extracted in %.3f seconds\n\n", time.Since(startTime).Seconds())

	dims := vol.Dimensions()
	fmt.Printf("Volume: %dx%dx%d, spacing %.3gx%.3gx%.3g\n", dims[0], dims[1], dims[2], vol.Spacing[0], vol.Spacing[1], vol.Spacing[2])
	fmt.Printf("%-16s %10s %12s %12s %12s %12s\n", "Array", "Points", "Min", "Max", "Mean", "StdDev")
	for _, s := range reader.ChannelStatistics(vol) {
		fmt.Printf("%-16s %10d %12.4g %12.4g %12.4g %12.4g\n", s.Name, s.Count, s.Min, s.Max, s.Mean, s.StdDev)
	}
	if units := vol.FieldData.StringArray(reader.PhysicalSizeUnitName); units != nil {
		fmt.Printf("Physical size units: %s\n", strings.Join(units.Values, ", "))
	}
	for c := 0; c < info.NumberOfChannels && info.OME; c++ {
		if rng := vol.FieldData.DataArray(reader.ChannelRangeName(c)); rng != nil {
			fmt.Printf("%s: [%g, %g] over all timepoints\n", rng.Name(), rng.Component(0, 0), rng.Component(0, 1))
		}
	}

	dir := *exportDir
	if dir == "" {
		return
	}

	// Pass-through volumes carry a single unnamed channel
	name := tiffio.FlatScalarsName
	if info.OME {
		name = reader.ChannelArrayName(*channel - 1)
	}
	viewer, err := visualization.NewViewer(vol, name)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create viewer")
	}
	slicesPath := filepath.Join(dir, fmt.Sprintf("t%03d", *timepoint))
	fmt.Printf("\nSaving %s-axis slices of %s to: %s\n", cfg.Export.Axis, name, slicesPath)
	if err := viewer.SaveSliceSequence(cfg.Export.Axis, slicesPath, cfg.Export.Format); err != nil {
		logger.Fatal().Err(err).Msg("failed to save slices")
	}
	fmt.Println("Slice export completed!")
}

// overrides holds command line values that take precedence over the config
// file. Zero values leave the config untouched.
type overrides struct {
	logLevel string
	axis     string
	format   string
	numCores int
}

func applyOverrides(cfg *config.Config, o overrides) {
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.axis != "" {
		cfg.Export.Axis = o.axis
	}
	if o.format != "" {
		cfg.Export.Format = o.format
	}
	if o.numCores > 0 {
		cfg.Reader.NumCores = o.numCores
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Logging.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if cfg.Logging.Console {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}

func printInformation(file string, info *reader.Information) {
	fmt.Println("================================")
	fmt.Printf("File: %s\n", file)
	fmt.Println("================================")
	if !info.OME {
		fmt.Println("No usable OME metadata: pages are served as one flat volume")
	}
	e := info.WholeExtent
	fmt.Printf("Extent: [%d,%d] x [%d,%d] x [%d,%d]\n", e[0], e[1], e[2], e[3], e[4], e[5])
	fmt.Printf("Spacing: %g x %g x %g\n", info.Spacing[0], info.Spacing[1], info.Spacing[2])
	fmt.Printf("Channels: %d\n", info.NumberOfChannels)
	if len(info.TimeSteps) > 0 {
		fmt.Printf("Timepoints: %d (t = %g .. %g)\n", len(info.TimeSteps), info.TimeSteps[0], info.TimeSteps[len(info.TimeSteps)-1])
	}
}

// writeSynthetic stores a 64x64x8 acquisition with 2 channels and 3
// timepoints. Channel 0 is a sphere drifting along x, channel 1 a ramp.
func writeSynthetic(path string) error {
	g := ome.NewGeometry(64, 64, 8, 2, 3)
	g.PhysicalSize = [3]float64{0.25, 0.25, 1}
	g.PhysicalSizeUnit = [3]string{"µm", "µm", "µm"}
	g.TimeIncrement = 30
	g.Channels = []ome.Channel{{Name: "sphere", SamplesPerPixel: 1}, {Name: "ramp", SamplesPerPixel: 1}}

	flat := models.NewImageData([3]int{g.SizeX, g.SizeY, g.NumberOfPlanes()})
	scalars := flat.AllocateScalars(tiffio.FlatScalarsName, models.Uint16, 1)
	planeSize := g.SizeX * g.SizeY
	for p := 0; p < g.NumberOfPlanes(); p++ {
		k := g.PlaneKey(p)
		cx := 20 + 12*float64(k.T)
		for y := 0; y < g.SizeY; y++ {
			for x := 0; x < g.SizeX; x++ {
				var v float64
				if k.C == 0 {
					dx, dy, dz := float64(x)-cx, float64(y)-32, 4*(float64(k.Z)-3.5)
					v = math.Max(0, 4000-200*math.Sqrt(dx*dx+dy*dy+dz*dz))
				} else {
					v = float64(x*16 + k.Z*100 + k.T*1000)
				}
				scalars.SetComponent(p*planeSize+y*g.SizeX+x, 0, v)
			}
		}
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return ome.WriteFile(path, g, flat, tiffio.Zstd)
}
