// Package reader serves OME-TIFF acquisitions one timepoint at a time.
//
// A Reader parses the OME-XML of its file once, decodes the TIFF pages on
// the first data request, re-slices them into one multi-channel volume per
// timepoint and keeps those volumes in a Cache until the file changes.
package reader

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/rs/zerolog"

	"ometiffreader/internal/models"
	"ometiffreader/pkg/ome"
	"ometiffreader/pkg/tiffio"
)

// Source is the TIFF decoding capability the reader consumes
type Source interface {
	NumPages() int
	Page(i int) (tiffio.PageInfo, error)
	ImageDescription() string
	DecodeFlatVolume() (*models.ImageData, error)
	Close() error
}

// State is the lifecycle stage of a Reader
type State int

const (
	// Unopened: no file has been inspected yet
	Unopened State = iota
	// Parsed: metadata has been read, pixels have not been decoded
	Parsed
	// Built: the timepoint cache is populated
	Built
)

func (s State) String() string {
	return [...]string{"unopened", "parsed", "built"}[s]
}

// Params holds the reader configuration
type Params struct {
	// FileName is the OME-TIFF to read
	FileName string

	// OutOfRange decides how requests for missing timepoints are handled
	OutOfRange OutOfRangePolicy

	// NumCores bounds the number of goroutines used to rebuild the cache
	NumCores int

	// Logger receives diagnostics. Nil disables logging.
	Logger *zerolog.Logger

	// Open opens a Source for a path. Nil uses tiffio.Open.
	Open func(path string) (Source, error)
}

// Information describes the output of a reader without decoding pixels
type Information struct {
	WholeExtent      [6]int
	Spacing          [3]float64
	Origin           [3]float64
	TimeSteps        []float64
	NumberOfChannels int

	// OME is false when the file carries no usable OME metadata; the reader
	// then serves the pages as one flat volume.
	OME bool
}

// Reader reads an OME-TIFF file. It is not safe for concurrent use.
type Reader struct {
	params Params
	log    zerolog.Logger

	state    State
	fileName string
	modTime  time.Time
	source   Source
	metadata *ome.Metadata
	flat     *models.ImageData
	cache    *Cache
}

// NewReader creates a reader for params.FileName
func NewReader(params *Params) *Reader {
	p := *params
	if p.Open == nil {
		p.Open = func(path string) (Source, error) { return tiffio.Open(path) }
	}
	log := zerolog.Nop()
	if p.Logger != nil {
		log = *p.Logger
	}
	return &Reader{
		params:   p,
		log:      log,
		fileName: p.FileName,
		cache:    NewCache(p.OutOfRange),
	}
}

// SetFileName points the reader at another file. Changing the name drops
// all parsed and cached state.
func (r *Reader) SetFileName(name string) {
	if name == r.fileName {
		return
	}
	r.reset()
	r.fileName = name
}

// FileName returns the current input file
func (r *Reader) FileName() string { return r.fileName }

// State returns the current lifecycle stage
func (r *Reader) State() State { return r.state }

// Metadata returns the parsed OME metadata, or nil before the first request
func (r *Reader) Metadata() *ome.Metadata { return r.metadata }

// Cache exposes the timepoint cache
func (r *Reader) Cache() *Cache { return r.cache }

func (r *Reader) reset() {
	if r.source != nil {
		if err := r.source.Close(); err != nil {
			r.log.Warn().Err(err).Str("file", r.fileName).Msg("closing TIFF source")
		}
	}
	r.source = nil
	r.metadata = nil
	r.flat = nil
	r.modTime = time.Time{}
	r.cache.Reset()
	r.state = Unopened
}

// checkIdentity resets the reader when the file changed on disk. Sources
// that could not be stat'ed when opened are never considered stale.
func (r *Reader) checkIdentity() {
	if r.state == Unopened || r.modTime.IsZero() {
		return
	}
	fi, err := os.Stat(r.fileName)
	if err != nil || !fi.ModTime().Equal(r.modTime) {
		r.log.Debug().Str("file", r.fileName).Msg("file changed, discarding cached state")
		r.reset()
	}
}

// ensureParsed opens the file and parses its metadata once
func (r *Reader) ensureParsed() error {
	r.checkIdentity()
	if r.state != Unopened {
		return nil
	}
	if r.fileName == "" {
		return fmt.Errorf("no file name set")
	}

	src, err := r.params.Open(r.fileName)
	if err != nil {
		return err
	}
	if fi, err := os.Stat(r.fileName); err == nil {
		r.modTime = fi.ModTime()
	}

	md := ome.ParseWithPageCount(src.ImageDescription(), src.NumPages())
	if md.Valid {
		g := md.Geometry
		r.log.Debug().
			Str("file", r.fileName).
			Ints("size", []int{g.SizeX, g.SizeY, g.SizeZ, g.SizeC, g.SizeT}).
			Str("order", g.DimensionOrder).
			Msg("parsed OME metadata")
	} else {
		r.log.Warn().Err(md.Err).Str("file", r.fileName).Msg("no usable OME metadata, serving flat volume")
	}

	r.source = src
	r.metadata = md
	r.state = Parsed
	return nil
}

// ensureBuilt decodes the pages and rebuilds the cache if needed
func (r *Reader) ensureBuilt() error {
	if err := r.ensureParsed(); err != nil {
		return err
	}
	if r.state == Built {
		return nil
	}

	if r.flat == nil {
		start := time.Now()
		flat, err := r.source.DecodeFlatVolume()
		if err != nil {
			return fmt.Errorf("decode %q: %w", r.fileName, err)
		}
		r.flat = flat
		r.log.Debug().Str("file", r.fileName).Dur("elapsed", time.Since(start)).Msg("decoded TIFF pages")
	}
	if !r.metadata.Valid {
		return nil
	}

	start := time.Now()
	if err := UpdateCache(r.cache, r.flat, r.metadata, r.params.NumCores); err != nil {
		return fmt.Errorf("resplice %q: %w", r.fileName, err)
	}
	r.log.Info().
		Str("file", r.fileName).
		Int("timepoints", r.cache.Len()).
		Dur("elapsed", time.Since(start)).
		Msg("built timepoint cache")

	// The cache now holds every plane; the flat copy is no longer needed.
	r.flat = nil
	r.state = Built
	return nil
}

// RequestInformation reports the output geometry. It parses metadata but
// never decodes pixel data.
func (r *Reader) RequestInformation() (*Information, error) {
	if err := r.ensureParsed(); err != nil {
		return nil, err
	}

	if r.metadata.Valid {
		g := r.metadata.Geometry
		return &Information{
			WholeExtent:      [6]int{0, g.SizeX - 1, 0, g.SizeY - 1, 0, g.SizeZ - 1},
			Spacing:          g.PhysicalSize,
			TimeSteps:        g.TimeValues(),
			NumberOfChannels: g.SizeC,
			OME:              true,
		}, nil
	}

	page, err := r.source.Page(0)
	if err != nil {
		return nil, err
	}
	return &Information{
		WholeExtent:      [6]int{0, page.Width - 1, 0, page.Height - 1, 0, r.source.NumPages() - 1},
		Spacing:          [3]float64{1, 1, 1},
		NumberOfChannels: 1,
	}, nil
}

// RequestData fills out with timepoint t. The first call decodes the file
// and builds the cache; later calls are served from the cache.
//
// Files without usable OME metadata are passed through: out receives every
// page stacked along Z and t is ignored.
func (r *Reader) RequestData(t int, out *models.ImageData) error {
	if err := r.ensureBuilt(); err != nil {
		return err
	}
	if !r.metadata.Valid {
		out.ShallowCopy(r.flat)
		return nil
	}
	return r.cache.Extract(out, t)
}

// RequestDataAtTime fills out with the timepoint nearest to time
func (r *Reader) RequestDataAtTime(time float64, out *models.ImageData) error {
	if err := r.ensureParsed(); err != nil {
		return err
	}
	return r.RequestData(r.timepointAt(time), out)
}

func (r *Reader) timepointAt(time float64) int {
	if !r.metadata.Valid {
		return 0
	}
	g := r.metadata.Geometry
	if g.TimeIncrement <= 0 || math.IsNaN(time) {
		return 0
	}
	// Bound before converting so huge or infinite times stay out of range
	// on the correct side and the out-of-range policy decides.
	idx := math.Round(time / g.TimeIncrement)
	switch {
	case idx < 0:
		return -1
	case idx >= float64(g.SizeT):
		return g.SizeT
	}
	return int(idx)
}

// NumberOfTimepoints returns SizeT, or 1 for files served as a flat volume
func (r *Reader) NumberOfTimepoints() (int, error) {
	if err := r.ensureParsed(); err != nil {
		return 0, err
	}
	if !r.metadata.Valid {
		return 1, nil
	}
	return r.metadata.Geometry.SizeT, nil
}

// Close releases the underlying file and all cached state
func (r *Reader) Close() error {
	var err error
	if r.source != nil {
		err = r.source.Close()
		r.source = nil
	}
	r.reset()
	return err
}
