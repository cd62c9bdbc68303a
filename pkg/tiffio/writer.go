package tiffio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"

	"ometiffreader/internal/models"
)

// Compression selects how the Writer stores page data
type Compression int

const (
	None    Compression = cNone
	Deflate Compression = cDeflate
	Zstd    Compression = cZstd
)

// maxFileSize is the largest file a classic TIFF can address with 32-bit offsets
var maxFileSize uint64 = math.MaxUint32

// ErrTooLarge is returned by WritePage when the page would push the file
// past the 32-bit offset limit of classic TIFF
var ErrTooLarge = errors.New("tiffio: file exceeds the 4 GiB classic TIFF limit")

// Page is one uncompressed plane of interleaved little-endian samples
type Page struct {
	Width           int
	Height          int
	SamplesPerPixel int
	ScalarType      models.ScalarType
	Data            []byte
}

func (p Page) validate() error {
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("invalid page size %dx%d", p.Width, p.Height)
	}
	if p.SamplesPerPixel < 1 {
		return fmt.Errorf("invalid samples per pixel %d", p.SamplesPerPixel)
	}
	if p.ScalarType.Size() == 0 {
		return errors.New("unknown scalar type")
	}
	if want := p.Width * p.Height * p.SamplesPerPixel * p.ScalarType.Size(); len(p.Data) != want {
		return fmt.Errorf("page data holds %d bytes, want %d", len(p.Data), want)
	}
	return nil
}

// Writer writes a little-endian multi-page TIFF with one strip per page.
// The file is assembled in memory and emitted by Close.
type Writer struct {
	w           io.Writer
	compression Compression
	description string

	buf      []byte
	nextSlot int // offset of the "next IFD" pointer to patch
	pages    int
	closed   bool
}

// NewWriter creates a writer. A non-empty description is stored as the
// ImageDescription of the first page.
func NewWriter(w io.Writer, compression Compression, description string) *Writer {
	buf := make([]byte, 8)
	copy(buf, leHeader)
	return &Writer{
		w:           w,
		compression: compression,
		description: description,
		buf:         buf,
		nextSlot:    4,
	}
}

type ifdEntry struct {
	tag    uint16
	typ    uint16
	count  uint32
	values []uint32 // for dtShort and dtLong
	ascii  []byte   // for dtASCII, NUL terminated
}

func (e ifdEntry) payload() []byte {
	switch e.typ {
	case dtASCII:
		return e.ascii
	case dtShort:
		b := make([]byte, 2*len(e.values))
		for i, v := range e.values {
			binary.LittleEndian.PutUint16(b[2*i:], uint16(v))
		}
		return b
	default:
		b := make([]byte, 4*len(e.values))
		for i, v := range e.values {
			binary.LittleEndian.PutUint32(b[4*i:], v)
		}
		return b
	}
}

func repeat(v uint32, n int) []uint32 {
	out := make([]uint32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// WritePage appends p as a new page
func (w *Writer) WritePage(p Page) error {
	if w.closed {
		return errors.New("tiffio: write to closed writer")
	}
	if err := p.validate(); err != nil {
		return err
	}

	data, err := w.compress(p.Data)
	if err != nil {
		return err
	}
	start, prevSlot := len(w.buf), w.nextSlot
	stripOffset := len(w.buf)
	w.buf = append(w.buf, data...)
	if len(w.buf)%2 == 1 {
		w.buf = append(w.buf, 0)
	}

	spp := p.SamplesPerPixel
	photometric := uint32(pBlackIsZero)
	extra := spp - 1
	if spp >= 3 && p.ScalarType == models.Uint8 {
		photometric = pRGB
		extra = spp - 3
	}
	format := uint32(1)
	switch p.ScalarType {
	case models.Int8, models.Int16, models.Int32, models.Int64:
		format = 2
	case models.Float32, models.Float64:
		format = 3
	}

	entries := []ifdEntry{
		{tag: tImageWidth, typ: dtLong, count: 1, values: []uint32{uint32(p.Width)}},
		{tag: tImageLength, typ: dtLong, count: 1, values: []uint32{uint32(p.Height)}},
		{tag: tBitsPerSample, typ: dtShort, count: uint32(spp), values: repeat(uint32(8*p.ScalarType.Size()), spp)},
		{tag: tCompression, typ: dtShort, count: 1, values: []uint32{uint32(w.compression)}},
		{tag: tPhotometricInterpretation, typ: dtShort, count: 1, values: []uint32{photometric}},
		{tag: tStripOffsets, typ: dtLong, count: 1, values: []uint32{uint32(stripOffset)}},
		{tag: tSamplesPerPixel, typ: dtShort, count: 1, values: []uint32{uint32(spp)}},
		{tag: tRowsPerStrip, typ: dtLong, count: 1, values: []uint32{uint32(p.Height)}},
		{tag: tStripByteCounts, typ: dtLong, count: 1, values: []uint32{uint32(len(data))}},
		{tag: tPlanarConfiguration, typ: dtShort, count: 1, values: []uint32{planarChunky}},
		{tag: tSampleFormat, typ: dtShort, count: uint32(spp), values: repeat(format, spp)},
	}
	if extra > 0 {
		entries = append(entries, ifdEntry{tag: tExtraSamples, typ: dtShort, count: uint32(extra), values: repeat(0, extra)})
	}
	if w.pages == 0 && w.description != "" {
		ascii := append([]byte(w.description), 0)
		entries = append(entries, ifdEntry{tag: tImageDescription, typ: dtASCII, count: uint32(len(ascii)), ascii: ascii})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	w.appendIFD(entries)
	if uint64(len(w.buf)) > maxFileSize {
		// Drop the page and unlink its directory; earlier pages stay intact.
		w.buf = w.buf[:start]
		binary.LittleEndian.PutUint32(w.buf[prevSlot:], 0)
		w.nextSlot = prevSlot
		return ErrTooLarge
	}
	w.pages++
	return nil
}

// appendIFD writes the directory followed by its out-of-line values and
// links it from the previous directory.
func (w *Writer) appendIFD(entries []ifdEntry) {
	ifdOffset := len(w.buf)
	tableSize := 2 + ifdLen*len(entries) + 4
	extraOffset := ifdOffset + tableSize

	table := make([]byte, tableSize)
	binary.LittleEndian.PutUint16(table[0:2], uint16(len(entries)))
	var extras []byte
	for i, e := range entries {
		p := table[2+ifdLen*i:]
		binary.LittleEndian.PutUint16(p[0:2], e.tag)
		binary.LittleEndian.PutUint16(p[2:4], e.typ)
		binary.LittleEndian.PutUint32(p[4:8], e.count)
		payload := e.payload()
		if len(payload) <= 4 {
			copy(p[8:12], payload)
			continue
		}
		binary.LittleEndian.PutUint32(p[8:12], uint32(extraOffset+len(extras)))
		extras = append(extras, payload...)
		if len(extras)%2 == 1 {
			extras = append(extras, 0)
		}
	}

	binary.LittleEndian.PutUint32(w.buf[w.nextSlot:], uint32(ifdOffset))
	w.nextSlot = ifdOffset + 2 + ifdLen*len(entries)
	w.buf = append(w.buf, table...)
	w.buf = append(w.buf, extras...)
}

func (w *Writer) compress(data []byte) ([]byte, error) {
	switch w.compression {
	case None:
		return data, nil
	case Deflate:
		var b bytes.Buffer
		zw := zlib.NewWriter(&b)
		if _, err := zw.Write(data); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return b.Bytes(), nil
	case Zstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(data, nil), nil
	}
	return nil, UnsupportedError(fmt.Sprintf("compression value %d", w.compression))
}

// Close emits the file. At least one page must have been written.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if w.pages == 0 {
		return errors.New("tiffio: no pages written")
	}
	_, err := w.w.Write(w.buf)
	return err
}

// WriteFile writes pages to a new TIFF at path
func WriteFile(path string, pages []Page, compression Compression, description string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %q: %w", path, err)
	}
	w := NewWriter(f, compression, description)
	for i, p := range pages {
		if err := w.WritePage(p); err != nil {
			f.Close()
			return fmt.Errorf("page %d: %w", i, err)
		}
	}
	if err := w.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
