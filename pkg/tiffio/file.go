// Package tiffio decodes multi-page TIFF files into a single flat volume and
// writes multi-page TIFF files.
//
// The decoder stacks every page of a file along the Z axis of one image
// volume. Pixel samples are normalized to little-endian order and keep the
// scalar type and samples-per-pixel of the file.
package tiffio

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	gtiff "github.com/google/tiff"
	_ "github.com/google/tiff/bigtiff"
	"golang.org/x/exp/mmap"

	"ometiffreader/internal/models"
)

// PageInfo describes the layout of one TIFF page
type PageInfo struct {
	Width           int
	Height          int
	SamplesPerPixel int
	BitsPerSample   int
	SampleFormat    int
	Compression     int
	Predictor       int
	Planar          int
	Photometric     int

	// RowsPerStrip is set for striped pages, TileWidth and TileHeight for tiled pages
	RowsPerStrip int
	TileWidth    int
	TileHeight   int

	// Offsets and ByteCounts locate the strips or tiles in the file
	Offsets    []uint64
	ByteCounts []uint64

	ScalarType models.ScalarType
}

// Tiled reports whether the page is organized in tiles rather than strips
func (p PageInfo) Tiled() bool {
	return p.TileWidth > 0 && p.TileHeight > 0
}

// PlaneSize is the number of bytes one decoded page occupies
func (p PageInfo) PlaneSize() int {
	return p.Width * p.Height * p.SamplesPerPixel * p.ScalarType.Size()
}

// sameLayout reports whether two pages decode to interchangeable planes
func (p PageInfo) sameLayout(o PageInfo) bool {
	return p.Width == o.Width && p.Height == o.Height &&
		p.SamplesPerPixel == o.SamplesPerPixel && p.ScalarType == o.ScalarType
}

// File is an open multi-page TIFF
type File struct {
	path        string
	ra          *mmap.ReaderAt
	order       binary.ByteOrder
	pages       []PageInfo
	description string
}

// Open memory-maps the TIFF at path and reads every page directory.
// Pixel data is only decoded by DecodePage and DecodeFlatVolume.
func Open(path string) (*File, error) {
	ra, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", path, err)
	}
	f := &File{path: path, ra: ra}
	if err := f.readDirectories(); err != nil {
		ra.Close()
		return nil, fmt.Errorf("read %q: %w", path, err)
	}
	return f, nil
}

func (f *File) readDirectories() error {
	var header [4]byte
	if _, err := f.ra.ReadAt(header[:], 0); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return err
	}
	switch string(header[0:2]) {
	case leHeader[0:2]:
		f.order = binary.LittleEndian
	case beHeader[0:2]:
		f.order = binary.BigEndian
	default:
		return FormatError("malformed header")
	}

	tif, err := gtiff.Parse(io.NewSectionReader(f.ra, 0, int64(f.ra.Len())), nil, nil)
	if err != nil {
		return err
	}
	ifds := tif.IFDs()
	if len(ifds) == 0 {
		return FormatError("no image file directories")
	}
	for i, ifd := range ifds {
		page, err := parsePage(ifd)
		if err != nil {
			return fmt.Errorf("page %d: %w", i, err)
		}
		f.pages = append(f.pages, page)
	}
	if desc, ok := fieldString(ifds[0], tImageDescription); ok {
		f.description = desc
	}
	return nil
}

// parsePage extracts the layout tags of one IFD
func parsePage(ifd gtiff.IFD) (PageInfo, error) {
	p := PageInfo{
		SamplesPerPixel: firstVal(ifd, tSamplesPerPixel, 1),
		BitsPerSample:   firstVal(ifd, tBitsPerSample, 1),
		SampleFormat:    firstVal(ifd, tSampleFormat, 1),
		Compression:     firstVal(ifd, tCompression, cNone),
		Predictor:       firstVal(ifd, tPredictor, prNone),
		Planar:          firstVal(ifd, tPlanarConfiguration, planarChunky),
		Photometric:     firstVal(ifd, tPhotometricInterpretation, pBlackIsZero),
		Width:           firstVal(ifd, tImageWidth, 0),
		Height:          firstVal(ifd, tImageLength, 0),
	}
	if p.Width <= 0 || p.Height <= 0 {
		return p, FormatError("missing image dimensions")
	}
	if bits, ok := fieldUints(ifd, tBitsPerSample); ok {
		for _, b := range bits {
			if int(b) != p.BitsPerSample {
				return p, UnsupportedError("mixed BitsPerSample")
			}
		}
	}

	st, err := models.ScalarTypeFromSample(p.BitsPerSample, p.SampleFormat)
	if err != nil {
		return p, UnsupportedError(err.Error())
	}
	p.ScalarType = st

	if ifd.HasField(tTileWidth) {
		p.TileWidth = firstVal(ifd, tTileWidth, 0)
		p.TileHeight = firstVal(ifd, tTileLength, 0)
		p.Offsets, _ = fieldUints(ifd, tTileOffsets)
		p.ByteCounts, _ = fieldUints(ifd, tTileByteCounts)
		if p.TileWidth <= 0 || p.TileHeight <= 0 {
			return p, FormatError("bad tile size")
		}
	} else {
		p.RowsPerStrip = firstVal(ifd, tRowsPerStrip, p.Height)
		if p.RowsPerStrip <= 0 || p.RowsPerStrip > p.Height {
			p.RowsPerStrip = p.Height
		}
		p.Offsets, _ = fieldUints(ifd, tStripOffsets)
		p.ByteCounts, _ = fieldUints(ifd, tStripByteCounts)
	}
	if len(p.Offsets) == 0 || len(p.Offsets) != len(p.ByteCounts) {
		return p, FormatError("inconsistent strip or tile offsets")
	}
	if len(p.Offsets) < p.blocksAcross()*p.blocksDown()*p.planes() {
		return p, FormatError("too few strips or tiles")
	}
	return p, nil
}

// fieldUints decodes an integer valued field of any width
func fieldUints(ifd gtiff.IFD, tag uint16) ([]uint64, bool) {
	if !ifd.HasField(tag) {
		return nil, false
	}
	field := ifd.GetField(tag)
	value := field.Value()
	raw := value.Bytes()
	order := value.Order()
	size := int(field.Type().Size())
	count := int(field.Count())
	if size == 0 || len(raw) < size*count {
		return nil, false
	}

	u := make([]uint64, count)
	for i := range u {
		b := raw[i*size : (i+1)*size]
		switch size {
		case 1:
			u[i] = uint64(b[0])
		case 2:
			u[i] = uint64(order.Uint16(b))
		case 4:
			u[i] = uint64(order.Uint32(b))
		case 8:
			u[i] = order.Uint64(b)
		default:
			return nil, false
		}
	}
	return u, true
}

// firstVal returns the first value of the field with the given tag,
// or def if the tag does not exist.
func firstVal(ifd gtiff.IFD, tag uint16, def int) int {
	u, ok := fieldUints(ifd, tag)
	if !ok || len(u) == 0 {
		return def
	}
	return int(u[0])
}

func fieldString(ifd gtiff.IFD, tag uint16) (string, bool) {
	if !ifd.HasField(tag) {
		return "", false
	}
	return strings.TrimRight(string(ifd.GetField(tag).Value().Bytes()), "\x00"), true
}

// Path returns the file name the TIFF was opened from
func (f *File) Path() string { return f.path }

// NumPages returns the number of pages (IFDs) in the file
func (f *File) NumPages() int { return len(f.pages) }

// Page returns the layout of page i
func (f *File) Page(i int) (PageInfo, error) {
	if i < 0 || i >= len(f.pages) {
		return PageInfo{}, fmt.Errorf("page %d out of range [0,%d)", i, len(f.pages))
	}
	return f.pages[i], nil
}

// ImageDescription returns the ImageDescription of the first page, which is
// where OME-TIFF stores its XML document.
func (f *File) ImageDescription() string { return f.description }

// ByteOrder returns the byte order of the file
func (f *File) ByteOrder() binary.ByteOrder { return f.order }

// Close unmaps the file
func (f *File) Close() error {
	if f.ra == nil {
		return nil
	}
	err := f.ra.Close()
	f.ra = nil
	return err
}
