package tiffio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/image/tiff/lzw"

	"ometiffreader/internal/models"
)

// FlatScalarsName names the primary array of a decoded flat volume
const FlatScalarsName = "Tiff Scalars"

func (p PageInfo) planes() int {
	if p.Planar == planarPlanes {
		return p.SamplesPerPixel
	}
	return 1
}

func (p PageInfo) blockSize() (int, int) {
	if p.Tiled() {
		return p.TileWidth, p.TileHeight
	}
	return p.Width, p.RowsPerStrip
}

func (p PageInfo) blocksAcross() int {
	w, _ := p.blockSize()
	return (p.Width + w - 1) / w
}

func (p PageInfo) blocksDown() int {
	_, h := p.blockSize()
	return (p.Height + h - 1) / h
}

// DecodeFlatVolume decodes every page into one volume of
// Width x Height x NumPages points. All pages must share the same layout.
func (f *File) DecodeFlatVolume() (*models.ImageData, error) {
	if len(f.pages) == 0 {
		return nil, FormatError("no pages")
	}
	first := f.pages[0]
	for i, p := range f.pages[1:] {
		if !first.sameLayout(p) {
			return nil, fmt.Errorf("page %d: %w", i+1, UnsupportedError("pages with differing layout"))
		}
	}

	out := models.NewImageData([3]int{first.Width, first.Height, len(f.pages)})
	scalars := out.AllocateScalars(FlatScalarsName, first.ScalarType, first.SamplesPerPixel)
	buf := scalars.Bytes()
	planeSize := first.PlaneSize()
	for i := range f.pages {
		if err := f.decodePageInto(i, buf[i*planeSize:(i+1)*planeSize]); err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
	}
	return out, nil
}

// DecodePage decodes page i into a new buffer of interleaved little-endian samples
func (f *File) DecodePage(i int) ([]byte, error) {
	p, err := f.Page(i)
	if err != nil {
		return nil, err
	}
	dst := make([]byte, p.PlaneSize())
	if err := f.decodePageInto(i, dst); err != nil {
		return nil, err
	}
	return dst, nil
}

func (f *File) decodePageInto(page int, dst []byte) error {
	if f.ra == nil {
		return fmt.Errorf("file %q is closed", f.path)
	}
	p := f.pages[page]
	bps := p.ScalarType.Size()
	pixelSize := p.SamplesPerPixel * bps
	blockW, blockH := p.blockSize()
	across, down := p.blocksAcross(), p.blocksDown()

	// Samples stored per block pixel: all of them for chunky data, one per plane otherwise.
	blockSamples := p.SamplesPerPixel
	if p.Planar == planarPlanes {
		blockSamples = 1
	}

	for plane := 0; plane < p.planes(); plane++ {
		for by := 0; by < down; by++ {
			for bx := 0; bx < across; bx++ {
				idx := plane*across*down + by*across + bx
				x0, y0 := bx*blockW, by*blockH

				// Strips end at the image edge, tiles are always padded to full size.
				rows := blockH
				if !p.Tiled() && y0+rows > p.Height {
					rows = p.Height - y0
				}
				rowBytes := blockW * blockSamples * bps

				raw, err := f.readBlock(p, idx)
				if err != nil {
					return err
				}
				if len(raw) < rows*rowBytes {
					return FormatError(fmt.Sprintf("block %d holds %d bytes, want %d", idx, len(raw), rows*rowBytes))
				}
				raw = raw[:rows*rowBytes]

				if f.order == binary.BigEndian && bps > 1 {
					swapBytes(raw, bps)
				}
				if p.Predictor == prHorizontal {
					if err := undoHorizontal(raw, rowBytes, blockSamples, p.ScalarType); err != nil {
						return err
					}
				}

				cols := blockW
				if x0+cols > p.Width {
					cols = p.Width - x0
				}
				for r := 0; r < rows && y0+r < p.Height; r++ {
					src := raw[r*rowBytes:]
					dstOff := ((y0+r)*p.Width + x0) * pixelSize
					if blockSamples == p.SamplesPerPixel {
						copy(dst[dstOff:dstOff+cols*pixelSize], src[:cols*pixelSize])
						continue
					}
					for x := 0; x < cols; x++ {
						d := dstOff + x*pixelSize + plane*bps
						copy(dst[d:d+bps], src[x*bps:(x+1)*bps])
					}
				}
			}
		}
	}
	return nil
}

// readBlock reads and decompresses strip or tile idx of page p
func (f *File) readBlock(p PageInfo, idx int) ([]byte, error) {
	offset, n := int64(p.Offsets[idx]), int64(p.ByteCounts[idx])
	if offset < 0 || n < 0 || offset+n > int64(f.ra.Len()) {
		return nil, FormatError(fmt.Sprintf("block %d lies outside the file", idx))
	}
	section := io.NewSectionReader(f.ra, offset, n)

	switch p.Compression {
	// Some writers omit Compression for uncompressed data.
	case cNone, 0:
		buf := make([]byte, n)
		if _, err := io.ReadFull(section, buf); err != nil {
			return nil, err
		}
		return buf, nil
	case cLZW:
		r := lzw.NewReader(section, lzw.MSB, 8)
		defer r.Close()
		return io.ReadAll(r)
	case cDeflate, cDeflateOld:
		r, err := zlib.NewReader(section)
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case cPackBits:
		return unpackBits(section)
	case cZstd:
		d, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer d.Close()
		buf := make([]byte, n)
		if _, err := io.ReadFull(section, buf); err != nil {
			return nil, err
		}
		return d.DecodeAll(buf, nil)
	}
	return nil, UnsupportedError(fmt.Sprintf("compression value %d", p.Compression))
}

// unpackBits decodes the PackBits-compressed data in src and returns the
// uncompressed data.
//
// The PackBits compression format is described in section 9 (p. 42)
// of TIFF 6.0.
func unpackBits(r io.Reader) ([]byte, error) {
	buf := make([]byte, 128)
	var dst bytes.Buffer
	br := newByteReader(r)
	for {
		b, err := br.ReadByte()
		if err != nil {
			if err == io.EOF {
				return dst.Bytes(), nil
			}
			return nil, err
		}
		code := int(int8(b))
		switch {
		case code >= 0:
			n, err := io.ReadFull(br, buf[:code+1])
			if err != nil {
				return nil, err
			}
			dst.Write(buf[:n])
		case code == -128:
			// No-op.
		default:
			if b, err = br.ReadByte(); err != nil {
				return nil, err
			}
			for j := 0; j < 1-code; j++ {
				buf[j] = b
			}
			dst.Write(buf[:1-code])
		}
	}
}

type byteReader struct {
	io.Reader
	one [1]byte
}

func newByteReader(r io.Reader) *byteReader { return &byteReader{Reader: r} }

func (b *byteReader) ReadByte() (byte, error) {
	if _, err := io.ReadFull(b.Reader, b.one[:]); err != nil {
		return 0, err
	}
	return b.one[0], nil
}

// swapBytes reverses every size-byte group of b in place
func swapBytes(b []byte, size int) {
	for off := 0; off+size <= len(b); off += size {
		for i, j := off, off+size-1; i < j; i, j = i+1, j-1 {
			b[i], b[j] = b[j], b[i]
		}
	}
}

// undoHorizontal reverses horizontal differencing on little-endian integer
// samples, row by row.
func undoHorizontal(b []byte, rowBytes, samplesPerPixel int, st models.ScalarType) error {
	if st == models.Float32 || st == models.Float64 {
		return UnsupportedError("horizontal predictor on floating point samples")
	}
	bps := st.Size()
	stride := samplesPerPixel * bps
	for row := 0; row+rowBytes <= len(b); row += rowBytes {
		line := b[row : row+rowBytes]
		for x := stride; x+bps <= len(line); x += bps {
			prev := x - stride
			switch bps {
			case 1:
				line[x] += line[prev]
			case 2:
				v := binary.LittleEndian.Uint16(line[x:]) + binary.LittleEndian.Uint16(line[prev:])
				binary.LittleEndian.PutUint16(line[x:], v)
			case 4:
				v := binary.LittleEndian.Uint32(line[x:]) + binary.LittleEndian.Uint32(line[prev:])
				binary.LittleEndian.PutUint32(line[x:], v)
			case 8:
				v := binary.LittleEndian.Uint64(line[x:]) + binary.LittleEndian.Uint64(line[prev:])
				binary.LittleEndian.PutUint64(line[x:], v)
			}
		}
	}
	return nil
}
