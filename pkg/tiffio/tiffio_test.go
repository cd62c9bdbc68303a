package tiffio

import (
	"bytes"
	"compress/lzw"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ometiffreader/internal/models"
)

// rampPage builds a uint16 page whose samples count up from start
func rampPage(width, height int, start uint16) Page {
	data := make([]byte, width*height*2)
	for i := 0; i < width*height; i++ {
		binary.LittleEndian.PutUint16(data[2*i:], start+uint16(i))
	}
	return Page{Width: width, Height: height, SamplesPerPixel: 1, ScalarType: models.Uint16, Data: data}
}

func TestWriteAndDecodeFlatVolume(t *testing.T) {
	for _, tc := range []struct {
		name        string
		compression Compression
	}{
		{"none", None},
		{"deflate", Deflate},
		{"zstd", Zstd},
	} {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "stack.tif")
			pages := []Page{rampPage(5, 3, 0), rampPage(5, 3, 100), rampPage(5, 3, 200)}
			require.NoError(t, WriteFile(path, pages, tc.compression, "hello"))

			f, err := Open(path)
			require.NoError(t, err)
			defer f.Close()

			assert.Equal(t, 3, f.NumPages())
			assert.Equal(t, "hello", f.ImageDescription())

			info, err := f.Page(1)
			require.NoError(t, err)
			assert.Equal(t, 5, info.Width)
			assert.Equal(t, 3, info.Height)
			assert.Equal(t, models.Uint16, info.ScalarType)
			assert.Equal(t, int(tc.compression), info.Compression)

			flat, err := f.DecodeFlatVolume()
			require.NoError(t, err)
			assert.Equal(t, [3]int{5, 3, 3}, flat.Dimensions())

			scalars := flat.PointData.Scalars()
			require.NotNil(t, scalars)
			assert.Equal(t, FlatScalarsName, scalars.Name())
			var want []byte
			for _, p := range pages {
				want = append(want, p.Data...)
			}
			assert.Equal(t, want, scalars.Bytes())
		})
	}
}

func TestDecodePageMultiComponent(t *testing.T) {
	data := make([]byte, 2*2*3)
	for i := range data {
		data[i] = byte(i * 10)
	}
	page := Page{Width: 2, Height: 2, SamplesPerPixel: 3, ScalarType: models.Uint8, Data: data}
	path := filepath.Join(t.TempDir(), "rgb.tif")
	require.NoError(t, WriteFile(path, []Page{page}, None, ""))

	f, err := Open(path)
	require.NoError(t, err)
	defer f.Close()

	info, err := f.Page(0)
	require.NoError(t, err)
	assert.Equal(t, 3, info.SamplesPerPixel)
	assert.Equal(t, pRGB, info.Photometric)

	got, err := f.DecodePage(0)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestDecodeTiledPage(t *testing.T) {
	// A 3x3 uint8 image stored as four padded 2x2 tiles.
	const width, height = 3, 3
	var image []byte
	for i := 0; i < width*height; i++ {
		image = append(image, byte(i+1))
	}

	w := NewWriter(nil, None, "")
	var offsets, counts []uint32
	for ty := 0; ty < 2; ty++ {
		for tx := 0; tx < 2; tx++ {
			tile := make([]byte, 4)
			for y := 0; y < 2; y++ {
				for x := 0; x < 2; x++ {
					sx, sy := tx*2+x, ty*2+y
					if sx < width && sy < height {
						tile[y*2+x] = image[sy*width+sx]
					}
				}
			}
			offsets = append(offsets, uint32(len(w.buf)))
			counts = append(counts, uint32(len(tile)))
			w.buf = append(w.buf, tile...)
		}
	}
	w.appendIFD([]ifdEntry{
		{tag: tImageWidth, typ: dtLong, count: 1, values: []uint32{width}},
		{tag: tImageLength, typ: dtLong, count: 1, values: []uint32{height}},
		{tag: tBitsPerSample, typ: dtShort, count: 1, values: []uint32{8}},
		{tag: tCompression, typ: dtShort, count: 1, values: []uint32{cNone}},
		{tag: tPhotometricInterpretation, typ: dtShort, count: 1, values: []uint32{pBlackIsZero}},
		{tag: tSamplesPerPixel, typ: dtShort, count: 1, values: []uint32{1}},
		{tag: tTileWidth, typ: dtLong, count: 1, values: []uint32{2}},
		{tag: tTileLength, typ: dtLong, count: 1, values: []uint32{2}},
		{tag: tTileOffsets, typ: dtLong, count: 4, values: offsets},
		{tag: tTileByteCounts, typ: dtLong, count: 4, values: counts},
	})

	path := filepath.Join(t.TempDir(), "tiled.tif")
	require.NoError(t, os.WriteFile(path, w.buf, 0644))

	f, err := Open(path)
	require.NoError(t, err)
	defer f.Close()

	info, err := f.Page(0)
	require.NoError(t, err)
	assert.True(t, info.Tiled())

	got, err := f.DecodePage(0)
	require.NoError(t, err)
	assert.Equal(t, image, got)
}

// lzwStrip compresses b with the MSB-first, 8-bit LZW of TIFF. The inputs
// used here stay below 254 codes, where the code width never grows and the
// TIFF "early change" variant produces the same stream.
func lzwStrip(t *testing.T, b []byte) []byte {
	var buf bytes.Buffer
	w := lzw.NewWriter(&buf, lzw.MSB, 8)
	_, err := w.Write(b)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// differenceRows applies the horizontal predictor to little-endian uint16 rows
func differenceRows(b []byte, rowBytes int) []byte {
	out := append([]byte(nil), b...)
	for row := 0; row < len(out); row += rowBytes {
		for x := row + rowBytes - 2; x > row; x -= 2 {
			v := binary.LittleEndian.Uint16(out[x:]) - binary.LittleEndian.Uint16(out[x-2:])
			binary.LittleEndian.PutUint16(out[x:], v)
		}
	}
	return out
}

func writeIFDFile(t *testing.T, w *Writer, entries []ifdEntry) string {
	w.appendIFD(entries)
	path := filepath.Join(t.TempDir(), "handmade.tif")
	require.NoError(t, os.WriteFile(path, w.buf, 0644))
	return path
}

func TestDecodeLZWWithPredictor(t *testing.T) {
	// 4x3 uint16 image in two strips of two rows, the second one short.
	const width, height, rowsPerStrip = 4, 3, 2
	image := make([]byte, width*height*2)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			binary.LittleEndian.PutUint16(image[2*(y*width+x):], uint16(1000*y+7*x*x+65000*(x%2)))
		}
	}

	w := NewWriter(nil, None, "")
	var offsets, counts []uint32
	rowBytes := width * 2
	for y0 := 0; y0 < height; y0 += rowsPerStrip {
		y1 := y0 + rowsPerStrip
		if y1 > height {
			y1 = height
		}
		strip := lzwStrip(t, differenceRows(image[y0*rowBytes:y1*rowBytes], rowBytes))
		offsets = append(offsets, uint32(len(w.buf)))
		counts = append(counts, uint32(len(strip)))
		w.buf = append(w.buf, strip...)
		if len(w.buf)%2 == 1 {
			w.buf = append(w.buf, 0)
		}
	}
	path := writeIFDFile(t, w, []ifdEntry{
		{tag: tImageWidth, typ: dtLong, count: 1, values: []uint32{width}},
		{tag: tImageLength, typ: dtLong, count: 1, values: []uint32{height}},
		{tag: tBitsPerSample, typ: dtShort, count: 1, values: []uint32{16}},
		{tag: tCompression, typ: dtShort, count: 1, values: []uint32{cLZW}},
		{tag: tPhotometricInterpretation, typ: dtShort, count: 1, values: []uint32{pBlackIsZero}},
		{tag: tStripOffsets, typ: dtLong, count: 2, values: offsets},
		{tag: tSamplesPerPixel, typ: dtShort, count: 1, values: []uint32{1}},
		{tag: tRowsPerStrip, typ: dtLong, count: 1, values: []uint32{rowsPerStrip}},
		{tag: tStripByteCounts, typ: dtLong, count: 2, values: counts},
		{tag: tPredictor, typ: dtShort, count: 1, values: []uint32{prHorizontal}},
	})

	f, err := Open(path)
	require.NoError(t, err)
	defer f.Close()

	info, err := f.Page(0)
	require.NoError(t, err)
	assert.Equal(t, cLZW, info.Compression)
	assert.Equal(t, prHorizontal, info.Predictor)

	got, err := f.DecodePage(0)
	require.NoError(t, err)
	assert.Equal(t, image, got)
}

func TestDecodePlanarPackBits(t *testing.T) {
	// 3x2 uint8 image with two samples per pixel stored as two planes.
	// Plane 0 is a literal run, plane 1 a single repeated byte.
	const width, height = 3, 2
	plane0 := []byte{10, 20, 30, 40, 50, 60}
	strips := [][]byte{
		append([]byte{byte(len(plane0) - 1)}, plane0...),
		{0xFB, 0x7F}, // 1-(-5) = 6 copies of 0x7F
	}

	w := NewWriter(nil, None, "")
	var offsets, counts []uint32
	for _, strip := range strips {
		offsets = append(offsets, uint32(len(w.buf)))
		counts = append(counts, uint32(len(strip)))
		w.buf = append(w.buf, strip...)
		if len(w.buf)%2 == 1 {
			w.buf = append(w.buf, 0)
		}
	}
	path := writeIFDFile(t, w, []ifdEntry{
		{tag: tImageWidth, typ: dtLong, count: 1, values: []uint32{width}},
		{tag: tImageLength, typ: dtLong, count: 1, values: []uint32{height}},
		{tag: tBitsPerSample, typ: dtShort, count: 2, values: []uint32{8, 8}},
		{tag: tCompression, typ: dtShort, count: 1, values: []uint32{cPackBits}},
		{tag: tPhotometricInterpretation, typ: dtShort, count: 1, values: []uint32{pBlackIsZero}},
		{tag: tStripOffsets, typ: dtLong, count: 2, values: offsets},
		{tag: tSamplesPerPixel, typ: dtShort, count: 1, values: []uint32{2}},
		{tag: tRowsPerStrip, typ: dtLong, count: 1, values: []uint32{height}},
		{tag: tStripByteCounts, typ: dtLong, count: 2, values: counts},
		{tag: tPlanarConfiguration, typ: dtShort, count: 1, values: []uint32{planarPlanes}},
		{tag: tExtraSamples, typ: dtShort, count: 1, values: []uint32{0}},
	})

	f, err := Open(path)
	require.NoError(t, err)
	defer f.Close()

	info, err := f.Page(0)
	require.NoError(t, err)
	assert.Equal(t, planarPlanes, info.Planar)
	assert.Equal(t, 2, info.SamplesPerPixel)

	got, err := f.DecodePage(0)
	require.NoError(t, err)
	assert.Equal(t, []byte{10, 0x7F, 20, 0x7F, 30, 0x7F, 40, 0x7F, 50, 0x7F, 60, 0x7F}, got)

	flat, err := f.DecodeFlatVolume()
	require.NoError(t, err)
	assert.Equal(t, 2, flat.PointData.Scalars().NumberOfComponents())
	assert.Equal(t, got, flat.PointData.Scalars().Bytes())
}

func TestDecodeBigEndian(t *testing.T) {
	// Hand-assembled big-endian file: one 2x1 uint16 page, values 0x0102 and 0x0304.
	var b bytes.Buffer
	be := binary.BigEndian
	b.WriteString(beHeader)
	binary.Write(&b, be, uint32(12))        // first IFD
	b.Write([]byte{0x01, 0x02, 0x03, 0x04}) // strip at offset 8
	entries := []struct {
		tag, typ uint16
		value    uint32
	}{
		{tImageWidth, dtShort, 2},
		{tImageLength, dtShort, 1},
		{tBitsPerSample, dtShort, 16},
		{tCompression, dtShort, cNone},
		{tPhotometricInterpretation, dtShort, pBlackIsZero},
		{tStripOffsets, dtLong, 8},
		{tRowsPerStrip, dtShort, 1},
		{tStripByteCounts, dtLong, 4},
	}
	binary.Write(&b, be, uint16(len(entries)))
	for _, e := range entries {
		binary.Write(&b, be, e.tag)
		binary.Write(&b, be, e.typ)
		binary.Write(&b, be, uint32(1))
		if e.typ == dtShort {
			binary.Write(&b, be, uint16(e.value))
			binary.Write(&b, be, uint16(0))
		} else {
			binary.Write(&b, be, e.value)
		}
	}
	binary.Write(&b, be, uint32(0))

	path := filepath.Join(t.TempDir(), "be.tif")
	require.NoError(t, os.WriteFile(path, b.Bytes(), 0644))

	f, err := Open(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, binary.ByteOrder(binary.BigEndian), f.ByteOrder())

	got, err := f.DecodePage(0)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0x01, 0x04, 0x03}, got)
}

func TestUnpackBits(t *testing.T) {
	// Literal run of 3 bytes, then 0xAA repeated 4 times, then a no-op.
	src := []byte{0x02, 1, 2, 3, 0xFD, 0xAA, 0x80}
	got, err := unpackBits(bytes.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 0xAA, 0xAA, 0xAA, 0xAA}, got)
}

func TestUndoHorizontal(t *testing.T) {
	row := make([]byte, 8)
	for i, v := range []uint16{10, 1, 1, 65535} {
		binary.LittleEndian.PutUint16(row[2*i:], v)
	}
	require.NoError(t, undoHorizontal(row, len(row), 1, models.Uint16))

	var got []uint16
	for i := 0; i < 4; i++ {
		got = append(got, binary.LittleEndian.Uint16(row[2*i:]))
	}
	assert.Equal(t, []uint16{10, 11, 12, 11}, got)

	assert.Error(t, undoHorizontal(make([]byte, 8), 8, 1, models.Float32))
}

func TestWriterRejectsBadPages(t *testing.T) {
	w := NewWriter(&bytes.Buffer{}, None, "")
	assert.Error(t, w.WritePage(Page{Width: 2, Height: 2, SamplesPerPixel: 1, ScalarType: models.Uint8, Data: []byte{1}}))
	assert.Error(t, w.Close())
}

func TestWriterStopsAtOffsetLimit(t *testing.T) {
	defer func(limit uint64) { maxFileSize = limit }(maxFileSize)
	maxFileSize = 400

	var b bytes.Buffer
	w := NewWriter(&b, None, "")
	small := rampPage(4, 4, 0)
	require.NoError(t, w.WritePage(small))
	assert.ErrorIs(t, w.WritePage(rampPage(16, 16, 0)), ErrTooLarge)
	require.NoError(t, w.Close())

	path := filepath.Join(t.TempDir(), "limited.tif")
	require.NoError(t, os.WriteFile(path, b.Bytes(), 0644))
	f, err := Open(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, 1, f.NumPages())
	got, err := f.DecodePage(0)
	require.NoError(t, err)
	assert.Equal(t, small.Data, got)
}

func TestOpenRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.tif")
	require.NoError(t, os.WriteFile(path, []byte("not a tiff at all"), 0644))
	_, err := Open(path)
	assert.Error(t, err)
}
