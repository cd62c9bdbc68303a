package tiffio

// A TIFF file is a chain of Image File Directories (IFDs), one per page.
// Each IFD is a sorted table of 12 byte entries (20 bytes in BigTIFF)
// holding a tag, a data type, a count and either the value itself or the
// offset of the value when it does not fit in the entry.

const (
	leHeader = "II\x2A\x00" // Header for little-endian files.
	beHeader = "MM\x00\x2A" // Header for big-endian files.

	ifdLen = 12 // Length of an IFD entry in bytes.
)

// Data types (p. 14-16 of TIFF 6.0).
const (
	dtByte  = 1
	dtASCII = 2
	dtShort = 3
	dtLong  = 4
)

// Tags (see p. 28-41 of TIFF 6.0).
const (
	tImageWidth                = 256
	tImageLength               = 257
	tBitsPerSample             = 258
	tCompression               = 259
	tPhotometricInterpretation = 262
	tImageDescription          = 270
	tStripOffsets              = 273
	tSamplesPerPixel           = 277
	tRowsPerStrip              = 278
	tStripByteCounts           = 279
	tPlanarConfiguration       = 284
	tPredictor                 = 317
	tTileWidth                 = 322
	tTileLength                = 323
	tTileOffsets               = 324
	tTileByteCounts            = 325
	tExtraSamples              = 338
	tSampleFormat              = 339
)

// Compression types (defined in various places in TIFF 6.0 and its supplements).
const (
	cNone       = 1
	cLZW        = 5
	cDeflate    = 8
	cPackBits   = 32773
	cDeflateOld = 32946
	cZstd       = 50000
)

// Photometric interpretation values (see p. 37 of TIFF 6.0).
const (
	pWhiteIsZero = 0
	pBlackIsZero = 1
	pRGB         = 2
)

// Values for the tPredictor tag (page 64-65 of TIFF 6.0).
const (
	prNone       = 1
	prHorizontal = 2
)

// Values for the tPlanarConfiguration tag.
const (
	planarChunky = 1
	planarPlanes = 2
)
