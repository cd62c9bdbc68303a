package ome

import (
	"fmt"

	"ometiffreader/internal/models"
	"ometiffreader/pkg/tiffio"
)

// WriteFile stores a flat volume as an OME-TIFF at path.
//
// flat must hold g.NumberOfPlanes() XY planes of g.SizeX x g.SizeY points
// ordered by g.DimensionOrder; plane p becomes TIFF page p. The pixel type
// and samples per pixel recorded in the document are taken from flat.
func WriteFile(path string, g Geometry, flat *models.ImageData, compression tiffio.Compression) error {
	scalars := flat.PointData.Scalars()
	if scalars == nil {
		return fmt.Errorf("ome: volume has no scalars")
	}
	dims := flat.Dimensions()
	if dims[0] != g.SizeX || dims[1] != g.SizeY || dims[2] != g.NumberOfPlanes() {
		return fmt.Errorf("ome: volume is %dx%dx%d, geometry needs %dx%dx%d",
			dims[0], dims[1], dims[2], g.SizeX, g.SizeY, g.NumberOfPlanes())
	}

	// OME has no 64-bit integer pixel types
	pixelType := scalars.ScalarType().String()
	if models.ScalarTypeFromPixelType(pixelType) == models.Unknown {
		return fmt.Errorf("ome: %s samples have no OME pixel type", pixelType)
	}
	g.PixelType = pixelType
	if len(g.Channels) == 0 {
		for c := 0; c < g.SizeC; c++ {
			g.Channels = append(g.Channels, Channel{SamplesPerPixel: scalars.NumberOfComponents()})
		}
	}
	desc, err := Marshal(g)
	if err != nil {
		return err
	}

	planeSize := g.SizeX * g.SizeY * scalars.TupleSize()
	data := scalars.Bytes()
	pages := make([]tiffio.Page, g.NumberOfPlanes())
	for p := range pages {
		pages[p] = tiffio.Page{
			Width:           g.SizeX,
			Height:          g.SizeY,
			SamplesPerPixel: scalars.NumberOfComponents(),
			ScalarType:      scalars.ScalarType(),
			Data:            data[p*planeSize : (p+1)*planeSize],
		}
	}
	return tiffio.WriteFile(path, pages, compression, desc)
}
