package ome

import (
	"encoding/xml"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Namespace is the OME schema namespace written by Marshal
const Namespace = "http://www.openmicroscopy.org/Schemas/OME/2016-06"

// Marshal renders g as an OME-XML document. Plane p of the acquisition, in
// DimensionOrder, is declared to live in TIFF page p.
func Marshal(g Geometry) (string, error) {
	if g.SizeX <= 0 || g.SizeY <= 0 || g.SizeZ <= 0 || g.SizeC <= 0 || g.SizeT <= 0 {
		return "", errors.New("ome: geometry sizes must be positive")
	}
	if g.DimensionOrder == "" {
		g.DimensionOrder = DefaultDimensionOrder
	}
	if !ValidDimensionOrder(g.DimensionOrder) {
		return "", fmt.Errorf("ome: unknown DimensionOrder %q", g.DimensionOrder)
	}

	px := &pixels{
		ID:                "Pixels:0",
		DimensionOrder:    g.DimensionOrder,
		Type:              g.PixelType,
		SizeX:             &g.SizeX,
		SizeY:             &g.SizeY,
		SizeZ:             &g.SizeZ,
		SizeC:             &g.SizeC,
		SizeT:             &g.SizeT,
		PhysicalSizeX:     &g.PhysicalSize[0],
		PhysicalSizeY:     &g.PhysicalSize[1],
		PhysicalSizeZ:     &g.PhysicalSize[2],
		PhysicalSizeXUnit: g.PhysicalSizeUnit[0],
		PhysicalSizeYUnit: g.PhysicalSizeUnit[1],
		PhysicalSizeZUnit: g.PhysicalSizeUnit[2],
		TimeIncrement:     &g.TimeIncrement,
	}

	for c := 0; c < g.SizeC; c++ {
		ch := channel{ID: fmt.Sprintf("Channel:0:%d", c)}
		spp := 1
		if c < len(g.Channels) {
			ch.Name = g.Channels[c].Name
			if g.Channels[c].SamplesPerPixel > 0 {
				spp = g.Channels[c].SamplesPerPixel
			}
		}
		ch.SamplesPerPixel = &spp
		px.Channels = append(px.Channels, ch)
	}

	for p := 0; p < g.NumberOfPlanes(); p++ {
		k := g.PlaneKey(p)
		ifd, c, t, z, count := p, k.C, k.T, k.Z, 1
		px.TiffData = append(px.TiffData, tiffData{IFD: &ifd, FirstC: &c, FirstT: &t, FirstZ: &z, PlaneCount: &count})
	}

	doc := document{
		Xmlns:  Namespace,
		UUID:   "urn:uuid:" + uuid.NewString(),
		Images: []image{{ID: "Image:0", Pixels: px}},
	}
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("ome: marshal: %w", err)
	}
	return xml.Header + string(out), nil
}
