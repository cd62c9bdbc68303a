package ome

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
)

// document mirrors the subset of the OME schema the reader relies on
type document struct {
	XMLName xml.Name `xml:"OME"`
	Xmlns   string   `xml:"xmlns,attr,omitempty"`
	UUID    string   `xml:"UUID,attr,omitempty"`
	Images  []image  `xml:"Image"`
}

type image struct {
	ID     string  `xml:"ID,attr"`
	Name   string  `xml:"Name,attr,omitempty"`
	Pixels *pixels `xml:"Pixels"`
}

type pixels struct {
	ID                string   `xml:"ID,attr"`
	DimensionOrder    string   `xml:"DimensionOrder,attr"`
	Type              string   `xml:"Type,attr,omitempty"`
	SizeX             *int     `xml:"SizeX,attr,omitempty"`
	SizeY             *int     `xml:"SizeY,attr,omitempty"`
	SizeZ             *int     `xml:"SizeZ,attr,omitempty"`
	SizeC             *int     `xml:"SizeC,attr,omitempty"`
	SizeT             *int     `xml:"SizeT,attr,omitempty"`
	PhysicalSizeX     *float64 `xml:"PhysicalSizeX,attr,omitempty"`
	PhysicalSizeY     *float64 `xml:"PhysicalSizeY,attr,omitempty"`
	PhysicalSizeZ     *float64 `xml:"PhysicalSizeZ,attr,omitempty"`
	PhysicalSizeXUnit string   `xml:"PhysicalSizeXUnit,attr,omitempty"`
	PhysicalSizeYUnit string   `xml:"PhysicalSizeYUnit,attr,omitempty"`
	PhysicalSizeZUnit string   `xml:"PhysicalSizeZUnit,attr,omitempty"`
	TimeIncrement     *float64 `xml:"TimeIncrement,attr,omitempty"`

	Channels []channel  `xml:"Channel"`
	TiffData []tiffData `xml:"TiffData"`
}

type channel struct {
	ID              string `xml:"ID,attr"`
	Name            string `xml:"Name,attr,omitempty"`
	SamplesPerPixel *int   `xml:"SamplesPerPixel,attr,omitempty"`
}

type tiffData struct {
	IFD        *int `xml:"IFD,attr,omitempty"`
	FirstC     *int `xml:"FirstC,attr,omitempty"`
	FirstT     *int `xml:"FirstT,attr,omitempty"`
	FirstZ     *int `xml:"FirstZ,attr,omitempty"`
	PlaneCount *int `xml:"PlaneCount,attr,omitempty"`
}

// Parse reads an OME-XML document and builds the acquisition geometry and
// IFD map. It never fails: a document that is missing, malformed or
// inconsistent yields Metadata with Valid set to false.
func Parse(text string) *Metadata {
	return ParseWithPageCount(text, math.MaxInt)
}

// ParseWithPageCount is Parse for a document embedded in a file of numPages
// pages. A geometry describing more planes than the file holds is rejected
// before any per-plane state is built.
func ParseWithPageCount(text string, numPages int) *Metadata {
	md := &Metadata{IFDs: IFDMap{}}
	if err := md.parse(text, numPages); err != nil {
		md.Valid = false
		md.Err = err
		return md
	}
	md.Valid = true
	return md
}

func (md *Metadata) parse(text string, numPages int) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("no OME-XML document")
	}

	var doc document
	decoder := xml.NewDecoder(strings.NewReader(text))
	decoder.CharsetReader = charsetReader
	if err := decoder.Decode(&doc); err != nil {
		return fmt.Errorf("malformed OME-XML: %w", err)
	}
	if len(doc.Images) == 0 || doc.Images[0].Pixels == nil {
		return errors.New("OME-XML has no Image/Pixels element")
	}
	px := doc.Images[0].Pixels

	g := NewGeometry(0, 0, 0, 0, 0)
	sizes := []struct {
		name string
		src  *int
		dst  *int
	}{
		{"SizeX", px.SizeX, &g.SizeX},
		{"SizeY", px.SizeY, &g.SizeY},
		{"SizeZ", px.SizeZ, &g.SizeZ},
		{"SizeC", px.SizeC, &g.SizeC},
		{"SizeT", px.SizeT, &g.SizeT},
	}
	for _, s := range sizes {
		if s.src == nil {
			return fmt.Errorf("Pixels is missing %s", s.name)
		}
		if *s.src <= 0 {
			return fmt.Errorf("Pixels has non-positive %s=%d", s.name, *s.src)
		}
		*s.dst = *s.src
	}
	if _, ok := checkedProduct(g.SizeX, g.SizeY, g.SizeZ, g.SizeC, g.SizeT); !ok {
		return fmt.Errorf("acquisition of %dx%dx%dx%dx%d points is too large", g.SizeX, g.SizeY, g.SizeZ, g.SizeC, g.SizeT)
	}
	if planes := g.NumberOfPlanes(); planes > numPages {
		return fmt.Errorf("acquisition has %d planes, file has %d pages", planes, numPages)
	}

	if px.DimensionOrder != "" {
		if !ValidDimensionOrder(px.DimensionOrder) {
			return fmt.Errorf("unknown DimensionOrder %q", px.DimensionOrder)
		}
		g.DimensionOrder = strings.ToUpper(px.DimensionOrder)
	}

	for i, size := range []*float64{px.PhysicalSizeX, px.PhysicalSizeY, px.PhysicalSizeZ} {
		if size != nil {
			g.PhysicalSize[i] = *size
		}
	}
	g.PhysicalSizeUnit = [3]string{px.PhysicalSizeXUnit, px.PhysicalSizeYUnit, px.PhysicalSizeZUnit}
	if px.TimeIncrement != nil {
		g.TimeIncrement = *px.TimeIncrement
	}
	g.PixelType = px.Type

	for _, ch := range px.Channels {
		spp := 1
		if ch.SamplesPerPixel != nil {
			spp = *ch.SamplesPerPixel
		}
		g.Channels = append(g.Channels, Channel{ID: ch.ID, Name: ch.Name, SamplesPerPixel: spp})
	}

	md.Geometry = g
	return md.buildIFDMap(px.TiffData)
}

// buildIFDMap fills md.IFDs from the TiffData blocks. Each block covers
// PlaneCount planes in DimensionOrder starting at (FirstC, FirstT, FirstZ),
// stored in consecutive pages starting at IFD.
func (md *Metadata) buildIFDMap(blocks []tiffData) error {
	g := md.Geometry
	total := g.NumberOfPlanes()

	if len(blocks) == 0 {
		for p := 0; p < total; p++ {
			md.IFDs[g.PlaneKey(p)] = p
		}
		return nil
	}

	for i, td := range blocks {
		ifd := valueOr(td.IFD, 0)
		first := Key{C: valueOr(td.FirstC, 0), T: valueOr(td.FirstT, 0), Z: valueOr(td.FirstZ, 0)}
		if ifd < 0 {
			return fmt.Errorf("TiffData %d has negative IFD %d", i, ifd)
		}
		if !g.Contains(first) {
			return fmt.Errorf("TiffData %d starts outside the acquisition at %s", i, first)
		}

		start := g.PlaneIndex(first)
		count := total - start
		switch {
		case td.PlaneCount != nil:
			count = *td.PlaneCount
		case td.IFD != nil:
			count = 1
		}
		if count < 0 || start+count > total {
			return fmt.Errorf("TiffData %d covers %d planes from plane %d, acquisition has %d", i, count, start, total)
		}

		for p := 0; p < count; p++ {
			md.IFDs[g.PlaneKey(start+p)] = ifd + p
		}
	}
	return nil
}

func valueOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

// charsetReader decodes documents declaring a non UTF-8 encoding
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported XML encoding %q: %w", label, err)
	}
	return enc.NewDecoder().Reader(input), nil
}
