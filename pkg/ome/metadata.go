// Package ome reads and writes the OME-XML document embedded in OME-TIFF
// files and maps (channel, timepoint, z) plane coordinates to TIFF pages.
package ome

import (
	"fmt"
	"math"
	"strings"
)

// DefaultDimensionOrder is used when a document does not declare one
const DefaultDimensionOrder = "XYZCT"

var dimensionOrders = map[string]bool{
	"XYZCT": true,
	"XYZTC": true,
	"XYCTZ": true,
	"XYCZT": true,
	"XYTCZ": true,
	"XYTZC": true,
}

// Key addresses one XY plane of a 5D acquisition
type Key struct {
	C, T, Z int
}

func (k Key) String() string {
	return fmt.Sprintf("(c=%d, t=%d, z=%d)", k.C, k.T, k.Z)
}

// IFDMap maps plane coordinates to the index of the TIFF page holding the plane
type IFDMap map[Key]int

// Channel describes one acquisition channel
type Channel struct {
	ID              string
	Name            string
	SamplesPerPixel int
}

// Geometry describes the shape and physical calibration of an acquisition
type Geometry struct {
	SizeX, SizeY, SizeZ, SizeC, SizeT int

	// TimeIncrement is the time between consecutive timepoints
	TimeIncrement float64

	// PhysicalSize is the physical extent of one voxel along X, Y and Z
	PhysicalSize [3]float64

	// PhysicalSizeUnit holds the unit name of each PhysicalSize entry
	PhysicalSizeUnit [3]string

	// DimensionOrder lists the axes fastest-varying first, e.g. "XYZCT"
	DimensionOrder string

	// PixelType is the OME pixel type name, e.g. "uint16"
	PixelType string

	Channels []Channel
}

// NewGeometry returns a geometry with the default calibration
func NewGeometry(sizeX, sizeY, sizeZ, sizeC, sizeT int) Geometry {
	return Geometry{
		SizeX:          sizeX,
		SizeY:          sizeY,
		SizeZ:          sizeZ,
		SizeC:          sizeC,
		SizeT:          sizeT,
		TimeIncrement:  1.0,
		PhysicalSize:   [3]float64{1, 1, 1},
		DimensionOrder: DefaultDimensionOrder,
	}
}

// NumberOfPlanes is SizeZ*SizeC*SizeT, the page count of a complete file
func (g Geometry) NumberOfPlanes() int {
	return g.SizeZ * g.SizeC * g.SizeT
}

// checkedProduct multiplies positive sizes. It reports false when a size is
// not positive or the product does not fit in an int.
func checkedProduct(sizes ...int) (int, bool) {
	p := 1
	for _, s := range sizes {
		if s <= 0 || p > math.MaxInt/s {
			return 0, false
		}
		p *= s
	}
	return p, true
}

// Contains reports whether k lies inside the geometry
func (g Geometry) Contains(k Key) bool {
	return k.C >= 0 && k.C < g.SizeC &&
		k.T >= 0 && k.T < g.SizeT &&
		k.Z >= 0 && k.Z < g.SizeZ
}

// axes returns the three non-spatial axes fastest first along with their sizes
func (g Geometry) axes() (order [3]byte, sizes [3]int) {
	dimOrder := g.DimensionOrder
	if dimOrder == "" {
		dimOrder = DefaultDimensionOrder
	}
	for i := 0; i < 3; i++ {
		order[i] = dimOrder[2+i]
		switch order[i] {
		case 'Z':
			sizes[i] = g.SizeZ
		case 'C':
			sizes[i] = g.SizeC
		case 'T':
			sizes[i] = g.SizeT
		}
	}
	return order, sizes
}

// PlaneIndex rasterizes k into a plane number following DimensionOrder
func (g Geometry) PlaneIndex(k Key) int {
	order, sizes := g.axes()
	index := 0
	stride := 1
	for i := 0; i < 3; i++ {
		index += axisValue(k, order[i]) * stride
		stride *= sizes[i]
	}
	return index
}

// PlaneKey is the inverse of PlaneIndex
func (g Geometry) PlaneKey(plane int) Key {
	order, sizes := g.axes()
	var k Key
	for i := 0; i < 3; i++ {
		v := 0
		if sizes[i] > 0 {
			v = plane % sizes[i]
			plane /= sizes[i]
		}
		switch order[i] {
		case 'Z':
			k.Z = v
		case 'C':
			k.C = v
		case 'T':
			k.T = v
		}
	}
	return k
}

func axisValue(k Key, axis byte) int {
	switch axis {
	case 'Z':
		return k.Z
	case 'C':
		return k.C
	case 'T':
		return k.T
	}
	return 0
}

// TimeValues returns the acquisition time of every timepoint
func (g Geometry) TimeValues() []float64 {
	times := make([]float64, g.SizeT)
	for t := range times {
		times[t] = float64(t) * g.TimeIncrement
	}
	return times
}

// Metadata is the result of parsing an OME-XML document.
//
// When Valid is false the Geometry and IFDs are incomplete and must not be
// used; Err then describes why the document was rejected.
type Metadata struct {
	Geometry Geometry
	IFDs     IFDMap
	Valid    bool
	Err      error
}

// Missing lists every plane of the geometry that has no page in the IFD map
func (md *Metadata) Missing() []Key {
	var missing []Key
	g := md.Geometry
	for t := 0; t < g.SizeT; t++ {
		for c := 0; c < g.SizeC; c++ {
			for z := 0; z < g.SizeZ; z++ {
				k := Key{C: c, T: t, Z: z}
				if _, ok := md.IFDs[k]; !ok {
					missing = append(missing, k)
				}
			}
		}
	}
	return missing
}

// ValidDimensionOrder reports whether order is one of the six OME orders
func ValidDimensionOrder(order string) bool {
	return dimensionOrders[strings.ToUpper(order)]
}
