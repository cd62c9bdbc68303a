package models

// ImageData is a regular 3D grid of points carrying per-point arrays and
// dataset-level field arrays.
//
// Points are stored x-fastest, then y, then z, so one XY plane of an array
// occupies a contiguous byte range.
type ImageData struct {
	// Extent is the index range xmin,xmax,ymin,ymax,zmin,zmax
	Extent [6]int

	// Spacing is the physical distance between neighbouring points per axis
	Spacing [3]float64

	// Origin is the physical position of the first point
	Origin [3]float64

	PointData PointData
	FieldData FieldData
}

// NewImageData creates an empty grid of the given dimensions with unit spacing
func NewImageData(dims [3]int) *ImageData {
	return &ImageData{
		Extent:  [6]int{0, dims[0] - 1, 0, dims[1] - 1, 0, dims[2] - 1},
		Spacing: [3]float64{1, 1, 1},
	}
}

// Dimensions returns the number of points along each axis
func (im *ImageData) Dimensions() [3]int {
	return [3]int{
		im.Extent[1] - im.Extent[0] + 1,
		im.Extent[3] - im.Extent[2] + 1,
		im.Extent[5] - im.Extent[4] + 1,
	}
}

// NumberOfPoints returns the total point count of the grid
func (im *ImageData) NumberOfPoints() int {
	d := im.Dimensions()
	if d[0] <= 0 || d[1] <= 0 || d[2] <= 0 {
		return 0
	}
	return d[0] * d[1] * d[2]
}

// AllocateScalars creates the primary scalars for the grid and returns them
func (im *ImageData) AllocateScalars(name string, scalarType ScalarType, numComponents int) *DataArray {
	a := NewDataArray(name, scalarType, numComponents, im.NumberOfPoints())
	im.PointData.SetScalars(a)
	return a
}

// ShallowCopy makes im describe the same data as src. Array headers are
// copied but pixel storage is shared.
func (im *ImageData) ShallowCopy(src *ImageData) {
	im.Extent = src.Extent
	im.Spacing = src.Spacing
	im.Origin = src.Origin

	im.PointData.Reset()
	for _, a := range src.PointData.Arrays() {
		im.PointData.AddArray(a.ShallowCopy())
	}
	im.FieldData.Reset()
	for _, a := range src.FieldData.Arrays() {
		im.FieldData.AddArray(a)
	}
}
