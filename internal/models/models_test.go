package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScalarTypeFromSample(t *testing.T) {
	cases := []struct {
		bits, format int
		want         ScalarType
	}{
		{8, 0, Uint8},
		{8, 2, Int8},
		{16, 1, Uint16},
		{16, 2, Int16},
		{32, 3, Float32},
		{64, 3, Float64},
		{64, 2, Int64},
	}
	for _, c := range cases {
		got, err := ScalarTypeFromSample(c.bits, c.format)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, "%d bits, format %d", c.bits, c.format)
	}

	_, err := ScalarTypeFromSample(12, 1)
	assert.Error(t, err)
	_, err = ScalarTypeFromSample(16, 3)
	assert.Error(t, err)
}

func TestPixelTypeNames(t *testing.T) {
	for _, st := range []ScalarType{Uint8, Int8, Uint16, Int16, Uint32, Int32, Float32, Float64} {
		assert.Equal(t, st, ScalarTypeFromPixelType(st.String()))
	}
	assert.Equal(t, Unknown, ScalarTypeFromPixelType("bit"))
	assert.Equal(t, 0, Unknown.Size())
}

func TestDataArrayComponents(t *testing.T) {
	for _, st := range []ScalarType{Uint8, Int8, Uint16, Int16, Uint32, Int32, Uint64, Int64, Float32, Float64} {
		a := NewDataArray("values", st, 2, 3)
		require.Equal(t, 3, a.NumberOfTuples(), st.String())
		require.Equal(t, 2*st.Size(), a.TupleSize())

		a.SetComponent(1, 0, 7)
		a.SetComponent(2, 1, 100)
		assert.Equal(t, 7.0, a.Component(1, 0), st.String())
		assert.Equal(t, []float64{0, 0, 100}, a.ComponentValues(1), st.String())
	}

	signed := NewDataArray("signed", Int16, 1, 1)
	signed.SetComponent(0, 0, -300)
	assert.Equal(t, -300.0, signed.Component(0, 0))

	f := NewDataArray("float", Float32, 1, 1)
	f.SetComponent(0, 0, 0.5)
	assert.Equal(t, 0.5, f.Component(0, 0))
}

func TestWrapDataArray(t *testing.T) {
	buf := []byte{1, 0, 2, 0, 3, 0}
	a, err := WrapDataArray("wrapped", Uint16, 1, buf)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, a.ComponentValues(0))

	// No copy is made.
	buf[0] = 9
	assert.Equal(t, 9.0, a.Component(0, 0))

	_, err = WrapDataArray("odd", Uint16, 1, buf[:5])
	assert.Error(t, err)
	_, err = WrapDataArray("none", Uint16, 0, buf)
	assert.Error(t, err)
}

func TestPointDataOrdering(t *testing.T) {
	var pd PointData
	pd.AddArray(NewDataArray("b", Uint8, 1, 1))
	pd.SetScalars(NewDataArray("a", Uint8, 1, 1))
	pd.AddArray(NewDataArray("c", Uint8, 1, 1))

	var names []string
	for _, a := range pd.Arrays() {
		names = append(names, a.Name())
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)
	assert.Equal(t, "a", pd.Scalars().Name())

	// Re-adding by name replaces in place.
	replacement := NewDataArray("b", Uint16, 1, 1)
	pd.AddArray(replacement)
	assert.Equal(t, 3, pd.NumberOfArrays())
	assert.Same(t, replacement, pd.Array("b"))

	// Promoting an existing array moves it to the front.
	pd.SetScalars(NewDataArray("c", Uint8, 1, 1))
	assert.Equal(t, "c", pd.Scalars().Name())
	assert.Equal(t, 3, pd.NumberOfArrays())

	pd.Reset()
	assert.Nil(t, pd.Scalars())
	assert.Nil(t, pd.Array("a"))
}

func TestFieldDataLookup(t *testing.T) {
	var fd FieldData
	fd.AddArray(NewDataArray("range", Float64, 2, 1))
	fd.AddArray(NewStringArray("units", "mm", "mm", "um"))

	assert.NotNil(t, fd.DataArray("range"))
	assert.Nil(t, fd.DataArray("units"))
	require.NotNil(t, fd.StringArray("units"))
	assert.Equal(t, 3, fd.StringArray("units").NumberOfTuples())
	assert.Nil(t, fd.Array("missing"))

	fd.AddArray(NewStringArray("units", "cm"))
	assert.Equal(t, 2, fd.NumberOfArrays())
	assert.Equal(t, []string{"cm"}, fd.StringArray("units").Values)
}

func TestImageDataShallowCopy(t *testing.T) {
	src := NewImageData([3]int{2, 3, 4})
	src.Spacing = [3]float64{0.5, 0.5, 2}
	scalars := src.AllocateScalars("Channel_1", Uint8, 1)
	require.Equal(t, 24, src.NumberOfPoints())
	require.Len(t, scalars.Bytes(), 24)
	src.FieldData.AddArray(NewStringArray("units", "um"))

	dst := &ImageData{}
	dst.PointData.AddArray(NewDataArray("stale", Uint8, 1, 1))
	dst.ShallowCopy(src)

	assert.Equal(t, [3]int{2, 3, 4}, dst.Dimensions())
	assert.Equal(t, src.Spacing, dst.Spacing)
	assert.Equal(t, 1, dst.PointData.NumberOfArrays())
	assert.Nil(t, dst.PointData.Array("stale"))

	// Headers are distinct, storage is shared.
	copied := dst.PointData.Scalars()
	assert.NotSame(t, scalars, copied)
	scalars.Bytes()[5] = 42
	assert.Equal(t, 42.0, copied.Component(5, 0))

	copied.SetName("renamed")
	assert.Equal(t, "Channel_1", scalars.Name())
	assert.NotNil(t, dst.FieldData.StringArray("units"))
}

func TestEmptyImageData(t *testing.T) {
	im := &ImageData{Extent: [6]int{0, -1, 0, 0, 0, 0}}
	assert.Equal(t, 0, im.NumberOfPoints())
}
