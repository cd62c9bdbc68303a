package models

import "fmt"

// Array is implemented by every named array that can live in PointData or FieldData
type Array interface {
	Name() string
	NumberOfTuples() int
}

// DataArray is a named, typed array of tuples backed by raw little-endian bytes.
//
// Shallow copies of a DataArray share the same backing storage; arrays handed
// out by a cache must be treated as read-only.
type DataArray struct {
	name          string
	scalarType    ScalarType
	numComponents int
	data          []byte
}

// NewDataArray allocates a zeroed array holding numTuples tuples
func NewDataArray(name string, scalarType ScalarType, numComponents, numTuples int) *DataArray {
	if numComponents < 1 {
		numComponents = 1
	}
	return &DataArray{
		name:          name,
		scalarType:    scalarType,
		numComponents: numComponents,
		data:          make([]byte, numTuples*numComponents*scalarType.Size()),
	}
}

// WrapDataArray builds an array over an existing byte buffer without copying.
// The buffer length must be a whole number of tuples.
func WrapDataArray(name string, scalarType ScalarType, numComponents int, data []byte) (*DataArray, error) {
	if numComponents < 1 {
		return nil, fmt.Errorf("invalid component count %d", numComponents)
	}
	tupleSize := numComponents * scalarType.Size()
	if tupleSize == 0 || len(data)%tupleSize != 0 {
		return nil, fmt.Errorf("buffer of %d bytes is not a multiple of the %d byte tuple size", len(data), tupleSize)
	}
	return &DataArray{name: name, scalarType: scalarType, numComponents: numComponents, data: data}, nil
}

func (a *DataArray) Name() string            { return a.name }
func (a *DataArray) SetName(name string)     { a.name = name }
func (a *DataArray) ScalarType() ScalarType  { return a.scalarType }
func (a *DataArray) NumberOfComponents() int { return a.numComponents }

// Bytes returns the backing storage
func (a *DataArray) Bytes() []byte { return a.data }

// TupleSize is the size of one tuple in bytes
func (a *DataArray) TupleSize() int { return a.numComponents * a.scalarType.Size() }

func (a *DataArray) NumberOfTuples() int {
	if ts := a.TupleSize(); ts > 0 {
		return len(a.data) / ts
	}
	return 0
}

// Component returns component comp of tuple i as float64
func (a *DataArray) Component(i, comp int) float64 {
	size := a.scalarType.Size()
	off := (i*a.numComponents + comp) * size
	return a.scalarType.decode(a.data[off : off+size])
}

// SetComponent stores v, converted to the array's scalar type
func (a *DataArray) SetComponent(i, comp int, v float64) {
	size := a.scalarType.Size()
	off := (i*a.numComponents + comp) * size
	a.scalarType.encode(a.data[off:off+size], v)
}

// ComponentValues returns every value of one component as float64
func (a *DataArray) ComponentValues(comp int) []float64 {
	n := a.NumberOfTuples()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = a.Component(i, comp)
	}
	return out
}

// ShallowCopy returns a new array header sharing this array's storage
func (a *DataArray) ShallowCopy() *DataArray {
	c := *a
	return &c
}

// StringArray is a named array of strings with one component per tuple
type StringArray struct {
	name   string
	Values []string
}

func NewStringArray(name string, values ...string) *StringArray {
	return &StringArray{name: name, Values: values}
}

func (s *StringArray) Name() string        { return s.name }
func (s *StringArray) NumberOfTuples() int { return len(s.Values) }

// PointData holds per-point arrays. The first array is the primary scalars.
type PointData struct {
	arrays []*DataArray
}

// SetScalars installs a as the primary scalars, replacing any array of the same name
func (pd *PointData) SetScalars(a *DataArray) {
	pd.remove(a.Name())
	pd.arrays = append([]*DataArray{a}, pd.arrays...)
}

// AddArray appends a, replacing any array of the same name in place
func (pd *PointData) AddArray(a *DataArray) {
	for i, existing := range pd.arrays {
		if existing.Name() == a.Name() {
			pd.arrays[i] = a
			return
		}
	}
	pd.arrays = append(pd.arrays, a)
}

// Scalars returns the primary array, or nil
func (pd *PointData) Scalars() *DataArray {
	if len(pd.arrays) == 0 {
		return nil
	}
	return pd.arrays[0]
}

// Array looks an array up by name
func (pd *PointData) Array(name string) *DataArray {
	for _, a := range pd.arrays {
		if a.Name() == name {
			return a
		}
	}
	return nil
}

func (pd *PointData) Arrays() []*DataArray { return pd.arrays }
func (pd *PointData) NumberOfArrays() int  { return len(pd.arrays) }
func (pd *PointData) Reset()               { pd.arrays = nil }

func (pd *PointData) remove(name string) {
	kept := pd.arrays[:0]
	for _, a := range pd.arrays {
		if a.Name() != name {
			kept = append(kept, a)
		}
	}
	pd.arrays = kept
}

// FieldData holds arrays that describe the dataset as a whole
type FieldData struct {
	arrays []Array
}

// AddArray appends a, replacing any array of the same name in place
func (fd *FieldData) AddArray(a Array) {
	for i, existing := range fd.arrays {
		if existing.Name() == a.Name() {
			fd.arrays[i] = a
			return
		}
	}
	fd.arrays = append(fd.arrays, a)
}

func (fd *FieldData) Array(name string) Array {
	for _, a := range fd.arrays {
		if a.Name() == name {
			return a
		}
	}
	return nil
}

// DataArray returns the named numeric array, or nil
func (fd *FieldData) DataArray(name string) *DataArray {
	a, _ := fd.Array(name).(*DataArray)
	return a
}

// StringArray returns the named string array, or nil
func (fd *FieldData) StringArray(name string) *StringArray {
	a, _ := fd.Array(name).(*StringArray)
	return a
}

func (fd *FieldData) Arrays() []Array     { return fd.arrays }
func (fd *FieldData) NumberOfArrays() int { return len(fd.arrays) }
func (fd *FieldData) Reset()              { fd.arrays = nil }
