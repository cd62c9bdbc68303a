package models

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ScalarType identifies the element type stored in a DataArray
type ScalarType int

const (
	Unknown ScalarType = iota
	Uint8
	Int8
	Uint16
	Int16
	Uint32
	Int32
	Uint64
	Int64
	Float32
	Float64
)

func (s ScalarType) String() string {
	return [...]string{"unknown", "uint8", "int8", "uint16", "int16", "uint32", "int32", "uint64", "int64", "float", "double"}[s]
}

// Size returns the size of one element in bytes, or 0 for Unknown.
func (s ScalarType) Size() int {
	switch s {
	case Uint8, Int8:
		return 1
	case Uint16, Int16:
		return 2
	case Uint32, Int32, Float32:
		return 4
	case Uint64, Int64, Float64:
		return 8
	}
	return 0
}

// ScalarTypeFromSample maps a TIFF BitsPerSample / SampleFormat pair
// (1 = unsigned, 2 = signed, 3 = IEEE float) to a ScalarType.
func ScalarTypeFromSample(bits, format int) (ScalarType, error) {
	if format == 0 {
		format = 1
	}
	switch {
	case bits == 8 && format == 1:
		return Uint8, nil
	case bits == 8 && format == 2:
		return Int8, nil
	case bits == 16 && format == 1:
		return Uint16, nil
	case bits == 16 && format == 2:
		return Int16, nil
	case bits == 32 && format == 1:
		return Uint32, nil
	case bits == 32 && format == 2:
		return Int32, nil
	case bits == 32 && format == 3:
		return Float32, nil
	case bits == 64 && format == 1:
		return Uint64, nil
	case bits == 64 && format == 2:
		return Int64, nil
	case bits == 64 && format == 3:
		return Float64, nil
	}
	return Unknown, fmt.Errorf("unsupported sample layout: %d bits, format %d", bits, format)
}

// ScalarTypeFromPixelType maps an OME pixel type name ("uint16", "float", ...)
// to a ScalarType.
func ScalarTypeFromPixelType(name string) ScalarType {
	switch name {
	case "uint8":
		return Uint8
	case "int8":
		return Int8
	case "uint16":
		return Uint16
	case "int16":
		return Int16
	case "uint32":
		return Uint32
	case "int32":
		return Int32
	case "float":
		return Float32
	case "double":
		return Float64
	}
	return Unknown
}

// decode reads one little-endian element of type s from b.
func (s ScalarType) decode(b []byte) float64 {
	switch s {
	case Uint8:
		return float64(b[0])
	case Int8:
		return float64(int8(b[0]))
	case Uint16:
		return float64(binary.LittleEndian.Uint16(b))
	case Int16:
		return float64(int16(binary.LittleEndian.Uint16(b)))
	case Uint32:
		return float64(binary.LittleEndian.Uint32(b))
	case Int32:
		return float64(int32(binary.LittleEndian.Uint32(b)))
	case Uint64:
		return float64(binary.LittleEndian.Uint64(b))
	case Int64:
		return float64(int64(binary.LittleEndian.Uint64(b)))
	case Float32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case Float64:
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	}
	return 0
}

// encode writes v as one little-endian element of type s into b.
func (s ScalarType) encode(b []byte, v float64) {
	switch s {
	case Uint8:
		b[0] = uint8(v)
	case Int8:
		b[0] = uint8(int8(v))
	case Uint16:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case Int16:
		binary.LittleEndian.PutUint16(b, uint16(int16(v)))
	case Uint32:
		binary.LittleEndian.PutUint32(b, uint32(v))
	case Int32:
		binary.LittleEndian.PutUint32(b, uint32(int32(v)))
	case Uint64:
		binary.LittleEndian.PutUint64(b, uint64(v))
	case Int64:
		binary.LittleEndian.PutUint64(b, uint64(int64(v)))
	case Float32:
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
	case Float64:
		binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	}
}
