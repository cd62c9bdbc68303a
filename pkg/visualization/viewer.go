// Package visualization renders 2D slices of one channel of a timepoint volume.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"
	"strings"

	xtiff "golang.org/x/image/tiff"
	"gonum.org/v1/gonum/floats"

	"ometiffreader/internal/models"
)

// Viewer cuts grayscale slices out of one channel of a volume. Intensities
// are mapped linearly from the channel range onto the full 16-bit scale.
type Viewer struct {
	// values holds component 0 of the channel, x fastest
	values []float64

	// dimensions of the volume
	width  int
	height int
	depth  int

	// intensity window mapped to black and white
	min float64
	max float64
}

// NewViewer creates a viewer over the named point array of vol. When the
// field data carries a "<name>_Range" array it is used as the intensity
// window, so every timepoint of an acquisition is rendered on the same scale.
func NewViewer(vol *models.ImageData, channel string) (*Viewer, error) {
	arr := vol.PointData.Array(channel)
	if arr == nil {
		return nil, fmt.Errorf("volume has no array %q", channel)
	}
	dims := vol.Dimensions()
	values := arr.ComponentValues(0)
	if len(values) != dims[0]*dims[1]*dims[2] {
		return nil, fmt.Errorf("array %q has %d tuples, volume has %d points", channel, len(values), vol.NumberOfPoints())
	}

	v := &Viewer{values: values, width: dims[0], height: dims[1], depth: dims[2]}
	if r := vol.FieldData.DataArray(channel + "_Range"); r != nil && r.NumberOfComponents() == 2 {
		v.min, v.max = r.Component(0, 0), r.Component(0, 1)
	} else if len(values) > 0 {
		v.min, v.max = floats.Min(values), floats.Max(values)
	}
	return v, nil
}

// Window returns the intensity range mapped to black and white
func (v *Viewer) Window() (float64, float64) { return v.min, v.max }

func (v *Viewer) gray(idx int) color.Gray16 {
	span := v.max - v.min
	if span <= 0 {
		return color.Gray16{}
	}
	n := (v.values[idx] - v.min) / span
	return color.Gray16{Y: uint16(math.Max(0, math.Min(65535, math.Round(n*65535))))}
}

// extent returns the number of slices along axis
func (v *Viewer) extent(axis string) (int, error) {
	switch axis {
	case "x", "X":
		return v.width, nil
	case "y", "Y":
		return v.height, nil
	case "z", "Z":
		return v.depth, nil
	}
	return 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
}

// ExtractSlice extracts a 2D slice from the volume along the specified axis
func (v *Viewer) ExtractSlice(axis string, position int) (*image.Gray16, error) {
	n, err := v.extent(axis)
	if err != nil {
		return nil, err
	}
	if position < 0 || position >= n {
		return nil, fmt.Errorf("position %d outside [0,%d) along %s", position, n, axis)
	}

	var img *image.Gray16
	switch axis {
	case "x", "X":
		// YZ plane, z across
		img = image.NewGray16(image.Rect(0, 0, v.depth, v.height))
		for y := 0; y < v.height; y++ {
			for z := 0; z < v.depth; z++ {
				img.SetGray16(z, y, v.gray(z*v.width*v.height+y*v.width+position))
			}
		}

	case "y", "Y":
		// XZ plane, z down
		img = image.NewGray16(image.Rect(0, 0, v.width, v.depth))
		for z := 0; z < v.depth; z++ {
			for x := 0; x < v.width; x++ {
				img.SetGray16(x, z, v.gray(z*v.width*v.height+position*v.width+x))
			}
		}

	default:
		img = image.NewGray16(image.Rect(0, 0, v.width, v.height))
		for y := 0; y < v.height; y++ {
			for x := 0; x < v.width; x++ {
				img.SetGray16(x, y, v.gray(position*v.width*v.height+y*v.width+x))
			}
		}
	}

	return img, nil
}

// SaveSlice writes img to filename. Files ending in .tif or .tiff are
// written as deflate-compressed TIFF, everything else as JPEG.
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".tif", ".tiff":
		err = xtiff.Encode(file, img, &xtiff.Options{Compression: xtiff.Deflate})
	default:
		err = jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
	}
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	return err
}

// SaveSliceSequence extracts and saves every slice along axis into
// outputDir. format is "jpeg" or "tiff".
func (v *Viewer) SaveSliceSequence(axis, outputDir, format string) error {
	n, err := v.extent(axis)
	if err != nil {
		return err
	}
	ext := "jpg"
	switch strings.ToLower(format) {
	case "", "jpeg", "jpg":
	case "tiff", "tif":
		ext = "tif"
	default:
		return fmt.Errorf("invalid format: %s (must be jpeg or tiff)", format)
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	for pos := 0; pos < n; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.%s", strings.ToLower(axis), pos, ext))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}
