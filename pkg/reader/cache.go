package reader

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"ometiffreader/internal/models"
)

var (
	// ErrInconsistent reports that the decoded pixels and the parsed metadata
	// disagree. It indicates a decoder or parser bug, not bad user input.
	ErrInconsistent = errors.New("internal inconsistency between decoded volume and OME metadata")

	// ErrTimepointOutOfRange is returned by Extract under the Error policy
	ErrTimepointOutOfRange = errors.New("timepoint out of range")
)

// PhysicalSizeUnitName names the field array holding the spatial unit names
const PhysicalSizeUnitName = "PhysicalSizeUnit"

// ChannelArrayName returns the name of the array holding channel c (0-based)
func ChannelArrayName(c int) string {
	return fmt.Sprintf("Channel_%d", c+1)
}

// ChannelRangeName returns the name of the range array of channel c (0-based)
func ChannelRangeName(c int) string {
	return ChannelArrayName(c) + "_Range"
}

// OutOfRangePolicy decides what Extract does with a timepoint outside the cache
type OutOfRangePolicy int

const (
	// Clamp silently serves the nearest valid timepoint
	Clamp OutOfRangePolicy = iota
	// Error rejects the request with ErrTimepointOutOfRange
	Error
)

func (p OutOfRangePolicy) String() string {
	if p == Error {
		return "error"
	}
	return "clamp"
}

// ParseOutOfRangePolicy accepts "clamp" or "error"
func ParseOutOfRangePolicy(s string) (OutOfRangePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "clamp":
		return Clamp, nil
	case "error":
		return Error, nil
	}
	return Clamp, fmt.Errorf("unknown out-of-range policy %q (want clamp or error)", s)
}

// modifiedTime hands out increasing modification stamps
var modifiedTime atomic.Uint64

// Cache holds one volume per timepoint together with the dataset-level
// unit and channel range arrays.
//
// The cache owns its volumes. Extract hands out shallow copies that share
// pixel storage, so callers must not modify the arrays they receive.
type Cache struct {
	policy  OutOfRangePolicy
	volumes []*models.ImageData
	units   *models.StringArray
	ranges  []*models.DataArray
	mtime   uint64
	valid   bool
}

// NewCache creates an empty, invalid cache
func NewCache(policy OutOfRangePolicy) *Cache {
	return &Cache{policy: policy}
}

// Valid reports whether the cache has been built
func (c *Cache) Valid() bool { return c.valid }

// Len returns the number of cached timepoints
func (c *Cache) Len() int { return len(c.volumes) }

// MTime returns the stamp of the last rebuild; larger stamps are newer
func (c *Cache) MTime() uint64 { return c.mtime }

// Policy returns the out-of-range policy used by Extract
func (c *Cache) Policy() OutOfRangePolicy { return c.policy }

// Volume returns the cached volume of timepoint t, or nil
func (c *Cache) Volume(t int) *models.ImageData {
	if t < 0 || t >= len(c.volumes) {
		return nil
	}
	return c.volumes[t]
}

// Ranges returns the global range arrays, one per channel
func (c *Cache) Ranges() []*models.DataArray { return c.ranges }

// Units returns the PhysicalSizeUnit array
func (c *Cache) Units() *models.StringArray { return c.units }

// Reset drops every cached volume and marks the cache invalid
func (c *Cache) Reset() {
	c.volumes = nil
	c.units = nil
	c.ranges = nil
	c.valid = false
	c.touch()
}

func (c *Cache) touch() {
	c.mtime = modifiedTime.Add(1)
}

// Extract makes out a shallow copy of timepoint t and attaches the unit and
// channel range arrays to its field data.
//
// An invalid cache leaves out untouched. Under the Clamp policy a negative t
// serves timepoint 0 and a t past the end serves the last timepoint.
func (c *Cache) Extract(out *models.ImageData, t int) error {
	if !c.valid || len(c.volumes) == 0 {
		return nil
	}

	n := len(c.volumes)
	if t < 0 || t >= n {
		if c.policy == Error {
			return fmt.Errorf("%w: %d not in [0,%d)", ErrTimepointOutOfRange, t, n)
		}
		if t >= n {
			t = n - 1
		}
		if t < 0 {
			t = 0
		}
	}

	out.ShallowCopy(c.volumes[t])
	out.FieldData.AddArray(c.units)
	for _, r := range c.ranges {
		out.FieldData.AddArray(r)
	}
	return nil
}
