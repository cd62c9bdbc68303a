package reader

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"

	"ometiffreader/internal/models"
	"ometiffreader/pkg/ome"
)

// UpdateCache rebuilds cache from a flat decoded volume.
//
// flat holds every TIFF page stacked along Z. For each timepoint a new
// SizeX x SizeY x SizeZ volume is built with one array per channel
// ("Channel_1".."Channel_N", the first being the primary scalars). Planes
// are copied as raw byte ranges, so scalar type and component count are
// unchanged. Channel ranges are folded over all timepoints.
//
// Invalid metadata makes this a no-op. A flat volume that does not match
// the geometry, or an IFD map with missing or out-of-bounds entries, aborts
// with ErrInconsistent and leaves the cache as it was.
func UpdateCache(cache *Cache, flat *models.ImageData, md *ome.Metadata, numCores int) error {
	if md == nil || !md.Valid {
		return nil
	}
	g := md.Geometry

	src := flat.PointData.Scalars()
	if src == nil {
		return fmt.Errorf("%w: flat volume has no scalars", ErrInconsistent)
	}
	dims := flat.Dimensions()
	if dims != [3]int{g.SizeX, g.SizeY, g.NumberOfPlanes()} {
		return fmt.Errorf("%w: flat volume is %dx%dx%d, metadata describes %dx%dx%d",
			ErrInconsistent, dims[0], dims[1], dims[2], g.SizeX, g.SizeY, g.NumberOfPlanes())
	}
	if missing := md.Missing(); len(missing) > 0 {
		return fmt.Errorf("%w: no page for plane %s (%d planes missing)", ErrInconsistent, missing[0], len(missing))
	}
	planeSize := g.SizeX * g.SizeY * src.TupleSize()
	for k, page := range md.IFDs {
		if page < 0 || (page+1)*planeSize > len(src.Bytes()) {
			return fmt.Errorf("%w: plane %s maps to page %d outside the %d decoded pages",
				ErrInconsistent, k, page, dims[2])
		}
	}

	type result struct {
		t      int
		volume *models.ImageData
		ranges [][2]float64
	}

	// Timepoints are independent, so they are spread over a pool of workers.
	workers := numCores
	if workers < 1 {
		workers = 1
	}
	if workers > g.SizeT {
		workers = g.SizeT
	}
	jobs := make(chan int)
	results := make(chan result)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range jobs {
				vol, ranges := buildTimepoint(src, md, t, planeSize)
				results <- result{t: t, volume: vol, ranges: ranges}
			}
		}()
	}
	go func() {
		for t := 0; t < g.SizeT; t++ {
			jobs <- t
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	volumes := make([]*models.ImageData, g.SizeT)
	local := make([][][2]float64, g.SizeT)
	for res := range results {
		volumes[res.t] = res.volume
		local[res.t] = res.ranges
	}

	// Fold the per-timepoint ranges into one global range per channel.
	global := make([][2]float64, g.SizeC)
	for c := range global {
		global[c] = [2]float64{math.Inf(1), math.Inf(-1)}
	}
	for t := 0; t < g.SizeT; t++ {
		for c, r := range local[t] {
			if r[0] > r[1] {
				continue
			}
			global[c][0] = math.Min(global[c][0], r[0])
			global[c][1] = math.Max(global[c][1], r[1])
		}
	}

	ranges := make([]*models.DataArray, g.SizeC)
	for c := range ranges {
		r := models.NewDataArray(ChannelRangeName(c), models.Float64, 2, 1)
		r.SetComponent(0, 0, global[c][0])
		r.SetComponent(0, 1, global[c][1])
		ranges[c] = r
	}

	cache.volumes = volumes
	cache.units = models.NewStringArray(PhysicalSizeUnitName, g.PhysicalSizeUnit[:]...)
	cache.ranges = ranges
	cache.valid = true
	cache.touch()
	return nil
}

// buildTimepoint assembles the volume of timepoint t. The IFD map has
// already been checked to cover every plane.
func buildTimepoint(src *models.DataArray, md *ome.Metadata, t, planeSize int) (*models.ImageData, [][2]float64) {
	g := md.Geometry
	vol := models.NewImageData([3]int{g.SizeX, g.SizeY, g.SizeZ})
	vol.Spacing = g.PhysicalSize

	data := src.Bytes()
	ranges := make([][2]float64, g.SizeC)
	for c := 0; c < g.SizeC; c++ {
		arr := models.NewDataArray(ChannelArrayName(c), src.ScalarType(), src.NumberOfComponents(), g.SizeX*g.SizeY*g.SizeZ)
		dst := arr.Bytes()
		for z := 0; z < g.SizeZ; z++ {
			page := md.IFDs[ome.Key{C: c, T: t, Z: z}]
			copy(dst[z*planeSize:(z+1)*planeSize], data[page*planeSize:(page+1)*planeSize])
		}
		if c == 0 {
			vol.PointData.SetScalars(arr)
		} else {
			vol.PointData.AddArray(arr)
		}
		ranges[c] = arrayRange(arr)
	}
	return vol, ranges
}

// arrayRange returns the min and max of the first component. An empty
// array yields min > max.
func arrayRange(a *models.DataArray) [2]float64 {
	values := a.ComponentValues(0)
	if len(values) == 0 {
		return [2]float64{math.Inf(1), math.Inf(-1)}
	}
	return [2]float64{floats.Min(values), floats.Max(values)}
}
