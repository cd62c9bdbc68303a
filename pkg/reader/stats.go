package reader

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"ometiffreader/internal/models"
)

// ChannelStats summarizes the first component of one channel array
type ChannelStats struct {
	Name   string
	Count  int
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64
}

// ChannelStatistics computes intensity statistics for every point array of vol
func ChannelStatistics(vol *models.ImageData) []ChannelStats {
	var out []ChannelStats
	for _, a := range vol.PointData.Arrays() {
		values := a.ComponentValues(0)
		s := ChannelStats{Name: a.Name(), Count: len(values)}
		if len(values) > 0 {
			s.Min = floats.Min(values)
			s.Max = floats.Max(values)
			s.Mean, s.StdDev = stat.MeanStdDev(values, nil)
		}
		out = append(out, s)
	}
	return out
}
