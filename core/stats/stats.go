// Package stats summarizes hub utilization from a snapshot.
package stats

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/evhub/core/snapshot"
)

// Summary describes how busy the hubs of a snapshot are.
type Summary struct {
	Hubs             int     `json:"hubs"`
	Chargers         int     `json:"chargers"`
	Occupied         int     `json:"occupied"`
	MeanOccupancy    float64 `json:"mean_occupancy"`
	StdDevOccupancy  float64 `json:"stddev_occupancy"`
	MedianOccupancy  float64 `json:"median_occupancy"`
	TotalEnergyJ     float64 `json:"total_energy_j"`
	MeanHubEnergyJ   float64 `json:"mean_hub_energy_j"`
	BusiestHub       string  `json:"busiest_hub,omitempty"`
	BusiestOccupancy float64 `json:"busiest_occupancy"`
}

// Summarize computes occupancy ratios (occupied / chargers) per hub and
// aggregates them. Hubs without chargers are skipped.
func Summarize(s snapshot.Snapshot) Summary {
	var out Summary
	ratios := make([]float64, 0, len(s.Hubs))
	energies := make([]float64, 0, len(s.Hubs))
	for _, h := range s.Hubs {
		if h.Capacity == 0 {
			continue
		}
		r := float64(h.Occupancy) / float64(h.Capacity)
		ratios = append(ratios, r)
		energies = append(energies, h.TotalEnergy)
		out.Chargers += h.Capacity
		out.Occupied += h.Occupancy
		out.TotalEnergyJ += h.TotalEnergy
		if out.BusiestHub == "" || r > out.BusiestOccupancy {
			out.BusiestHub, out.BusiestOccupancy = h.ID, r
		}
	}
	out.Hubs = len(ratios)
	if len(ratios) == 0 {
		return out
	}
	out.MeanOccupancy, out.StdDevOccupancy = stat.MeanStdDev(ratios, nil)
	if len(ratios) == 1 {
		out.StdDevOccupancy = 0
	}
	out.MeanHubEnergyJ = stat.Mean(energies, nil)

	sorted := append([]float64(nil), ratios...)
	sort.Float64s(sorted)
	out.MedianOccupancy = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	return out
}
