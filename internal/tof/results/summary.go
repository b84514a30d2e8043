package results

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Summary condenses the first-ranked target of every zone into a handful of
// numbers for storage and dashboards.
type Summary struct {
	Zones      int     `json:"zones"`
	ValidZones int     `json:"valid_zones"`
	MinMM      uint16  `json:"min_mm"`
	MaxMM      uint16  `json:"max_mm"`
	MeanMM     float64 `json:"mean_mm"`
	StdDevMM   float64 `json:"stddev_mm"`
}

// Summarize computes distance statistics over zones whose closest target is
// usable. Without status data every zone with a detected target counts; with
// neither status nor detection counts, every non-zero distance counts.
func Summarize(rd *ResultsData) Summary {
	s := Summary{Zones: rd.Dim * rd.Dim}
	if len(rd.DistanceMM) == 0 {
		return s
	}

	xs := make([]float64, 0, s.Zones)
	s.MinMM = math.MaxUint16
	for r := 0; r < rd.Dim; r++ {
		for c := 0; c < rd.Dim; c++ {
			if !zoneUsable(rd, r, c) {
				continue
			}
			d := rd.DistanceMM[0][r][c]
			xs = append(xs, float64(d))
			s.MinMM = min(s.MinMM, d)
			s.MaxMM = max(s.MaxMM, d)
		}
	}

	s.ValidZones = len(xs)
	switch len(xs) {
	case 0:
		s.MinMM = 0
	case 1:
		s.MeanMM = xs[0]
	default:
		s.MeanMM, s.StdDevMM = stat.MeanStdDev(xs, nil)
	}
	return s
}

func zoneUsable(rd *ResultsData, r, c int) bool {
	switch {
	case len(rd.TargetStatus) > 0:
		return rd.TargetStatus[0][r][c].Usable()
	case rd.TargetsDetected != nil:
		return rd.TargetsDetected[r][c] > 0
	default:
		return rd.DistanceMM[0][r][c] > 0
	}
}
