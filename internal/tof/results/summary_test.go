package results

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarize_UsesUsableClosestTargets(t *testing.T) {
	t.Parallel()

	l := Layout{Dim: 4, Targets: 2, Fields: FieldDistance | FieldTargetStatus}
	raw := l.NewRaw()
	for i := range raw.TargetStatus {
		raw.TargetStatus[i] = 255
	}
	// three usable zones for target 0: 100, 200, 300
	for zone, d := range map[int]int16{0: 100, 5: 200, 15: 300} {
		raw.DistanceMM[zone*2] = d
		raw.TargetStatus[zone*2] = 5
	}
	// second target is ignored
	raw.DistanceMM[3] = 9999
	raw.TargetStatus[3] = 5

	rd, _ := Decode(raw, l)
	s := Summarize(rd)

	assert.Equal(t, 16, s.Zones)
	assert.Equal(t, 3, s.ValidZones)
	assert.Equal(t, uint16(100), s.MinMM)
	assert.Equal(t, uint16(300), s.MaxMM)
	assert.InDelta(t, 200, s.MeanMM, 1e-9)
	assert.InDelta(t, 100, s.StdDevMM, 1e-9)
}

func TestSummarize_NoDistances(t *testing.T) {
	t.Parallel()

	rd, _ := Decode(Layout{Dim: 8, Targets: 1, Fields: FieldTargetsDetected}.NewRaw(), Layout{Dim: 8, Targets: 1, Fields: FieldTargetsDetected})
	s := Summarize(rd)
	assert.Equal(t, Summary{Zones: 64}, s)
}

func TestSummarize_SingleZone(t *testing.T) {
	t.Parallel()

	l := Layout{Dim: 4, Targets: 1, Fields: FieldDistance}
	raw := l.NewRaw()
	raw.DistanceMM[4] = 850

	s := Summarize(mustDecode(raw, l))
	assert.Equal(t, 1, s.ValidZones)
	assert.Equal(t, 850.0, s.MeanMM)
	assert.Equal(t, 0.0, s.StdDevMM)
	assert.False(t, math.IsNaN(s.StdDevMM))
}

func mustDecode(raw *Raw, l Layout) *ResultsData {
	rd, _ := Decode(raw, l)
	return rd
}
