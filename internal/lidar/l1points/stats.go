package l1points

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/stat"
)

// MaxReturnNumber bounds the return histogram; LAS 1.4 allows up to 15 returns.
const MaxReturnNumber = 15

// statsChunkSize is the number of samples reduced at a time by StatsAccumulator.
const statsChunkSize = 64 * 1024

// Stat summarises one scalar distribution. StdDev is the population
// standard deviation. A zero Count marks the empty stat, which is the
// identity for CombineStat.
type Stat struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Count  uint64  `json:"count"`
}

// NewStat computes a Stat from samples.
func NewStat(samples []float64) Stat {
	if len(samples) == 0 {
		return Stat{}
	}
	mean, variance := stat.PopMeanVariance(samples, nil)
	return Stat{
		Min:    floats.Min(samples),
		Max:    floats.Max(samples),
		Mean:   mean,
		StdDev: math.Sqrt(math.Max(variance, 0)),
		Count:  uint64(len(samples)),
	}
}

// CombineStat merges two stats as if their samples had been pooled, using
// the pairwise parallel-variance update. It is commutative and, up to
// floating point rounding, associative.
func CombineStat(a, b Stat) Stat {
	if a.Count == 0 {
		return b
	}
	if b.Count == 0 {
		return a
	}
	na, nb := float64(a.Count), float64(b.Count)
	n := na + nb
	delta := b.Mean - a.Mean
	m2 := a.StdDev*a.StdDev*na + b.StdDev*b.StdDev*nb + delta*delta*na*nb/n
	return Stat{
		Min:    math.Min(a.Min, b.Min),
		Max:    math.Max(a.Max, b.Max),
		Mean:   (na*a.Mean + nb*b.Mean) / n,
		StdDev: math.Sqrt(math.Max(m2/n, 0)),
		Count:  a.Count + b.Count,
	}
}

// ApproxEqual compares two stats with a relative tolerance on the float fields.
func (s Stat) ApproxEqual(o Stat, tol float64) bool {
	if s.Count != o.Count {
		return false
	}
	return scalar.EqualWithinAbsOrRel(s.Min, o.Min, tol, tol) &&
		scalar.EqualWithinAbsOrRel(s.Max, o.Max, tol, tol) &&
		scalar.EqualWithinAbsOrRel(s.Mean, o.Mean, tol, tol) &&
		scalar.EqualWithinAbsOrRel(s.StdDev, o.StdDev, tol, tol)
}

// LidarStats is the per-file statistics record. Records from many files
// reduce with Combine in any order.
type LidarStats struct {
	ReturnNumber    Stat                        `json:"return_number"`
	Intensity       Stat                        `json:"intensity"`
	Elevation       Stat                        `json:"elevation"`
	ReturnHistogram [MaxReturnNumber + 1]uint64 `json:"return_histogram"`
}

// Combine merges two LidarStats records.
func Combine(a, b LidarStats) LidarStats {
	out := LidarStats{
		ReturnNumber: CombineStat(a.ReturnNumber, b.ReturnNumber),
		Intensity:    CombineStat(a.Intensity, b.Intensity),
		Elevation:    CombineStat(a.Elevation, b.Elevation),
	}
	for i := range out.ReturnHistogram {
		out.ReturnHistogram[i] = a.ReturnHistogram[i] + b.ReturnHistogram[i]
	}
	return out
}

// CombineAll folds a slice of records; the empty slice yields the zero record.
func CombineAll(all []LidarStats) LidarStats {
	var out LidarStats
	for _, s := range all {
		out = Combine(out, s)
	}
	return out
}

// PointCount returns the number of points the record summarises.
func (s LidarStats) PointCount() uint64 { return s.Intensity.Count }

// FirstReturnRatio is the share of points that are first returns.
func (s LidarStats) FirstReturnRatio() float64 {
	var total uint64
	for _, c := range s.ReturnHistogram {
		total += c
	}
	if total == 0 {
		return 0
	}
	return float64(s.ReturnHistogram[1]) / float64(total)
}

// IntensityRange converts a band expressed in standard deviations around the
// mean intensity to absolute intensity values.
func (s LidarStats) IntensityRange(lowSigma, highSigma float64) (low, high float64) {
	return s.Intensity.Mean + lowSigma*s.Intensity.StdDev, s.Intensity.Mean + highSigma*s.Intensity.StdDev
}

// StatsAccumulator builds a LidarStats from a point stream. Samples are
// buffered in fixed-size chunks that are reduced and discarded, so memory
// stays bounded regardless of file size.
type StatsAccumulator struct {
	stats      LidarStats
	returns    []float64
	intensity  []float64
	elevations []float64
}

// NewStatsAccumulator returns an empty accumulator.
func NewStatsAccumulator() *StatsAccumulator {
	return &StatsAccumulator{
		returns:    make([]float64, 0, statsChunkSize),
		intensity:  make([]float64, 0, statsChunkSize),
		elevations: make([]float64, 0, statsChunkSize),
	}
}

// Add records one point.
func (a *StatsAccumulator) Add(p Point) {
	rn := int(p.ReturnNumber)
	if rn > MaxReturnNumber {
		rn = MaxReturnNumber
	}
	a.stats.ReturnHistogram[rn]++
	a.returns = append(a.returns, float64(p.ReturnNumber))
	a.intensity = append(a.intensity, float64(p.Intensity))
	a.elevations = append(a.elevations, p.Z)
	if len(a.returns) == statsChunkSize {
		a.flush()
	}
}

func (a *StatsAccumulator) flush() {
	if len(a.returns) == 0 {
		return
	}
	a.stats.ReturnNumber = CombineStat(a.stats.ReturnNumber, NewStat(a.returns))
	a.stats.Intensity = CombineStat(a.stats.Intensity, NewStat(a.intensity))
	a.stats.Elevation = CombineStat(a.stats.Elevation, NewStat(a.elevations))
	a.returns = a.returns[:0]
	a.intensity = a.intensity[:0]
	a.elevations = a.elevations[:0]
}

// Stats reduces any buffered samples and returns the record so far.
func (a *StatsAccumulator) Stats() LidarStats {
	a.flush()
	return a.stats
}

// StatsOf is a convenience for in-memory point sets.
func StatsOf(points []Point) LidarStats {
	acc := NewStatsAccumulator()
	for _, p := range points {
		acc.Add(p)
	}
	return acc.Stats()
}
