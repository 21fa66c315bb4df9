package pipeline

import (
	"fmt"
	"math"

	"github.com/banshee-data/lidar2map/internal/config"
	"github.com/banshee-data/lidar2map/internal/lidar/l1points"
	"github.com/banshee-data/lidar2map/internal/lidar/l6objects"
	"github.com/banshee-data/lidar2map/internal/version"
	"github.com/paulmach/orb"
)

// IntensityBand maps a range of mean cell intensity to an area symbol. Low
// and High are absolute intensities; they are zero until DeriveParams has
// seen the survey statistics.
type IntensityBand struct {
	Symbol    l6objects.Symbol
	LowSigma  float64
	HighSigma float64
	Low       float64
	High      float64
}

// Params is the resolved parameter set for one run. All lengths are in
// working CRS units and all areas in squared working units.
type Params struct {
	// Tiling and rasterization
	TileSize            float64
	TileMargin          float64
	GridSize            int
	SmoothingRadius     int
	SmoothingIterations int
	SlopeRadius         int
	FillIterations      int

	// Cartography
	MinArea           float64
	SimplifyTolerance float64
	MergeTolerance    float64

	// Feature classes
	ContourInterval   float64
	BasemapInterval   float64
	IndexContourEvery int
	GreenThresholds   []float64
	OpenLandThreshold float64
	CliffSlopeDegrees float64
	BoulderMaxArea    float64
	IntensityBands    []IntensityBand

	EnableBasemap   bool
	EnableCliffs    bool
	EnableGreen     bool
	EnableOpenLand  bool
	EnableIntensity bool

	// Coordinate reference systems; zero means "not set".
	WorkingEPSG      int
	OutputEPSG       int
	DefaultInputEPSG int

	Workers   int
	Area      *orb.Bound
	Generator string
}

// defaultFillIterations bounds how far ground elevation is extrapolated
// into cells without ground returns.
const defaultFillIterations = 3

// ParamsFromConfig validates cfg and resolves it into run parameters. A nil
// cfg yields the defaults.
func ParamsFromConfig(cfg *config.MapConfig) (Params, error) {
	if cfg == nil {
		cfg = config.EmptyMapConfig()
	}
	if err := cfg.Validate(); err != nil {
		return Params{}, fmt.Errorf("invalid configuration: %w", err)
	}

	p := Params{
		TileSize:            cfg.GetTileSize(),
		TileMargin:          cfg.GetTileMargin(),
		GridSize:            cfg.GetGridSize(),
		SmoothingRadius:     cfg.GetSmoothingRadius(),
		SmoothingIterations: cfg.GetSmoothingIterations(),
		SlopeRadius:         cfg.GetSlopeRadius(),
		FillIterations:      defaultFillIterations,
		MinArea:             cfg.MinFeatureAreaGround(),
		SimplifyTolerance:   cfg.GetSimplifyTolerance(),
		MergeTolerance:      cfg.GetMergeTolerance(),
		ContourInterval:     cfg.GetContourInterval(),
		BasemapInterval:     cfg.GetBasemapInterval(),
		IndexContourEvery:   cfg.GetIndexContourEvery(),
		GreenThresholds:     cfg.GetGreenThresholds(),
		OpenLandThreshold:   cfg.GetOpenLandThreshold(),
		CliffSlopeDegrees:   cfg.GetCliffSlopeDegrees(),
		BoulderMaxArea:      cfg.GetBoulderMaxArea(),
		EnableBasemap:       cfg.GetEnableBasemap(),
		EnableCliffs:        cfg.GetEnableCliffs(),
		EnableGreen:         cfg.GetEnableGreen(),
		EnableOpenLand:      cfg.GetEnableOpenLand(),
		EnableIntensity:     cfg.GetEnableIntensity(),
		WorkingEPSG:         cfg.GetWorkingEPSG(),
		OutputEPSG:          cfg.GetOutputEPSG(),
		DefaultInputEPSG:    cfg.GetDefaultInputEPSG(),
		Workers:             cfg.GetWorkers(),
		Generator:           version.Generator(),
	}

	for i, b := range cfg.GetIntensityBands() {
		sym, err := l6objects.ParseSymbol(b.Symbol)
		if err != nil {
			return Params{}, fmt.Errorf("intensity_bands[%d]: %w", i, err)
		}
		if sym.Kind() != l6objects.KindArea {
			return Params{}, fmt.Errorf("intensity_bands[%d]: %w: %s is a %s symbol", i, l6objects.ErrSymbolKind, sym, sym.Kind())
		}
		p.IntensityBands = append(p.IntensityBands, IntensityBand{Symbol: sym, LowSigma: b.LowSigma, HighSigma: b.HighSigma})
	}

	if a := cfg.Area; a != nil {
		p.Area = &orb.Bound{Min: orb.Point{a.MinX, a.MinY}, Max: orb.Point{a.MaxX, a.MaxY}}
	}
	return p, nil
}

// DeriveParams refines p with survey statistics: intensity bands expressed
// in standard deviations become absolute intensity ranges. p is not modified.
func DeriveParams(p Params, stats l1points.LidarStats) Params {
	out := p
	out.IntensityBands = make([]IntensityBand, len(p.IntensityBands))
	for i, b := range p.IntensityBands {
		b.Low, b.High = stats.IntensityRange(b.LowSigma, b.HighSigma)
		out.IntensityBands[i] = b
	}
	out.GreenThresholds = append([]float64(nil), p.GreenThresholds...)
	return out
}

// IsIndexLevel reports whether a contour at level is an index contour.
func (p Params) IsIndexLevel(level float64) bool {
	if p.IndexContourEvery <= 0 || !(p.ContourInterval > 0) {
		return false
	}
	k := math.Round(level / p.ContourInterval)
	return math.Mod(k, float64(p.IndexContourEvery)) == 0
}

// greenBand returns the vegetation ratio range [low, high) of band i.
func (p Params) greenBand(i int) (low, high float64) {
	low = p.GreenThresholds[i]
	high = math.Inf(1)
	if i+1 < len(p.GreenThresholds) {
		high = p.GreenThresholds[i+1]
	}
	return low, high
}
