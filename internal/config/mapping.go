package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// DefaultConfigPath is the path to the canonical mapping defaults file.
const DefaultConfigPath = "config/mapping.defaults.json"

// MapConfig is the root configuration for a generation run. Every field is
// optional; the Get* methods supply the default when a field is absent, so
// partial JSON files are safe.
type MapConfig struct {
	// Cartography
	Scale             *float64 `json:"scale,omitempty"`
	MinFeatureAreaMM2 *float64 `json:"min_feature_area_mm2,omitempty"`
	SimplifyTolerance *float64 `json:"simplify_tolerance,omitempty"` // metres
	MergeTolerance    *float64 `json:"merge_tolerance,omitempty"`    // metres

	// Contours
	ContourInterval   *float64 `json:"contour_interval,omitempty"`
	BasemapInterval   *float64 `json:"basemap_interval,omitempty"`
	IndexContourEvery *int     `json:"index_contour_every,omitempty"`

	// Vegetation ratios in [0, 1]; three green bands plus open land.
	GreenThresholds   []float64 `json:"green_thresholds,omitempty"`
	OpenLandThreshold *float64  `json:"open_land_threshold,omitempty"`

	// Rock
	CliffSlopeDegrees *float64 `json:"cliff_slope_degrees,omitempty"`
	BoulderMaxArea    *float64 `json:"boulder_max_area,omitempty"` // square metres

	IntensityBands []IntensityBand `json:"intensity_bands,omitempty"`

	// Coordinate reference systems. Zero means "same as the input".
	WorkingEPSG      *int `json:"working_epsg,omitempty"`
	OutputEPSG       *int `json:"output_epsg,omitempty"`
	DefaultInputEPSG *int `json:"default_input_epsg,omitempty"`

	// Tiling and rasterization
	TileSize            *float64 `json:"tile_size,omitempty"`   // metres
	TileMargin          *float64 `json:"tile_margin,omitempty"` // metres
	GridSize            *int     `json:"grid_size,omitempty"`   // cells per tile side
	SmoothingRadius     *int     `json:"smoothing_radius,omitempty"`
	SmoothingIterations *int     `json:"smoothing_iterations,omitempty"`
	SlopeRadius         *int     `json:"slope_radius,omitempty"`

	// Feature class switches
	EnableBasemap   *bool `json:"enable_basemap,omitempty"`
	EnableCliffs    *bool `json:"enable_cliffs,omitempty"`
	EnableGreen     *bool `json:"enable_green,omitempty"`
	EnableOpenLand  *bool `json:"enable_open_land,omitempty"`
	EnableIntensity *bool `json:"enable_intensity,omitempty"`

	Workers *int  `json:"workers,omitempty"` // 0 uses runtime.NumCPU()
	Area    *Area `json:"area,omitempty"`    // optional output area filter in working CRS
}

// IntensityBand selects cells whose mean intensity lies in
// [mean + LowSigma·σ, mean + HighSigma·σ) of the survey statistics.
type IntensityBand struct {
	Symbol    int     `json:"symbol"`
	LowSigma  float64 `json:"low_sigma"`
	HighSigma float64 `json:"high_sigma"`
}

// Area is an axis-aligned rectangle.
type Area struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyMapConfig returns a MapConfig with all fields unset.
func EmptyMapConfig() *MapConfig {
	return &MapConfig{}
}

// DefaultMapConfig returns a MapConfig with every field explicitly set to
// its default. It mirrors config/mapping.defaults.json.
func DefaultMapConfig() *MapConfig {
	c := EmptyMapConfig()
	return &MapConfig{
		Scale:               ptrFloat64(c.GetScale()),
		MinFeatureAreaMM2:   ptrFloat64(c.GetMinFeatureAreaMM2()),
		SimplifyTolerance:   ptrFloat64(c.GetSimplifyTolerance()),
		MergeTolerance:      ptrFloat64(c.GetMergeTolerance()),
		ContourInterval:     ptrFloat64(c.GetContourInterval()),
		BasemapInterval:     ptrFloat64(c.GetBasemapInterval()),
		IndexContourEvery:   ptrInt(c.GetIndexContourEvery()),
		GreenThresholds:     c.GetGreenThresholds(),
		OpenLandThreshold:   ptrFloat64(c.GetOpenLandThreshold()),
		CliffSlopeDegrees:   ptrFloat64(c.GetCliffSlopeDegrees()),
		BoulderMaxArea:      ptrFloat64(c.GetBoulderMaxArea()),
		IntensityBands:      c.GetIntensityBands(),
		WorkingEPSG:         ptrInt(c.GetWorkingEPSG()),
		OutputEPSG:          ptrInt(c.GetOutputEPSG()),
		DefaultInputEPSG:    ptrInt(c.GetDefaultInputEPSG()),
		TileSize:            ptrFloat64(c.GetTileSize()),
		TileMargin:          ptrFloat64(c.GetTileMargin()),
		GridSize:            ptrInt(c.GetGridSize()),
		SmoothingRadius:     ptrInt(c.GetSmoothingRadius()),
		SmoothingIterations: ptrInt(c.GetSmoothingIterations()),
		SlopeRadius:         ptrInt(c.GetSlopeRadius()),
		EnableBasemap:       ptrBool(c.GetEnableBasemap()),
		EnableCliffs:        ptrBool(c.GetEnableCliffs()),
		EnableGreen:         ptrBool(c.GetEnableGreen()),
		EnableOpenLand:      ptrBool(c.GetEnableOpenLand()),
		EnableIntensity:     ptrBool(c.GetEnableIntensity()),
		Workers:             ptrInt(0),
	}
}

// LoadMapConfig loads a MapConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
func LoadMapConfig(path string) (*MapConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyMapConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath.
// It searches the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *MapConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/lidar/pipeline/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadMapConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *MapConfig) Validate() error {
	if c.Scale != nil && *c.Scale <= 0 {
		return fmt.Errorf("scale must be positive, got %f", *c.Scale)
	}
	if c.ContourInterval != nil && *c.ContourInterval <= 0 {
		return fmt.Errorf("contour_interval must be positive, got %f", *c.ContourInterval)
	}
	if c.BasemapInterval != nil && *c.BasemapInterval < 0 {
		return fmt.Errorf("basemap_interval must be non-negative, got %f", *c.BasemapInterval)
	}
	if c.IndexContourEvery != nil && *c.IndexContourEvery < 0 {
		return fmt.Errorf("index_contour_every must be non-negative, got %d", *c.IndexContourEvery)
	}
	if len(c.GreenThresholds) > 3 {
		return fmt.Errorf("at most 3 green thresholds are supported, got %d", len(c.GreenThresholds))
	}
	for i, g := range c.GreenThresholds {
		if g < 0 || g > 1 {
			return fmt.Errorf("green_thresholds[%d] must be between 0 and 1, got %f", i, g)
		}
		if i > 0 && g <= c.GreenThresholds[i-1] {
			return fmt.Errorf("green_thresholds must be strictly increasing")
		}
	}
	if c.OpenLandThreshold != nil && (*c.OpenLandThreshold < 0 || *c.OpenLandThreshold > 1) {
		return fmt.Errorf("open_land_threshold must be between 0 and 1, got %f", *c.OpenLandThreshold)
	}
	if c.CliffSlopeDegrees != nil && (*c.CliffSlopeDegrees <= 0 || *c.CliffSlopeDegrees >= 90) {
		return fmt.Errorf("cliff_slope_degrees must be in (0, 90), got %f", *c.CliffSlopeDegrees)
	}
	for i, b := range c.IntensityBands {
		if b.HighSigma <= b.LowSigma {
			return fmt.Errorf("intensity_bands[%d]: high_sigma must exceed low_sigma", i)
		}
	}
	if c.TileSize != nil && *c.TileSize <= 0 {
		return fmt.Errorf("tile_size must be positive, got %f", *c.TileSize)
	}
	if c.TileMargin != nil && *c.TileMargin < 0 {
		return fmt.Errorf("tile_margin must be non-negative, got %f", *c.TileMargin)
	}
	if c.GetTileMargin() >= c.GetTileSize() {
		return fmt.Errorf("tile_margin (%f) must be smaller than tile_size (%f)", c.GetTileMargin(), c.GetTileSize())
	}
	if c.GridSize != nil && *c.GridSize < 4 {
		return fmt.Errorf("grid_size must be at least 4, got %d", *c.GridSize)
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}
	if c.Area != nil && (c.Area.MaxX <= c.Area.MinX || c.Area.MaxY <= c.Area.MinY) {
		return fmt.Errorf("area must have positive width and height")
	}
	return nil
}

// GetScale returns the map scale denominator or the default.
func (c *MapConfig) GetScale() float64 {
	if c.Scale == nil {
		return 10000
	}
	return *c.Scale
}

// GetMinFeatureAreaMM2 returns the smallest printable area in square map millimetres.
func (c *MapConfig) GetMinFeatureAreaMM2() float64 {
	if c.MinFeatureAreaMM2 == nil {
		return 0.25
	}
	return *c.MinFeatureAreaMM2
}

// MinFeatureAreaGround converts the printable minimum to square metres on the
// ground at the configured scale.
func (c *MapConfig) MinFeatureAreaGround() float64 {
	metresPerMM := c.GetScale() / 1000
	return c.GetMinFeatureAreaMM2() * metresPerMM * metresPerMM
}

// GetSimplifyTolerance returns the Douglas-Peucker tolerance in metres.
func (c *MapConfig) GetSimplifyTolerance() float64 {
	if c.SimplifyTolerance == nil {
		return 0.5
	}
	return *c.SimplifyTolerance
}

// GetMergeTolerance returns the endpoint tolerance for cross-tile line merging.
func (c *MapConfig) GetMergeTolerance() float64 {
	if c.MergeTolerance == nil {
		return 1.0
	}
	return *c.MergeTolerance
}

// GetContourInterval returns the contour interval or the default.
func (c *MapConfig) GetContourInterval() float64 {
	if c.ContourInterval == nil {
		return 5.0
	}
	return *c.ContourInterval
}

// GetBasemapInterval returns the basemap contour interval. Zero disables basemap contours.
func (c *MapConfig) GetBasemapInterval() float64 {
	if c.BasemapInterval == nil {
		return 0.5
	}
	return *c.BasemapInterval
}

// GetIndexContourEvery returns how many contour intervals separate index contours.
func (c *MapConfig) GetIndexContourEvery() int {
	if c.IndexContourEvery == nil {
		return 5
	}
	return *c.IndexContourEvery
}

// GetGreenThresholds returns the vegetation ratio thresholds for green 1-3.
func (c *MapConfig) GetGreenThresholds() []float64 {
	if len(c.GreenThresholds) == 0 {
		return []float64{0.2, 0.4, 0.6}
	}
	out := make([]float64, len(c.GreenThresholds))
	copy(out, c.GreenThresholds)
	return out
}

// GetOpenLandThreshold returns the vegetation ratio at or below which land is open.
func (c *MapConfig) GetOpenLandThreshold() float64 {
	if c.OpenLandThreshold == nil {
		return 0.05
	}
	return *c.OpenLandThreshold
}

// GetCliffSlopeDegrees returns the slope at which terrain is mapped as cliff.
func (c *MapConfig) GetCliffSlopeDegrees() float64 {
	if c.CliffSlopeDegrees == nil {
		return 45
	}
	return *c.CliffSlopeDegrees
}

// GetBoulderMaxArea returns the ground area below which a cliff becomes a boulder.
func (c *MapConfig) GetBoulderMaxArea() float64 {
	if c.BoulderMaxArea == nil {
		return 16
	}
	return *c.BoulderMaxArea
}

// GetIntensityBands returns the configured intensity bands or the default
// low-intensity (marsh) band.
func (c *MapConfig) GetIntensityBands() []IntensityBand {
	if len(c.IntensityBands) == 0 {
		return []IntensityBand{{Symbol: 308, LowSigma: -5, HighSigma: -2}}
	}
	out := make([]IntensityBand, len(c.IntensityBands))
	copy(out, c.IntensityBands)
	return out
}

// GetWorkingEPSG returns the working CRS; 0 adopts the first input's CRS.
func (c *MapConfig) GetWorkingEPSG() int {
	if c.WorkingEPSG == nil {
		return 0
	}
	return *c.WorkingEPSG
}

// GetOutputEPSG returns the output CRS; 0 keeps the working CRS.
func (c *MapConfig) GetOutputEPSG() int {
	if c.OutputEPSG == nil {
		return 0
	}
	return *c.OutputEPSG
}

// GetDefaultInputEPSG returns the CRS assumed for inputs without one.
func (c *MapConfig) GetDefaultInputEPSG() int {
	if c.DefaultInputEPSG == nil {
		return 3067
	}
	return *c.DefaultInputEPSG
}

// GetTileSize returns the tile side length in metres.
func (c *MapConfig) GetTileSize() float64 {
	if c.TileSize == nil {
		return 256
	}
	return *c.TileSize
}

// GetTileMargin returns the minimum overlap between neighbouring tiles.
func (c *MapConfig) GetTileMargin() float64 {
	if c.TileMargin == nil {
		return 32
	}
	return *c.TileMargin
}

// GetGridSize returns the raster side length in cells.
func (c *MapConfig) GetGridSize() int {
	if c.GridSize == nil {
		return 256
	}
	return *c.GridSize
}

// GetSmoothingRadius returns the smoothing kernel radius in cells.
func (c *MapConfig) GetSmoothingRadius() int {
	if c.SmoothingRadius == nil {
		return 1
	}
	return *c.SmoothingRadius
}

// GetSmoothingIterations returns the number of smoothing passes; 0 disables smoothing.
func (c *MapConfig) GetSmoothingIterations() int {
	if c.SmoothingIterations == nil {
		return 2
	}
	return *c.SmoothingIterations
}

// GetSlopeRadius returns the plane-fit neighbourhood radius in cells.
func (c *MapConfig) GetSlopeRadius() int {
	if c.SlopeRadius == nil {
		return 1
	}
	return *c.SlopeRadius
}

func (c *MapConfig) GetEnableBasemap() bool   { return boolOr(c.EnableBasemap, true) }
func (c *MapConfig) GetEnableCliffs() bool    { return boolOr(c.EnableCliffs, true) }
func (c *MapConfig) GetEnableGreen() bool     { return boolOr(c.EnableGreen, true) }
func (c *MapConfig) GetEnableOpenLand() bool  { return boolOr(c.EnableOpenLand, true) }
func (c *MapConfig) GetEnableIntensity() bool { return boolOr(c.EnableIntensity, false) }

// GetWorkers returns the worker pool size.
func (c *MapConfig) GetWorkers() int {
	if c.Workers == nil || *c.Workers == 0 {
		return runtime.NumCPU()
	}
	return *c.Workers
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
