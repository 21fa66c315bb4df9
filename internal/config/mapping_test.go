package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestDefaultMapConfig(t *testing.T) {
	cfg := DefaultMapConfig()

	// Test that defaults are set via pointers
	if cfg.Scale == nil || *cfg.Scale != 10000 {
		t.Errorf("Expected Scale 10000, got %v", cfg.Scale)
	}
	if cfg.ContourInterval == nil || *cfg.ContourInterval != 5.0 {
		t.Errorf("Expected ContourInterval 5.0, got %v", cfg.ContourInterval)
	}
	if cfg.EnableIntensity == nil || *cfg.EnableIntensity != false {
		t.Errorf("Expected EnableIntensity false, got %v", cfg.EnableIntensity)
	}
	if len(cfg.GreenThresholds) != 3 {
		t.Errorf("Expected 3 green thresholds, got %d", len(cfg.GreenThresholds))
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
	if cfg.GetWorkers() != runtime.NumCPU() {
		t.Errorf("GetWorkers() = %d, want NumCPU", cfg.GetWorkers())
	}
}

func TestDefaultsFileMatchesDefaultMapConfig(t *testing.T) {
	fileCfg := MustLoadDefaultConfig()
	def := DefaultMapConfig()

	if fileCfg.GetScale() != def.GetScale() {
		t.Errorf("scale: file %v, code %v", fileCfg.GetScale(), def.GetScale())
	}
	if fileCfg.GetTileSize() != def.GetTileSize() || fileCfg.GetTileMargin() != def.GetTileMargin() {
		t.Errorf("tiling defaults differ between file and code")
	}
	if fileCfg.GetGridSize() != def.GetGridSize() {
		t.Errorf("grid_size: file %d, code %d", fileCfg.GetGridSize(), def.GetGridSize())
	}
	if fileCfg.GetDefaultInputEPSG() != def.GetDefaultInputEPSG() {
		t.Errorf("default_input_epsg differs")
	}
}

func TestMinFeatureAreaGround(t *testing.T) {
	cfg := &MapConfig{Scale: ptrFloat64(10000), MinFeatureAreaMM2: ptrFloat64(0.25)}
	// 1 mm at 1:10000 is 10 m, so 0.25 mm² is 25 m².
	if got := cfg.MinFeatureAreaGround(); got != 25 {
		t.Errorf("MinFeatureAreaGround() = %v, want 25", got)
	}
}

func TestLoadMapConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	testJSON := `{
  "scale": 15000,
  "contour_interval": 2.5,
  "green_thresholds": [0.1, 0.3],
  "enable_cliffs": false,
  "area": {"min_x": 0, "min_y": 0, "max_x": 500, "max_y": 400}
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadMapConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.GetScale() != 15000 {
		t.Errorf("Expected scale 15000, got %v", cfg.GetScale())
	}
	if cfg.GetContourInterval() != 2.5 {
		t.Errorf("Expected contour interval 2.5, got %v", cfg.GetContourInterval())
	}
	if got := cfg.GetGreenThresholds(); len(got) != 2 || got[1] != 0.3 {
		t.Errorf("unexpected green thresholds %v", got)
	}
	if cfg.GetEnableCliffs() {
		t.Error("Expected cliffs disabled")
	}
	// Unset fields keep defaults.
	if cfg.GetTileSize() != 256 {
		t.Errorf("Expected default tile size 256, got %v", cfg.GetTileSize())
	}
	if cfg.Area == nil || cfg.Area.MaxX != 500 {
		t.Errorf("Expected area filter to load, got %+v", cfg.Area)
	}
}

func TestLoadMapConfigMissing(t *testing.T) {
	_, err := LoadMapConfig("/nonexistent/path/to/config.json")
	if err == nil {
		t.Error("Expected error when loading missing file, got nil")
	}
}

func TestLoadMapConfigWrongExtension(t *testing.T) {
	_, err := LoadMapConfig("/tmp/config.yaml")
	if err == nil {
		t.Error("Expected error for non-json extension, got nil")
	}
}

func TestLoadMapConfigInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid_config.json")

	invalidJSON := `{
  "scale": "invalid"
`
	if err := os.WriteFile(configPath, []byte(invalidJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	_, err := LoadMapConfig(configPath)
	if err == nil {
		t.Error("Expected error when loading invalid JSON, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *MapConfig
		wantErr bool
	}{
		{name: "valid config", cfg: DefaultMapConfig()},
		{name: "empty config is valid", cfg: &MapConfig{}},
		{name: "negative scale", cfg: &MapConfig{Scale: ptrFloat64(-1)}, wantErr: true},
		{name: "zero contour interval", cfg: &MapConfig{ContourInterval: ptrFloat64(0)}, wantErr: true},
		{name: "too many green bands", cfg: &MapConfig{GreenThresholds: []float64{0.1, 0.2, 0.3, 0.4}}, wantErr: true},
		{name: "green not increasing", cfg: &MapConfig{GreenThresholds: []float64{0.4, 0.2}}, wantErr: true},
		{name: "green out of range", cfg: &MapConfig{GreenThresholds: []float64{1.5}}, wantErr: true},
		{name: "cliff slope 90", cfg: &MapConfig{CliffSlopeDegrees: ptrFloat64(90)}, wantErr: true},
		{name: "margin not below tile size", cfg: &MapConfig{TileSize: ptrFloat64(50), TileMargin: ptrFloat64(50)}, wantErr: true},
		{name: "tiny grid", cfg: &MapConfig{GridSize: ptrInt(2)}, wantErr: true},
		{name: "bad intensity band", cfg: &MapConfig{IntensityBands: []IntensityBand{{Symbol: 308, LowSigma: 1, HighSigma: 0}}}, wantErr: true},
		{name: "empty area", cfg: &MapConfig{Area: &Area{MinX: 10, MaxX: 10, MinY: 0, MaxY: 5}}, wantErr: true},
		{name: "negative workers", cfg: &MapConfig{Workers: ptrInt(-2)}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
