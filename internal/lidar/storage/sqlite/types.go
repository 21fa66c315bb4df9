package sqlite

import "time"

// Run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
	RunCancelled = "cancelled"
)

// File statuses.
const (
	FileRead    = "read"
	FileSkipped = "skipped"
)

// Run is one generation run.
type Run struct {
	RunID       string
	StartedAt   time.Time
	FinishedAt  *time.Time
	Status      string
	Generator   string
	WorkingEPSG int
	OutputEPSG  int
	ConfigJSON  string
	ObjectCount int
	Error       string
}

// FileRecord is the outcome of reading one input file.
type FileRecord struct {
	RunID            string
	Path             string
	Status           string
	EPSG             int
	PointCount       uint64
	IntensityMean    float64
	IntensityStd     float64
	ElevationMin     float64
	ElevationMax     float64
	FirstReturnRatio float64
	Error            string
}

// TileRecord is the outcome of processing one tile.
type TileRecord struct {
	RunID       string
	TileID      string
	Row, Col    int
	State       string
	PointCount  int
	ObjectCount int
	Duration    time.Duration
	Error       string
}
