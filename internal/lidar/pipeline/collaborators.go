package pipeline

import (
	"time"

	"github.com/banshee-data/lidar2map/internal/lidar/l2tiles"
	"github.com/banshee-data/lidar2map/internal/lidar/l6objects"
	"github.com/banshee-data/lidar2map/internal/lidar/storage/sqlite"
)

// RunRecorder persists run bookkeeping. *sqlite.RunStore implements it.
// Recorder failures are logged and never fail the run.
type RunRecorder interface {
	StartRun(run *sqlite.Run) error
	RecordFile(rec sqlite.FileRecord) error
	RecordTile(rec sqlite.TileRecord) error
	FinishRun(runID, status string, objects int, errMsg string, finishedAt time.Time) error
}

// TilePlotter renders the objects one tile produced. It is called from
// worker goroutines and must be safe for concurrent use.
type TilePlotter interface {
	PlotTile(tile l2tiles.Tile, objects []l6objects.Object) error
}

var _ RunRecorder = (*sqlite.RunStore)(nil)
