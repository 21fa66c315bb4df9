package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/paulmach/orb"
	"github.com/spf13/cobra"

	"github.com/banshee-data/lidar2map/internal/config"
	"github.com/banshee-data/lidar2map/internal/db"
	"github.com/banshee-data/lidar2map/internal/fsutil"
	"github.com/banshee-data/lidar2map/internal/lidar/l1points"
	"github.com/banshee-data/lidar2map/internal/lidar/monitor"
	"github.com/banshee-data/lidar2map/internal/lidar/pipeline"
	"github.com/banshee-data/lidar2map/internal/lidar/storage/sqlite"
	"github.com/banshee-data/lidar2map/internal/monitoring"
)

var _ pipeline.TilePlotter = (*monitor.TilePlotter)(nil)

type generateOptions struct {
	configPath  string
	output      string
	dbPath      string
	plotDir     string
	reportPath  string
	area        string
	workers     int
	workingEPSG int
	outputEPSG  int
	defaultEPSG int
}

func newGenerateCmd(a *app) *cobra.Command {
	o := &generateOptions{}
	cmd := &cobra.Command{
		Use:   "generate [flags] <input>...",
		Short: "Generate a map from point files, directories or glob patterns",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.generate(ctx, cmd.OutOrStdout(), cfg, o, args)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&o.configPath, "config", "c", "", "Mapping configuration JSON (defaults apply when empty)")
	f.StringVarP(&o.output, "output", "o", "map.geojson", "GeoJSON output path")
	f.StringVar(&o.dbPath, "db", "", "SQLite database recording the run (optional)")
	f.StringVar(&o.plotDir, "plot-dir", "", "Write a PNG per tile under this directory (optional)")
	f.StringVar(&o.reportPath, "report", "", "Write an HTML statistics report (optional)")
	f.StringVar(&o.area, "area", "", "Restrict output to min_x,min_y,max_x,max_y in the working CRS")
	f.IntVar(&o.workers, "workers", 0, "Tile workers (0 uses every CPU)")
	f.IntVar(&o.workingEPSG, "working-epsg", 0, "Working CRS (0 adopts the first input's CRS)")
	f.IntVar(&o.outputEPSG, "output-epsg", 0, "Output CRS (0 keeps the working CRS)")
	f.IntVar(&o.defaultEPSG, "default-epsg", 0, "CRS assumed for inputs without one")
	return cmd
}

// loadConfig reads the configuration and applies the flags the user set.
func (o *generateOptions) loadConfig(cmd *cobra.Command) (*config.MapConfig, error) {
	cfg := config.EmptyMapConfig()
	if o.configPath != "" {
		var err error
		if cfg, err = config.LoadMapConfig(o.configPath); err != nil {
			return nil, err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("workers") {
		cfg.Workers = &o.workers
	}
	if flags.Changed("working-epsg") {
		cfg.WorkingEPSG = &o.workingEPSG
	}
	if flags.Changed("output-epsg") {
		cfg.OutputEPSG = &o.outputEPSG
	}
	if flags.Changed("default-epsg") {
		cfg.DefaultInputEPSG = &o.defaultEPSG
	}
	if o.area != "" {
		b, err := parseArea(o.area)
		if err != nil {
			return nil, err
		}
		cfg.Area = &config.Area{MinX: b.Min[0], MinY: b.Min[1], MaxX: b.Max[0], MaxY: b.Max[1]}
	}
	return cfg, nil
}

func (a *app) generate(ctx context.Context, out io.Writer, cfg *config.MapConfig, o *generateOptions, args []string) error {
	p, err := pipeline.ParamsFromConfig(cfg)
	if err != nil {
		return err
	}
	names, err := expandInputs(a, args)
	if err != nil {
		return err
	}
	sources := make([]l1points.Opener, len(names))
	for i, name := range names {
		sources[i] = l1points.NewXYZOpener(a.fs, name)
	}

	g := pipeline.NewGenerator(p)
	summary := &monitoring.RecordingSink{}
	g.Sink = monitoring.MultiSink{monitoring.LogSink{}, summary}
	if raw, err := json.Marshal(cfg); err == nil {
		g.ConfigJSON = string(raw)
	}

	if o.dbPath != "" {
		d, err := db.OpenDB(o.dbPath)
		if err != nil {
			return err
		}
		defer d.Close()
		if err := d.MigrateUp(db.MigrationsFS()); err != nil {
			return err
		}
		g.Recorder = sqlite.NewRunStore(d.DB)
	}
	if o.plotDir != "" {
		tp, err := monitor.NewTilePlotter(a.fs, monitor.MakePlotOutputDir(o.plotDir, o.output, time.Now()))
		if err != nil {
			return err
		}
		g.Plotter = tp
	}

	monitoring.WithFields(map[string]interface{}{
		"inputs":  len(names),
		"workers": p.Workers,
		"tile":    p.TileSize,
	}).Info("generating map")

	res, err := g.Run(ctx, sources)
	if err != nil {
		return err
	}

	if err := writeGeoJSON(a, o.output, res); err != nil {
		return err
	}
	if o.reportPath != "" {
		if err := writeReport(a, o.reportPath, "lidar2map "+o.output, res.Files); err != nil {
			return err
		}
	}
	printSummary(out, res, summary)
	return nil
}

func expandInputs(a *app, args []string) ([]string, error) {
	names, err := fsutil.ExpandInputs(a.fs, args, inputExts...)
	if err != nil {
		return nil, fmt.Errorf("expand inputs: %w", err)
	}
	if len(names) == 0 {
		return nil, pipeline.ErrNoInputs
	}
	return names, nil
}

func writeGeoJSON(a *app, path string, res *pipeline.Result) error {
	data, err := res.Document.FeatureCollection().MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode GeoJSON: %w", err)
	}
	return writeFile(a, path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

func writeReport(a *app, path, title string, files []pipeline.FileResult) error {
	var stats []monitor.FileStats
	for _, f := range files {
		if f.Err == nil {
			stats = append(stats, monitor.FileStats{Name: f.Name, Stats: f.Stats})
		}
	}
	return writeFile(a, path, monitor.NewStatsReport(title, stats).Render)
}

func writeFile(a *app, path string, fn func(io.Writer) error) error {
	f, err := a.fs.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := fn(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func printSummary(out io.Writer, res *pipeline.Result, events *monitoring.RecordingSink) {
	done, failed := 0, 0
	for _, t := range res.Tiles {
		switch t.State {
		case pipeline.TileDone:
			done++
		case pipeline.TileFailed:
			failed++
		}
	}
	warnings := 0
	for _, e := range events.Events() {
		if e.Kind == monitoring.EventError && !e.Fatal {
			warnings++
		}
	}

	fmt.Fprintf(out, "run %s: %d points, %d tiles (%d failed), %d warnings\n",
		orNone(res.RunID), res.Stats.PointCount(), done+failed, failed, warnings)
	fmt.Fprintf(out, "EPSG %d -> %d, %d line joins\n", res.WorkingEPSG, res.OutputEPSG, res.Merged)
	counts := res.Document.Counts()
	for _, sym := range res.Document.Symbols() {
		if counts[sym] > 0 {
			fmt.Fprintf(out, "  %-16s %6d\n", sym, counts[sym])
		}
	}
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// parseArea reads "min_x,min_y,max_x,max_y".
func parseArea(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("area %q: want min_x,min_y,max_x,max_y", s)
	}
	var v [4]float64
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("area %q: %w", s, err)
		}
		v[i] = f
	}
	if !(v[2] > v[0] && v[3] > v[1]) {
		return orb.Bound{}, errors.New("area must have max greater than min")
	}
	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}
