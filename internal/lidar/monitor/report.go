package monitor

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/lidar2map/internal/lidar/l1points"
)

// FileStats names the statistics record of one input file.
type FileStats struct {
	Name  string
	Stats l1points.LidarStats
}

// StatsReport is an HTML page summarising the survey statistics: the return
// number histogram, intensity and elevation summaries, and the point count
// of every input file.
type StatsReport struct {
	Title string
	Total l1points.LidarStats
	Files []FileStats

	// AssetsHost overrides where the page loads the echarts scripts from.
	AssetsHost string
}

// NewStatsReport combines the per-file records into a report.
func NewStatsReport(title string, files []FileStats) *StatsReport {
	all := make([]l1points.LidarStats, len(files))
	for i, f := range files {
		all[i] = f.Stats
	}
	return &StatsReport{Title: title, Total: l1points.CombineAll(all), Files: files}
}

// Render writes the report as a self-contained HTML page.
func (r *StatsReport) Render(w io.Writer) error {
	page := components.NewPage()
	page.SetPageTitle(r.Title)
	if r.AssetsHost != "" {
		page.SetAssetsHost(r.AssetsHost)
	}
	page.AddCharts(r.returnsChart(), r.summaryChart())
	if len(r.Files) > 0 {
		page.AddCharts(r.filesChart())
	}
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render stats report: %w", err)
	}
	return nil
}

func (r *StatsReport) init(title, subtitle string) []charts.GlobalOpts {
	return []charts.GlobalOpts{
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px", AssetsHost: r.AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	}
}

// returnsChart plots the histogram up to the highest return number seen.
func (r *StatsReport) returnsChart() *charts.Bar {
	last := 1
	for i, c := range r.Total.ReturnHistogram {
		if c > 0 {
			last = i
		}
	}
	x := make([]string, 0, last+1)
	y := make([]opts.BarData, 0, last+1)
	for i := 0; i <= last; i++ {
		x = append(x, strconv.Itoa(i))
		y = append(y, opts.BarData{Value: r.Total.ReturnHistogram[i]})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(r.init("Return numbers",
		fmt.Sprintf("points=%d first returns=%.1f%%", r.Total.PointCount(), 100*r.Total.FirstReturnRatio()))...)
	bar.SetXAxis(x).
		AddSeries("returns", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}

func (r *StatsReport) summaryChart() *charts.Bar {
	x := []string{"Min", "Mean", "Max", "StdDev"}
	series := func(s l1points.Stat) []opts.BarData {
		return []opts.BarData{{Value: s.Min}, {Value: s.Mean}, {Value: s.Max}, {Value: s.StdDev}}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(r.init("Intensity and elevation", r.Title)...)
	bar.SetXAxis(x).
		AddSeries("intensity", series(r.Total.Intensity)).
		AddSeries("elevation (m)", series(r.Total.Elevation))
	return bar
}

func (r *StatsReport) filesChart() *charts.Bar {
	x := make([]string, len(r.Files))
	y := make([]opts.BarData, len(r.Files))
	for i, f := range r.Files {
		x[i] = f.Name
		y[i] = opts.BarData{Value: f.Stats.PointCount()}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(r.init("Points per file", fmt.Sprintf("files=%d", len(r.Files)))...)
	bar.SetXAxis(x).AddSeries("points", y)
	return bar
}
