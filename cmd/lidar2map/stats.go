package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/banshee-data/lidar2map/internal/lidar/l1points"
	"github.com/banshee-data/lidar2map/internal/lidar/monitor"
)

func newStatsCmd(a *app) *cobra.Command {
	var reportPath string
	cmd := &cobra.Command{
		Use:   "stats [flags] <input>...",
		Short: "Print point statistics for each input file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := expandInputs(a, args)
			if err != nil {
				return err
			}
			files := make([]monitor.FileStats, 0, len(names))
			for _, name := range names {
				stats, err := readStats(l1points.NewXYZOpener(a.fs, name))
				if err != nil {
					return err
				}
				files = append(files, monitor.FileStats{Name: name, Stats: stats})
			}
			report := monitor.NewStatsReport("lidar2map stats", files)
			printStats(cmd.OutOrStdout(), report)
			if reportPath != "" {
				return writeFile(a, reportPath, report.Render)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&reportPath, "report", "", "Also write an HTML report to this path")
	return cmd
}

func readStats(o l1points.Opener) (l1points.LidarStats, error) {
	r, err := o.Open()
	if err != nil {
		return l1points.LidarStats{}, fmt.Errorf("%s: %w", o.Name(), err)
	}
	defer r.Close()
	acc := l1points.NewStatsAccumulator()
	err = l1points.ReadAll(r, func(p l1points.Point) error {
		acc.Add(p)
		return nil
	})
	if err != nil {
		return l1points.LidarStats{}, fmt.Errorf("%s: %w", o.Name(), err)
	}
	return acc.Stats(), nil
}

func printStats(out io.Writer, r *monitor.StatsReport) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "file\tpoints\tintensity mean\tintensity σ\tz min\tz max\tfirst returns\t")
	row := func(name string, s l1points.LidarStats) {
		fmt.Fprintf(tw, "%s\t%d\t%.1f\t%.1f\t%.2f\t%.2f\t%.1f%%\t\n", name, s.PointCount(),
			s.Intensity.Mean, s.Intensity.StdDev, s.Elevation.Min, s.Elevation.Max, 100*s.FirstReturnRatio())
	}
	for _, f := range r.Files {
		row(f.Name, f.Stats)
	}
	if len(r.Files) > 1 {
		row("total", r.Total)
	}
	tw.Flush()
}
