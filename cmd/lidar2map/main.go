// Command lidar2map turns LIDAR point clouds into orienteering base maps.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/banshee-data/lidar2map/internal/fsutil"
	"github.com/banshee-data/lidar2map/internal/lidar/pipeline"
	"github.com/banshee-data/lidar2map/internal/monitoring"
	"github.com/banshee-data/lidar2map/internal/version"
)

// inputExts are the point file extensions picked up from directories.
var inputExts = []string{".xyz", ".txt", ".csv"}

// app carries what every command shares. Tests swap the file system.
type app struct {
	fs      fsutil.FileSystem
	verbose bool
}

func main() {
	if err := newRootCmd(&app{fs: fsutil.OSFileSystem{}}, os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(a *app, stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "lidar2map",
		Short: "Generate orienteering base maps from LIDAR point clouds",
		Long: `lidar2map reads classified point clouds, splits the survey into overlapping
tiles, and derives contours, cliffs, vegetation and open land for each tile.
The merged map is written as GeoJSON with one feature per map object.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			monitoring.SetOutput(stderr)
			monitoring.SetVerbose(a.verbose)
			var detail io.Writer
			if a.verbose {
				detail = stderr
			}
			pipeline.SetLogWriters(stderr, detail, detail)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newGenerateCmd(a),
		newStatsCmd(a),
		newMigrateCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Show lidar2map version",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version.String())
			},
		},
	)
	return root
}
