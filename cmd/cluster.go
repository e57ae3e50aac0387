package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/mapsync/internal/cluster"
	"github.com/sells-group/mapsync/internal/geo"
	"github.com/sells-group/mapsync/internal/loop"
	"github.com/sells-group/mapsync/internal/source"
	"github.com/sells-group/mapsync/internal/view"
)

var clusterCmd = &cobra.Command{
	Use:   "cluster <source-path>",
	Short: "Run one clustering pass over a feature source and print GeoJSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runCluster,
}

func init() {
	clusterCmd.Flags().String("driver", "geojson", "source driver: geojson, shapefile, sqlite")
	clusterCmd.Flags().Float64("zoom", 8, "zoom level to cluster at")
	clusterCmd.Flags().Float64("lng", 0, "view center longitude (defaults to data centroid)")
	clusterCmd.Flags().Float64("lat", 0, "view center latitude")
	clusterCmd.Flags().Float64("threshold", 60, "merge distance in pixels")
	clusterCmd.Flags().Float64("width", 1280, "viewport width in pixels")
	clusterCmd.Flags().Float64("height", 800, "viewport height in pixels")
	rootCmd.AddCommand(clusterCmd)
}

func runCluster(cmd *cobra.Command, args []string) error {
	driver, _ := cmd.Flags().GetString("driver")
	zoom, _ := cmd.Flags().GetFloat64("zoom")
	threshold, _ := cmd.Flags().GetFloat64("threshold")
	width, _ := cmd.Flags().GetFloat64("width")
	height, _ := cmd.Flags().GetFloat64("height")

	feats, err := source.Load(cmd.Context(), driver, args[0])
	if err != nil {
		return err
	}

	center := geo.LngLat{}
	if cmd.Flags().Changed("lng") || cmd.Flags().Changed("lat") {
		center.Lng, _ = cmd.Flags().GetFloat64("lng")
		center.Lat, _ = cmd.Flags().GetFloat64("lat")
	} else {
		coords := make([]geo.LngLat, len(feats))
		for i, f := range feats {
			coords[i] = f.Coord
		}
		if b, ok := geo.BoundsOf(coords); ok {
			center = b.Center()
		}
	}

	l := loop.New()
	defer l.Stop()
	cam := view.NewCamera(l, view.CameraOptions{
		Center:   center,
		Zoom:     zoom,
		Viewport: geo.Viewport{Width: width, Height: height},
	})

	points := make([]cluster.Point, 0, len(feats))
	for _, f := range feats {
		sp, err := cam.Project(f.Coord)
		if err != nil {
			continue
		}
		points = append(points, cluster.Point{FeatureID: f.ID, Screen: sp, Coord: f.Coord})
	}

	res := cluster.Compute(points, threshold, nil, cam.Unproject)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Clusters   []cluster.Cluster `json:"clusters"`
		Singletons []string          `json:"singletons"`
	}{res.Clusters, res.Singletons})
}
