package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/geocluster/internal/config"
	"github.com/sells-group/geocluster/internal/pointio"
)

// addInputFlags registers the point-file flags shared by fit, predict and
// transform.
func addInputFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("input", "i", "", "point file (.csv, .tsv, .xlsx, .shp, .geojson) or - for stdin")
	cmd.Flags().String("lon", "", "longitude column (default from config)")
	cmd.Flags().String("lat", "", "latitude column (default from config)")
	cmd.Flags().String("weight", "", "sample weight column")
	cmd.Flags().String("id", "", "sample id column (default from config)")
	cmd.Flags().String("sheet", "", "xlsx sheet name")
	cmd.Flags().String("encoding", "", "csv charset, e.g. latin1")
	_ = cmd.MarkFlagRequired("input")
}

// columns merges input flags over the configured defaults.
func columns(cmd *cobra.Command) pointio.Columns {
	c := pointio.Columns{
		Lon:    cfg.Input.LonColumn,
		Lat:    cfg.Input.LatColumn,
		Weight: cfg.Input.WeightColumn,
		ID:     cfg.Input.IDColumn,
		Sheet:  cfg.Input.Sheet,
	}
	for flag, dst := range map[string]*string{
		"lon":      &c.Lon,
		"lat":      &c.Lat,
		"weight":   &c.Weight,
		"id":       &c.ID,
		"sheet":    &c.Sheet,
		"encoding": &c.Encoding,
	} {
		if cmd.Flags().Changed(flag) {
			*dst, _ = cmd.Flags().GetString(flag)
		}
	}
	return c
}

// addClusterFlags registers engine flags. Unset flags keep config values.
func addClusterFlags(cmd *cobra.Command) {
	cmd.Flags().Int("k", 0, "number of clusters")
	cmd.Flags().String("init", "", "seeding: k-means++ or random")
	cmd.Flags().Int("n-init", 0, "restarts (0 = auto)")
	cmd.Flags().Int("max-iter", 0, "max iterations per restart")
	cmd.Flags().Float64("tol", 0, "relative center-shift tolerance")
	cmd.Flags().Uint64("seed", 0, "random seed")
	cmd.Flags().Int("workers", 0, "goroutines per iteration")
	cmd.Flags().String("metric", "", "haversine or euclidean")
}

// clusterConfig merges engine flags over the configured defaults.
func clusterConfig(cmd *cobra.Command) config.ClusterConfig {
	cc := cfg.Cluster
	f := cmd.Flags()
	if f.Changed("k") {
		cc.NClusters, _ = f.GetInt("k")
	}
	if f.Changed("init") {
		cc.Init, _ = f.GetString("init")
	}
	if f.Changed("n-init") {
		cc.NInit, _ = f.GetInt("n-init")
	}
	if f.Changed("max-iter") {
		cc.MaxIter, _ = f.GetInt("max-iter")
	}
	if f.Changed("tol") {
		cc.Tol, _ = f.GetFloat64("tol")
	}
	if f.Changed("seed") {
		cc.Seed, _ = f.GetUint64("seed")
	}
	if f.Changed("workers") {
		cc.Workers, _ = f.GetInt("workers")
	}
	if f.Changed("metric") {
		cc.Metric, _ = f.GetString("metric")
	}
	return cc
}

// addOutputFlags registers --output and --format.
func addOutputFlags(cmd *cobra.Command, formats string) {
	cmd.Flags().StringP("output", "o", "", "output file (default stdout)")
	cmd.Flags().StringP("format", "f", "json", "output format: "+formats)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// openOutput returns the --output file, or stdout.
func openOutput(cmd *cobra.Command) (io.WriteCloser, error) {
	path, _ := cmd.Flags().GetString("output")
	if path == "" || path == "-" {
		return nopCloser{cmd.OutOrStdout()}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, eris.Wrapf(err, "create output %s", path)
	}
	return f, nil
}
