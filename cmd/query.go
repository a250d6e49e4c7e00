package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/geocluster/internal/export"
	"github.com/sells-group/geocluster/internal/model"
	"github.com/sells-group/geocluster/internal/pointio"
	"github.com/sells-group/geocluster/internal/store"
	"github.com/sells-group/geocluster/pkg/geokmeans"
	"github.com/sells-group/geocluster/pkg/haversine"
)

// restoreRun loads a completed run and rebuilds its fitted engine.
func restoreRun(ctx context.Context, st store.Store, id string) (*model.Run, *geokmeans.KMeans, error) {
	run, err := st.GetRun(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if run.Status != model.RunStatusComplete || run.Result == nil {
		return nil, nil, eris.Errorf("run %s is %s, not complete", id, run.Status)
	}
	metric, err := geokmeans.ParseMetric(run.Params.Metric)
	if err != nil {
		return nil, nil, err
	}
	km, err := geokmeans.Restore(run.Result.CenterPoints(),
		geokmeans.WithMetric(metric),
		geokmeans.WithWorkers(cfg.Cluster.Workers),
		geokmeans.WithLogger(zap.L()),
	)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "restore run %s", id)
	}
	return run, km, nil
}

// loadQuery opens the store, restores --run and loads --input.
func loadQuery(cmd *cobra.Command) (*model.Run, *geokmeans.KMeans, *pointio.Dataset, func(), error) {
	ctx := cmd.Context()
	st, err := initStore(ctx)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	closeFn := func() { st.Close() } //nolint:errcheck

	run, km, err := restoreRun(ctx, st, mustString(cmd, "run"))
	if err != nil {
		closeFn()
		return nil, nil, nil, nil, err
	}
	ds, err := pointio.Load(ctx, mustString(cmd, "input"), columns(cmd))
	if err != nil {
		closeFn()
		return nil, nil, nil, nil, eris.Wrap(err, "load points")
	}
	return run, km, ds, closeFn, nil
}

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Assign points to the clusters of a stored run",
	RunE: func(cmd *cobra.Command, _ []string) error {
		format, err := export.ParseFormat(mustString(cmd, "format"))
		if err != nil {
			return err
		}
		run, km, ds, closeFn, err := loadQuery(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		labels, err := km.Predict(ds.X)
		if err != nil {
			return eris.Wrap(err, "predict")
		}

		result := &model.RunResult{
			Labels:  labels,
			Centers: run.Result.Centers,
			Sizes:   make([]int, len(run.Result.Centers)),
		}
		for _, l := range labels {
			result.Sizes[l]++
		}
		if score, err := km.Score(ds.X, ds.Weights); err == nil {
			result.Inertia = -score
		}

		out, err := openOutput(cmd)
		if err != nil {
			return err
		}
		defer out.Close() //nolint:errcheck
		return export.Write(out, format, export.Report{
			RunID:  run.ID,
			Params: run.Params,
			Result: result,
			IDs:    ds.IDs,
			X:      ds.X,
		})
	},
}

var transformCmd = &cobra.Command{
	Use:   "transform",
	Short: "Distances from points to every center of a stored run",
	RunE: func(cmd *cobra.Command, _ []string) error {
		unit := mustString(cmd, "unit")
		if unit != "km" && unit != "radians" {
			return eris.Errorf("transform: unknown unit %q", unit)
		}
		format := mustString(cmd, "format")
		if format != "json" && format != "csv" {
			return eris.Errorf("transform: unknown format %q", format)
		}

		run, km, ds, closeFn, err := loadQuery(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		dist, err := km.Transform(ds.X)
		if err != nil {
			return eris.Wrap(err, "transform")
		}
		if km.Options().Metric.Name() != "haversine" {
			unit = "degrees"
		} else if unit == "km" {
			for _, row := range dist {
				for j := range row {
					row[j] = haversine.Kilometers(row[j])
				}
			}
		}

		out, err := openOutput(cmd)
		if err != nil {
			return err
		}
		defer out.Close() //nolint:errcheck
		if format == "csv" {
			return writeDistancesCSV(out, ds.IDs, dist)
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"run_id":    run.ID,
			"unit":      unit,
			"ids":       ds.IDs,
			"distances": dist,
		})
	},
}

func writeDistancesCSV(w io.Writer, ids []string, dist [][]float64) error {
	cw := csv.NewWriter(w)
	if len(dist) > 0 {
		header := []string{"id"}
		for j := range dist[0] {
			header = append(header, "d"+strconv.Itoa(j))
		}
		if err := cw.Write(header); err != nil {
			return eris.Wrap(err, "write csv header")
		}
	}
	for i, row := range dist {
		rec := make([]string, 0, len(row)+1)
		rec = append(rec, ids[i])
		for _, d := range row {
			rec = append(rec, strconv.FormatFloat(d, 'f', -1, 64))
		}
		if err := cw.Write(rec); err != nil {
			return eris.Wrap(err, "write csv row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "flush csv")
}

func init() {
	for _, c := range []*cobra.Command{predictCmd, transformCmd} {
		addInputFlags(c)
		c.Flags().String("run", "", "run id")
		_ = c.MarkFlagRequired("run")
		rootCmd.AddCommand(c)
	}
	addOutputFlags(predictCmd, "json, yaml, csv, geojson")
	addOutputFlags(transformCmd, "json, csv")
	transformCmd.Flags().String("unit", "km", "distance unit for haversine runs: km or radians")
}
