package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/geocluster/internal/export"
	"github.com/sells-group/geocluster/internal/model"
	"github.com/sells-group/geocluster/internal/pointio"
	"github.com/sells-group/geocluster/internal/store"
	"github.com/sells-group/geocluster/pkg/geokmeans"
)

var fitCmd = &cobra.Command{
	Use:   "fit",
	Short: "Cluster a point file",
	Long: `Reads longitude/latitude points, fits geodesic k-means and writes the
centers and per-point labels.

Examples:
  geocluster fit --input stores.csv --k 8 --seed 1
  geocluster fit --input stores.xlsx --weight revenue --k 5 --format geojson -o clusters.geojson
  geocluster fit --input stores.shp --k 3 --save`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		input, _ := cmd.Flags().GetString("input")
		ds, err := pointio.Load(ctx, input, columns(cmd))
		if err != nil {
			return eris.Wrap(err, "fit: load points")
		}
		zap.L().Info("loaded points", zap.String("input", input), zap.Int("n", ds.Len()))

		format, err := export.ParseFormat(mustString(cmd, "format"))
		if err != nil {
			return err
		}

		opts, err := clusterConfig(cmd).Options()
		if err != nil {
			return err
		}
		km, err := geokmeans.New(append(opts, geokmeans.WithLogger(zap.L()))...)
		if err != nil {
			return err
		}

		if err := geokmeans.Validate(ds.X, ds.Weights, km.Options().NClusters); err != nil {
			return eris.Wrap(err, "fit")
		}

		var (
			st  store.Store
			run *model.Run
		)
		params := model.ParamsFromOptions(km.Options(), input, ds.Len())
		if save, _ := cmd.Flags().GetBool("save"); save {
			if st, err = initStore(ctx); err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck

			if run, err = st.CreateRun(ctx, params); err != nil {
				return err
			}
			if err := st.UpdateRunStatus(ctx, run.ID, model.RunStatusRunning); err != nil {
				return err
			}
		}

		res, err := km.Fit(ctx, ds.X, ds.Weights)
		if err != nil {
			if run != nil {
				if ferr := st.FailRun(context.WithoutCancel(ctx), run.ID, err.Error()); ferr != nil {
					zap.L().Error("fit: record failure", zap.String("run_id", run.ID), zap.Error(ferr))
				}
			}
			return eris.Wrap(err, "fit")
		}
		result := model.NewRunResult(res)

		report := export.Report{Params: params, Result: result, IDs: ds.IDs, X: ds.X}
		if run != nil {
			if err := st.UpdateRunResult(ctx, run.ID, result); err != nil {
				return err
			}
			report.RunID = run.ID
		}

		zap.L().Info("fit complete",
			zap.String("run_id", report.RunID),
			zap.Int("n_clusters", res.NClusters()),
			zap.Float64("inertia", res.Inertia),
			zap.Int("n_iter", res.NIter),
			zap.Bool("converged", res.Converged),
		)

		out, err := openOutput(cmd)
		if err != nil {
			return err
		}
		defer out.Close() //nolint:errcheck
		return export.Write(out, format, report)
	},
}

func mustString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}

func init() {
	addInputFlags(fitCmd)
	addClusterFlags(fitCmd)
	addOutputFlags(fitCmd, "json, yaml, csv, geojson")
	fitCmd.Flags().Bool("save", false, "persist the run to the configured store")
	rootCmd.AddCommand(fitCmd)
}
