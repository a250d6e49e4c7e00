package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/geocluster/internal/model"
	"github.com/sells-group/geocluster/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect stored clustering runs",
	Long:  "Commands for listing, viewing, and deleting clustering runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List clustering runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		filter := store.RunFilter{
			Status: model.RunStatus(status),
			Limit:  limit,
			Offset: offset,
		}
		if filter.Status != "" && !filter.Status.Valid() {
			return eris.Errorf("runs list: invalid status %q", status)
		}

		runs, err := st.ListRuns(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(cmd.OutOrStdout(), runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs delete --

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <run-id>...",
	Short: "Delete runs",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		for _, id := range args {
			if err := st.DeleteRun(ctx, id); err != nil {
				return eris.Wrap(err, "runs delete")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
		}
		return nil
	},
}

func formatRunsList(w io.Writer, runs []model.Run) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tK\tPOINTS\tMETRIC\tINERTIA\tSOURCE\tCREATED")
	for _, r := range runs {
		inertia := "-"
		if r.Result != nil {
			inertia = fmt.Sprintf("%.6g", r.Result.Inertia)
		}
		source := r.Params.Source
		if source == "" {
			source = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\t%s\t%s\n",
			r.ID, r.Status, r.Params.NClusters, r.Params.NPoints, r.Params.Metric,
			inertia, source, r.CreatedAt.Local().Format(time.DateTime))
	}
	tw.Flush() //nolint:errcheck
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by status (queued, running, complete, failed)")
	runsListCmd.Flags().Int("limit", store.DefaultListLimit, "max runs to list")
	runsListCmd.Flags().Int("offset", 0, "runs to skip")

	runsCmd.AddCommand(runsListCmd, runsShowCmd, runsDeleteCmd)
	rootCmd.AddCommand(runsCmd)
}
