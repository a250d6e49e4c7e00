package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the run store schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		zap.L().Info("store migrated", zap.String("driver", cfg.Store.Driver))
		return st.Close()
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
