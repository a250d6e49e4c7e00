package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/geocluster/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "geocluster",
	Short: "Geodesic k-means clustering of longitude/latitude points",
	Long: "Clusters geographic points under great-circle distance, stores runs, " +
		"and answers predict/transform queries from the CLI or over HTTP.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
