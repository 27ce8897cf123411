package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/silviosotelo/medical-ocr-service/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "medicalsync",
	Short: "Medical provider catalog ingestion pipeline",
	Long:  "Loads provider, catalog and price-agreement spreadsheets into Postgres, reconciling column spellings across revisions, deduplicating by business key and generating text embeddings for semantic search.",
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
