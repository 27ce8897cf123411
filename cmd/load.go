package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/silviosotelo/medical-ocr-service/internal/embed"
	"github.com/silviosotelo/medical-ocr-service/internal/ingest"
	"github.com/silviosotelo/medical-ocr-service/internal/resilience"
	"github.com/silviosotelo/medical-ocr-service/internal/store"
)

var (
	loadSkipEmbeddings bool
	loadOnlyEmbeddings bool
	loadOnlyEntity     string
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Run the ingestion pipeline",
	Long: `Load the provider, catalog and agreement spreadsheets into Postgres.

Entities load in dependency order (providers, catalog items, agreements),
then agreement counters are recomputed from the persisted rows. A schema
error aborts only the affected entity; the rest still load.

Use --skip-embeddings to load without calling the embedding service.
Use --only-embeddings to backfill missing vectors without reloading feeds.
Use --only to restrict the run to a single entity.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		log := zap.L().With(zap.String("command", "load"))

		switch loadOnlyEntity {
		case "", ingest.EntityProvider, ingest.EntityCatalog, ingest.EntityAgreement:
		default:
			return eris.Errorf("load: unknown entity %q (want provider, catalog or agreement)", loadOnlyEntity)
		}

		st, pool, err := connectStore(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		gen, err := buildGenerator()
		if err != nil {
			return err
		}
		if gen == nil && !loadSkipEmbeddings && !loadOnlyEmbeddings {
			log.Warn("no embedding api key configured, loading without embeddings")
		}

		runner := ingest.NewRunner(cfg, st, gen)
		results, runErr := runner.Run(ctx, ingest.RunnerOptions{
			SkipEmbeddings: loadSkipEmbeddings,
			OnlyEmbeddings: loadOnlyEmbeddings,
			Only:           loadOnlyEntity,
		})

		for _, res := range results {
			if res.Err != nil {
				log.Error("entity failed",
					zap.String("entity", res.Entity), zap.Error(res.Err))
				continue
			}
			log.Info("entity summary",
				zap.String("entity", res.Entity),
				zap.Int64("upserted", res.Upserted),
				zap.Int("skipped_rows", res.SkippedRows),
				zap.Int("failed_rows", res.FailedRows),
				zap.Int("embeddings_failed", res.EmbeddingsFailed))
		}

		if runErr != nil {
			return eris.Wrap(runErr, "load")
		}
		log.Info("load complete")
		return nil
	},
}

func init() {
	loadCmd.Flags().BoolVar(&loadSkipEmbeddings, "skip-embeddings", false,
		"load entities without calling the embedding service")
	loadCmd.Flags().BoolVar(&loadOnlyEmbeddings, "only-embeddings", false,
		"backfill missing embeddings only, do not reload feeds")
	loadCmd.Flags().StringVar(&loadOnlyEntity, "only", "",
		"load a single entity: provider, catalog or agreement")
	rootCmd.AddCommand(loadCmd)
}

// connectStore validates credentials and opens the Postgres pool.
func connectStore(ctx context.Context) (*store.Store, *pgxpool.Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	st, pool, err := store.Connect(ctx, cfg.DB.DSN())
	if err != nil {
		return nil, nil, err
	}

	fmt.Println("Connected to database")
	return st, pool, nil
}

// buildGenerator creates the embedding generator, or nil when no api key is
// configured.
func buildGenerator() (*embed.Generator, error) {
	if !cfg.Embedding.Enabled() {
		return nil, nil
	}

	embedder, err := embed.NewOpenAIEmbedder(embed.ClientOptions{
		APIKey:  cfg.Embedding.APIKey,
		BaseURL: cfg.Embedding.BaseURL,
		Model:   cfg.Embedding.Model,
	})
	if err != nil {
		return nil, err
	}

	retry := resilience.DefaultPolicy()
	retry.MaxAttempts = cfg.Embedding.MaxRetries
	retry.OnRetry = resilience.RetryLogger("embedding", "embed batch")

	return embed.NewGenerator(embedder, embed.GeneratorOptions{
		BatchSize:  cfg.Embedding.BatchSize,
		MaxTextLen: cfg.Embedding.MaxTextLen,
		RatePerSec: cfg.Embedding.RatePerSec,
		Retry:      retry,
	}), nil
}
