package ingest

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/silviosotelo/medical-ocr-service/internal/config"
	"github.com/silviosotelo/medical-ocr-service/internal/embed"
	"github.com/silviosotelo/medical-ocr-service/internal/fetcher"
	"github.com/silviosotelo/medical-ocr-service/internal/model"
	"github.com/silviosotelo/medical-ocr-service/internal/store"
)

// Entity names accepted by the --only flag.
const (
	EntityProvider  = "provider"
	EntityCatalog   = "catalog"
	EntityAgreement = "agreement"
)

// RunnerOptions selects which parts of the pipeline execute.
type RunnerOptions struct {
	SkipEmbeddings bool   // load entities without calling the embedding service
	OnlyEmbeddings bool   // backfill missing vectors, touch nothing else
	Only           string // restrict the load to a single entity, empty for all
}

// EntityResult summarizes one entity's load.
type EntityResult struct {
	Entity           string
	Upserted         int64
	SkippedRows      int // rows dropped during parsing
	FailedRows       int // rows dropped during persistence
	EmbeddingsFailed int
	Err              error
}

// Runner orchestrates the full ingestion: providers, then catalog items,
// then agreements, then counter reconciliation. A schema or file error
// aborts only the affected entity; the remaining entities still run, and
// the aggregate error reflects any failure.
type Runner struct {
	cfg   *config.Config
	store *store.Store
	gen   *embed.Generator // nil disables embedding generation
}

// NewRunner wires the pipeline. Pass a nil generator to run without the
// embedding service.
func NewRunner(cfg *config.Config, st *store.Store, gen *embed.Generator) *Runner {
	return &Runner{cfg: cfg, store: st, gen: gen}
}

// Run executes the configured pipeline and returns per-entity results. The
// returned error is non-nil when any entity failed or when the run was
// cancelled; committed batches stay durable either way.
func (r *Runner) Run(ctx context.Context, opts RunnerOptions) ([]EntityResult, error) {
	if opts.OnlyEmbeddings {
		return r.backfillEmbeddings(ctx)
	}

	log := zap.L().With(zap.String("component", "ingest.runner"))

	type loadFn func(context.Context, bool) EntityResult
	loads := []struct {
		entity string
		fn     loadFn
	}{
		{EntityProvider, r.loadProviders},
		{EntityCatalog, r.loadCatalogItems},
		{EntityAgreement, r.loadAgreements},
	}

	var results []EntityResult
	for _, l := range loads {
		if opts.Only != "" && opts.Only != l.entity {
			continue
		}
		if err := ctx.Err(); err != nil {
			return results, eris.Wrap(err, "ingest: run cancelled")
		}

		res := r.recordLoad(ctx, l.entity, func(ctx context.Context) EntityResult {
			return l.fn(ctx, opts.SkipEmbeddings)
		})
		results = append(results, res)

		if res.Err != nil {
			log.Error("entity load failed", zap.String("entity", res.Entity), zap.Error(res.Err))
			continue
		}
		log.Info("entity load complete",
			zap.String("entity", res.Entity),
			zap.Int64("upserted", res.Upserted),
			zap.Int("skipped_rows", res.SkippedRows),
			zap.Int("failed_rows", res.FailedRows),
			zap.Int("embeddings_failed", res.EmbeddingsFailed))
	}

	if err := r.store.ReconcileCounters(ctx); err != nil {
		return results, err
	}

	for _, res := range results {
		if res.Err != nil {
			return results, eris.Errorf("ingest: %s load failed: %v", res.Entity, res.Err)
		}
	}
	return results, nil
}

// recordLoad brackets an entity load with an import_runs entry. Log-table
// failures are reported but never override the load's own outcome.
func (r *Runner) recordLoad(ctx context.Context, entity string, fn func(context.Context) EntityResult) EntityResult {
	log := zap.L().With(zap.String("component", "ingest.runner"))

	runID, err := r.store.StartLoad(ctx, entity)
	if err != nil {
		log.Warn("could not record load start", zap.String("entity", entity), zap.Error(err))
	}

	res := fn(ctx)
	res.Entity = entity

	if runID == uuid.Nil {
		return res
	}
	if res.Err != nil {
		if err := r.store.FailLoad(ctx, runID, res.Err.Error()); err != nil {
			log.Warn("could not record load failure", zap.Error(err))
		}
		return res
	}
	if err := r.store.CompleteLoad(ctx, runID, res.Upserted, res.SkippedRows+res.FailedRows); err != nil {
		log.Warn("could not record load completion", zap.Error(err))
	}
	return res
}

func (r *Runner) loadProviders(ctx context.Context, skipEmbeddings bool) EntityResult {
	var res EntityResult

	tbl, err := fetcher.ReadTable(r.cfg.Sources.Prestadores, fetcher.XLSXOptions{})
	if err != nil {
		res.Err = eris.Wrap(err, "ingest: read provider feed")
		return res
	}
	recs, err := ProviderSchema.Reconcile(tbl)
	if err != nil {
		res.Err = err
		return res
	}

	providers, skipped := ParseProviders(recs)
	res.SkippedRows = skipped
	providers = Dedupe(providers, func(p model.Provider) int { return p.ID }, KeepLast)

	if r.gen != nil && !skipEmbeddings {
		texts := make([]string, len(providers))
		for i, p := range providers {
			if p.Name != nil {
				texts[i] = *p.Name
			}
		}
		vecs, failed, err := r.gen.Generate(ctx, texts)
		if err != nil {
			res.Err = err
			return res
		}
		res.EmbeddingsFailed = failed
		for i := range providers {
			providers[i].NameEmbedding = vecs[i]
		}
	}

	batch, err := r.store.UpsertProviders(ctx, providers, r.cfg.Load.WriteBatchSize)
	res.Upserted = batch.Upserted
	res.FailedRows = batch.FailedRows
	res.Err = err
	return res
}

func (r *Runner) loadCatalogItems(ctx context.Context, skipEmbeddings bool) EntityResult {
	var res EntityResult

	recs, err := r.readMerged(r.cfg.Sources.Nomencladores, CatalogSchema)
	if err != nil {
		res.Err = err
		return res
	}

	items, skipped := ParseCatalogItems(recs)
	res.SkippedRows = skipped
	// The feeds are concatenated in listed order, so keep-last lets the
	// second feed's row win on a shared item id.
	items = Dedupe(items, func(it model.CatalogItem) int { return it.ID }, KeepLast)

	if r.gen != nil && !skipEmbeddings {
		texts := make([]string, len(items))
		for i, it := range items {
			if it.Description != nil {
				texts[i] = *it.Description
			}
		}
		vecs, failed, err := r.gen.Generate(ctx, texts)
		if err != nil {
			res.Err = err
			return res
		}
		res.EmbeddingsFailed = failed
		for i := range items {
			items[i].DescriptionEmbedding = vecs[i]
		}
	}

	batch, err := r.store.UpsertCatalogItems(ctx, items, r.cfg.Load.WriteBatchSize)
	res.Upserted = batch.Upserted
	res.FailedRows = batch.FailedRows
	res.Err = err
	return res
}

func (r *Runner) loadAgreements(ctx context.Context, _ bool) EntityResult {
	var res EntityResult

	recs, err := r.readMerged(r.cfg.Sources.Acuerdos, AgreementSchema)
	if err != nil {
		res.Err = err
		return res
	}

	agreements, skipped := ParseAgreements(recs)
	res.SkippedRows = skipped
	// First-seen prices win; later duplicates are dropped whole.
	agreements = Dedupe(agreements, model.Agreement.Key, KeepFirst)

	batch, err := r.store.UpsertAgreements(ctx, agreements, r.cfg.Load.WriteBatchSize)
	res.Upserted = batch.Upserted
	res.FailedRows = batch.FailedRows
	res.Err = err
	return res
}

// readMerged reads and reconciles every listed feed, concatenating records
// in listed order. A missing file or unmatched required column in any feed
// fails the whole entity.
func (r *Runner) readMerged(paths []string, schema Schema) ([]Record, error) {
	var all []Record
	for _, path := range paths {
		tbl, err := fetcher.ReadTable(path, fetcher.XLSXOptions{})
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: read %s feed %s", schema.Entity, path)
		}
		recs, err := schema.Reconcile(tbl)
		if err != nil {
			return nil, err
		}
		all = append(all, recs...)
	}
	return all, nil
}

// backfillEmbeddings computes vectors for rows that never received one,
// updating only the embedding column. Requires a configured generator.
func (r *Runner) backfillEmbeddings(ctx context.Context) ([]EntityResult, error) {
	if r.gen == nil {
		return nil, eris.New("ingest: embedding backfill requires an embedding api key")
	}

	log := zap.L().With(zap.String("component", "ingest.backfill"))

	type target struct {
		entity  string
		pending func(context.Context) ([]store.PendingEmbedding, error)
		set     func(context.Context, []int, [][]float32) (int, error)
	}
	targets := []target{
		{EntityProvider, r.store.PendingProviderEmbeddings, r.store.SetProviderEmbeddings},
		{EntityCatalog, r.store.PendingCatalogEmbeddings, r.store.SetCatalogEmbeddings},
	}

	var results []EntityResult
	for _, tg := range targets {
		res := EntityResult{Entity: tg.entity}

		pending, err := tg.pending(ctx)
		if err != nil {
			res.Err = err
			results = append(results, res)
			continue
		}
		if len(pending) == 0 {
			results = append(results, res)
			continue
		}

		ids := make([]int, len(pending))
		texts := make([]string, len(pending))
		for i, p := range pending {
			ids[i] = p.ID
			texts[i] = p.Text
		}

		vecs, failed, err := r.gen.Generate(ctx, texts)
		if err != nil {
			res.Err = err
			results = append(results, res)
			return results, err
		}
		res.EmbeddingsFailed = failed

		updated, err := tg.set(ctx, ids, vecs)
		res.Upserted = int64(updated)
		res.Err = err
		results = append(results, res)

		log.Info("embedding backfill complete",
			zap.String("entity", tg.entity),
			zap.Int("pending", len(pending)),
			zap.Int("updated", updated),
			zap.Int("failed", failed))
	}

	for _, res := range results {
		if res.Err != nil {
			return results, eris.Errorf("ingest: %s backfill failed: %v", res.Entity, res.Err)
		}
	}
	return results, nil
}
