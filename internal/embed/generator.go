package embed

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/silviosotelo/medical-ocr-service/internal/resilience"
)

// GeneratorOptions tunes the batched generation loop.
type GeneratorOptions struct {
	BatchSize  int     // max texts per remote call (default 50)
	MaxTextLen int     // truncate texts before sending (default 8000)
	RatePerSec float64 // pacing between batches (default 2 batches/sec)
	Retry      resilience.Policy
}

// Generator turns a sequence of display texts into a positionally aligned
// sequence of optional vectors. Empty texts are never sent to the service;
// a batch whose retries are exhausted leaves its positions nil and the run
// continues.
type Generator struct {
	embedder   Embedder
	batchSize  int
	maxTextLen int
	limiter    *rate.Limiter
	retry      resilience.Policy
}

// NewGenerator creates a Generator over the given embedding client.
func NewGenerator(e Embedder, opts GeneratorOptions) *Generator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.MaxTextLen <= 0 {
		opts.MaxTextLen = 8000
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 2.0
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = resilience.DefaultPolicy()
	}

	return &Generator{
		embedder:   e,
		batchSize:  opts.BatchSize,
		maxTextLen: opts.MaxTextLen,
		limiter:    rate.NewLimiter(rate.Limit(opts.RatePerSec), 1),
		retry:      opts.Retry,
	}
}

// Generate returns one vector per input text, aligned by position. Entries
// for empty texts are always nil. failed reports how many positions lost
// their vector to exhausted retries. The only returned error is context
// cancellation; remote failures degrade to nil vectors.
func (g *Generator) Generate(ctx context.Context, texts []string) (vecs [][]float32, failed int, err error) {
	log := zap.L().With(zap.String("component", "embed.generator"))

	vecs = make([][]float32, len(texts))

	// Positions with text to embed, in input order.
	var positions []int
	var payload []string
	for i, t := range texts {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		positions = append(positions, i)
		payload = append(payload, truncate(t, g.maxTextLen))
	}

	if len(payload) == 0 {
		return vecs, 0, nil
	}

	total := (len(payload) + g.batchSize - 1) / g.batchSize

	for b := 0; b*g.batchSize < len(payload); b++ {
		if err := ctx.Err(); err != nil {
			return vecs, failed, err
		}

		lo := b * g.batchSize
		hi := lo + g.batchSize
		if hi > len(payload) {
			hi = len(payload)
		}
		batch := payload[lo:hi]

		if err := g.limiter.Wait(ctx); err != nil {
			return vecs, failed, err
		}

		result, batchErr := resilience.DoVal(ctx, g.retry, func(ctx context.Context) ([][]float32, error) {
			return g.embedder.EmbedTexts(ctx, batch)
		})
		if batchErr == nil && len(result) != len(batch) {
			log.Warn("embedding service returned wrong vector count",
				zap.Int("want", len(batch)), zap.Int("got", len(result)))
			batchErr = errVectorCount
		}

		if batchErr != nil {
			if ctx.Err() != nil {
				return vecs, failed, ctx.Err()
			}
			// Exhausted retries: these positions stay without a vector.
			failed += len(batch)
			log.Warn("embedding batch failed, continuing without vectors",
				zap.Int("batch", b+1),
				zap.Int("batches", total),
				zap.Int("size", len(batch)),
				zap.Error(batchErr),
			)
			continue
		}

		for j, vec := range result {
			vecs[positions[lo+j]] = vec
		}

		log.Debug("embedding batch complete",
			zap.Int("batch", b+1), zap.Int("batches", total), zap.Int("size", len(batch)))
	}

	return vecs, failed, nil
}

var errVectorCount = eris.New("embed: vector count mismatch")

// truncate limits a text to n runes so oversized cells cannot blow the
// request payload.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
