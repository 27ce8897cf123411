package embed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silviosotelo/medical-ocr-service/internal/resilience"
)

// fakeEmbedder returns deterministic vectors and can be scripted to fail.
type fakeEmbedder struct {
	calls     int
	failCalls int         // fail the first n calls
	failBatch func(texts []string) bool
	seen      [][]string
}

func (f *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	f.seen = append(f.seen, append([]string(nil), texts...))
	if f.calls <= f.failCalls {
		return nil, resilience.NewTransientError(errors.New("service unavailable"), 503)
	}
	if f.failBatch != nil && f.failBatch(texts) {
		return nil, resilience.NewTransientError(errors.New("service unavailable"), 503)
	}
	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		vecs[i] = []float32{float32(len(t)), 1}
	}
	return vecs, nil
}

func noWait() resilience.Policy {
	return resilience.Policy{
		MaxAttempts: 3,
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}
}

func newTestGenerator(e Embedder, batchSize int) *Generator {
	return NewGenerator(e, GeneratorOptions{
		BatchSize:  batchSize,
		RatePerSec: 1e6, // no pacing in tests
		Retry:      noWait(),
	})
}

func TestGenerate_PositionalAlignment(t *testing.T) {
	fe := &fakeEmbedder{}
	g := newTestGenerator(fe, 10)

	vecs, failed, err := g.Generate(context.Background(), []string{"aa", "", "bbb", "   ", "c"})
	require.NoError(t, err)
	assert.Zero(t, failed)

	require.Len(t, vecs, 5)
	assert.Equal(t, []float32{2, 1}, vecs[0])
	assert.Nil(t, vecs[1], "empty text never gets a vector")
	assert.Equal(t, []float32{3, 1}, vecs[2])
	assert.Nil(t, vecs[3], "blank text never gets a vector")
	assert.Equal(t, []float32{1, 1}, vecs[4])

	// Empty texts were never sent to the service.
	require.Len(t, fe.seen, 1)
	assert.Equal(t, []string{"aa", "bbb", "c"}, fe.seen[0])
}

func TestGenerate_Batching(t *testing.T) {
	fe := &fakeEmbedder{}
	g := newTestGenerator(fe, 2)

	texts := []string{"a", "b", "c", "d", "e"}
	vecs, failed, err := g.Generate(context.Background(), texts)
	require.NoError(t, err)
	assert.Zero(t, failed)
	assert.Equal(t, 3, fe.calls, "5 texts at batch size 2 = 3 calls")
	for i := range texts {
		assert.NotNil(t, vecs[i])
	}
}

func TestGenerate_RetriesSameBatch(t *testing.T) {
	fe := &fakeEmbedder{failCalls: 2}
	g := newTestGenerator(fe, 10)

	vecs, failed, err := g.Generate(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Zero(t, failed)
	assert.Equal(t, 3, fe.calls)
	assert.Equal(t, fe.seen[0], fe.seen[1], "retry resends the same batch")
	assert.NotNil(t, vecs[0])
	assert.NotNil(t, vecs[1])
}

func TestGenerate_PartialBatchFailure(t *testing.T) {
	fe := &fakeEmbedder{failBatch: func(texts []string) bool {
		return texts[0] == "bad0" // every retry of the second batch fails
	}}
	g := newTestGenerator(fe, 50)

	var texts []string
	for i := 0; i < 50; i++ {
		texts = append(texts, fmt.Sprintf("ok%d", i))
	}
	for i := 0; i < 50; i++ {
		texts = append(texts, fmt.Sprintf("bad%d", i))
	}
	for i := 0; i < 10; i++ {
		texts = append(texts, fmt.Sprintf("tail%d", i))
	}

	vecs, failed, err := g.Generate(context.Background(), texts)
	require.NoError(t, err, "exhausted retries are not fatal")
	assert.Equal(t, 50, failed)

	for i := 0; i < 50; i++ {
		assert.NotNil(t, vecs[i])
	}
	for i := 50; i < 100; i++ {
		assert.Nil(t, vecs[i], "failed batch positions stay nil")
	}
	for i := 100; i < 110; i++ {
		assert.NotNil(t, vecs[i], "later batches still succeed")
	}
}

func TestGenerate_TruncatesLongTexts(t *testing.T) {
	fe := &fakeEmbedder{}
	g := NewGenerator(fe, GeneratorOptions{
		BatchSize:  10,
		MaxTextLen: 5,
		RatePerSec: 1e6,
		Retry:      noWait(),
	})

	_, _, err := g.Generate(context.Background(), []string{strings.Repeat("x", 100)})
	require.NoError(t, err)
	require.Len(t, fe.seen, 1)
	assert.Equal(t, "xxxxx", fe.seen[0][0])
}

func TestGenerate_AllEmpty(t *testing.T) {
	fe := &fakeEmbedder{}
	g := newTestGenerator(fe, 10)

	vecs, failed, err := g.Generate(context.Background(), []string{"", "  ", ""})
	require.NoError(t, err)
	assert.Zero(t, failed)
	assert.Zero(t, fe.calls, "nothing to embed, no remote call")
	assert.Len(t, vecs, 3)
}

func TestGenerate_ContextCancelled(t *testing.T) {
	fe := &fakeEmbedder{}
	g := newTestGenerator(fe, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := g.Generate(ctx, []string{"a", "b"})
	assert.Error(t, err)
}

func TestGenerate_VectorCountMismatchCountsAsFailure(t *testing.T) {
	bad := &shortEmbedder{}
	g := NewGenerator(bad, GeneratorOptions{
		BatchSize:  10,
		RatePerSec: 1e6,
		Retry:      resilience.Policy{MaxAttempts: 1, Sleep: func(context.Context, time.Duration) error { return nil }},
	})

	vecs, failed, err := g.Generate(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 2, failed)
	assert.Nil(t, vecs[0])
	assert.Nil(t, vecs[1])
}

// shortEmbedder returns fewer vectors than inputs.
type shortEmbedder struct{}

func (s *shortEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	return [][]float32{{1}}, nil
}
