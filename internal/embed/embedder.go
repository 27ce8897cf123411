// Package embed converts display texts into semantic-search vectors using a
// remote embedding service, with batching, retry and rate limiting.
package embed

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// Embedder is the remote embedding service: one vector per non-empty input,
// in input order. Failures are generic transient errors.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// OpenAIEmbedder implements Embedder against an OpenAI-compatible API.
type OpenAIEmbedder struct {
	embedder embeddings.Embedder
}

// ClientOptions configures the embedding service client.
type ClientOptions struct {
	APIKey  string
	BaseURL string
	Model   string
}

// NewOpenAIEmbedder creates an embedding client for the configured service.
func NewOpenAIEmbedder(opts ClientOptions) (*OpenAIEmbedder, error) {
	client, err := openai.New(
		openai.WithToken(opts.APIKey),
		openai.WithBaseURL(opts.BaseURL),
		openai.WithEmbeddingModel(opts.Model),
	)
	if err != nil {
		return nil, eris.Wrap(err, "embed: create openai client")
	}

	emb, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, eris.Wrap(err, "embed: create embedder")
	}

	return &OpenAIEmbedder{embedder: emb}, nil
}

// EmbedTexts generates one vector per input text in a single remote call.
func (e *OpenAIEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, eris.Wrap(err, "embed: embed documents")
	}
	return vecs, nil
}
