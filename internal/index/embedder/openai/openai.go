// Package openai provides an API-based embedder using OpenAI's
// text-embedding-3-small model, via chromem-go's embedding func. Used
// when an OpenAI API key is configured.
package openai

import (
	"context"

	chromem "github.com/philippgille/chromem-go"
)

const dimensions = 1536 // text-embedding-3-small

// Embedder calls the OpenAI embeddings API.
type Embedder struct {
	fn chromem.EmbeddingFunc
}

// New creates an OpenAI embedder with the given API key.
func New(apiKey string) *Embedder {
	return &Embedder{
		fn: chromem.NewEmbeddingFuncOpenAI(apiKey, chromem.EmbeddingModelOpenAI3Small),
	}
}

// Embed converts text to an embedding vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.fn(ctx, text)
}

// Dimensions returns the embedding size.
func (e *Embedder) Dimensions() int {
	return dimensions
}
