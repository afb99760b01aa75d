//go:build !onnx

package main

import (
	"github.com/charmbracelet/log"

	"github.com/becomeliminal/multimem/internal/config"
	"github.com/becomeliminal/multimem/internal/index"
	"github.com/becomeliminal/multimem/internal/index/embedder/mock"
)

// newLocalEmbedder returns the hash embedder. Builds tagged "onnx"
// replace this with the local sentence-transformer embedder.
func newLocalEmbedder(cfg config.Settings, logger *log.Logger) (index.Embedder, error) {
	logger.Warn("no AI provider key set, search index using hash embeddings")
	return mock.New(), nil
}
