//go:build onnx

package main

import (
	"github.com/charmbracelet/log"

	"github.com/becomeliminal/multimem/internal/config"
	"github.com/becomeliminal/multimem/internal/index"
	"github.com/becomeliminal/multimem/internal/index/embedder/mock"
	"github.com/becomeliminal/multimem/internal/index/embedder/onnx"
)

// newLocalEmbedder prefers the ONNX sentence transformer when a model is
// configured, falling back to the hash embedder.
func newLocalEmbedder(cfg config.Settings, logger *log.Logger) (index.Embedder, error) {
	if cfg.ONNXModelPath == "" {
		logger.Warn("ONNX_MODEL_PATH not set, search index using hash embeddings")
		return mock.New(), nil
	}

	embedder, err := onnx.New(onnx.Config{
		ModelPath:     cfg.ONNXModelPath,
		TokenizerPath: cfg.ONNXTokenizerPath,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("search index using ONNX embeddings", "model", cfg.ONNXModelPath)
	return embedder, nil
}
