// multimem is the multi-memory chat backend: owner-scoped CRUD over the
// hosted Postgres store with best-effort semantic indexing of record
// text.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"github.com/becomeliminal/multimem/internal/auth"
	"github.com/becomeliminal/multimem/internal/config"
	"github.com/becomeliminal/multimem/internal/index"
	"github.com/becomeliminal/multimem/internal/index/embedder/openai"
	"github.com/becomeliminal/multimem/internal/index/store/chromem"
	"github.com/becomeliminal/multimem/internal/index/store/pgvec"
	"github.com/becomeliminal/multimem/internal/server"
	"github.com/becomeliminal/multimem/internal/storage"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("startup failed", "err", err)
	}
}

func run(ctx context.Context, cfg config.Settings, logger *log.Logger) error {
	store, err := storage.Open(ctx, cfg.SupabaseDBURL)
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info("store connected")

	idx, err := buildIndex(cfg, store, logger)
	if err != nil {
		return err
	}

	verifier := auth.NewVerifier(cfg, logger.With("component", "auth"))
	srv := server.New(store, idx, verifier, cfg.AllowedOrigins, logger.With("component", "http"))

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: srv.Handler(),
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", httpSrv.Addr)
		errc <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}

// buildIndex wires the search index: embedder choice follows the AI key
// (falling back to newLocalEmbedder, which the onnx build tag swaps out),
// vector store choice follows INDEX_BACKEND.
func buildIndex(cfg config.Settings, store *storage.Postgres, logger *log.Logger) (*index.Client, error) {
	var embedder index.Embedder
	var err error
	if cfg.OpenAIAPIKey != "" {
		embedder = openai.New(cfg.OpenAIAPIKey)
		logger.Info("search index using OpenAI embeddings")
	} else {
		embedder, err = newLocalEmbedder(cfg, logger)
		if err != nil {
			return nil, err
		}
	}

	cached, err := index.NewCachedEmbedder(embedder)
	if err != nil {
		return nil, err
	}

	var vs index.VectorStore
	switch cfg.IndexBackend {
	case "pgvector":
		vs = pgvec.New(store.Pool())
		logger.Info("search index backend: pgvector")
	default:
		vs, err = chromem.New()
		if err != nil {
			return nil, err
		}
		logger.Info("search index backend: chromem")
	}

	return index.NewClient(vs, cached, logger.With("component", "index")), nil
}
