// Package config loads deployment settings from the process environment.
//
// Settings are read once at startup and passed by value into every
// component that needs them. Nothing re-reads the environment per call.
package config

import (
	"os"
	"strings"
)

// Default CORS origins for local frontend development.
var defaultOrigins = []string{
	"http://localhost:5173",
	"http://localhost:3000",
	"http://127.0.0.1:5173",
}

// Settings holds all deployment configuration. Immutable after Load.
type Settings struct {
	// SupabaseURL is the base URL of the hosted backend (auth + REST).
	SupabaseURL string

	// SupabaseAnonKey is the public (anonymous) API key. All request-path
	// calls use this key exclusively.
	SupabaseAnonKey string

	// SupabaseServiceRoleKey is the administrative key. It exists for
	// operational scripts only and is never handed to request handlers.
	SupabaseServiceRoleKey string

	// SupabaseDBURL is the direct Postgres connection string.
	SupabaseDBURL string

	// OpenAIAPIKey enables the OpenAI embedder for the search index when
	// set. Optional; the index falls back to a local embedder without it.
	OpenAIAPIKey string

	// ONNXModelPath and ONNXTokenizerPath point at a local sentence
	// transformer for the search index. Only consulted by builds tagged
	// "onnx".
	ONNXModelPath     string
	ONNXTokenizerPath string

	// Port is the HTTP listen port.
	Port string

	// AllowedOrigins is the CORS allow-list.
	AllowedOrigins []string

	// IndexBackend selects the search index vector store:
	// "chromem" (default, embedded) or "pgvector".
	IndexBackend string
}

// Load reads Settings from the environment.
func Load() Settings {
	s := Settings{
		SupabaseURL:            os.Getenv("SUPABASE_URL"),
		SupabaseAnonKey:        os.Getenv("SUPABASE_ANON_KEY"),
		SupabaseServiceRoleKey: os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseDBURL:          os.Getenv("SUPABASE_DB_URL"),
		OpenAIAPIKey:           os.Getenv("OPENAI_API_KEY"),
		ONNXModelPath:          os.Getenv("ONNX_MODEL_PATH"),
		ONNXTokenizerPath:      os.Getenv("ONNX_TOKENIZER_PATH"),
		Port:                   os.Getenv("PORT"),
		IndexBackend:           os.Getenv("INDEX_BACKEND"),
	}

	if s.Port == "" {
		s.Port = "8080"
	}
	if s.IndexBackend == "" {
		s.IndexBackend = "chromem"
	}

	if raw := os.Getenv("ALLOWED_ORIGINS"); raw != "" {
		for _, o := range strings.Split(raw, ",") {
			if o = strings.TrimSpace(o); o != "" {
				s.AllowedOrigins = append(s.AllowedOrigins, o)
			}
		}
	} else {
		s.AllowedOrigins = append(s.AllowedOrigins, defaultOrigins...)
	}

	return s
}
