// Package config loads ttyv configuration from defaults, an optional .env
// file, and TTYV_* environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Engine    EngineConfig
	Ingest    IngestConfig
	Cache     CacheConfig
	Retrieval RetrievalConfig
	Storage   StorageConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port int
	// APIToken guards the cache management endpoints. Empty disables auth,
	// which is acceptable for the local single-user deployment.
	APIToken string
}

type EngineConfig struct {
	// Provider selects the remote model backend: "gemini" or "openai".
	Provider      string
	GeminiAPIKey  string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	GenerateModel string
	EmbedModel    string
	// EmbedDim is the expected embedding vector length. Vectors of any
	// other length are treated as data corruption and rejected.
	EmbedDim int
	// RequestTimeout bounds single generate/embed calls.
	RequestTimeout time.Duration
	// AnalysisTimeout bounds the whole native video analysis, which can
	// legitimately take minutes.
	AnalysisTimeout time.Duration
}

type IngestConfig struct {
	ChunkDuration    float64
	ChunkMaxChars    int
	FrameInterval    int
	EmbedConcurrency int
	MaxRetries       int
	// WorkDir holds downloaded videos and sampled frames; empty means a
	// fresh temp dir per job.
	WorkDir string
}

type CacheConfig struct {
	Capacity int
}

type RetrievalConfig struct {
	TopK int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{Port: 8000},
		Engine: EngineConfig{
			Provider:        "gemini",
			GenerateModel:   "gemini-2.5-pro",
			EmbedModel:      "text-embedding-004",
			EmbedDim:        768,
			RequestTimeout:  30 * time.Second,
			AnalysisTimeout: 10 * time.Minute,
		},
		Ingest: IngestConfig{
			ChunkDuration:    30,
			ChunkMaxChars:    1500,
			FrameInterval:    10,
			EmbedConcurrency: 4,
			MaxRetries:       3,
		},
		Cache:     CacheConfig{Capacity: 1000},
		Retrieval: RetrievalConfig{TopK: 5},
		Storage:   StorageConfig{DataDir: defaultDataDir()},
		Log:       LogConfig{Level: "info"},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ttyv"
	}
	return filepath.Join(home, ".ttyv")
}

// Load reads configuration. A .env file in the working directory is applied
// first (ignored if absent), then TTYV_* environment variables override
// everything.
func Load() (Config, error) {
	_ = godotenv.Load()
	return loadFromEnv()
}

func loadFromEnv() (Config, error) {
	cfg := defaults()

	setString(&cfg.Server.APIToken, "TTYV_API_TOKEN")
	setInt(&cfg.Server.Port, "TTYV_PORT")

	setString(&cfg.Engine.Provider, "TTYV_ENGINE")
	setString(&cfg.Engine.GeminiAPIKey, "GEMINI_API_KEY")
	setString(&cfg.Engine.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&cfg.Engine.OpenAIBaseURL, "TTYV_OPENAI_BASE_URL")
	setString(&cfg.Engine.GenerateModel, "TTYV_GENERATE_MODEL")
	setString(&cfg.Engine.EmbedModel, "TTYV_EMBED_MODEL")
	setInt(&cfg.Engine.EmbedDim, "TTYV_EMBED_DIM")
	setDuration(&cfg.Engine.RequestTimeout, "TTYV_REQUEST_TIMEOUT")
	setDuration(&cfg.Engine.AnalysisTimeout, "TTYV_ANALYSIS_TIMEOUT")

	setFloat(&cfg.Ingest.ChunkDuration, "TTYV_CHUNK_DURATION")
	setInt(&cfg.Ingest.ChunkMaxChars, "TTYV_CHUNK_MAX_CHARS")
	setInt(&cfg.Ingest.FrameInterval, "TTYV_FRAME_INTERVAL")
	setInt(&cfg.Ingest.EmbedConcurrency, "TTYV_EMBED_CONCURRENCY")
	setInt(&cfg.Ingest.MaxRetries, "TTYV_MAX_RETRIES")
	setString(&cfg.Ingest.WorkDir, "TTYV_WORK_DIR")

	setInt(&cfg.Cache.Capacity, "TTYV_CACHE_CAPACITY")
	setInt(&cfg.Retrieval.TopK, "TTYV_TOP_K")
	setString(&cfg.Storage.DataDir, "TTYV_DATA_DIR")
	setString(&cfg.Log.Level, "TTYV_LOG_LEVEL")

	switch cfg.Engine.Provider {
	case "gemini":
		if cfg.Engine.GeminiAPIKey == "" {
			return Config{}, fmt.Errorf("missing required config: Gemini API key. Set GEMINI_API_KEY in the environment or a .env file")
		}
	case "openai":
		if cfg.Engine.OpenAIAPIKey == "" {
			return Config{}, fmt.Errorf("missing required config: OpenAI API key. Set OPENAI_API_KEY in the environment or a .env file")
		}
	default:
		return Config{}, fmt.Errorf("unknown engine provider %q (want gemini or openai)", cfg.Engine.Provider)
	}

	if cfg.Engine.EmbedDim <= 0 {
		return Config{}, fmt.Errorf("TTYV_EMBED_DIM must be positive, got %d", cfg.Engine.EmbedDim)
	}

	return cfg, nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
