package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
)

type Config struct {
	Server       ServerConfig
	LLM          LLMConfig
	Storage      StorageConfig
	Knowledge    KnowledgeConfig
	Vision       VisionConfig
	Orchestrator OrchestratorConfig
	Log          LogConfig
}

type ServerConfig struct {
	Port int
}

type LLMConfig struct {
	BaseURL           string
	ChatModel         string
	VisionModel       string
	EmbedModel        string
	MaxRetries        int
	RequestsPerSecond float64
	Timeout           time.Duration
	APIKey            string
}

type StorageConfig struct {
	DataDir string
}

type KnowledgeConfig struct {
	Dir           string
	TopK          int
	MinSimilarity float64
	ChunkSize     int
	ChunkOverlap  int
}

type VisionConfig struct {
	CacheDir        string
	CacheTTL        time.Duration
	CacheMaxEntries int
}

type OrchestratorConfig struct {
	AgentTimeout time.Duration
}

type LogConfig struct {
	Level string
	Dir   string
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Port: 8420,
		},
		LLM: LLMConfig{
			BaseURL:           "https://api.openai.com/v1",
			ChatModel:         "gpt-4o-mini",
			VisionModel:       "gpt-4o",
			EmbedModel:        "text-embedding-3-small",
			MaxRetries:        3,
			RequestsPerSecond: 5,
			Timeout:           60 * time.Second,
		},
		Storage: StorageConfig{
			DataDir: dataDir,
		},
		Knowledge: KnowledgeConfig{
			Dir:           filepath.Join(dataDir, "knowledge"),
			TopK:          5,
			MinSimilarity: 0.3,
			ChunkSize:     800,
			ChunkOverlap:  100,
		},
		Vision: VisionConfig{
			CacheDir:        filepath.Join(defaultCacheDir(), "vision"),
			CacheTTL:        24 * time.Hour,
			CacheMaxEntries: 256,
		},
		Orchestrator: OrchestratorConfig{
			AgentTimeout: 20 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
			Dir:   filepath.Join(dataDir, "interactions"),
		},
	}
}

// Load reads configuration from the JSON file backend
// ($XDG_CONFIG_HOME/mentor/config.json), then applies MENTOR_* environment
// overrides. The OpenAI key comes from OPENAI_API_KEY, falling back to
// $XDG_DATA_HOME/mentor/secrets.json. A missing key is not an error here;
// commands that call the model check it with RequireAPIKey.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), defaultSecrets())
}

func loadWith(b ConfigBackend, secrets secretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.LLM.APIKey == "" {
		if key, err := secrets.Get(appName, "openai_api_key"); err == nil && key != "" {
			cfg.LLM.APIKey = key
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid config: server.port %d out of range", c.Server.Port)
	}
	if c.Knowledge.ChunkOverlap >= c.Knowledge.ChunkSize {
		return fmt.Errorf("invalid config: knowledge.chunk_overlap (%d) must be smaller than knowledge.chunk_size (%d)",
			c.Knowledge.ChunkOverlap, c.Knowledge.ChunkSize)
	}
	if c.Knowledge.MinSimilarity < 0 || c.Knowledge.MinSimilarity > 1 {
		return fmt.Errorf("invalid config: knowledge.min_similarity %v outside [0,1]", c.Knowledge.MinSimilarity)
	}
	return nil
}

// RequireAPIKey reports a clear error when no OpenAI key is configured.
func (c Config) RequireAPIKey() error {
	if c.LLM.APIKey != "" {
		return nil
	}
	return errors.New("missing required config: OpenAI API key. Set it via environment variable OPENAI_API_KEY")
}

// SlogLevel maps log.level to a slog level; unknown values mean info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
