package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	aliases []string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "MENTOR_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "llm.base_url", typ: kString, env: "MENTOR_LLM_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.LLM.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.BaseURL },
	},
	{
		key: "llm.chat_model", typ: kString, env: "MENTOR_LLM_CHAT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.ChatModel = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.ChatModel },
	},
	{
		key: "llm.vision_model", typ: kString, env: "MENTOR_LLM_VISION_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.VisionModel = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.VisionModel },
	},
	{
		key: "llm.embed_model", typ: kString, env: "MENTOR_LLM_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.EmbedModel },
	},
	{
		key: "llm.max_retries", typ: kInt, env: "MENTOR_LLM_MAX_RETRIES",
		apply:   func(cfg *Config, v any) { cfg.LLM.MaxRetries = v.(int) },
		extract: func(cfg Config) any { return cfg.LLM.MaxRetries },
	},
	{
		key: "llm.requests_per_second", typ: kFloat, env: "MENTOR_LLM_REQUESTS_PER_SECOND",
		apply:   func(cfg *Config, v any) { cfg.LLM.RequestsPerSecond = v.(float64) },
		extract: func(cfg Config) any { return cfg.LLM.RequestsPerSecond },
	},
	{
		key: "llm.timeout", typ: kDuration, env: "MENTOR_LLM_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.LLM.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.LLM.Timeout },
	},
	{
		key: "llm.api_key", typ: kString, env: "OPENAI_API_KEY",
		aliases: []string{"MENTOR_LLM_API_KEY"},
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.LLM.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.APIKey },
	},
	{
		key: "storage.data_dir", typ: kString, env: "MENTOR_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "knowledge.dir", typ: kString, env: "MENTOR_KNOWLEDGE_DIR",
		apply:   func(cfg *Config, v any) { cfg.Knowledge.Dir = v.(string) },
		extract: func(cfg Config) any { return cfg.Knowledge.Dir },
	},
	{
		key: "knowledge.top_k", typ: kInt, env: "MENTOR_KNOWLEDGE_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Knowledge.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Knowledge.TopK },
	},
	{
		key: "knowledge.min_similarity", typ: kFloat, env: "MENTOR_KNOWLEDGE_MIN_SIMILARITY",
		apply:   func(cfg *Config, v any) { cfg.Knowledge.MinSimilarity = v.(float64) },
		extract: func(cfg Config) any { return cfg.Knowledge.MinSimilarity },
	},
	{
		key: "knowledge.chunk_size", typ: kInt, env: "MENTOR_KNOWLEDGE_CHUNK_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Knowledge.ChunkSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Knowledge.ChunkSize },
	},
	{
		key: "knowledge.chunk_overlap", typ: kInt, env: "MENTOR_KNOWLEDGE_CHUNK_OVERLAP",
		apply:   func(cfg *Config, v any) { cfg.Knowledge.ChunkOverlap = v.(int) },
		extract: func(cfg Config) any { return cfg.Knowledge.ChunkOverlap },
	},
	{
		key: "vision.cache_dir", typ: kString, env: "MENTOR_VISION_CACHE_DIR",
		aliases: []string{"MENTOR_CACHE_DIR"},
		apply:   func(cfg *Config, v any) { cfg.Vision.CacheDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Vision.CacheDir },
	},
	{
		key: "vision.cache_ttl", typ: kDuration, env: "MENTOR_VISION_CACHE_TTL",
		apply:   func(cfg *Config, v any) { cfg.Vision.CacheTTL = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Vision.CacheTTL },
	},
	{
		key: "vision.cache_max_entries", typ: kInt, env: "MENTOR_VISION_CACHE_MAX_ENTRIES",
		apply:   func(cfg *Config, v any) { cfg.Vision.CacheMaxEntries = v.(int) },
		extract: func(cfg Config) any { return cfg.Vision.CacheMaxEntries },
	},
	{
		key: "orchestrator.agent_timeout", typ: kDuration, env: "MENTOR_ORCHESTRATOR_AGENT_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Orchestrator.AgentTimeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Orchestrator.AgentTimeout },
	},
	{
		key: "log.level", typ: kString, env: "MENTOR_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.dir", typ: kString, env: "MENTOR_LOG_DIR",
		apply:   func(cfg *Config, v any) { cfg.Log.Dir = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Dir },
	},
}

// parseValue converts a raw string to the key's type.
func parseValue(typ keyType, raw string) (any, error) {
	switch typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	case kDuration:
		return time.ParseDuration(raw)
	default:
		return raw, nil
	}
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		if s.typ == kInt {
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
			continue
		}
		raw, ok, err := b.GetString(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || raw == "" {
			continue
		}
		v, err := parseValue(s.typ, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse config key %s=%q: %v. Using default value.\n", s.key, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
	return nil
}

// envValue returns the first non-empty value among the key's variables.
func envValue(s keySpec) (string, string) {
	for _, name := range append([]string{s.env}, s.aliases...) {
		if name == "" {
			continue
		}
		if raw := os.Getenv(name); raw != "" {
			return name, raw
		}
	}
	return "", ""
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		name, raw := envValue(s)
		if raw == "" {
			continue
		}
		v, err := parseValue(s.typ, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s=%q: %v. Using default value.\n", name, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}
