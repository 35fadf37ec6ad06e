package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/kalambet/mentor/internal/config"
	"github.com/kalambet/mentor/internal/interactions"
	"github.com/kalambet/mentor/internal/knowledge"
	"github.com/kalambet/mentor/internal/llm"
	"github.com/kalambet/mentor/internal/session"
	"github.com/kalambet/mentor/internal/storage"
	"github.com/kalambet/mentor/internal/tutor"
	"github.com/kalambet/mentor/internal/vision"
)

// app holds the components shared by the serve, chat, search and ingest
// commands.
type app struct {
	store   *storage.Store
	logger  *interactions.Logger
	service *tutor.Service
}

func newProvider(cfg config.Config) *llm.Retrying {
	client := llm.NewOpenAIClient(llm.OpenAIConfig{
		APIKey:            cfg.LLM.APIKey,
		BaseURL:           cfg.LLM.BaseURL,
		ChatModel:         cfg.LLM.ChatModel,
		VisionModel:       cfg.LLM.VisionModel,
		EmbedModel:        cfg.LLM.EmbedModel,
		Timeout:           cfg.LLM.Timeout,
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
	})
	return llm.NewRetrying(client, cfg.LLM.MaxRetries, 0)
}

// openKnowledge opens storage and the knowledge store only.
func openKnowledge(cfg config.Config) (*storage.Store, *knowledge.Store, error) {
	if err := cfg.RequireAPIKey(); err != nil {
		return nil, nil, err
	}
	return openStores(cfg, newProvider(cfg))
}

func openStores(cfg config.Config, provider llm.Embedder) (*storage.Store, *knowledge.Store, error) {
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("opening storage: %w", err)
	}
	kb := knowledge.NewStore(store.DB(), provider, nil, knowledge.Options{
		Dir:           cfg.Knowledge.Dir,
		ChunkSize:     cfg.Knowledge.ChunkSize,
		ChunkOverlap:  cfg.Knowledge.ChunkOverlap,
		MinSimilarity: cfg.Knowledge.MinSimilarity,
	})
	return store, kb, nil
}

// openApp wires every component behind a tutor.Service.
func openApp(cfg config.Config) (*app, error) {
	if err := cfg.RequireAPIKey(); err != nil {
		return nil, err
	}
	provider := newProvider(cfg)
	store, kb, err := openStores(cfg, provider)
	if err != nil {
		return nil, err
	}

	cache, err := vision.NewCache(vision.CacheOptions{
		Dir:        cfg.Vision.CacheDir,
		TTL:        cfg.Vision.CacheTTL,
		MaxEntries: cfg.Vision.CacheMaxEntries,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("opening vision cache: %w", err)
	}

	logger, err := interactions.NewLogger(cfg.Log.Dir, store)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("opening interaction logger: %w", err)
	}

	svc, err := tutor.New(tutor.Deps{
		Sessions:  session.NewStore(store),
		LLM:       provider,
		Knowledge: kb,
		Vision:    vision.New(provider, cache),
		Logger:    logger,
	}, tutor.Options{
		AgentTimeout:  cfg.Orchestrator.AgentTimeout,
		TopK:          cfg.Knowledge.TopK,
		MinSimilarity: cfg.Knowledge.MinSimilarity,
		ArtifactDir:   filepath.Join(cfg.Storage.DataDir, "artifacts"),
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	return &app{store: store, logger: logger, service: svc}, nil
}

func (a *app) Close() error {
	var errs []error
	if a.logger != nil {
		errs = append(errs, a.logger.Close())
	}
	errs = append(errs, a.store.Close())
	return errors.Join(errs...)
}
