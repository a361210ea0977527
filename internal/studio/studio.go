// Package studio assembles the generation services shared by the api, the
// worker and studioctl.
package studio

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"genstudio/internal/adaptor"
	"genstudio/internal/docstore"
	"genstudio/internal/engine"
	"genstudio/internal/infra"
	"genstudio/internal/infra/credentials"
	"genstudio/internal/planner"
	"genstudio/internal/projects"
	"genstudio/internal/providers/genai"
	"genstudio/internal/providers/openai"
	"genstudio/internal/providers/qwen"
	"genstudio/internal/providers/static"
	"genstudio/internal/resolver"
	"genstudio/internal/storage"
	"genstudio/internal/templates"
)

// Adaptor ids registered by NewRegistry.
const (
	AdaptorGemini = "gemini"
	AdaptorQwen   = "qwen"
	AdaptorOpenAI = "openai"
	AdaptorStatic = "static"
)

type Deps struct {
	Docs  docstore.Store
	Blobs *storage.FileStore
	// Credentials supplies API keys missing from the environment. May be nil.
	Credentials *credentials.Store
	Registerer  prometheus.Registerer
	Logger      zerolog.Logger
}

type Services struct {
	Registry  *adaptor.Registry
	Templates *templates.Repository
	Editor    *templates.Editor
	Resolver  *resolver.Service
	Catalog   *planner.Catalog
	Planner   *planner.Planner
	Items     *projects.Items
	Engine    *engine.Engine
	Blobs     *storage.FileStore
}

// New wires the resolver, planner and engine over the given stores.
func New(ctx context.Context, cfg *infra.Config, deps Deps) (*Services, error) {
	registry, err := NewRegistry(ctx, cfg, deps.Blobs, deps.Credentials, deps.Logger)
	if err != nil {
		return nil, err
	}
	repo := templates.NewRepository(deps.Docs)
	svc := resolver.NewService(repo, registry)
	editor := templates.NewEditor(deps.Docs, deps.Logger, svc.InvalidateCache)

	catalog, err := planner.NewCatalog(deps.Logger)
	if err != nil {
		return nil, err
	}
	if cfg.GraphDir != "" {
		if err := catalog.LoadDir(cfg.GraphDir); err != nil {
			return nil, err
		}
	}
	items := projects.NewItems(deps.Docs)
	eng := engine.New(svc.Prompts, svc.Models, items, engine.Config{
		Concurrency:    cfg.EngineConcurrency,
		AdaptorTimeout: cfg.AdaptorTimeout,
		PersistTimeout: cfg.PersistTimeout,
	}, engine.WithLogger(deps.Logger), engine.WithMetrics(engine.NewMetrics(deps.Registerer)))

	return &Services{
		Registry:  registry,
		Templates: repo,
		Editor:    editor,
		Resolver:  svc,
		Catalog:   catalog,
		Planner:   planner.New(catalog),
		Items:     items,
		Engine:    eng,
		Blobs:     deps.Blobs,
	}, nil
}

// WatchGraphs hot-reloads GRAPH_DIR until ctx ends. It is a no-op without one.
func (s *Services) WatchGraphs(ctx context.Context, dir string, logger zerolog.Logger) {
	if dir == "" {
		return
	}
	go func() {
		if err := s.Catalog.Watch(ctx, dir); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Str("dir", dir).Msg("graph watcher stopped")
		}
	}()
}

// NewRegistry registers every adaptor. Gemini without a key runs in synthetic
// mode; OpenAI is only registered when a key exists.
func NewRegistry(ctx context.Context, cfg *infra.Config, blobs *storage.FileStore, creds *credentials.Store, logger zerolog.Logger) (*adaptor.Registry, error) {
	if blobs == nil {
		return nil, fmt.Errorf("studio: blob store is required")
	}
	key := func(provider, fromEnv string) string {
		k, err := creds.Resolve(ctx, provider, fromEnv)
		if err != nil {
			logger.Warn().Err(err).Str("provider", provider).Msg("failed to load api key from store")
		}
		return k
	}
	httpClient := &http.Client{Timeout: 90 * time.Second}
	registry := adaptor.NewRegistry()

	geminiKey := key(credentials.ProviderGemini, cfg.GeminiAPIKey)
	gemini, err := genai.NewClient(genai.Options{
		APIKey:     geminiKey,
		BaseURL:    cfg.GeminiBaseURL,
		Model:      cfg.GeminiModel,
		ImageModel: cfg.GeminiImageModel,
		VideoModel: cfg.GeminiVideoModel,
		HTTPClient: httpClient,
		Logger:     &logger,
		Blobs:      blobs,
	})
	if err != nil {
		return nil, err
	}
	if geminiKey == "" {
		logger.Warn().Str("model", gemini.Model()).Msg("gemini api key missing, using synthetic generation")
	}
	if err := registry.Register(AdaptorGemini, gemini); err != nil {
		return nil, err
	}

	qwenClient, err := qwen.NewClient(qwen.Options{
		APIKey:     key(credentials.ProviderQwen, cfg.QwenAPIKey),
		BaseURL:    cfg.QwenBaseURL,
		Model:      cfg.QwenModel,
		HTTPClient: httpClient,
		Logger:     &logger,
		Blobs:      blobs,
	})
	if err != nil {
		return nil, err
	}
	if err := registry.Register(AdaptorQwen, qwenClient); err != nil {
		return nil, err
	}

	if openaiKey := key(credentials.ProviderOpenAI, cfg.OpenAIAPIKey); openaiKey != "" {
		oa, err := openai.NewClient(openai.Options{
			APIKey:       openaiKey,
			Model:        cfg.OpenAIModel,
			BaseURL:      cfg.OpenAIBaseURL,
			Organization: cfg.OpenAIOrg,
			HTTPClient:   httpClient,
			OnWarning: func(reason, detail string) {
				logger.Warn().Str("reason", reason).Str("detail", detail).Msg("openai warning")
			},
		})
		if err != nil {
			return nil, err
		}
		if err := registry.Register(AdaptorOpenAI, oa); err != nil {
			return nil, err
		}
	}

	if err := registry.Register(AdaptorStatic, static.New()); err != nil {
		return nil, err
	}
	logger.Info().Strs("adaptors", registry.IDs()).Msg("adaptors registered")
	return registry, nil
}
