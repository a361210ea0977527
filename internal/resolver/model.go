package resolver

import (
	"context"
	"errors"
	"fmt"

	"genstudio/internal/adaptor"
	"genstudio/internal/domain"
)

// Handle is a resolved generation backend.
type Handle struct {
	Adaptor   any
	AdaptorID string
	ModelID   string
	Source    domain.ModelSource
}

// Generate runs req against the handle's adaptor.
func (h *Handle) Generate(ctx context.Context, capability domain.Capability, req adaptor.Request) (*domain.JobResult, error) {
	if req.ModelID == "" {
		req.ModelID = h.ModelID
	}
	res, err := adaptor.Generate(ctx, h.Adaptor, capability, req)
	if err != nil {
		return nil, &domain.AdaptorError{AdaptorID: h.AdaptorID, Capability: capability, Err: err}
	}
	res.AdaptorID = h.AdaptorID
	res.ModelID = h.ModelID
	return res, nil
}

// ModelResolver picks an adaptor with precedence explicit > project > stage default.
type ModelResolver struct {
	src      TemplateSource
	registry *adaptor.Registry
	cache    *Cache
}

func NewModelResolver(src TemplateSource, registry *adaptor.Registry, cache *Cache) *ModelResolver {
	if cache == nil {
		cache = NewCache()
	}
	return &ModelResolver{src: src, registry: registry, cache: cache}
}

// Resolve uses the capability name as prompt id for template lookups.
func (m *ModelResolver) Resolve(ctx context.Context, projectID, stageType string, capability domain.Capability, explicit *domain.ModelConfig) (*Handle, error) {
	return m.ResolveFor(ctx, projectID, stageType, capability.String(), capability, explicit)
}

// ResolveFor resolves the adaptor for a specific template. An explicit
// override is bound without reading the store.
func (m *ModelResolver) ResolveFor(ctx context.Context, projectID, stageType, promptID string, capability domain.Capability, explicit *domain.ModelConfig) (*Handle, error) {
	if !explicit.IsZero() {
		cfg := *explicit
		cfg.Source = domain.ModelSourceExplicit
		return m.bind(cfg, capability)
	}

	key := capability.String() + "|" + promptID
	if cfg, ok := m.cache.model(stageType, projectID, key); ok {
		return m.bind(cfg, capability)
	}
	gen := m.cache.Generation()
	cfg, err := m.lookup(ctx, projectID, stageType, promptID, capability)
	if err != nil {
		return nil, err
	}
	m.cache.putModel(gen, stageType, projectID, key, cfg)
	return m.bind(cfg, capability)
}

func (m *ModelResolver) lookup(ctx context.Context, projectID, stageType, promptID string, capability domain.Capability) (domain.ModelConfig, error) {
	if projectID != "" {
		saved, err := m.src.ModelConfig(ctx, projectID, stageType, capability)
		switch {
		case err == nil && !saved.Model.IsZero():
			cfg := saved.Model
			cfg.Source = domain.ModelSourceProject
			return cfg, nil
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			return domain.ModelConfig{}, fmt.Errorf("load model config: %w", err)
		}

		ov, err := m.src.Override(ctx, projectID, stageType, promptID)
		switch {
		case err == nil && !ov.Template.Model.IsZero():
			cfg := *ov.Template.Model
			cfg.Source = domain.ModelSourceProject
			return cfg, nil
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			return domain.ModelConfig{}, fmt.Errorf("load override: %w", err)
		}
	}

	tpl, err := m.src.Template(ctx, stageType, promptID)
	switch {
	case err == nil && !tpl.Model.IsZero():
		cfg := *tpl.Model
		cfg.Source = domain.ModelSourceStageDefault
		return cfg, nil
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return domain.ModelConfig{}, fmt.Errorf("load template: %w", err)
	}
	return domain.ModelConfig{}, domain.NewAdaptorUnavailable("", capability, "no adaptor configured")
}

func (m *ModelResolver) bind(cfg domain.ModelConfig, capability domain.Capability) (*Handle, error) {
	impl, err := m.registry.Resolve(cfg.AdaptorID, capability)
	if err != nil {
		return nil, err
	}
	return &Handle{
		Adaptor:   impl,
		AdaptorID: cfg.AdaptorID,
		ModelID:   cfg.ModelID,
		Source:    cfg.Source,
	}, nil
}
