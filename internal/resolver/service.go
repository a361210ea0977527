// Package resolver decides which prompt template and which adaptor a job uses.
package resolver

import (
	"context"

	"genstudio/internal/adaptor"
	"genstudio/internal/domain"
)

// Service is the resolver contract exposed to the route and CLI layers.
// Both resolvers share one cache so a single invalidation covers them.
type Service struct {
	Prompts *PromptResolver
	Models  *ModelResolver
	cache   *Cache
}

func NewService(src TemplateSource, registry *adaptor.Registry) *Service {
	cache := NewCache()
	return &Service{
		Prompts: NewPromptResolver(src, cache),
		Models:  NewModelResolver(src, registry, cache),
		cache:   cache,
	}
}

func (s *Service) ResolvePrompt(ctx context.Context, stageType string, capability domain.Capability, projectID string) (*ResolvedTemplateRef, error) {
	return s.Prompts.Resolve(ctx, stageType, capability, projectID)
}

func (s *Service) ResolveAdaptor(ctx context.Context, projectID, stageType string, capability domain.Capability, override *domain.ModelConfig) (*Handle, error) {
	return s.Models.Resolve(ctx, projectID, stageType, capability, override)
}

// InvalidateCache drops every cached template and model config.
func (s *Service) InvalidateCache() {
	s.cache.Invalidate()
}

// Cache exposes the shared cache for wiring invalidation hooks.
func (s *Service) Cache() *Cache {
	return s.cache
}
