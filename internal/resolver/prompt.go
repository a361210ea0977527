package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"genstudio/internal/domain"
)

// TemplateSource is the read side of the template store.
type TemplateSource interface {
	Template(ctx context.Context, stageType, promptID string) (*domain.PromptTemplate, error)
	Override(ctx context.Context, projectID, stageType, promptID string) (*domain.PromptOverride, error)
	ModelConfig(ctx context.Context, projectID, stageType string, capability domain.Capability) (*domain.ProjectModelConfig, error)
}

// RefSource tells whether a resolved template came from a project override.
type RefSource string

const (
	RefSourceOverride RefSource = "override"
	RefSourceStage    RefSource = "stage"
)

// ResolvedTemplateRef is the effective template for a (stageType, promptID, projectID).
// Values returned by the resolver are shared with the cache and must not be mutated.
type ResolvedTemplateRef struct {
	StageType string                `json:"stageType"`
	PromptID  string                `json:"promptId"`
	ProjectID string                `json:"projectId,omitempty"`
	Source    RefSource             `json:"source"`
	Version   int                   `json:"version"`
	Template  domain.PromptTemplate `json:"template"`
}

// Render substitutes vars into every fragment and joins fragments per role.
func (r *ResolvedTemplateRef) Render(vars map[string]any) domain.ResolvedPrompt {
	var system, user []string
	for _, f := range r.Template.Fragments {
		text := SubstituteVariables(f.Text, vars)
		if f.Role == domain.RoleSystem {
			system = append(system, text)
		} else {
			user = append(user, text)
		}
	}
	return domain.ResolvedPrompt{
		System: strings.Join(system, "\n\n"),
		User:   strings.Join(user, "\n\n"),
	}
}

// PromptResolver returns the effective template: project override, else the
// stage template, else ErrTemplateNotFound.
type PromptResolver struct {
	src   TemplateSource
	cache *Cache
}

func NewPromptResolver(src TemplateSource, cache *Cache) *PromptResolver {
	if cache == nil {
		cache = NewCache()
	}
	return &PromptResolver{src: src, cache: cache}
}

// Resolve looks up the template whose prompt id is the capability name.
func (p *PromptResolver) Resolve(ctx context.Context, stageType string, capability domain.Capability, projectID string) (*ResolvedTemplateRef, error) {
	return p.ResolveID(ctx, stageType, capability.String(), projectID)
}

// ResolveID looks up the template for an explicit prompt id.
func (p *PromptResolver) ResolveID(ctx context.Context, stageType, promptID, projectID string) (*ResolvedTemplateRef, error) {
	if ref, ok := p.cache.prompt(stageType, projectID, promptID); ok {
		return ref, nil
	}
	gen := p.cache.Generation()

	if projectID != "" {
		ov, err := p.src.Override(ctx, projectID, stageType, promptID)
		switch {
		case err == nil:
			ref := &ResolvedTemplateRef{
				StageType: stageType,
				PromptID:  promptID,
				ProjectID: projectID,
				Source:    RefSourceOverride,
				Version:   ov.Template.ActiveVersion,
				Template:  ov.Template,
			}
			p.cache.putPrompt(gen, stageType, projectID, promptID, ref)
			return ref, nil
		case !errors.Is(err, domain.ErrNotFound):
			return nil, fmt.Errorf("load override %s/%s for %s: %w", stageType, promptID, projectID, err)
		}
	}

	tpl, err := p.src.Template(ctx, stageType, promptID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: stage %q prompt %q", domain.ErrTemplateNotFound, stageType, promptID)
	}
	if err != nil {
		return nil, fmt.Errorf("load template %s/%s: %w", stageType, promptID, err)
	}
	ref := &ResolvedTemplateRef{
		StageType: stageType,
		PromptID:  promptID,
		ProjectID: projectID,
		Source:    RefSourceStage,
		Version:   tpl.ActiveVersion,
		Template:  *tpl,
	}
	p.cache.putPrompt(gen, stageType, projectID, promptID, ref)
	return ref, nil
}
