// Package templates reads and edits prompt templates, project overrides,
// template versions and project model configs.
package templates

import (
	"context"

	"genstudio/internal/docstore"
	"genstudio/internal/domain"
)

// Repository is the read side of the template store.
type Repository struct {
	store docstore.Store
}

func NewRepository(store docstore.Store) *Repository {
	return &Repository{store: store}
}

// Template loads the stage default template.
func (r *Repository) Template(ctx context.Context, stageType, promptID string) (*domain.PromptTemplate, error) {
	var tpl domain.PromptTemplate
	if err := r.store.Get(ctx, docstore.CollectionTemplates, docstore.TemplateID(stageType, promptID), &tpl); err != nil {
		return nil, err
	}
	return &tpl, nil
}

// Override loads the project override for a stage template.
func (r *Repository) Override(ctx context.Context, projectID, stageType, promptID string) (*domain.PromptOverride, error) {
	var ov domain.PromptOverride
	if err := r.store.Get(ctx, docstore.CollectionOverrides, docstore.OverrideID(projectID, stageType, promptID), &ov); err != nil {
		return nil, err
	}
	return &ov, nil
}

// ModelConfig loads the project-level saved model choice.
func (r *Repository) ModelConfig(ctx context.Context, projectID, stageType string, capability domain.Capability) (*domain.ProjectModelConfig, error) {
	var cfg domain.ProjectModelConfig
	if err := r.store.Get(ctx, docstore.CollectionModelConfigs, docstore.ModelConfigID(projectID, stageType, capability), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Versions lists stored versions in ascending order.
func (r *Repository) Versions(ctx context.Context, stageType, promptID string) ([]domain.PromptVersion, error) {
	return r.store.ListVersions(ctx, stageType, promptID)
}
