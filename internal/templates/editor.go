package templates

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"genstudio/internal/docstore"
	"genstudio/internal/domain"
)

// InvalidateFunc is called after every successful write, before the write
// returns to its caller.
type InvalidateFunc func()

// Editor performs template writes. Each successful write runs every
// registered invalidation hook so the next resolve observes it.
type Editor struct {
	repo   *Repository
	store  docstore.Store
	hooks  []InvalidateFunc
	logger zerolog.Logger
	now    func() time.Time
}

func NewEditor(store docstore.Store, logger zerolog.Logger, hooks ...InvalidateFunc) *Editor {
	return &Editor{
		repo:   NewRepository(store),
		store:  store,
		hooks:  hooks,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// OnWrite registers another invalidation hook.
func (e *Editor) OnWrite(h InvalidateFunc) {
	e.hooks = append(e.hooks, h)
}

func (e *Editor) invalidate(op, stageType, promptID string) {
	for _, h := range e.hooks {
		h()
	}
	e.logger.Debug().
		Str("op", op).
		Str("stage_type", stageType).
		Str("prompt_id", promptID).
		Msg("template write committed; caches invalidated")
}

func validateTemplate(tpl domain.PromptTemplate) error {
	if strings.TrimSpace(tpl.StageType) == "" {
		return fmt.Errorf("stageType is required")
	}
	if strings.TrimSpace(tpl.PromptID) == "" {
		return fmt.Errorf("promptId is required")
	}
	if len(tpl.Fragments) == 0 {
		return fmt.Errorf("at least one fragment is required")
	}
	for i, f := range tpl.Fragments {
		if f.Role != domain.RoleSystem && f.Role != domain.RoleUser {
			return fmt.Errorf("fragment %d: role must be system or user", i)
		}
	}
	return nil
}

// AddTemplate creates a stage template and records it as version 1.
func (e *Editor) AddTemplate(ctx context.Context, tpl domain.PromptTemplate) (*domain.PromptTemplate, error) {
	if err := validateTemplate(tpl); err != nil {
		return nil, err
	}
	if _, err := e.repo.Template(ctx, tpl.StageType, tpl.PromptID); err == nil {
		return nil, fmt.Errorf("template %s: %w", docstore.TemplateID(tpl.StageType, tpl.PromptID), domain.ErrAlreadyExists)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	now := e.now()
	tpl.ActiveVersion = 1
	tpl.UpdatedAt = now
	version := domain.PromptVersion{
		StageType: tpl.StageType,
		PromptID:  tpl.PromptID,
		Version:   1,
		Fragments: tpl.Fragments,
		Variables: tpl.Variables,
		Note:      "initial",
		CreatedAt: now,
	}
	if err := e.store.Set(ctx, docstore.CollectionVersions, docstore.VersionID(tpl.StageType, tpl.PromptID, 1), version, false); err != nil {
		return nil, err
	}
	if err := e.store.Set(ctx, docstore.CollectionTemplates, docstore.TemplateID(tpl.StageType, tpl.PromptID), tpl, false); err != nil {
		return nil, err
	}
	e.invalidate("add", tpl.StageType, tpl.PromptID)
	return &tpl, nil
}

// UpdateTemplate replaces the content of an existing template. The active
// version number is preserved.
func (e *Editor) UpdateTemplate(ctx context.Context, tpl domain.PromptTemplate) (*domain.PromptTemplate, error) {
	if err := validateTemplate(tpl); err != nil {
		return nil, err
	}
	current, err := e.repo.Template(ctx, tpl.StageType, tpl.PromptID)
	if err != nil {
		return nil, err
	}
	tpl.ActiveVersion = current.ActiveVersion
	tpl.UpdatedAt = e.now()
	if err := e.store.Set(ctx, docstore.CollectionTemplates, docstore.TemplateID(tpl.StageType, tpl.PromptID), tpl, false); err != nil {
		return nil, err
	}
	e.invalidate("update", tpl.StageType, tpl.PromptID)
	return &tpl, nil
}

// SaveOverride stores a project override that replaces the base template
// wholesale for that project.
func (e *Editor) SaveOverride(ctx context.Context, projectID string, tpl domain.PromptTemplate) (*domain.PromptOverride, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, fmt.Errorf("projectId is required")
	}
	if err := validateTemplate(tpl); err != nil {
		return nil, err
	}
	now := e.now()
	tpl.UpdatedAt = now
	ov := domain.PromptOverride{ProjectID: projectID, Template: tpl, UpdatedAt: now}
	if err := e.store.Set(ctx, docstore.CollectionOverrides, docstore.OverrideID(projectID, tpl.StageType, tpl.PromptID), ov, false); err != nil {
		return nil, err
	}
	e.invalidate("save_override", tpl.StageType, tpl.PromptID)
	return &ov, nil
}

// DeleteOverride removes a project override so the stage template applies again.
func (e *Editor) DeleteOverride(ctx context.Context, projectID, stageType, promptID string) error {
	if err := e.store.Delete(ctx, docstore.CollectionOverrides, docstore.OverrideID(projectID, stageType, promptID)); err != nil {
		return err
	}
	e.invalidate("delete_override", stageType, promptID)
	return nil
}

// SaveModelConfig stores the project-level model choice for a stage capability.
func (e *Editor) SaveModelConfig(ctx context.Context, cfg domain.ProjectModelConfig) error {
	if strings.TrimSpace(cfg.ProjectID) == "" || strings.TrimSpace(cfg.StageType) == "" {
		return fmt.Errorf("projectId and stageType are required")
	}
	if !cfg.Capability.IsValid() {
		return fmt.Errorf("capability %q is not supported", cfg.Capability)
	}
	if cfg.Model.IsZero() {
		return fmt.Errorf("model.adaptorId is required")
	}
	cfg.Model.Source = domain.ModelSourceProject
	cfg.UpdatedAt = e.now()
	if err := e.store.Set(ctx, docstore.CollectionModelConfigs, docstore.ModelConfigID(cfg.ProjectID, cfg.StageType, cfg.Capability), cfg, false); err != nil {
		return err
	}
	e.invalidate("save_model_config", cfg.StageType, cfg.Capability.String())
	return nil
}

// CreateVersion snapshots the template's current content as the next version.
// The new version is not activated.
func (e *Editor) CreateVersion(ctx context.Context, stageType, promptID, note string) (*domain.PromptVersion, error) {
	tpl, err := e.repo.Template(ctx, stageType, promptID)
	if err != nil {
		return nil, err
	}
	versions, err := e.repo.Versions(ctx, stageType, promptID)
	if err != nil {
		return nil, err
	}
	next := 1
	for _, v := range versions {
		if v.Version >= next {
			next = v.Version + 1
		}
	}
	version := domain.PromptVersion{
		StageType: stageType,
		PromptID:  promptID,
		Version:   next,
		Fragments: tpl.Fragments,
		Variables: tpl.Variables,
		Note:      note,
		CreatedAt: e.now(),
	}
	if err := e.store.Set(ctx, docstore.CollectionVersions, docstore.VersionID(stageType, promptID, next), version, false); err != nil {
		return nil, err
	}
	e.invalidate("create_version", stageType, promptID)
	return &version, nil
}

// ActivateVersion copies a stored version into the template and marks it active.
func (e *Editor) ActivateVersion(ctx context.Context, stageType, promptID string, version int) (*domain.PromptTemplate, error) {
	tpl, err := e.repo.Template(ctx, stageType, promptID)
	if err != nil {
		return nil, err
	}
	var v domain.PromptVersion
	if err := e.store.Get(ctx, docstore.CollectionVersions, docstore.VersionID(stageType, promptID, version), &v); err != nil {
		return nil, err
	}
	tpl.Fragments = v.Fragments
	tpl.Variables = v.Variables
	tpl.ActiveVersion = v.Version
	tpl.UpdatedAt = e.now()
	if err := e.store.Set(ctx, docstore.CollectionTemplates, docstore.TemplateID(stageType, promptID), tpl, false); err != nil {
		return nil, err
	}
	e.invalidate("activate_version", stageType, promptID)
	return tpl, nil
}

// DeleteVersion removes a stored version. The active version cannot be deleted.
func (e *Editor) DeleteVersion(ctx context.Context, stageType, promptID string, version int) error {
	tpl, err := e.repo.Template(ctx, stageType, promptID)
	if err != nil {
		return err
	}
	if tpl.ActiveVersion == version {
		return fmt.Errorf("%s v%d: %w", docstore.TemplateID(stageType, promptID), version, domain.ErrActiveVersion)
	}
	if err := e.store.Delete(ctx, docstore.CollectionVersions, docstore.VersionID(stageType, promptID, version)); err != nil {
		return err
	}
	e.invalidate("delete_version", stageType, promptID)
	return nil
}
