// Package docstore persists templates, overrides, versions and project items
// as documents addressed by (collection, id).
package docstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"genstudio/internal/domain"
)

const (
	CollectionTemplates    = "prompt_templates"
	CollectionOverrides    = "prompt_overrides"
	CollectionVersions     = "prompt_versions"
	CollectionModelConfigs = "project_model_configs"
	CollectionProjectItems = "project_items"
)

// Store is the persistence contract consumed by the resolvers, the template
// editor and the engine. Get returns domain.ErrNotFound for missing documents.
// Set with merge=true overlays the top-level fields of doc onto the stored
// document; merge=false replaces it. Both upsert.
type Store interface {
	Get(ctx context.Context, collection, id string, out any) error
	Set(ctx context.Context, collection, id string, doc any, merge bool) error
	Delete(ctx context.Context, collection, id string) error
	ListVersions(ctx context.Context, stageType, promptID string) ([]domain.PromptVersion, error)
	// FindAll decodes every document whose top-level fields equal match into
	// out, which must point to a slice.
	FindAll(ctx context.Context, collection string, match map[string]any, out any) error
}

// TemplateID is the document id of a stage template.
func TemplateID(stageType, promptID string) string {
	return stageType + ":" + promptID
}

// OverrideID is the document id of a project override.
func OverrideID(projectID, stageType, promptID string) string {
	return projectID + ":" + stageType + ":" + promptID
}

// VersionID is the document id of a stored template version.
func VersionID(stageType, promptID string, version int) string {
	return stageType + ":" + promptID + ":v" + strconv.Itoa(version)
}

// ModelConfigID is the document id of a project model config.
func ModelConfigID(projectID, stageType string, capability domain.Capability) string {
	return projectID + ":" + stageType + ":" + capability.String()
}

// ItemID is the document id of a persisted project item.
func ItemID(projectID, stage, itemID string) string {
	return projectID + ":" + stage + ":" + itemID
}

func validateKey(collection, id string) error {
	if strings.TrimSpace(collection) == "" {
		return fmt.Errorf("docstore: collection is required")
	}
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("docstore: id is required")
	}
	return nil
}
