// Package projects stores per-item generation results for a project.
package projects

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"path"
	"sort"
	"strings"

	"genstudio/internal/docstore"
	"genstudio/internal/domain"
	"genstudio/pkg/zip"
)

// Items persists one ItemRecord per (project, stage, item).
type Items struct {
	docs docstore.Store
}

func NewItems(docs docstore.Store) *Items {
	return &Items{docs: docs}
}

// SaveItem merges rec into the item's document. Sibling items are separate
// documents and are never touched.
func (i *Items) SaveItem(ctx context.Context, rec domain.ItemRecord) error {
	if rec.ProjectID == "" || rec.Stage == "" || rec.ItemID == "" {
		return fmt.Errorf("projects: project, stage and item ids are required")
	}
	id := docstore.ItemID(rec.ProjectID, rec.Stage, rec.ItemID)
	if err := i.docs.Set(ctx, docstore.CollectionProjectItems, id, rec, true); err != nil {
		return fmt.Errorf("projects: save %s: %w", id, err)
	}
	return nil
}

func (i *Items) Item(ctx context.Context, projectID, stage, itemID string) (*domain.ItemRecord, error) {
	var rec domain.ItemRecord
	if err := i.docs.Get(ctx, docstore.CollectionProjectItems, docstore.ItemID(projectID, stage, itemID), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListStage returns every record of a project stage ordered by item id.
func (i *Items) ListStage(ctx context.Context, projectID, stage string) ([]domain.ItemRecord, error) {
	var recs []domain.ItemRecord
	match := map[string]any{"projectId": projectID, "stage": stage}
	if err := i.docs.FindAll(ctx, docstore.CollectionProjectItems, match, &recs); err != nil {
		return nil, fmt.Errorf("projects: list %s/%s: %w", projectID, stage, err)
	}
	sort.Slice(recs, func(a, b int) bool { return recs[a].ItemID < recs[b].ItemID })
	return recs, nil
}

// Downloader fetches stored media by url.
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// Export collects the finished outputs of a stage: text as .txt files, media
// fetched from blobs, plus a manifest.json of the records.
func (i *Items) Export(ctx context.Context, projectID, stage string, blobs Downloader) ([]zip.Asset, error) {
	recs, err := i.ListStage(ctx, projectID, stage)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("projects: %s/%s has no items: %w", projectID, stage, domain.ErrNotFound)
	}
	var assets []zip.Asset
	for _, rec := range recs {
		steps := make([]string, 0, len(rec.Steps))
		for name := range rec.Steps {
			steps = append(steps, name)
		}
		sort.Strings(steps)
		for _, name := range steps {
			step := rec.Steps[name]
			if step.Status != domain.JobStatusDone || step.Result == nil {
				continue
			}
			base := safeName(rec.ItemID) + "-" + safeName(name)
			if step.Result.Text != "" {
				assets = append(assets, zip.Asset{Filename: base + ".txt", MIME: "text/plain", Data: []byte(step.Result.Text)})
			}
			for _, url := range []string{step.Result.ImageURL, step.Result.VideoURL} {
				if url == "" {
					continue
				}
				data, err := blobs.Download(ctx, url)
				if err != nil {
					return nil, fmt.Errorf("projects: export %s: %w", url, err)
				}
				ext := path.Ext(url)
				assets = append(assets, zip.Asset{Filename: base + ext, MIME: mime.TypeByExtension(ext), Data: data})
			}
		}
	}
	manifest, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("projects: manifest: %w", err)
	}
	assets = append(assets, zip.Asset{Filename: "manifest.json", MIME: "application/json", Data: manifest})
	return assets, nil
}

func safeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}
