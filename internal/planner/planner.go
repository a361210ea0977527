// Package planner expands batch requests into job graphs using declarative
// per-product graphs.
package planner

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"github.com/google/uuid"

	"genstudio/internal/domain"
)

// Planner turns a BatchRequest into a BatchRun.
type Planner struct {
	catalog *Catalog
	newID   func() string
}

// New returns a planner backed by catalog.
func New(catalog *Catalog) *Planner {
	return &Planner{catalog: catalog, newID: uuid.NewString}
}

// Catalog exposes the graphs the planner reads from.
func (p *Planner) Catalog() *Catalog { return p.catalog }

// Plan validates req and builds one job per (item, step). Items are never
// de-duplicated; two items with the same id produce two job sets.
func (p *Planner) Plan(ctx context.Context, req domain.BatchRequest) (*domain.BatchRun, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(req.Items) == 0 {
		return nil, domain.ErrEmptyBatch
	}
	if strings.TrimSpace(req.ProjectID) == "" {
		return nil, invalid("projectId is required")
	}
	graph, ok := p.catalog.Graph(req.Product)
	if !ok {
		return nil, invalid("unknown product %q", req.Product)
	}
	stageName := strings.ToLower(strings.TrimSpace(req.Stage))
	stage, ok := graph.Stages[stageName]
	if !ok {
		return nil, invalid("product %s has no stage %q", graph.Product, req.Stage)
	}
	for i, item := range req.Items {
		if strings.TrimSpace(item.ItemID) == "" {
			return nil, invalid("item %d: itemId is required", i)
		}
	}

	jobs := make([]*domain.GenerationJob, 0, len(req.Items)*len(stage.Steps))
	for idx, item := range req.Items {
		ids := make(map[string]string, len(stage.Steps))
		for _, step := range stage.Steps {
			job := &domain.GenerationJob{
				ID:         p.newID(),
				ItemID:     item.ItemID,
				ItemIndex:  idx,
				Step:       step.Name,
				StageType:  firstNonEmpty(step.StageType, stageName),
				PromptID:   firstNonEmpty(step.PromptID, string(step.Capability)),
				Capability: step.Capability,
				Input:      maps.Clone(item.Input),
				Status:     domain.JobStatusPending,
			}
			for _, dep := range step.DependsOn {
				job.Predecessors = append(job.Predecessors, ids[dep])
			}
			ids[step.Name] = job.ID
			jobs = append(jobs, job)
		}
	}

	run := domain.NewBatchRun(p.newID(), req.ProjectID, graph.Product, stageName, jobs)
	run.Locale = strings.TrimSpace(req.Locale)
	if req.ModelOverride != nil && !req.ModelOverride.IsZero() {
		override := *req.ModelOverride
		override.Source = domain.ModelSourceExplicit
		run.ModelOverride = &override
	}
	return run, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrPlannerValidation, fmt.Sprintf(format, args...))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
