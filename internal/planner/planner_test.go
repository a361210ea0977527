package planner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genstudio/internal/domain"
)

func newTestPlanner(t *testing.T) *Planner {
	t.Helper()
	catalog, err := NewCatalog(zerolog.Nop())
	require.NoError(t, err)
	p := New(catalog)
	n := 0
	p.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	return p
}

func TestBuiltinGraphsLoad(t *testing.T) {
	catalog, err := NewCatalog(zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, []string{"poster", "sns", "story"}, catalog.Products())

	story, ok := catalog.Graph("STORY")
	require.True(t, ok)
	assert.Contains(t, story.StageNames(), "persona")
}

func TestPlanOneJobPerItemStep(t *testing.T) {
	p := newTestPlanner(t)
	run, err := p.Plan(context.Background(), domain.BatchRequest{
		ProjectID: "p1",
		Product:   "sns",
		Stage:     "animation",
		Items: []domain.BatchItem{
			{ItemID: "a", Input: map[string]any{"brief": "spring"}},
			{ItemID: "b"},
		},
	})
	require.NoError(t, err)
	require.Len(t, run.Jobs, 4)
	assert.Equal(t, domain.BatchStatusAccepted, run.Status)

	analyze, render := run.Jobs[0], run.Jobs[1]
	assert.Equal(t, "analyze", analyze.Step)
	assert.Equal(t, "analyze", analyze.PromptID)
	assert.Equal(t, "animation", analyze.StageType)
	assert.Equal(t, domain.CapabilityText, analyze.Capability)
	assert.Equal(t, "spring", analyze.Input["brief"])

	assert.Equal(t, "render", render.Step)
	assert.Equal(t, "video", render.PromptID)
	assert.Equal(t, []string{analyze.ID}, render.Predecessors)

	// Second item's jobs only depend on its own predecessors.
	assert.Equal(t, "b", run.Jobs[3].ItemID)
	assert.Equal(t, 1, run.Jobs[3].ItemIndex)
	assert.Equal(t, []string{run.Jobs[2].ID}, run.Jobs[3].Predecessors)

	ready := run.Ready()
	require.Len(t, ready, 2)
	assert.Equal(t, "analyze", ready[0].Step)
}

func TestPlanKeepsDuplicateItems(t *testing.T) {
	p := newTestPlanner(t)
	run, err := p.Plan(context.Background(), domain.BatchRequest{
		ProjectID: "p1", Product: "poster", Stage: "theme",
		Items: []domain.BatchItem{{ItemID: "x"}, {ItemID: "x"}},
	})
	require.NoError(t, err)
	assert.Len(t, run.Jobs, 2)
	assert.Equal(t, 2, run.ItemCount())
}

func TestPlanExplicitModelOverride(t *testing.T) {
	p := newTestPlanner(t)
	run, err := p.Plan(context.Background(), domain.BatchRequest{
		ProjectID: "p1", Product: "sns", Stage: "image",
		Items:         []domain.BatchItem{{ItemID: "x"}},
		ModelOverride: &domain.ModelConfig{AdaptorID: "qwen", ModelID: "qwen-image-edit"},
	})
	require.NoError(t, err)
	require.NotNil(t, run.ModelOverride)
	assert.Equal(t, domain.ModelSourceExplicit, run.ModelOverride.Source)
}

func TestPlanValidation(t *testing.T) {
	p := newTestPlanner(t)
	cases := map[string]domain.BatchRequest{
		"no project":    {Product: "sns", Stage: "theme", Items: []domain.BatchItem{{ItemID: "a"}}},
		"bad product":   {ProjectID: "p", Product: "zine", Stage: "theme", Items: []domain.BatchItem{{ItemID: "a"}}},
		"bad stage":     {ProjectID: "p", Product: "sns", Stage: "persona", Items: []domain.BatchItem{{ItemID: "a"}}},
		"empty item id": {ProjectID: "p", Product: "sns", Stage: "theme", Items: []domain.BatchItem{{ItemID: " "}}},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := p.Plan(context.Background(), req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrPlannerValidation), err)
		})
	}

	_, err := p.Plan(context.Background(), domain.BatchRequest{ProjectID: "p", Product: "sns", Stage: "theme"})
	assert.ErrorIs(t, err, domain.ErrEmptyBatch)
	assert.ErrorIs(t, err, domain.ErrPlannerValidation)
}

func TestParseGraphRejectsBadGraphs(t *testing.T) {
	cases := map[string]string{
		"capability": "product: x\nstages:\n  a:\n    steps:\n      - name: s\n        capability: audio\n",
		"unknown dep": "product: x\nstages:\n  a:\n    steps:\n      - name: s\n        capability: text\n        dependsOn: [nope]\n",
		"cycle": "product: x\nstages:\n  a:\n    steps:\n      - name: s\n        capability: text\n        dependsOn: [t]\n" +
			"      - name: t\n        capability: text\n        dependsOn: [s]\n",
		"duplicate": "product: x\nstages:\n  a:\n    steps:\n      - name: s\n        capability: text\n      - name: s\n        capability: image\n",
		"no product": "stages:\n  a:\n    steps:\n      - name: s\n        capability: text\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseGraph([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestParseGraphSortsSteps(t *testing.T) {
	doc := `product: Zine
stages:
  cover:
    steps:
      - name: render
        capability: image
        dependsOn: [copy]
      - name: copy
        capability: TEXT
`
	g, err := ParseGraph([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "zine", g.Product)
	steps := g.Stages["cover"].Steps
	require.Len(t, steps, 2)
	assert.Equal(t, "copy", steps[0].Name)
	assert.Equal(t, domain.CapabilityText, steps[0].Capability)
}

func TestLoadDirOverlaysBuiltins(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "custom")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(nested, "zine.yml"), []byte(
		"product: zine\nstages:\n  cover:\n    steps:\n      - name: cover\n        capability: image\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("product: [\n"), 0o644))

	catalog, err := NewCatalog(zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, catalog.LoadDir(dir))

	_, ok := catalog.Graph("zine")
	assert.True(t, ok)
	_, ok = catalog.Graph("sns")
	assert.True(t, ok, "built-ins survive a directory load")
}

func TestWatchReloadsChangedGraphs(t *testing.T) {
	dir := t.TempDir()
	catalog, err := NewCatalog(zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, catalog.Watch(ctx, dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "flyer.yaml"), []byte(
		"product: flyer\nstages:\n  theme:\n    steps:\n      - name: theme\n        capability: text\n"), 0o644))

	assert.Eventually(t, func() bool {
		_, ok := catalog.Graph("flyer")
		return ok
	}, 5*time.Second, 50*time.Millisecond)
}
