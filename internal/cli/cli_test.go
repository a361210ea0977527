package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genstudio/internal/docstore"
	"genstudio/internal/domain"
	"genstudio/internal/planner"
	"genstudio/internal/templates"
)

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootRejectsUnknownFormat(t *testing.T) {
	_, err := execute(t, NewRootCommand(), "graphs", "--format", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestGraphsListsBuiltins(t *testing.T) {
	out, err := execute(t, NewRootCommand(), "graphs", "--graphs", "")
	require.NoError(t, err)
	for _, product := range []string{"sns", "poster", "story"} {
		assert.Contains(t, out, product+"\t")
	}
}

func TestPlanText(t *testing.T) {
	out, err := execute(t, NewRootCommand(), "plan", "--graphs", "",
		"--product", "sns", "--stage", "animation", "--item", "x")
	require.NoError(t, err)
	assert.Contains(t, out, "2 jobs")
	assert.Contains(t, out, "x\trender\tvideo")
	assert.Contains(t, out, "after ")
}

func TestPlanJSON(t *testing.T) {
	out, err := execute(t, NewRootCommand(), "plan", "--graphs", "", "--format", "json",
		"--product", "sns", "--stage", "theme", "--item", "a", "--item", "b", "--input", "title=Cafe")
	require.NoError(t, err)

	var run domain.BatchRun
	require.NoError(t, json.Unmarshal([]byte(out), &run))
	assert.Len(t, run.Jobs, 2)
	assert.Equal(t, "sns", run.Product)
}

func TestPlanRejectsBadInput(t *testing.T) {
	_, err := execute(t, NewRootCommand(), "plan", "--graphs", "",
		"--product", "sns", "--stage", "theme", "--item", "a", "--input", "novalue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want key=value")
}

func TestRunOffline(t *testing.T) {
	out, err := execute(t, NewRootCommand(), "run", "--graphs", "", "--out", t.TempDir(),
		"--product", "sns", "--stage", "theme", "--item", "a", "--item", "b", "--input", "title=Cafe")
	require.NoError(t, err)
	assert.Contains(t, out, "start\t")
	assert.Contains(t, out, "item\ta/theme\tdone")
	assert.Contains(t, out, "item\tb/theme\tdone")
	assert.Contains(t, out, "complete\t2 succeeded\t0 failed")
}

func TestRunOfflineJSONLines(t *testing.T) {
	out, err := execute(t, NewRootCommand(), "run", "--graphs", "", "--format", "json", "--out", t.TempDir(),
		"--product", "sns", "--stage", "theme", "--item", "a")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	var last struct {
		Event string `json:"event"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &last))
	assert.Equal(t, "complete", last.Event)
}

func TestLoadSeedTemplates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- stageType: theme
  promptId: text
  fragments:
    - role: system
      text: be brief
    - role: user
      text: ideas for {{title}}
  model:
    adaptorId: static
`), 0o644))

	seeds, err := loadSeedTemplates(path)
	require.NoError(t, err)
	require.Len(t, seeds, 1)
	assert.Equal(t, domain.RoleSystem, seeds[0].Fragments[0].Role)
	require.NotNil(t, seeds[0].Model)
	assert.Equal(t, "static", seeds[0].Model.AdaptorID)
}

func TestDefaultTemplatesCoverEveryStep(t *testing.T) {
	catalog, err := planner.NewCatalog(zerolog.Nop())
	require.NoError(t, err)
	g, ok := catalog.Graph("sns")
	require.True(t, ok)

	seeds := defaultTemplates(g, "animation")
	require.Len(t, seeds, 2)
	byPrompt := map[string]domain.PromptTemplate{}
	for _, s := range seeds {
		byPrompt[s.PromptID] = s
	}
	assert.Equal(t, "static", byPrompt["analyze"].Model.AdaptorID)
	assert.Equal(t, "gemini", byPrompt["video"].Model.AdaptorID)
	assert.Contains(t, byPrompt["video"].Fragments[0].Text, "{{analyze}}")
}

func memoryTemplates(t *testing.T) (*templates.Repository, templateOpener) {
	t.Helper()
	store := docstore.NewMemoryStore()
	editor := templates.NewEditor(store, zerolog.Nop())
	_, err := editor.AddTemplate(context.Background(), domain.PromptTemplate{
		StageType: "theme",
		PromptID:  "text",
		Fragments: []domain.PromptFragment{{Role: domain.RoleUser, Text: "ideas for {{title}}"}},
	})
	require.NoError(t, err)
	repo := templates.NewRepository(store)
	return repo, func(context.Context) (*templates.Repository, func(), error) {
		return repo, func() {}, nil
	}
}

func TestPromptsResolveRenders(t *testing.T) {
	_, open := memoryTemplates(t)
	cmd := newPromptsResolveCommand(&RootOptions{Format: "text"}, open)
	out, err := execute(t, cmd, "--stage-type", "theme", "--var", "title=Cafe A")
	require.NoError(t, err)
	assert.Contains(t, out, "theme/text source=stage version=1")
	assert.Contains(t, out, "ideas for Cafe A")
}

func TestPromptsResolveRejectsCapability(t *testing.T) {
	_, open := memoryTemplates(t)
	cmd := newPromptsResolveCommand(&RootOptions{Format: "text"}, open)
	_, err := execute(t, cmd, "--stage-type", "theme", "--capability", "audio")
	require.Error(t, err)
}

func TestPromptsVersions(t *testing.T) {
	_, open := memoryTemplates(t)
	cmd := newPromptsVersionsCommand(&RootOptions{Format: "text"}, open)
	out, err := execute(t, cmd, "--stage-type", "theme", "--prompt-id", "text")
	require.NoError(t, err)
	assert.Contains(t, out, "* v1")
}

type fakeKeys struct {
	provider, key string
	deleted       []string
}

func (f *fakeKeys) Set(_ context.Context, provider, key string) error {
	f.provider, f.key = provider, key
	return nil
}

func (f *fakeKeys) Delete(_ context.Context, provider string) (bool, error) {
	f.deleted = append(f.deleted, provider)
	return provider == f.provider, nil
}

func (f *fakeKeys) opener() keyStoreOpener {
	return func(context.Context) (keyStore, func(), error) {
		return f, func() {}, nil
	}
}

func TestCredentialsSetAndDelete(t *testing.T) {
	keys := &fakeKeys{}
	out, err := execute(t, newCredentialsSetCommand(keys.opener()), "Gemini", "sk-secret")
	require.NoError(t, err)
	assert.Equal(t, "gemini", keys.provider)
	assert.Equal(t, "sk-secret", keys.key)
	assert.Contains(t, out, "stored gemini key *****cret")
	assert.NotContains(t, out, "sk-secret")

	out, err = execute(t, newCredentialsDeleteCommand(keys.opener()), "gemini")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted gemini key")

	out, err = execute(t, newCredentialsDeleteCommand(keys.opener()), "qwen")
	require.NoError(t, err)
	assert.Contains(t, out, "no stored qwen key")
}
