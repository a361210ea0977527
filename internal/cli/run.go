package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"genstudio/internal/docstore"
	"genstudio/internal/domain"
	"genstudio/internal/infra"
	"genstudio/internal/planner"
	"genstudio/internal/progress"
	"genstudio/internal/storage"
	"genstudio/internal/studio"
)

// seedTemplate is the YAML form of a prompt template given to run --templates.
type seedTemplate struct {
	StageType string            `yaml:"stageType"`
	PromptID  string            `yaml:"promptId"`
	Fragments []seedFragment    `yaml:"fragments"`
	Variables map[string]string `yaml:"variables,omitempty"`
	Model     *seedModel        `yaml:"model,omitempty"`
}

type seedFragment struct {
	Role string `yaml:"role"`
	Text string `yaml:"text"`
}

type seedModel struct {
	AdaptorID string `yaml:"adaptorId"`
	ModelID   string `yaml:"modelId"`
}

func (s seedTemplate) template() domain.PromptTemplate {
	tpl := domain.PromptTemplate{StageType: s.StageType, PromptID: s.PromptID, Variables: s.Variables}
	for _, f := range s.Fragments {
		tpl.Fragments = append(tpl.Fragments, domain.PromptFragment{Role: domain.FragmentRole(f.Role), Text: f.Text})
	}
	if s.Model != nil {
		tpl.Model = &domain.ModelConfig{AdaptorID: s.Model.AdaptorID, ModelID: s.Model.ModelID}
	}
	return tpl
}

func loadSeedTemplates(path string) ([]domain.PromptTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var seeds []seedTemplate
	if err := yaml.Unmarshal(data, &seeds); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	out := make([]domain.PromptTemplate, 0, len(seeds))
	for _, s := range seeds {
		out = append(out, s.template())
	}
	return out, nil
}

// defaultTemplates gives every step of a stage a template that echoes the
// item and its predecessors. Text runs on the static adaptor and media on
// Gemini, which is synthetic without an API key.
func defaultTemplates(g *planner.Graph, stage string) []domain.PromptTemplate {
	var out []domain.PromptTemplate
	seen := make(map[string]bool)
	for _, step := range g.Stages[stage].Steps {
		stageType := firstNonEmpty(step.StageType, stage)
		promptID := firstNonEmpty(step.PromptID, step.Capability.String())
		if seen[stageType+"/"+promptID] {
			continue
		}
		seen[stageType+"/"+promptID] = true
		text := step.Name + " for {{itemId}} {{title}}"
		for _, dep := range step.DependsOn {
			text += " after {{" + dep + "}}"
		}
		adaptorID := studio.AdaptorGemini
		if step.Capability == domain.CapabilityText {
			adaptorID = studio.AdaptorStatic
		}
		out = append(out, domain.PromptTemplate{
			StageType: stageType,
			PromptID:  promptID,
			Fragments: []domain.PromptFragment{{Role: domain.RoleUser, Text: text}},
			Model:     &domain.ModelConfig{AdaptorID: adaptorID},
		})
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// NewRunCommand runs a batch in-process against an in-memory store.
func NewRunCommand(opts *RootOptions) *cobra.Command {
	flags := &batchFlags{}
	var (
		templatesPath string
		outDir        string
		concurrency   int
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a batch offline and print its event stream",
		Long: `Run plans a batch and executes it in-process with an in-memory template
store. Templates come from --templates (a YAML list) or are generated for
the stage. Media is written under --out.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request()
			if err != nil {
				return err
			}
			return runOffline(cmd, opts, runSettings{
				request:     req,
				templates:   templatesPath,
				outDir:      outDir,
				concurrency: concurrency,
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&templatesPath, "templates", "", "YAML file of prompt templates")
	cmd.Flags().StringVar(&outDir, "out", "", "media directory (default: a temporary directory)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "jobs run at once")
	return cmd
}

type runSettings struct {
	request     domain.BatchRequest
	templates   string
	outDir      string
	concurrency int
}

func runOffline(cmd *cobra.Command, opts *RootOptions, s runSettings) error {
	ctx, out := cmd.Context(), cmd.OutOrStdout()
	logger := opts.logger(cmd)
	outDir := s.outDir
	if outDir == "" {
		dir, err := os.MkdirTemp("", "studioctl-*")
		if err != nil {
			return err
		}
		outDir = dir
	}
	blobs, err := storage.NewFileStore(outDir, "file://"+outDir)
	if err != nil {
		return err
	}
	docs := docstore.NewMemoryStore()
	cfg := &infra.Config{GraphDir: opts.GraphDir, EngineConcurrency: s.concurrency}
	svc, err := studio.New(ctx, cfg, studio.Deps{Docs: docs, Blobs: blobs, Logger: logger})
	if err != nil {
		return err
	}

	var seeds []domain.PromptTemplate
	if s.templates != "" {
		if seeds, err = loadSeedTemplates(s.templates); err != nil {
			return err
		}
	} else if g, ok := svc.Catalog.Graph(s.request.Product); ok {
		seeds = defaultTemplates(g, s.request.Stage)
	}
	for _, tpl := range seeds {
		if _, err := svc.Editor.AddTemplate(ctx, tpl); err != nil {
			return fmt.Errorf("seed %s/%s: %w", tpl.StageType, tpl.PromptID, err)
		}
	}

	run, err := svc.Planner.Plan(ctx, s.request)
	if err != nil {
		return err
	}
	var mu sync.Mutex
	rec := progress.NewRecorder()
	rec.OnEmit = func(e progress.Event) {
		mu.Lock()
		defer mu.Unlock()
		printEvent(out, opts.Format, e)
	}
	summary, fatal := svc.Engine.Run(ctx, run, rec)
	if fatal != nil {
		return fatal
	}
	if summary.Counts.Failed > 0 {
		return fmt.Errorf("%d of %d jobs failed", summary.Counts.Failed, len(run.Jobs))
	}
	return nil
}

func printEvent(w io.Writer, format string, e progress.Event) {
	if format == "json" {
		_ = writeJSONLine(w, e)
		return
	}
	switch d := e.Data.(type) {
	case progress.StartData:
		fmt.Fprintf(w, "start\t%s\t%d items\t%d jobs\n", d.BatchID, d.Items, d.Jobs)
	case progress.ProgressData:
		fmt.Fprintf(w, "progress\t%3d%%\t%s\n", d.Percent, d.Message)
	case progress.ItemResultData:
		outcome := string(d.Status)
		if d.Result != nil {
			outcome += "\t" + firstNonEmpty(d.Result.ImageURL, d.Result.VideoURL, firstLine(d.Result.Text))
		}
		if d.Error != "" {
			outcome += "\t" + string(d.ErrorKind) + ": " + d.Error
		}
		fmt.Fprintf(w, "item\t%s/%s\t%s\n", d.ItemID, d.Step, outcome)
	case progress.FatalData:
		fmt.Fprintf(w, "fatal\t%s\n", d.Message)
	case *domain.Summary:
		fmt.Fprintf(w, "complete\t%d succeeded\t%d failed\n", d.Counts.Succeeded, d.Counts.Failed)
	default:
		fmt.Fprintf(w, "%s\n", e.Name)
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

func writeJSONLine(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}
