package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"genstudio/internal/adaptor"
	"genstudio/internal/docstore"
	"genstudio/internal/domain"
	"genstudio/internal/infra"
	"genstudio/internal/resolver"
	"genstudio/internal/templates"
)

// openTemplates connects to the configured Mongo template store.
func openTemplates(ctx context.Context) (*templates.Repository, func(), error) {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	client, err := docstore.Connect(ctx, cfg.MongoURI)
	if err != nil {
		return nil, nil, err
	}
	repo := templates.NewRepository(docstore.NewMongoStore(client.Database(cfg.MongoDatabase)))
	return repo, func() { _ = client.Disconnect(context.Background()) }, nil
}

func NewPromptsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "Inspect prompt templates in the template store",
	}
	cmd.AddCommand(newPromptsResolveCommand(opts, openTemplates))
	cmd.AddCommand(newPromptsVersionsCommand(opts, openTemplates))
	return cmd
}

type templateOpener func(ctx context.Context) (*templates.Repository, func(), error)

func newPromptsResolveCommand(opts *RootOptions, open templateOpener) *cobra.Command {
	var (
		stageType  string
		capability string
		projectID  string
		vars       []string
	)
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Show the effective template of a stage capability and render it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := domain.ParseCapability(capability)
			if c == "" {
				return fmt.Errorf("unsupported capability %q", capability)
			}
			values := make(map[string]any, len(vars))
			for _, kv := range vars {
				k, v, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("--var %q: want key=value", kv)
				}
				values[k] = v
			}
			repo, closeFn, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			svc := resolver.NewService(repo, adaptor.NewRegistry())
			ref, err := svc.ResolvePrompt(cmd.Context(), stageType, c, projectID)
			if err != nil {
				return err
			}
			rendered := ref.Render(values)
			out := cmd.OutOrStdout()
			if opts.Format == "json" {
				return writeJSON(out, map[string]any{"template": ref, "prompt": rendered})
			}
			fmt.Fprintf(out, "%s/%s source=%s version=%d\n", ref.StageType, ref.PromptID, ref.Source, ref.Version)
			if rendered.System != "" {
				fmt.Fprintf(out, "--- system\n%s\n", rendered.System)
			}
			fmt.Fprintf(out, "--- user\n%s\n", rendered.User)
			return nil
		},
	}
	cmd.Flags().StringVar(&stageType, "stage-type", "", "stage type")
	cmd.Flags().StringVar(&capability, "capability", "text", "capability (text|image|video)")
	cmd.Flags().StringVar(&projectID, "project", "", "project id for override lookup")
	cmd.Flags().StringArrayVar(&vars, "var", nil, "key=value prompt variable, repeatable")
	_ = cmd.MarkFlagRequired("stage-type")
	return cmd
}

func newPromptsVersionsCommand(opts *RootOptions, open templateOpener) *cobra.Command {
	var stageType, promptID string
	cmd := &cobra.Command{
		Use:   "versions",
		Short: "List the stored versions of a template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, closeFn, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			tpl, err := repo.Template(cmd.Context(), stageType, promptID)
			if err != nil {
				return err
			}
			versions, err := repo.Versions(cmd.Context(), stageType, promptID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.Format == "json" {
				return writeJSON(out, map[string]any{"activeVersion": tpl.ActiveVersion, "versions": versions})
			}
			for _, v := range versions {
				marker := " "
				if v.Version == tpl.ActiveVersion {
					marker = "*"
				}
				fmt.Fprintf(out, "%s v%d\t%s\t%s\n", marker, v.Version, v.CreatedAt.Format("2006-01-02 15:04"), v.Note)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&stageType, "stage-type", "", "stage type")
	cmd.Flags().StringVar(&promptID, "prompt-id", "", "prompt id")
	_ = cmd.MarkFlagRequired("stage-type")
	_ = cmd.MarkFlagRequired("prompt-id")
	return cmd
}
