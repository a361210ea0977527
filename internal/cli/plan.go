package cli

import (
	"fmt"
	"maps"
	"strings"

	"github.com/spf13/cobra"

	"genstudio/internal/domain"
	"genstudio/internal/planner"
)

// batchFlags describe one batch request on the command line.
type batchFlags struct {
	project string
	product string
	stage   string
	items   []string
	inputs  []string
	locale  string
	adaptor string
	model   string
}

func (f *batchFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.project, "project", "local", "project id")
	cmd.Flags().StringVar(&f.product, "product", "", "product line (sns, poster, story, ...)")
	cmd.Flags().StringVar(&f.stage, "stage", "", "wizard stage")
	cmd.Flags().StringSliceVar(&f.items, "item", nil, "item id, repeatable")
	cmd.Flags().StringArrayVar(&f.inputs, "input", nil, "key=value added to every item's input, repeatable")
	cmd.Flags().StringVar(&f.locale, "locale", "en", "default locale prompt variable")
	cmd.Flags().StringVar(&f.adaptor, "adaptor", "", "explicit adaptor id for every job")
	cmd.Flags().StringVar(&f.model, "model", "", "explicit model id, used with --adaptor")
	_ = cmd.MarkFlagRequired("product")
	_ = cmd.MarkFlagRequired("stage")
}

func (f *batchFlags) request() (domain.BatchRequest, error) {
	input := make(map[string]any, len(f.inputs))
	for _, kv := range f.inputs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return domain.BatchRequest{}, fmt.Errorf("--input %q: want key=value", kv)
		}
		input[k] = v
	}
	req := domain.BatchRequest{
		ProjectID: f.project,
		Product:   f.product,
		Stage:     f.stage,
		Locale:    f.locale,
	}
	for _, id := range f.items {
		req.Items = append(req.Items, domain.BatchItem{ItemID: id, Input: maps.Clone(input)})
	}
	if f.adaptor != "" {
		req.ModelOverride = &domain.ModelConfig{AdaptorID: f.adaptor, ModelID: f.model}
	}
	return req, nil
}

func NewPlanCommand(opts *RootOptions) *cobra.Command {
	flags := &batchFlags{}
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Expand a batch request into its jobs without running them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := opts.catalog(cmd)
			if err != nil {
				return err
			}
			req, err := flags.request()
			if err != nil {
				return err
			}
			run, err := planner.New(catalog).Plan(cmd.Context(), req)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.Format == "json" {
				return writeJSON(out, run)
			}
			fmt.Fprintf(out, "batch %s: %d jobs\n", run.ID, len(run.Jobs))
			for _, job := range run.Jobs {
				fmt.Fprintf(out, "%s\t%s\t%s\t%s/%s", job.ItemID, job.Step, job.Capability, job.StageType, job.PromptID)
				if len(job.Predecessors) > 0 {
					fmt.Fprintf(out, "\tafter %s", strings.Join(job.Predecessors, ","))
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}
