// Package cli implements studioctl, the operator command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"genstudio/internal/planner"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format   string // "json" | "text"
	GraphDir string
	Verbose  bool
}

var ValidFormats = []string{"text", "json"}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "studioctl",
		Short:         "Operate the generation studio",
		Long:          "Plan and run generation batches, inspect prompt resolution and manage adaptor credentials.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.GraphDir, "graphs", os.Getenv("GRAPH_DIR"), "directory of extra job graphs")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log to stderr")

	cmd.AddCommand(NewGraphsCommand(opts))
	cmd.AddCommand(NewPlanCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewPromptsCommand(opts))
	cmd.AddCommand(NewCredentialsCommand(opts))

	return cmd
}

func (o *RootOptions) logger(cmd *cobra.Command) zerolog.Logger {
	if !o.Verbose {
		return zerolog.Nop()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).With().Timestamp().Logger()
}

func (o *RootOptions) catalog(cmd *cobra.Command) (*planner.Catalog, error) {
	catalog, err := planner.NewCatalog(o.logger(cmd))
	if err != nil {
		return nil, err
	}
	if o.GraphDir != "" {
		if err := catalog.LoadDir(o.GraphDir); err != nil {
			return nil, err
		}
	}
	return catalog, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// NewGraphsCommand lists the products and stages known to the planner.
func NewGraphsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "graphs",
		Short: "List product job graphs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := opts.catalog(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			var graphs []*planner.Graph
			for _, product := range catalog.Products() {
				g, _ := catalog.Graph(product)
				graphs = append(graphs, g)
			}
			if opts.Format == "json" {
				return writeJSON(out, graphs)
			}
			for _, g := range graphs {
				fmt.Fprintf(out, "%s\t%v\n", g.Product, g.StageNames())
			}
			return nil
		},
	}
}
