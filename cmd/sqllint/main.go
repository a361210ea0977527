package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"genstudio/internal/sqlaudit"
)

func main() {
	var include string
	var exclude []string
	cmd := &cobra.Command{
		Use:           "sqllint [dir...]",
		Short:         "Check SQL constants for unique --sql <uuid> audit markers",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{"."}
			}
			var found int
			for _, dir := range args {
				vs, err := sqlaudit.Lint(dir, include, exclude)
				if err != nil {
					return err
				}
				for _, v := range vs {
					fmt.Fprintln(cmd.ErrOrStderr(), "  "+v.String())
				}
				found += len(vs)
			}
			if found > 0 {
				return fmt.Errorf("%d SQL audit marker violations", found)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&include, "include", "**/*.go", "doublestar pattern of files to check")
	cmd.Flags().StringSliceVar(&exclude, "exclude", sqlaudit.DefaultExclude, "doublestar patterns to skip")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "sqllint: %v\n", err)
		os.Exit(1)
	}
}
