package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"genstudio/internal/infra"
	"genstudio/internal/infra/credentials"
)

type keyStore interface {
	Set(ctx context.Context, provider, key string) error
	Delete(ctx context.Context, provider string) (bool, error)
}

type keyStoreOpener func(ctx context.Context) (keyStore, func(), error)

func openCredentials(ctx context.Context) (keyStore, func(), error) {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	pool, err := infra.NewDBPool(ctx, cfg, "studioctl")
	if err != nil {
		return nil, nil, err
	}
	logger := infra.NewLogger(cfg.AppEnv, "")
	return credentials.NewStore(infra.NewSQLRunner(pool, logger)), pool.Close, nil
}

func NewCredentialsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage adaptor API keys stored in Postgres",
		Long: `Keys set here are used by the api and worker when the matching
environment variable (GEMINI_API_KEY, QWEN_API_KEY, OPENAI_API_KEY) is empty.`,
	}
	cmd.AddCommand(newCredentialsSetCommand(openCredentials))
	cmd.AddCommand(newCredentialsDeleteCommand(openCredentials))
	return cmd
}

func newCredentialsSetCommand(open keyStoreOpener) *cobra.Command {
	return &cobra.Command{
		Use:       "set <provider> <key>",
		Short:     "Store the API key of an adaptor provider",
		Args:      cobra.ExactArgs(2),
		ValidArgs: credentials.Providers,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeFn, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			provider := strings.ToLower(args[0])
			if err := store.Set(cmd.Context(), provider, args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %s key %s\n", provider, credentials.Mask(strings.TrimSpace(args[1])))
			return nil
		},
	}
}

func newCredentialsDeleteCommand(open keyStoreOpener) *cobra.Command {
	return &cobra.Command{
		Use:       "delete <provider>",
		Short:     "Remove the stored API key of an adaptor provider",
		Args:      cobra.ExactArgs(1),
		ValidArgs: credentials.Providers,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeFn, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			provider := strings.ToLower(args[0])
			existed, err := store.Delete(cmd.Context(), provider)
			if err != nil {
				return err
			}
			if !existed {
				fmt.Fprintf(cmd.OutOrStdout(), "no stored %s key\n", provider)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s key\n", provider)
			return nil
		},
	}
}
