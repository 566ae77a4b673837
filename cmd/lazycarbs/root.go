package main

import (
	"context"
	"fmt"

	"lazycarbs-console/internal/config"
	"lazycarbs-console/internal/console"
	"lazycarbs-console/internal/credstore"
	"lazycarbs-console/internal/observability"
	"lazycarbs-console/internal/remote"

	"github.com/spf13/cobra"
)

// options holds the persistent flags shared by every subcommand.
type options struct {
	backend      string
	credentialDB string
	verbose      bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "lazycarbs",
		Short: "Edit LazyCarbs bolus parameters and run calculations",
		Long: `lazycarbs talks to a LazyCarbs backend.

Reads never need a credential. Saving factors and persisting a calculation
require the API key stored with 'lazycarbs login'.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := "error"
			if opts.verbose {
				level = "debug"
			}
			if err := observability.InitLogger(level); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			observability.SyncLogger()
		},
	}

	root.PersistentFlags().StringVar(&opts.backend, "backend", "", "Backend base URL (default: BACKEND_URL or http://localhost:8080)")
	root.PersistentFlags().StringVar(&opts.credentialDB, "credential-db", "", "Credential database path (default: CREDENTIAL_DB or the user state dir)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose logging")

	root.AddCommand(
		newLoginCmd(opts),
		newFactorsCmd(opts),
		newCaloriesCmd(opts),
		newCalculateCmd(opts),
	)
	return root
}

// openSession resolves configuration, lets flags override it, and builds a
// session without running any initial reads. The returned func closes the
// credential store.
func openSession(ctx context.Context, opts *options) (*console.Session, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if opts.backend != "" {
		cfg.BackendURL = opts.backend
	}
	if opts.credentialDB != "" {
		cfg.CredentialDB = opts.credentialDB
	}

	store, err := credstore.NewSQLiteStore(cfg.CredentialDB)
	if err != nil {
		return nil, nil, fmt.Errorf("open credential store %s: %w", cfg.CredentialDB, err)
	}

	client := remote.New(cfg.BackendURL, cfg.BackendTimeout)
	session := console.NewSession(ctx, client, store, cfg.CredentialHeader)
	return session, func() { store.Close() }, nil
}
