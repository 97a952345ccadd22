package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
)

// MigrateOptions holds flags for the migrate command.
type MigrateOptions struct {
	*RootOptions
	Tenant string
}

// MigrateResult reports one tenant partition after migration.
type MigrateResult struct {
	Tenant   string   `json:"tenant"`
	Degraded []string `json:"degraded,omitempty"`
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MigrateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade tenant databases",
		Long: `Create or upgrade the database of every configured tenant.

Tables that fail to migrate are reported as degraded; the rest of the
partition stays usable. The command exits non-zero if any tenant is
degraded.

Example:
  comanda migrate
  comanda migrate --tenant acme --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Tenant, "tenant", "", "migrate only this tenant")

	return cmd
}

func runMigrate(opts *MigrateOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}

	ids := cfg.TenantIDs()
	if opts.Tenant != "" {
		if err := requireTenant(cfg, opts.Tenant); err != nil {
			return err
		}
		ids = []string{opts.Tenant}
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	results := make([]MigrateResult, 0, len(ids))
	degraded := 0
	for _, id := range ids {
		p, err := st.Open(cmd.Context(), id)
		if err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf("failed to open tenant %s", id), err)
		}
		r := MigrateResult{Tenant: id, Degraded: p.Degraded()}
		if len(r.Degraded) > 0 {
			degraded++
			slog.Warn("tenant partition degraded", "tenant", id, "tables", r.Degraded)
		}
		results = append(results, r)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if err := formatter.Success(results, func(w io.Writer) error {
		for _, r := range results {
			if len(r.Degraded) == 0 {
				fmt.Fprintf(w, "✓ %s\n", r.Tenant)
				continue
			}
			fmt.Fprintf(w, "✗ %s (degraded: %s)\n", r.Tenant, strings.Join(r.Degraded, ", "))
		}
		return nil
	}); err != nil {
		return err
	}

	if degraded > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d tenant(s) degraded", degraded))
	}
	return nil
}
