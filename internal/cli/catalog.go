package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/comanda/internal/catalog"
	"github.com/roach88/comanda/internal/tenant"
)

// CatalogOptions holds flags shared by the catalog subcommands.
type CatalogOptions struct {
	*RootOptions
	Tenant string
	Kind   string
}

// SeedResult summarizes an applied catalog seed.
type SeedResult struct {
	Tenant   string `json:"tenant"`
	Items    int    `json:"items"`
	Mappings int    `json:"mappings"`
}

// NewCatalogCommand creates the catalog command group.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CatalogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage a tenant's menu",
	}
	cmd.PersistentFlags().StringVar(&opts.Tenant, "tenant", "", "tenant id (required)")

	seed := &cobra.Command{
		Use:   "seed <file.cue>",
		Short: "Load items and keyword mappings from a CUE file",
		Long: `Load items and keyword mappings from a CUE file.

Items and mappings are upserted by id and keyword; entries not in the file
are left untouched.

Example:
  comanda catalog seed --tenant acme menu.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalogSeed(opts, cmd, args[0])
		},
	}

	list := &cobra.Command{
		Use:           "list",
		Short:         "List catalog items in menu order",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalogList(opts, cmd)
		},
	}
	list.Flags().StringVar(&opts.Kind, "kind", "", "only items of this kind (food, drink, extra)")

	cmd.AddCommand(seed, list)
	return cmd
}

func runCatalogSeed(opts *CatalogOptions, cmd *cobra.Command, path string) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if err := requireTenant(cfg, opts.Tenant); err != nil {
		return err
	}

	seed, err := catalog.LoadSeedFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid seed file", err)
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := seed.Apply(cmd.Context(), st, opts.Tenant); err != nil {
		return WrapExitError(ExitFailure, "failed to apply seed", err)
	}

	result := SeedResult{Tenant: opts.Tenant, Items: len(seed.Items), Mappings: len(seed.Mappings)}
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return formatter.Success(result, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "✓ %s: %d items, %d mappings\n", result.Tenant, result.Items, result.Mappings)
		return err
	})
}

func runCatalogList(opts *CatalogOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if err := requireTenant(cfg, opts.Tenant); err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	items, err := st.ListItems(cmd.Context(), opts.Tenant, opts.Kind)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list items", err)
	}
	if items == nil {
		items = []tenant.CatalogItem{}
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return formatter.Success(items, func(w io.Writer) error {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tKIND\tPRICE\tAVAILABLE")
		for _, it := range items {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", it.ID, it.Name, it.Kind, it.Price.StringFixed(2), it.Available)
		}
		return tw.Flush()
	})
}
