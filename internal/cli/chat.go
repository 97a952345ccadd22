package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/comanda/internal/transport"
)

// ChatOptions holds flags for the chat command.
type ChatOptions struct {
	*RootOptions
	Tenant string
	As     string
}

// NewChatCommand creates the chat command.
func NewChatCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ChatOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to a tenant's bot from the terminal",
		Long: `Talk to a tenant's bot from the terminal.

Each line is sent as a customer message. "/loc lat,lng" shares a location
and "/quit" ends the session. Orders are persisted to the tenant store as
usual.

Example:
  comanda chat --tenant acme --as 5511999990000`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Tenant, "tenant", "", "tenant to chat with (default: default_tenant)")
	cmd.Flags().StringVar(&opts.As, "as", "console", "customer id to chat as")

	return cmd
}

func runChat(opts *ChatOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	account, err := consoleAccount(cfg, opts.Tenant)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	console := transport.NewConsole(cmd.InOrStdin(), cmd.OutOrStdout(), account, opts.As)
	a, err := newApp(cfg, console)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			slog.Error("error closing store", "error", closeErr)
		}
	}()

	fmt.Fprintln(cmd.OutOrStdout(), "Console ready. Type a message, /loc lat,lng, or /quit.")
	if err := console.Run(ctx, a.pipeline); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "chat failed", err)
	}
	return nil
}
