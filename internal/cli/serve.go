package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/comanda/internal/admin"
	"github.com/roach88/comanda/internal/config"
	"github.com/roach88/comanda/internal/events"
	"github.com/roach88/comanda/internal/transport"
)

const shutdownTimeout = 5 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	HTTPAddr string
	Console  bool
	Tenant   string
	As       string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the order engine",
		Long: `Run the order engine with the admin HTTP API.

Customer messages are consumed from the AMQP inbound queue and replies are
published to the chat exchange when amqp.url is configured. Engine events
are forwarded to the event exchange. Without a broker, --console chats on
stdin/stdout instead.

Example:
  comanda serve -c comanda.yaml
  comanda serve --console --tenant acme --as 5511999990000`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.HTTPAddr, "http", "", "admin API listen address (overrides http.addr)")
	cmd.Flags().BoolVar(&opts.Console, "console", false, "chat on stdin/stdout instead of the broker")
	cmd.Flags().StringVar(&opts.Tenant, "tenant", "", "console: tenant to chat with")
	cmd.Flags().StringVar(&opts.As, "as", "console", "console: customer id to chat as")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if opts.HTTPAddr != "" {
		cfg.HTTP.Addr = opts.HTTPAddr
	}
	if !cfg.AMQP.Enabled() && !opts.Console {
		return NewExitError(ExitCommandError, "no chat transport: set amqp.url or pass --console")
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	var (
		out        transport.Sender
		console    *transport.Console
		broker     *transport.Broker
		brokerConn *transport.BrokerConnection
	)
	if opts.Console {
		account, err := consoleAccount(cfg, opts.Tenant)
		if err != nil {
			return err
		}
		console = transport.NewConsole(cmd.InOrStdin(), cmd.OutOrStdout(), account, opts.As)
		out = console
	} else {
		slog.Info("connecting to broker", "exchange", cfg.AMQP.ChatExchange, "queue", cfg.AMQP.InboundQueue)
		brokerConn, err = transport.DialBroker(cfg.AMQP.URL, cfg.AMQP.ChatExchange, cfg.AMQP.InboundQueue)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to connect to broker", err)
		}
		defer brokerConn.Close()
		broker = transport.NewBroker(brokerConn.Channel, cfg.AMQP.ChatExchange, transport.WithLanes(cfg.AMQP.Lanes))
		out = broker
	}

	a, err := newApp(cfg, out)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			slog.Error("error closing store", "error", closeErr)
		}
	}()

	if cfg.AMQP.Enabled() {
		eventsConn, err := events.DialAMQP(cfg.AMQP.URL, cfg.AMQP.EventExchange)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to connect event bridge", err)
		}
		defer eventsConn.Close()
		bridge := events.NewAMQPBridge(eventsConn.Channel, cfg.AMQP.EventExchange)
		unsubscribe := a.bus.Subscribe("amqp", bridge.Handle)
		defer unsubscribe()
	}

	svc := admin.NewService(a.engine, a.store, a.flags,
		admin.WithNotifier(out, a.texts),
		admin.WithPublisher(a.bus),
		admin.WithOperators(cfg.OperatorChat),
	)
	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           admin.NewRouter(svc, admin.WithKnownTenants(knownTenant(cfg))),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("admin API listening", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("admin API: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()
		return srv.Shutdown(shutdownCtx)
	})
	if broker != nil {
		g.Go(func() error {
			slog.Info("consuming inbound messages", "queue", cfg.AMQP.InboundQueue, "lanes", cfg.AMQP.Lanes)
			return broker.Serve(gctx, brokerConn.Deliveries, a.pipeline)
		})
	}
	if console != nil {
		g.Go(func() error {
			defer cancel()
			fmt.Fprintln(cmd.OutOrStdout(), "Console ready. Type a message, /loc lat,lng, or /quit.")
			return console.Run(gctx, a.pipeline)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "engine error", err)
	}
	slog.Info("engine stopped gracefully")
	return nil
}

// consoleAccount returns the account the console sends to: the tenant's
// first phone. Without a tenant the default tenant answers.
func consoleAccount(cfg *config.Config, tenantID string) (string, error) {
	if tenantID == "" {
		if cfg.DefaultTenant == "" {
			return "", NewExitError(ExitCommandError, "--tenant is required when no default_tenant is configured")
		}
		tenantID = cfg.DefaultTenant
	}
	if err := requireTenant(cfg, tenantID); err != nil {
		return "", err
	}
	if phones := cfg.Tenants[tenantID].Phones; len(phones) > 0 {
		return phones[0], nil
	}
	// No phone to route by: make the tenant the fallback.
	cfg.DefaultTenant = tenantID
	return "", nil
}

func knownTenant(cfg *config.Config) func(string) bool {
	return func(id string) bool {
		_, ok := cfg.Tenants[id]
		return ok
	}
}
