package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/comanda/internal/admin"
	"github.com/roach88/comanda/internal/events"
	"github.com/roach88/comanda/internal/messages"
	"github.com/roach88/comanda/internal/session"
	"github.com/roach88/comanda/internal/tenant"
	"github.com/roach88/comanda/internal/transport"
)

// OrdersOptions holds flags shared by the orders subcommands.
type OrdersOptions struct {
	*RootOptions
	Tenant string
	Status string
}

// NewOrdersCommand creates the orders command group.
func NewOrdersCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &OrdersOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Inspect and dispatch persisted orders",
	}
	cmd.PersistentFlags().StringVar(&opts.Tenant, "tenant", "", "tenant id (required)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List a tenant's orders, newest first",
		Example: `  comanda orders list --tenant acme
  comanda orders list --tenant acme --status finalized --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOrdersList(opts, cmd)
		},
	}
	list.Flags().StringVar(&opts.Status, "status", "", "only orders with this status (finalized, dispatched-for-delivery)")

	dispatch := &cobra.Command{
		Use:   "dispatch <order-id>",
		Short: "Mark an order dispatched for delivery and notify the customer",
		Long: `Mark an order dispatched for delivery.

When amqp.url is configured the customer is notified through the chat
exchange; otherwise only the stored status changes.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOrdersDispatch(opts, cmd, args[0])
		},
	}

	cmd.AddCommand(list, dispatch)
	return cmd
}

func runOrdersList(opts *OrdersOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if err := requireTenant(cfg, opts.Tenant); err != nil {
		return err
	}
	status := tenant.OrderStatus(opts.Status)
	if status != "" && !status.Valid() {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid status %q", opts.Status))
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	orders, err := st.ListOrders(cmd.Context(), opts.Tenant, status)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list orders", err)
	}
	if orders == nil {
		orders = []tenant.OrderRecord{}
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return formatter.Success(orders, func(w io.Writer) error {
		return writeOrderTable(w, orders)
	})
}

func writeOrderTable(w io.Writer, orders []tenant.OrderRecord) error {
	if len(orders) == 0 {
		_, err := fmt.Fprintln(w, "No orders.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tCUSTOMER\tTOTAL\tPAYMENT\tSTATUS")
	for _, o := range orders {
		customer := o.CustomerKey
		if o.CustomerName != "" {
			customer = o.CustomerName + " (" + o.CustomerKey + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			o.ID,
			o.CreatedAt.Local().Format("2006-01-02 15:04"),
			customer,
			o.Total.StringFixed(2),
			o.PaymentMethod,
			o.Status,
		)
	}
	return tw.Flush()
}

func runOrdersDispatch(opts *OrdersOptions, cmd *cobra.Command, orderID string) error {
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

	def, perTenant, err := cfg.MessageSets()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid messages", err)
	}
	texts := messages.NewRegistry(st, def, perTenant)

	bus := events.NewBus()
	defer bus.Close()

	svcOpts := []admin.Option{admin.WithPublisher(bus)}
	if cfg.AMQP.Enabled() {
		conn, err := events.DialAMQP(cfg.AMQP.URL, cfg.AMQP.ChatExchange)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to connect to broker", err)
		}
		defer conn.Close()
		out := transport.NewBroker(conn.Channel, cfg.AMQP.ChatExchange)
		svcOpts = append(svcOpts, admin.WithNotifier(out, texts))

		eventsConn, err := events.DialAMQP(cfg.AMQP.URL, cfg.AMQP.EventExchange)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to connect event bridge", err)
		}
		defer eventsConn.Close()
		bridge := events.NewAMQPBridge(eventsConn.Channel, cfg.AMQP.EventExchange)
		defer bus.Subscribe("amqp", bridge.Handle)()
	} else {
		slog.Info("amqp not configured, customer will not be notified", "order", orderID)
	}

	// No live sessions in this process: the order is updated in the store.
	engine := session.New(nil, st, session.WithPublisher(bus))
	defer engine.Close()
	svc := admin.NewService(engine, st, nil, svcOpts...)

	rec, err := svc.DispatchOrder(cmd.Context(), opts.Tenant, orderID)
	if err != nil {
		if errors.Is(err, tenant.ErrOrderNotFound) {
			return WrapExitError(ExitCommandError, fmt.Sprintf("order %s not found", orderID), err)
		}
		return WrapExitError(ExitFailure, "failed to dispatch order", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return formatter.Success(rec, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "✓ %s %s\n", rec.ID, rec.Status)
		return err
	})
}
