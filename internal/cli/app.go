package cli

import (
	"fmt"
	"log/slog"

	"github.com/roach88/comanda/internal/bot"
	"github.com/roach88/comanda/internal/catalog"
	"github.com/roach88/comanda/internal/config"
	"github.com/roach88/comanda/internal/conversation"
	"github.com/roach88/comanda/internal/events"
	"github.com/roach88/comanda/internal/messages"
	"github.com/roach88/comanda/internal/session"
	"github.com/roach88/comanda/internal/tenant"
	"github.com/roach88/comanda/internal/transport"
)

// loadConfig loads the .env file and the config named by the root flags.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	if opts.EnvFile != "" {
		if err := config.LoadDotEnv(opts.EnvFile); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load env file", err)
		}
	}
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}

// openStore opens the tenant store under the configured data directory.
func openStore(cfg *config.Config) (*tenant.Store, error) {
	st, err := tenant.NewStore(cfg.DataDir, tenant.WithOpTimeout(cfg.StoreTimeout))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open data directory", err)
	}
	return st, nil
}

// requireTenant checks that id is a configured tenant.
func requireTenant(cfg *config.Config, id string) error {
	if id == "" {
		return NewExitError(ExitCommandError, "--tenant is required")
	}
	if _, ok := cfg.Tenants[id]; !ok {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown tenant %q", id))
	}
	return nil
}

// app is the wired order engine shared by serve and chat.
type app struct {
	cfg      *config.Config
	store    *tenant.Store
	bus      *events.Bus
	texts    *messages.Registry
	flags    *bot.Flags
	engine   *session.Engine
	pipeline *bot.Pipeline
}

// newApp wires the engine, the conversation machine, and the inbound
// pipeline replying through out.
func newApp(cfg *config.Config, out transport.Sender) (*app, error) {
	st, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	def, perTenant, err := cfg.MessageSets()
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "invalid messages", err)
	}

	a := &app{
		cfg:   cfg,
		store: st,
		bus:   events.NewBus(),
		texts: messages.NewRegistry(st, def, perTenant),
	}
	a.flags = bot.NewFlags(st, cfg.BotDefault, a.bus)

	cat := catalog.New(st)
	a.engine = session.New(cat, st,
		session.WithPublisher(a.bus),
		session.WithReminder(bot.NewReminder(out, a.texts, a.flags)),
		session.WithDeliveryFee(cfg.DeliveryFee),
		session.WithFollowupDelay(cfg.TenantFollowupDelay),
	)

	machine := conversation.New(a.engine, cat, st, a.texts,
		conversation.WithPickup(cfg.PickupEnabled),
		conversation.WithMenuMedia(cfg.MenuMedia),
	)
	a.pipeline = bot.NewPipeline(
		tenant.NewResolver(cfg.Phones(), cfg.DefaultTenant),
		machine, a.engine, a.texts, a.flags, out,
		bot.WithOperators(cfg.OperatorChat),
	)

	a.bus.Subscribe("log", logEvent,
		events.KindOrderSaved,
		events.KindOrderStatusChanged,
		events.KindOrderPersistenceFailed,
		events.KindBotStatusChanged,
	)
	return a, nil
}

// Close stops timers, drains the bus, and closes the store.
func (a *app) Close() error {
	a.engine.Close()
	a.bus.Close()
	return a.store.Close()
}

func logEvent(e events.Event) {
	attrs := []any{"tenant", e.TenantID, "kind", e.Kind}
	if e.Order != nil {
		attrs = append(attrs, "order", e.Order.ID, "status", e.Order.Status)
	}
	if e.Error != "" {
		attrs = append(attrs, "error", e.Error)
		slog.Warn("event", attrs...)
		return
	}
	slog.Debug("event", attrs...)
}
