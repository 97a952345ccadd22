// Package conversation drives the order dialog: it classifies each customer
// message against the session's state and runs the handler for that state.
//
// Handlers run inside the session's critical section, so a turn reads and
// mutates the cart atomically. Failures of the catalog or the customer
// directory are logged and answered with a polite retry prompt; they never
// abort the turn.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/comanda/internal/messages"
	"github.com/roach88/comanda/internal/session"
	"github.com/roach88/comanda/internal/tenant"
	"github.com/roach88/comanda/internal/transport"
)

// Catalog is the menu as the dialog sees it. *catalog.Catalog satisfies it.
type Catalog interface {
	ResolveItemID(ctx context.Context, tenantID, text string) (string, bool, error)
	Menu(ctx context.Context, tenantID string) ([]tenant.CatalogItem, error)
	Drinks(ctx context.Context, tenantID string) ([]tenant.CatalogItem, error)
}

// Directory is the durable customer record. *tenant.Store satisfies it.
type Directory interface {
	ReadCustomer(ctx context.Context, tenantID, key string) (tenant.Customer, bool, error)
	SetCustomerName(ctx context.Context, tenantID, key, name string) error
	SetCustomerAddress(ctx context.Context, tenantID, key, address string, lat, lng *float64) error
	ClearCustomerAddress(ctx context.Context, tenantID, key string) error
}

// Texts resolves a tenant's reply texts. *messages.Registry satisfies it.
type Texts interface {
	For(ctx context.Context, tenantID string) *messages.Set
}

// Reply is the outcome of one turn.
type Reply struct {
	Messages []transport.Outbound

	// State is the session state after the turn.
	State session.State

	// Order is set when the turn finalized an order. Created is true only
	// for the turn that wrote it.
	Order   *tenant.OrderRecord
	Created bool

	// Escalate asks for the message to be relayed to a human operator.
	Escalate bool
}

// Texts returns the text of every message.
func (r Reply) Texts() []string {
	out := make([]string, 0, len(r.Messages))
	for _, m := range r.Messages {
		if m.Text != "" {
			out = append(out, m.Text)
		}
	}
	return out
}

type handler func(m *Machine, t *turn) error

// Machine is the conversation state machine.
type Machine struct {
	engine    *session.Engine
	catalog   Catalog
	directory Directory
	texts     Texts

	pickupEnabled func(tenantID string) bool
	menuMedia     func(tenantID string) []string

	handlers map[session.State]handler
}

// Option configures a Machine.
type Option func(*Machine)

// WithPickup enables the delivery-or-pickup question per tenant. Without it
// every order is delivered.
func WithPickup(enabled func(tenantID string) bool) Option {
	return func(m *Machine) {
		m.pickupEnabled = enabled
	}
}

// WithMenuMedia sets media (menu photos) sent before the menu text.
func WithMenuMedia(refs func(tenantID string) []string) Option {
	return func(m *Machine) {
		m.menuMedia = refs
	}
}

// New creates a Machine.
func New(engine *session.Engine, catalog Catalog, directory Directory, texts Texts, opts ...Option) *Machine {
	m := &Machine{
		engine:        engine,
		catalog:       catalog,
		directory:     directory,
		texts:         texts,
		pickupEnabled: func(string) bool { return false },
		menuMedia:     func(string) []string { return nil },
	}
	for _, opt := range opts {
		opt(m)
	}
	m.handlers = map[session.State]handler{
		session.StateInitial:                  (*Machine).handleInitial,
		session.StateChoosingDrink:            (*Machine).handleChoosingDrink,
		session.StateChoosingDeliveryOrPickup: (*Machine).handleDeliveryOrPickup,
		session.StateCollectingAddress:        (*Machine).handleCollectingAddress,
		session.StateAwaitingConfirmationNote: (*Machine).handleConfirmationNote,
		session.StateCollectingName:           (*Machine).handleCollectingName,
		session.StateChoosingPayment:          (*Machine).handleChoosingPayment,
		session.StateAwaitingChangeAmount:     (*Machine).handleChangeAmount,
		session.StateSupport:                  (*Machine).handleSupport,
		session.StateFinalized:                (*Machine).handleTerminal,
		session.StateDispatched:               (*Machine).handleTerminal,
	}
	return m
}

// Handle runs one customer message through the state machine.
//
// Returns an UnknownState error if the session is in a state with no
// handler; the caller should reset that session. Otherwise errors are only
// returned when ctx ends before the session is available.
func (m *Machine) Handle(ctx context.Context, tenantID, customerKey string, in transport.Inbound) (Reply, error) {
	var reply Reply
	texts := m.texts.For(ctx, tenantID)

	err := m.engine.Do(ctx, tenantID, customerKey, func(tx *session.Tx) error {
		state := tx.State()
		h, ok := m.handlers[state]
		if !ok {
			slog.Error("no handler for session state",
				"tenant", tenantID,
				"customer", customerKey,
				"state", state,
			)
			return session.NewError(session.ErrCodeUnknownState, tenantID, customerKey,
				fmt.Sprintf("no handler for state %q", state), nil)
		}

		t := &turn{
			ctx:    ctx,
			tx:     tx,
			in:     in,
			text:   strings.TrimSpace(in.Text),
			texts:  texts,
			reply:  &reply,
			intent: Classify(state, in.Text),
		}
		tx.SetLastInbound(in.Text)

		slog.Debug("handling message",
			"tenant", tenantID,
			"customer", customerKey,
			"state", state,
			"intent", t.intent,
		)
		if err := h(m, t); err != nil {
			return err
		}
		reply.State = tx.State()
		return nil
	})
	return reply, err
}

// turn is the context of one handled message.
type turn struct {
	ctx    context.Context
	tx     *session.Tx
	in     transport.Inbound
	text   string
	intent Intent
	texts  *messages.Set
	reply  *Reply
}

func (t *turn) tenantID() string    { return t.tx.TenantID() }
func (t *turn) customerKey() string { return t.tx.CustomerKey() }

// say queues one message made of the non-empty parts joined by newlines.
func (t *turn) say(parts ...string) {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return
	}
	t.reply.Messages = append(t.reply.Messages, transport.Outbound{Text: strings.Join(kept, "\n")})
}

func (t *turn) sayKey(k messages.Key) {
	t.say(t.texts.Get(k))
}

func (t *turn) media(ref string) {
	t.reply.Messages = append(t.reply.Messages, transport.Outbound{MediaRef: ref})
}

// retry logs a collaborator failure and sends the generic retry prompt.
func (t *turn) retry(op string, err error) {
	slog.Warn("conversation step failed",
		"tenant", t.tenantID(),
		"customer", t.customerKey(),
		"op", op,
		"error", err,
	)
	t.sayKey(messages.KeyRetry)
}

// cartAndPrompt shows the cart followed by the menu prompt.
func (t *turn) cartAndPrompt() {
	t.say(messages.CartWithPrompt(t.texts, t.tx.Snapshot()))
}
