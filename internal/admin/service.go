// Package admin exposes operator actions on live carts and stored orders,
// as Go methods on Service and as a JSON HTTP API.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/comanda/internal/bot"
	"github.com/roach88/comanda/internal/conversation"
	"github.com/roach88/comanda/internal/events"
	"github.com/roach88/comanda/internal/messages"
	"github.com/roach88/comanda/internal/session"
	"github.com/roach88/comanda/internal/tenant"
	"github.com/roach88/comanda/internal/transport"
)

// ErrCartNotFound is returned for customers with no live session.
var ErrCartNotFound = errors.New("cart not found")

// Orders reads and updates stored orders. *tenant.Store satisfies it.
type Orders interface {
	ReadOrder(ctx context.Context, tenantID, orderID string) (tenant.OrderRecord, error)
	UpdateOrderStatus(ctx context.Context, tenantID, orderID string, status tenant.OrderStatus) error
	ListOrders(ctx context.Context, tenantID string, status tenant.OrderStatus) ([]tenant.OrderRecord, error)
}

// Service runs administrator actions. Cart actions go through the session
// engine, so they queue behind in-flight customer messages like any other
// turn.
type Service struct {
	engine *session.Engine
	orders Orders
	flags  *bot.Flags
	texts  conversation.Texts
	out    transport.Sender
	bus    bot.Publisher

	operator func(tenantID string) string
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier sends customer notices (such as "out for delivery")
// through out, using texts.
func WithNotifier(out transport.Sender, texts conversation.Texts) Option {
	return func(s *Service) {
		s.out = out
		s.texts = texts
	}
}

// WithPublisher publishes status changes made outside a live session.
func WithPublisher(p bot.Publisher) Option {
	return func(s *Service) {
		s.bus = p
	}
}

// WithOperators sets the operator chat of each tenant. Orders placed from
// the admin side are summarised there, the same as orders placed in chat.
func WithOperators(operator func(tenantID string) string) Option {
	return func(s *Service) {
		s.operator = operator
	}
}

// NewService creates a Service.
func NewService(engine *session.Engine, orders Orders, flags *bot.Flags, opts ...Option) *Service {
	s := &Service{engine: engine, orders: orders, flags: flags}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddItemRequest adds a catalog item to a cart. Category and DisplayName
// override the catalog values when set.
type AddItemRequest struct {
	ItemID      string `json:"item_id"`
	Quantity    int    `json:"quantity"`
	Note        string `json:"note"`
	Category    string `json:"category"`
	DisplayName string `json:"display_name"`
}

// ListCarts returns every live cart of the tenant.
func (s *Service) ListCarts(ctx context.Context, tenantID string) ([]session.Snapshot, error) {
	return s.engine.List(ctx, tenantID)
}

// GetCart returns one live cart.
func (s *Service) GetCart(ctx context.Context, tenantID, customerKey string) (session.Snapshot, error) {
	if !s.engine.Exists(tenantID, customerKey) {
		return session.Snapshot{}, ErrCartNotFound
	}
	var snap session.Snapshot
	err := s.engine.Do(ctx, tenantID, customerKey, func(tx *session.Tx) error {
		snap = tx.Snapshot()
		return nil
	})
	return snap, err
}

// AddItem adds an item to the customer's cart, creating the session if
// needed.
func (s *Service) AddItem(ctx context.Context, tenantID, customerKey string, req AddItemRequest) (session.Snapshot, error) {
	qty := req.Quantity
	if qty == 0 {
		qty = 1
	}
	return s.engine.AddItem(ctx, tenantID, customerKey, req.ItemID, qty, req.Note, req.Category, req.DisplayName)
}

// RemoveItem removes the cart line at index.
func (s *Service) RemoveItem(ctx context.Context, tenantID, customerKey string, index int) (session.Snapshot, error) {
	if !s.engine.Exists(tenantID, customerKey) {
		return session.Snapshot{}, ErrCartNotFound
	}
	return s.engine.RemoveItem(ctx, tenantID, customerKey, session.ByIndex(index))
}

// AdjustQuantity changes the quantity of the line at index by delta.
func (s *Service) AdjustQuantity(ctx context.Context, tenantID, customerKey string, index, delta int) (session.Snapshot, error) {
	if !s.engine.Exists(tenantID, customerKey) {
		return session.Snapshot{}, ErrCartNotFound
	}
	return s.engine.AdjustQuantity(ctx, tenantID, customerKey, index, delta)
}

// SetState forces the session into state. Terminal states place the order
// through Finalize or Dispatch, with their notices.
func (s *Service) SetState(ctx context.Context, tenantID, customerKey string, state session.State) (session.Snapshot, error) {
	if !s.engine.Exists(tenantID, customerKey) {
		return session.Snapshot{}, ErrCartNotFound
	}
	var err error
	switch state {
	case session.StateFinalized:
		_, _, err = s.Finalize(ctx, tenantID, customerKey)
	case session.StateDispatched:
		_, err = s.Dispatch(ctx, tenantID, customerKey)
	default:
		return s.engine.SetState(ctx, tenantID, customerKey, state)
	}
	if err != nil {
		return session.Snapshot{}, err
	}
	return s.GetCart(ctx, tenantID, customerKey)
}

// Reset starts a new lifecycle for the customer.
func (s *Service) Reset(ctx context.Context, tenantID, customerKey string) (session.Snapshot, error) {
	if !s.engine.Exists(tenantID, customerKey) {
		return session.Snapshot{}, ErrCartNotFound
	}
	return s.engine.Reset(ctx, tenantID, customerKey)
}

// Finalize places the customer's order and sends the operator summary.
// Calling it again returns the stored order without a second summary.
func (s *Service) Finalize(ctx context.Context, tenantID, customerKey string) (tenant.OrderRecord, bool, error) {
	if !s.engine.Exists(tenantID, customerKey) {
		return tenant.OrderRecord{}, false, ErrCartNotFound
	}
	rec, created, err := s.engine.Finalize(ctx, tenantID, customerKey, tenant.StatusFinalized)
	if err != nil {
		return rec, created, err
	}
	if created {
		s.notifyOperator(ctx, rec)
	}
	return rec, created, nil
}

// Dispatch marks the customer's order as out for delivery, placing it
// first if needed, and tells the customer.
func (s *Service) Dispatch(ctx context.Context, tenantID, customerKey string) (tenant.OrderRecord, error) {
	if !s.engine.Exists(tenantID, customerKey) {
		return tenant.OrderRecord{}, ErrCartNotFound
	}
	var (
		rec     tenant.OrderRecord
		created bool
		changed bool
	)
	err := s.engine.Do(ctx, tenantID, customerKey, func(tx *session.Tx) error {
		changed = tx.State() != session.StateDispatched
		var err error
		rec, created, err = tx.Finalize(tenant.StatusDispatched)
		return err
	})
	if err != nil {
		return tenant.OrderRecord{}, err
	}
	if created {
		s.notifyOperator(ctx, rec)
	}
	if changed {
		s.notifyDispatched(ctx, rec)
	}
	return rec, nil
}

// DispatchOrder marks a stored order as out for delivery. The customer's
// live session is used when it still holds the order; otherwise the
// stored status is updated directly. Dispatching twice is a no-op.
func (s *Service) DispatchOrder(ctx context.Context, tenantID, orderID string) (tenant.OrderRecord, error) {
	rec, err := s.orders.ReadOrder(ctx, tenantID, orderID)
	if err != nil {
		return tenant.OrderRecord{}, err
	}
	if !tenant.StatusDispatched.After(rec.Status) {
		return rec, nil
	}

	if s.engine.Exists(tenantID, rec.CustomerKey) {
		var held bool
		err := s.engine.Do(ctx, tenantID, rec.CustomerKey, func(tx *session.Tx) error {
			snap := tx.Snapshot()
			if !snap.OrderPersisted || snap.PersistedOrderID != orderID {
				return nil
			}
			held = true
			var err error
			rec, _, err = tx.Finalize(tenant.StatusDispatched)
			return err
		})
		if err != nil {
			return tenant.OrderRecord{}, err
		}
		if held {
			s.notifyDispatched(ctx, rec)
			return rec, nil
		}
	}

	if err := s.orders.UpdateOrderStatus(ctx, tenantID, orderID, tenant.StatusDispatched); err != nil {
		return tenant.OrderRecord{}, fmt.Errorf("dispatch order: %w", err)
	}
	rec.Status = tenant.StatusDispatched
	if s.bus != nil {
		updated := rec
		s.bus.Publish(events.Event{
			Kind:        events.KindOrderStatusChanged,
			TenantID:    tenantID,
			CustomerKey: rec.CustomerKey,
			Order:       &updated,
		})
	}
	s.notifyDispatched(ctx, rec)
	return rec, nil
}

// ListOrders returns the tenant's orders, newest first, optionally
// filtered by status.
func (s *Service) ListOrders(ctx context.Context, tenantID string, status tenant.OrderStatus) ([]tenant.OrderRecord, error) {
	if status != "" && !status.Valid() {
		return nil, session.NewError(session.ErrCodeInvalidTransitionInput, tenantID, "",
			fmt.Sprintf("unknown order status %q", status), nil)
	}
	return s.orders.ListOrders(ctx, tenantID, status)
}

// BotEnabled reports the tenant's bot flag.
func (s *Service) BotEnabled(ctx context.Context, tenantID string) (bool, error) {
	return s.flags.BotEnabled(ctx, tenantID)
}

// SetBotEnabled switches the tenant's bot on or off.
func (s *Service) SetBotEnabled(ctx context.Context, tenantID string, enabled bool) error {
	return s.flags.SetBotEnabled(ctx, tenantID, enabled)
}

func (s *Service) notifyOperator(ctx context.Context, rec tenant.OrderRecord) {
	if s.out == nil || s.operator == nil {
		return
	}
	op := s.operator(rec.TenantID)
	if op == "" {
		return
	}
	msg := transport.Outbound{Text: messages.OperatorSummary(rec)}
	if err := s.out.Send(ctx, rec.TenantID, tenant.SanitizeContact(op), msg); err != nil {
		slog.Warn("failed to send operator summary", "tenant", rec.TenantID, "order", rec.ID, "error", err)
	}
}

func (s *Service) notifyDispatched(ctx context.Context, rec tenant.OrderRecord) {
	if s.out == nil {
		return
	}
	text := s.texts.For(ctx, rec.TenantID).Get(messages.KeyDispatched)
	if err := s.out.Send(ctx, rec.TenantID, rec.CustomerKey, transport.Outbound{Text: text}); err != nil {
		slog.Warn("failed to notify dispatch", "tenant", rec.TenantID, "order", rec.ID, "error", err)
	}
}
