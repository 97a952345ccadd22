package session

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/comanda/internal/events"
	"github.com/roach88/comanda/internal/followup"
	"github.com/roach88/comanda/internal/tenant"
)

// DefaultFollowupDelay is used when no per-tenant delay is configured.
const DefaultFollowupDelay = 10 * time.Minute

// Catalog resolves item ids to catalog entries.
type Catalog interface {
	GetItem(ctx context.Context, tenantID, itemID string) (tenant.CatalogItem, bool, error)
}

// OrderStore persists orders and customer spend. *tenant.Store satisfies it.
type OrderStore interface {
	WriteOrder(ctx context.Context, tenantID string, o tenant.OrderRecord) (string, bool, error)
	ReadOrder(ctx context.Context, tenantID, orderID string) (tenant.OrderRecord, error)
	UpdateOrderStatus(ctx context.Context, tenantID, orderID string, status tenant.OrderStatus) error
	AddSpend(ctx context.Context, tenantID, key string, amount decimal.Decimal) error
}

// Publisher receives engine events. *events.Bus satisfies it.
type Publisher interface {
	Publish(events.Event)
}

// Reminder delivers the follow-up nudge for an idle cart.
type Reminder interface {
	Remind(ctx context.Context, snap Snapshot) error
}

// Engine owns every live session, keyed by (tenant, customer).
//
// All reads and mutations of one session run inside its turnstile: a FIFO
// lock, so inbound messages, admin actions, and follow-up firings for the
// same customer are applied one at a time in arrival order. Sessions of
// different customers never wait on each other.
//
// Thread-safety: Engine is safe for concurrent use.
type Engine struct {
	catalog   Catalog
	orders    OrderStore
	bus       Publisher
	scheduler *followup.Scheduler
	reminder  Reminder
	ids       IDGenerator
	now       func() time.Time

	deliveryFee   func(tenantID string) decimal.Decimal
	followupDelay func(tenantID string) time.Duration

	mu       sync.Mutex
	sessions map[sessionKey]*entry
}

type sessionKey struct {
	tenantID    string
	customerKey string
}

type entry struct {
	turn turnstile
	s    *session
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithPublisher sets where engine events are published.
func WithPublisher(p Publisher) EngineOption {
	return func(e *Engine) {
		e.bus = p
	}
}

// WithScheduler sets the follow-up scheduler.
func WithScheduler(s *followup.Scheduler) EngineOption {
	return func(e *Engine) {
		e.scheduler = s
	}
}

// WithReminder sets who sends follow-up nudges.
func WithReminder(r Reminder) EngineOption {
	return func(e *Engine) {
		e.reminder = r
	}
}

// WithIDGenerator overrides the lifecycle id generator (for testing).
func WithIDGenerator(g IDGenerator) EngineOption {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithNow overrides the wall clock.
func WithNow(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// WithDeliveryFee sets the per-tenant delivery fee.
func WithDeliveryFee(fee func(tenantID string) decimal.Decimal) EngineOption {
	return func(e *Engine) {
		e.deliveryFee = fee
	}
}

// WithFollowupDelay sets the per-tenant follow-up delay. A delay of zero
// or less disables follow-ups for that tenant.
func WithFollowupDelay(delay func(tenantID string) time.Duration) EngineOption {
	return func(e *Engine) {
		e.followupDelay = delay
	}
}

// New creates an Engine.
func New(catalog Catalog, orders OrderStore, opts ...EngineOption) *Engine {
	e := &Engine{
		catalog:       catalog,
		orders:        orders,
		ids:           UUIDv7Generator{},
		now:           time.Now,
		deliveryFee:   func(string) decimal.Decimal { return decimal.Zero },
		followupDelay: func(string) time.Duration { return DefaultFollowupDelay },
		sessions:      make(map[sessionKey]*entry),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.scheduler == nil {
		e.scheduler = followup.New(followup.RealClock{})
	}
	return e
}

// Do runs fn inside the session's critical section, creating the session
// if needed. Everything fn does through tx is applied atomically with
// respect to other callers for the same session.
//
// Do returns ctx.Err() if ctx ends while waiting for the turn. fn must not
// call Do for the same session.
func (e *Engine) Do(ctx context.Context, tenantID, customerKey string, fn func(tx *Tx) error) error {
	ent := e.entry(tenantID, customerKey)
	if err := ent.turn.acquire(ctx); err != nil {
		return err
	}
	defer ent.turn.release()

	tx := &Tx{e: e, ctx: ctx, s: ent.s}
	return fn(tx)
}

func (e *Engine) entry(tenantID, customerKey string) *entry {
	k := sessionKey{tenantID: tenantID, customerKey: customerKey}

	e.mu.Lock()
	defer e.mu.Unlock()

	ent, ok := e.sessions[k]
	if !ok {
		s := &session{tenantID: tenantID, customerKey: customerKey}
		s.clear(e.ids.Generate())
		s.updatedAt = e.now()
		ent = &entry{s: s}
		e.sessions[k] = ent
		slog.Debug("session created", "tenant", tenantID, "customer", customerKey, "lifecycle", s.lifecycleID)
	}
	return ent
}

// Exists reports whether a session has been created for the customer.
func (e *Engine) Exists(tenantID, customerKey string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.sessions[sessionKey{tenantID: tenantID, customerKey: customerKey}]
	return ok
}

// GetOrCreate returns a snapshot of the session, creating it in the
// initial state if needed. It waits for any in-flight operation on the
// session and never fails.
func (e *Engine) GetOrCreate(tenantID, customerKey string) Snapshot {
	var snap Snapshot
	_ = e.Do(context.Background(), tenantID, customerKey, func(tx *Tx) error {
		snap = tx.Snapshot()
		return nil
	})
	return snap
}

// List returns snapshots of every session of a tenant, ordered by
// customer key.
func (e *Engine) List(ctx context.Context, tenantID string) ([]Snapshot, error) {
	e.mu.Lock()
	var keys []string
	for k := range e.sessions {
		if k.tenantID == tenantID {
			keys = append(keys, k.customerKey)
		}
	}
	e.mu.Unlock()
	sort.Strings(keys)

	out := make([]Snapshot, 0, len(keys))
	for _, key := range keys {
		err := e.Do(ctx, tenantID, key, func(tx *Tx) error {
			out = append(out, tx.Snapshot())
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// AddItem resolves itemRef through the catalog and appends it to the cart.
func (e *Engine) AddItem(ctx context.Context, tenantID, customerKey, itemRef string, quantity int, note, category, displayName string) (Snapshot, error) {
	return e.mutate(ctx, tenantID, customerKey, func(tx *Tx) error {
		_, err := tx.AddItem(itemRef, quantity, note, category, displayName)
		return err
	})
}

// RemoveItem removes the first cart line matching sel.
func (e *Engine) RemoveItem(ctx context.Context, tenantID, customerKey string, sel Selector) (Snapshot, error) {
	return e.mutate(ctx, tenantID, customerKey, func(tx *Tx) error {
		_, err := tx.RemoveItem(sel)
		return err
	})
}

// AdjustQuantity changes the quantity of the line at index by delta.
func (e *Engine) AdjustQuantity(ctx context.Context, tenantID, customerKey string, index, delta int) (Snapshot, error) {
	return e.mutate(ctx, tenantID, customerKey, func(tx *Tx) error {
		return tx.AdjustQuantity(index, delta)
	})
}

// ComputeTotal recomputes and returns the session's grand total.
func (e *Engine) ComputeTotal(ctx context.Context, tenantID, customerKey string) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := e.Do(ctx, tenantID, customerKey, func(tx *Tx) error {
		total = tx.ComputeTotal()
		return nil
	})
	return total, err
}

// SetState moves the session to state. A terminal state goes through
// Finalize, so the session never ends without its order on disk; an empty
// cart is refused with InvalidTransitionInput.
func (e *Engine) SetState(ctx context.Context, tenantID, customerKey string, state State) (Snapshot, error) {
	return e.mutate(ctx, tenantID, customerKey, func(tx *Tx) error {
		if state.Terminal() {
			_, _, err := tx.Finalize(state.OrderStatus())
			return err
		}
		return tx.SetState(state)
	})
}

// Reset starts a new lifecycle for the session.
func (e *Engine) Reset(ctx context.Context, tenantID, customerKey string) (Snapshot, error) {
	return e.mutate(ctx, tenantID, customerKey, func(tx *Tx) error {
		tx.Reset()
		return nil
	})
}

// Finalize persists the session's order with the given status at most once
// per lifecycle. See Tx.Finalize.
func (e *Engine) Finalize(ctx context.Context, tenantID, customerKey string, status tenant.OrderStatus) (tenant.OrderRecord, bool, error) {
	var (
		rec     tenant.OrderRecord
		created bool
	)
	err := e.Do(ctx, tenantID, customerKey, func(tx *Tx) error {
		var err error
		rec, created, err = tx.Finalize(status)
		return err
	})
	return rec, created, err
}

// Close cancels every pending follow-up.
func (e *Engine) Close() {
	e.scheduler.Stop()
}

func (e *Engine) mutate(ctx context.Context, tenantID, customerKey string, fn func(tx *Tx) error) (Snapshot, error) {
	var snap Snapshot
	err := e.Do(ctx, tenantID, customerKey, func(tx *Tx) error {
		err := fn(tx)
		snap = tx.Snapshot()
		return err
	})
	return snap, err
}

func (e *Engine) publish(ev events.Event) {
	if e.bus == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = e.now()
	}
	e.bus.Publish(ev)
}
