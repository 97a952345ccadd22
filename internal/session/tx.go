package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/roach88/comanda/internal/events"
)

// Tx is a handle on one session inside its critical section. It is only
// valid until the function passed to Engine.Do returns.
//
// Every mutating method recomputes totals before returning and publishes
// the matching event.
type Tx struct {
	e   *Engine
	ctx context.Context
	s   *session
}

// Context returns the context of the surrounding Do call.
func (tx *Tx) Context() context.Context {
	return tx.ctx
}

// TenantID returns the session's tenant.
func (tx *Tx) TenantID() string {
	return tx.s.tenantID
}

// CustomerKey returns the session's customer key.
func (tx *Tx) CustomerKey() string {
	return tx.s.customerKey
}

// State returns the current state.
func (tx *Tx) State() State {
	return tx.s.state
}

// Snapshot returns a copy of the session.
func (tx *Tx) Snapshot() Snapshot {
	return tx.s.snapshot()
}

// AddItem resolves itemRef through the catalog and appends a line with the
// catalog price. category and displayName override the catalog values when
// non-empty. The follow-up timer is armed when the cart was empty.
//
// Returns ItemNotFound, leaving the cart unchanged, if itemRef does not
// resolve.
func (tx *Tx) AddItem(itemRef string, quantity int, note, category, displayName string) (CartItem, error) {
	s := tx.s
	if quantity <= 0 {
		return CartItem{}, NewError(ErrCodeInvalidTransitionInput, s.tenantID, s.customerKey,
			fmt.Sprintf("quantity must be positive, got %d", quantity), nil)
	}

	it, found, err := tx.e.catalog.GetItem(tx.ctx, s.tenantID, itemRef)
	if err != nil {
		return CartItem{}, NewError(ErrCodeCollaboratorUnavailable, s.tenantID, s.customerKey,
			"catalog lookup failed", err)
	}
	if !found {
		return CartItem{}, NewError(ErrCodeItemNotFound, s.tenantID, s.customerKey,
			fmt.Sprintf("item %q not in catalog", itemRef), nil)
	}

	line := CartItem{
		ItemID:    it.ID,
		Name:      it.Name,
		Quantity:  quantity,
		UnitPrice: it.Price,
		Note:      note,
		Category:  it.Category,
	}
	if displayName != "" {
		line.Name = displayName
	}
	if category != "" {
		line.Category = category
	}

	wasEmpty := len(s.items) == 0
	s.items = append(s.items, line)
	tx.cartChanged()
	if wasEmpty {
		tx.armFollowup()
	}
	return line, nil
}

// RemoveItem removes the first line matching sel.
// Returns ItemNotFound if nothing matches.
func (tx *Tx) RemoveItem(sel Selector) (CartItem, error) {
	s := tx.s
	i := sel.find(s.items)
	if i < 0 {
		return CartItem{}, NewError(ErrCodeItemNotFound, s.tenantID, s.customerKey,
			fmt.Sprintf("no cart line matches %s", sel), nil)
	}
	removed := s.items[i]
	s.items = append(s.items[:i:i], s.items[i+1:]...)
	tx.cartChanged()
	return removed, nil
}

// RemoveLast removes the most recently added line.
func (tx *Tx) RemoveLast() (CartItem, error) {
	return tx.RemoveItem(ByIndex(len(tx.s.items) - 1))
}

// AdjustQuantity adds delta to the quantity of the line at index. A
// resulting quantity of zero or less removes the line.
func (tx *Tx) AdjustQuantity(index, delta int) error {
	s := tx.s
	if index < 0 || index >= len(s.items) {
		return NewError(ErrCodeItemNotFound, s.tenantID, s.customerKey,
			fmt.Sprintf("no cart line at index %d", index), nil)
	}
	q := s.items[index].Quantity + delta
	if q <= 0 {
		s.items = append(s.items[:index:index], s.items[index+1:]...)
	} else {
		s.items[index].Quantity = q
	}
	tx.cartChanged()
	return nil
}

// ComputeTotal recomputes the totals and returns the grand total: the sum
// of price × quantity, plus the delivery fee when delivering and the fee is
// positive.
func (tx *Tx) ComputeTotal() decimal.Decimal {
	return tx.s.recompute()
}

// SetState moves the session to state. Entering a terminal state disarms
// the follow-up but does not persist anything; use Finalize to place the
// order.
func (tx *Tx) SetState(state State) error {
	s := tx.s
	if !state.Known() {
		return NewError(ErrCodeUnknownState, s.tenantID, s.customerKey,
			fmt.Sprintf("unknown state %q", state), nil)
	}
	prev := s.state
	s.state = state
	s.updatedAt = tx.e.now()
	if state.Terminal() {
		tx.disarmFollowup()
	}
	slog.Debug("session state changed",
		"tenant", s.tenantID,
		"customer", s.customerKey,
		"from", prev,
		"to", state,
	)
	tx.e.publish(events.Event{
		Kind:        events.KindStateChanged,
		TenantID:    s.tenantID,
		CustomerKey: s.customerKey,
		State:       string(state),
		Cart:        s.eventCart(),
	})
	return nil
}

// Reset clears the cart and every per-order field, assigns a new lifecycle
// id, returns to the initial state, and cancels the follow-up.
func (tx *Tx) Reset() {
	s := tx.s
	tx.disarmFollowup()
	s.clear(tx.e.ids.Generate())
	s.updatedAt = tx.e.now()
	tx.e.publish(events.Event{
		Kind:        events.KindSessionReset,
		TenantID:    s.tenantID,
		CustomerKey: s.customerKey,
		State:       string(s.state),
		Cart:        s.eventCart(),
	})
}

// SetDelivery switches the order to delivery with the tenant's fee.
func (tx *Tx) SetDelivery() {
	s := tx.s
	s.delivery = true
	s.pickup = false
	s.deliveryFee = tx.e.deliveryFee(s.tenantID)
	tx.cartChanged()
}

// SetPickup switches the order to pickup; no delivery fee applies.
func (tx *Tx) SetPickup() {
	s := tx.s
	s.delivery = false
	s.pickup = true
	s.deliveryConfirmed = false
	s.deliveryFee = decimal.Zero
	tx.cartChanged()
}

// ProposeAddress records an address awaiting confirmation.
func (tx *Tx) ProposeAddress(address string, lat, lng *float64) {
	s := tx.s
	s.address = address
	s.lat, s.lng = copyFloat(lat), copyFloat(lng)
	s.deliveryConfirmed = false
	s.updatedAt = tx.e.now()
}

// ConfirmDelivery marks the proposed address as confirmed for this lifecycle
// and switches to delivery.
func (tx *Tx) ConfirmDelivery() {
	tx.s.deliveryConfirmed = true
	tx.SetDelivery()
}

// SetPayment records the payment method.
func (tx *Tx) SetPayment(method string) {
	tx.s.paymentMethod = method
	tx.s.updatedAt = tx.e.now()
}

// SetChangeFor records the cash amount the customer will pay with.
func (tx *Tx) SetChangeFor(amount decimal.Decimal) {
	tx.s.changeFor = amount
	tx.s.updatedAt = tx.e.now()
}

// SetNote records the order note.
func (tx *Tx) SetNote(note string) {
	tx.s.note = note
	tx.s.updatedAt = tx.e.now()
}

// SetCustomerName records the display name on the cart.
func (tx *Tx) SetCustomerName(name string) {
	tx.s.customerName = name
	tx.s.updatedAt = tx.e.now()
}

// MarkMenuShown records that the full menu was sent in this lifecycle.
func (tx *Tx) MarkMenuShown() {
	tx.s.menuShown = true
}

// SetLastInbound records the last text received from the customer.
func (tx *Tx) SetLastInbound(text string) {
	tx.s.lastInboundText = text
	tx.s.updatedAt = tx.e.now()
}

func (tx *Tx) cartChanged() {
	s := tx.s
	s.recompute()
	s.updatedAt = tx.e.now()
	tx.e.publish(events.Event{
		Kind:        events.KindCartChanged,
		TenantID:    s.tenantID,
		CustomerKey: s.customerKey,
		State:       string(s.state),
		Cart:        s.eventCart(),
	})
}
