package conversation

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/roach88/comanda/internal/catalog"
	"github.com/roach88/comanda/internal/messages"
	"github.com/roach88/comanda/internal/session"
	"github.com/roach88/comanda/internal/tenant"
)

// beginCheckout starts the checkout from the initial state.
func (m *Machine) beginCheckout(t *turn) error {
	if t.tx.Snapshot().Empty() {
		t.say(t.texts.Get(messages.KeyCartEmpty), t.texts.Get(messages.KeyMenuPrompt))
		return nil
	}
	if m.pickupEnabled(t.tenantID()) {
		t.sayKey(messages.KeyDeliveryOrPickup)
		return t.tx.SetState(session.StateChoosingDeliveryOrPickup)
	}
	return m.addressFlow(t)
}

// addressFlow picks the delivery address: one already confirmed in this
// lifecycle skips ahead, a known one is proposed for confirmation, and
// otherwise the customer is asked for one.
func (m *Machine) addressFlow(t *turn) error {
	snap := t.tx.Snapshot()
	if snap.DeliveryConfirmed && snap.Address != "" {
		t.tx.SetDelivery()
		t.sayKey(messages.KeyAskNote)
		return t.tx.SetState(session.StateAwaitingConfirmationNote)
	}

	address, lat, lng := snap.Address, snap.Lat, snap.Lng
	if address == "" {
		address, lat, lng = m.storedAddress(t)
	}
	if address == "" {
		t.sayKey(messages.KeyAskAddress)
		return t.tx.SetState(session.StateCollectingAddress)
	}

	m.proposeAddress(t, address, lat, lng)
	return t.tx.SetState(session.StateCollectingAddress)
}

// storedAddress reads the customer's saved address. A malformed one is
// cleared from the directory and reported as absent.
func (m *Machine) storedAddress(t *turn) (string, *float64, *float64) {
	c, found, err := m.directory.ReadCustomer(t.ctx, t.tenantID(), t.customerKey())
	if err != nil {
		slog.Warn("failed to read customer", "tenant", t.tenantID(), "customer", t.customerKey(), "error", err)
		return "", nil, nil
	}
	if !found || (c.Address == "" && c.Lat == nil) {
		return "", nil, nil
	}
	if c.Lat != nil && c.Lng != nil {
		address := c.Address
		if address == "" {
			address = locationLabel(*c.Lat, *c.Lng)
		}
		return address, c.Lat, c.Lng
	}
	if !usableAddress(c.Address) {
		slog.Warn("clearing malformed stored address",
			"tenant", t.tenantID(),
			"customer", t.customerKey(),
			"address", c.Address,
		)
		if err := m.directory.ClearCustomerAddress(t.ctx, t.tenantID(), t.customerKey()); err != nil {
			slog.Warn("failed to clear address", "tenant", t.tenantID(), "customer", t.customerKey(), "error", err)
		}
		return "", nil, nil
	}
	return c.Address, nil, nil
}

// proposeAddress records address on the cart with the delivery fee and asks
// the customer to confirm it.
func (m *Machine) proposeAddress(t *turn, address string, lat, lng *float64) {
	t.tx.ProposeAddress(address, lat, lng)
	t.tx.SetDelivery()
	snap := t.tx.Snapshot()
	t.say(messages.AddressConfirmation(t.texts, address, snap.DeliveryFee, snap.GrandTotal))
}

func (m *Machine) handleDeliveryOrPickup(t *turn) error {
	switch t.intent {
	case Delivery:
		return m.addressFlow(t)
	case Pickup:
		t.tx.SetPickup()
		t.sayKey(messages.KeyAskNote)
		return t.tx.SetState(session.StateAwaitingConfirmationNote)
	case Back:
		t.cartAndPrompt()
		return t.tx.SetState(session.StateInitial)
	}
	t.say(t.texts.Get(messages.KeyUnrecognized), t.texts.Get(messages.KeyDeliveryOrPickup))
	return nil
}

func (m *Machine) handleCollectingAddress(t *turn) error {
	if loc := t.in.Location; loc != nil {
		lat, lng := loc.Lat, loc.Lng
		address := strings.TrimSpace(loc.Address)
		if address == "" {
			address = locationLabel(lat, lng)
		}
		m.proposeAddress(t, address, &lat, &lng)
		return nil
	}

	switch t.intent {
	case Confirm:
		snap := t.tx.Snapshot()
		if snap.Address == "" {
			t.sayKey(messages.KeyAskAddress)
			return nil
		}
		t.tx.ConfirmDelivery()
		if err := m.directory.SetCustomerAddress(t.ctx, t.tenantID(), t.customerKey(), snap.Address, snap.Lat, snap.Lng); err != nil {
			slog.Warn("failed to save address", "tenant", t.tenantID(), "customer", t.customerKey(), "error", err)
		}
		t.sayKey(messages.KeyAskNote)
		return t.tx.SetState(session.StateAwaitingConfirmationNote)
	case Decline:
		t.sayKey(messages.KeyAskAddress)
		return nil
	case Back:
		t.cartAndPrompt()
		return t.tx.SetState(session.StateInitial)
	}

	if !usableAddress(t.text) {
		t.sayKey(messages.KeyAskAddress)
		return nil
	}
	m.proposeAddress(t, t.text, nil, nil)
	return nil
}

func (m *Machine) handleConfirmationNote(t *turn) error {
	switch t.intent {
	case Back:
		t.cartAndPrompt()
		return t.tx.SetState(session.StateInitial)
	case Decline:
		t.tx.SetNote("")
	default:
		t.tx.SetNote(t.text)
	}

	name := t.tx.Snapshot().CustomerName
	if name == "" {
		c, found, err := m.directory.ReadCustomer(t.ctx, t.tenantID(), t.customerKey())
		if err != nil {
			slog.Warn("failed to read customer", "tenant", t.tenantID(), "customer", t.customerKey(), "error", err)
		} else if found {
			name = strings.TrimSpace(c.Name)
		}
	}
	if name == "" {
		t.sayKey(messages.KeyAskName)
		return t.tx.SetState(session.StateCollectingName)
	}

	t.tx.SetCustomerName(name)
	t.say(messages.TotalAndPayment(t.texts, t.tx.ComputeTotal()))
	return t.tx.SetState(session.StateChoosingPayment)
}

func (m *Machine) handleCollectingName(t *turn) error {
	name := t.text
	if name == "" {
		t.sayKey(messages.KeyAskName)
		return nil
	}

	t.tx.SetCustomerName(name)
	if err := m.directory.SetCustomerName(t.ctx, t.tenantID(), t.customerKey(), name); err != nil {
		slog.Warn("failed to save name", "tenant", t.tenantID(), "customer", t.customerKey(), "error", err)
	}
	snap := t.tx.Snapshot()
	if snap.Delivery && snap.Address != "" {
		if err := m.directory.SetCustomerAddress(t.ctx, t.tenantID(), t.customerKey(), snap.Address, snap.Lat, snap.Lng); err != nil {
			slog.Warn("failed to save address", "tenant", t.tenantID(), "customer", t.customerKey(), "error", err)
		}
	}

	t.say(messages.TotalAndPayment(t.texts, t.tx.ComputeTotal()))
	return t.tx.SetState(session.StateChoosingPayment)
}

func (m *Machine) handleChoosingPayment(t *turn) error {
	if t.tx.Snapshot().Empty() {
		t.say(t.texts.Get(messages.KeyCartEmpty), t.texts.Get(messages.KeyMenuPrompt))
		return t.tx.SetState(session.StateInitial)
	}

	switch t.intent {
	case PayCash:
		t.tx.SetPayment(session.PaymentCash)
		t.sayKey(messages.KeyAskChange)
		return t.tx.SetState(session.StateAwaitingChangeAmount)
	case PayPix:
		t.tx.SetPayment(session.PaymentPix)
		return m.finalize(t)
	case PayCard:
		t.tx.SetPayment(session.PaymentCard)
		return m.finalize(t)
	case Back:
		t.cartAndPrompt()
		return t.tx.SetState(session.StateInitial)
	}
	t.say(t.texts.Get(messages.KeyUnrecognized) + "\n\n" + t.texts.Get(messages.KeyPaymentMenu))
	return nil
}

func (m *Machine) handleChangeAmount(t *turn) error {
	switch t.intent {
	case Back:
		t.sayKey(messages.KeyPaymentMenu)
		return t.tx.SetState(session.StateChoosingPayment)
	case Decline:
		return m.finalize(t)
	}

	amount, ok := parseAmount(t.text)
	if !ok {
		t.sayKey(messages.KeyChangeInvalid)
		return nil
	}
	total := t.tx.ComputeTotal()
	if amount.LessThan(total) {
		t.say(t.texts.Get(messages.KeyChangeTooLow), fmt.Sprintf("*VALOR TOTAL: %s*", messages.Money(total)))
		return nil
	}
	t.tx.SetChangeFor(amount)
	return m.finalize(t)
}

// finalize persists the order and confirms it to the customer once per
// lifecycle; a repeated finalize only reminds that the order is placed. A storage
// failure leaves the cart as it was so the customer can simply try again.
func (m *Machine) finalize(t *turn) error {
	rec, created, err := t.tx.Finalize(tenant.StatusFinalized)
	if err != nil {
		t.retry("finalize order", err)
		return nil
	}
	t.reply.Order = &rec
	t.reply.Created = created
	if !created {
		t.sayKey(messages.KeyAlreadyPlaced)
		return nil
	}
	t.say(messages.OrderTaken(t.texts, rec.CustomerName, rec.PaymentMethod))
	return nil
}

func locationLabel(lat, lng float64) string {
	return fmt.Sprintf("📍 Localização (%.6f, %.6f)", lat, lng)
}

// usableAddress rejects blank, too short, and placeholder addresses left by
// older clients.
func usableAddress(address string) bool {
	folded := catalog.Fold(address)
	switch folded {
	case "", "undefined", "null", "none", "localizacao":
		return false
	}
	if len([]rune(strings.TrimSpace(address))) < 5 {
		return false
	}
	for _, r := range address {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
