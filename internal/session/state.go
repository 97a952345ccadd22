package session

import "github.com/roach88/comanda/internal/tenant"

// State is a conversation state. The session engine stores it; the
// conversation package decides what each state means.
type State string

const (
	StateInitial                  State = "initial"
	StateChoosingDrink            State = "choosing-drink"
	StateChoosingDeliveryOrPickup State = "choosing-delivery-or-pickup"
	StateCollectingAddress        State = "collecting-address"
	StateAwaitingConfirmationNote State = "awaiting-confirmation-note"
	StateCollectingName           State = "collecting-name"
	StateChoosingPayment          State = "choosing-payment"
	StateAwaitingChangeAmount     State = "awaiting-change-amount"
	StateSupport                  State = "support"
	StateFinalized                State = "finalized"
	StateDispatched               State = "dispatched-for-delivery"
)

// States lists every known state.
var States = []State{
	StateInitial,
	StateChoosingDrink,
	StateChoosingDeliveryOrPickup,
	StateCollectingAddress,
	StateAwaitingConfirmationNote,
	StateCollectingName,
	StateChoosingPayment,
	StateAwaitingChangeAmount,
	StateSupport,
	StateFinalized,
	StateDispatched,
}

// Known reports whether s is one of States.
func (s State) Known() bool {
	for _, k := range States {
		if s == k {
			return true
		}
	}
	return false
}

// Terminal reports whether s ends the order lifecycle.
func (s State) Terminal() bool {
	return s == StateFinalized || s == StateDispatched
}

// OrderStatus returns the order status a terminal state records.
func (s State) OrderStatus() tenant.OrderStatus {
	if s == StateDispatched {
		return tenant.StatusDispatched
	}
	return tenant.StatusFinalized
}

// stateForStatus maps an order status to the session state it implies.
func stateForStatus(status tenant.OrderStatus) State {
	if status == tenant.StatusDispatched {
		return StateDispatched
	}
	return StateFinalized
}
