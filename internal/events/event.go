package events

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/comanda/internal/tenant"
)

// Kind names an event.
type Kind string

const (
	KindCartChanged            Kind = "cart-changed"
	KindStateChanged           Kind = "state-changed"
	KindSessionReset           Kind = "session-reset"
	KindOrderSaved             Kind = "order-saved"
	KindOrderStatusChanged     Kind = "order-status-changed"
	KindOrderPersistenceFailed Kind = "order-persistence-failed"
	KindFollowupSent           Kind = "followup-sent"
	KindBotStatusChanged       Kind = "bot-status-changed"
)

// Cart is a self-contained copy of a session's cart for observers.
type Cart struct {
	LifecycleID   string             `json:"lifecycle_id"`
	State         string             `json:"state"`
	Items         []tenant.OrderItem `json:"items"`
	ItemsTotal    decimal.Decimal    `json:"items_total"`
	DeliveryFee   decimal.Decimal    `json:"delivery_fee"`
	GrandTotal    decimal.Decimal    `json:"grand_total"`
	Delivery      bool               `json:"delivery"`
	Address       string             `json:"address,omitempty"`
	PaymentMethod string             `json:"payment_method,omitempty"`
	CustomerName  string             `json:"customer_name,omitempty"`
	OrderID       string             `json:"order_id,omitempty"`
}

// Event is an announcement published on the Bus.
//
// Events hold plain values only. Publishers copy whatever they attach so
// subscribers can keep or serialize an event without synchronization.
type Event struct {
	Kind        Kind                `json:"kind"`
	TenantID    string              `json:"tenant_id"`
	CustomerKey string              `json:"customer_key,omitempty"`
	At          time.Time           `json:"at"`
	State       string              `json:"state,omitempty"`
	Cart        *Cart               `json:"cart,omitempty"`
	Order       *tenant.OrderRecord `json:"order,omitempty"`
	BotEnabled  *bool               `json:"bot_enabled,omitempty"`
	Error       string              `json:"error,omitempty"`
}

// RoutingKey returns "<tenant>.<kind>", used by broker bridges.
func (e Event) RoutingKey() string {
	return e.TenantID + "." + string(e.Kind)
}
