package session

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/comanda/internal/events"
	"github.com/roach88/comanda/internal/tenant"
)

// CartItem is one line of a cart. The unit price is captured when the item
// is added and never re-read from the catalog.
type CartItem = tenant.OrderItem

// Payment methods recorded on the cart.
const (
	PaymentCash = "DINHEIRO"
	PaymentPix  = "PIX"
	PaymentCard = "CARTÃO"
)

// session is the mutable cart. It is only touched while its turnstile is held.
type session struct {
	tenantID    string
	customerKey string
	lifecycleID string

	state State
	items []CartItem

	itemsTotal  decimal.Decimal
	deliveryFee decimal.Decimal
	grandTotal  decimal.Decimal

	delivery          bool
	pickup            bool
	deliveryConfirmed bool
	address           string
	lat, lng          *float64

	paymentMethod string
	changeFor     decimal.Decimal
	note          string
	customerName  string

	menuShown        bool
	orderPersisted   bool
	persistedOrderID string
	followupSent     bool
	followupGen      uint64
	lastInboundText  string

	updatedAt time.Time
}

// Snapshot is a copy of a session's observable fields.
type Snapshot struct {
	TenantID          string          `json:"tenant_id"`
	CustomerKey       string          `json:"customer_key"`
	LifecycleID       string          `json:"lifecycle_id"`
	State             State           `json:"state"`
	Items             []CartItem      `json:"items"`
	ItemsTotal        decimal.Decimal `json:"items_total"`
	DeliveryFee       decimal.Decimal `json:"delivery_fee"`
	GrandTotal        decimal.Decimal `json:"grand_total"`
	Delivery          bool            `json:"delivery"`
	Pickup            bool            `json:"pickup"`
	DeliveryConfirmed bool            `json:"delivery_confirmed"`
	Address           string          `json:"address,omitempty"`
	Lat               *float64        `json:"lat,omitempty"`
	Lng               *float64        `json:"lng,omitempty"`
	PaymentMethod     string          `json:"payment_method,omitempty"`
	ChangeFor         decimal.Decimal `json:"change_for"`
	Note              string          `json:"note,omitempty"`
	CustomerName      string          `json:"customer_name,omitempty"`
	MenuShown         bool            `json:"menu_shown"`
	OrderPersisted    bool            `json:"order_persisted"`
	PersistedOrderID  string          `json:"persisted_order_id,omitempty"`
	FollowupSent      bool            `json:"followup_sent"`
	LastInboundText   string          `json:"last_inbound_text,omitempty"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Empty reports whether the cart has no items.
func (s Snapshot) Empty() bool {
	return len(s.Items) == 0
}

func (s *session) snapshot() Snapshot {
	items := make([]CartItem, len(s.items))
	copy(items, s.items)
	return Snapshot{
		TenantID:          s.tenantID,
		CustomerKey:       s.customerKey,
		LifecycleID:       s.lifecycleID,
		State:             s.state,
		Items:             items,
		ItemsTotal:        s.itemsTotal,
		DeliveryFee:       s.deliveryFee,
		GrandTotal:        s.grandTotal,
		Delivery:          s.delivery,
		Pickup:            s.pickup,
		DeliveryConfirmed: s.deliveryConfirmed,
		Address:           s.address,
		Lat:               copyFloat(s.lat),
		Lng:               copyFloat(s.lng),
		PaymentMethod:     s.paymentMethod,
		ChangeFor:         s.changeFor,
		Note:              s.note,
		CustomerName:      s.customerName,
		MenuShown:         s.menuShown,
		OrderPersisted:    s.orderPersisted,
		PersistedOrderID:  s.persistedOrderID,
		FollowupSent:      s.followupSent,
		LastInboundText:   s.lastInboundText,
		UpdatedAt:         s.updatedAt,
	}
}

// eventCart copies the fields observers are allowed to see.
func (s *session) eventCart() *events.Cart {
	items := make([]CartItem, len(s.items))
	copy(items, s.items)
	return &events.Cart{
		LifecycleID:   s.lifecycleID,
		State:         string(s.state),
		Items:         items,
		ItemsTotal:    s.itemsTotal,
		DeliveryFee:   s.deliveryFee,
		GrandTotal:    s.grandTotal,
		Delivery:      s.delivery,
		Address:       s.address,
		PaymentMethod: s.paymentMethod,
		CustomerName:  s.customerName,
		OrderID:       s.persistedOrderID,
	}
}

// recompute refreshes the cached totals. Called after every mutation.
func (s *session) recompute() decimal.Decimal {
	total := decimal.Zero
	for _, it := range s.items {
		total = total.Add(it.Subtotal())
	}
	s.itemsTotal = total.Round(2)
	s.grandTotal = s.itemsTotal
	if s.delivery && s.deliveryFee.IsPositive() {
		s.grandTotal = s.grandTotal.Add(s.deliveryFee).Round(2)
	}
	return s.grandTotal
}

// clear returns the session to a fresh lifecycle, keeping its identity.
func (s *session) clear(lifecycleID string) {
	s.lifecycleID = lifecycleID
	s.state = StateInitial
	s.items = nil
	s.delivery = false
	s.pickup = false
	s.deliveryConfirmed = false
	s.deliveryFee = decimal.Zero
	s.address = ""
	s.lat, s.lng = nil, nil
	s.paymentMethod = ""
	s.changeFor = decimal.Zero
	s.note = ""
	s.menuShown = false
	s.orderPersisted = false
	s.persistedOrderID = ""
	s.followupSent = false
	s.followupGen = 0
	s.recompute()
}

// Selector picks a cart line for removal: by index, by display name, or by
// catalog id. The first matching line wins.
type Selector struct {
	index  int
	name   string
	itemID string
	byIdx  bool
}

// ByIndex selects the line at the 0-based index.
func ByIndex(i int) Selector { return Selector{index: i, byIdx: true} }

// ByName selects the first line whose display name matches, ignoring case.
func ByName(name string) Selector { return Selector{name: name} }

// ByItemID selects the first line for the catalog item.
func ByItemID(id string) Selector { return Selector{itemID: id} }

func (sel Selector) find(items []CartItem) int {
	switch {
	case sel.byIdx:
		if sel.index >= 0 && sel.index < len(items) {
			return sel.index
		}
	case sel.itemID != "":
		for i, it := range items {
			if it.ItemID == sel.itemID {
				return i
			}
		}
	case sel.name != "":
		for i, it := range items {
			if strings.EqualFold(strings.TrimSpace(it.Name), strings.TrimSpace(sel.name)) {
				return i
			}
		}
	}
	return -1
}

func (sel Selector) String() string {
	switch {
	case sel.byIdx:
		return "index"
	case sel.itemID != "":
		return "item " + sel.itemID
	default:
		return "name " + sel.name
	}
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
