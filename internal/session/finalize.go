package session

import (
	"errors"
	"log/slog"

	"github.com/roach88/comanda/internal/events"
	"github.com/roach88/comanda/internal/tenant"
)

// Finalize persists the cart as an order with the given status and moves
// the session to the matching terminal state.
//
// The order id is the lifecycle id, and the session remembers the id once
// written, so repeated calls in one lifecycle never create a second order:
//
//   - already persisted and readable: the stored order is returned. When
//     status is a later stage (finalized → dispatched-for-delivery) the
//     stored status is updated in place.
//   - not yet persisted: a snapshot is written, the session is marked
//     persisted, order-saved is published, and created is true.
//
// A failed write returns PersistenceFailure, publishes
// order-persistence-failed, and leaves the cart unpersisted so a later
// call can retry.
func (tx *Tx) Finalize(status tenant.OrderStatus) (tenant.OrderRecord, bool, error) {
	s := tx.s
	if !status.Valid() {
		return tenant.OrderRecord{}, false, NewError(ErrCodeInvalidTransitionInput, s.tenantID, s.customerKey,
			"invalid order status "+string(status), nil)
	}

	if s.orderPersisted && s.persistedOrderID != "" {
		existing, err := tx.e.orders.ReadOrder(tx.ctx, s.tenantID, s.persistedOrderID)
		switch {
		case err == nil:
			if status.After(existing.Status) {
				if err := tx.e.orders.UpdateOrderStatus(tx.ctx, s.tenantID, existing.ID, status); err != nil {
					return existing, false, tx.persistenceFailed("update order status", err)
				}
				existing.Status = status
				tx.e.publish(events.Event{
					Kind:        events.KindOrderStatusChanged,
					TenantID:    s.tenantID,
					CustomerKey: s.customerKey,
					Order:       &existing,
				})
			}
			if err := tx.enterStatus(existing.Status); err != nil {
				return existing, false, err
			}
			return existing, false, nil
		case errors.Is(err, tenant.ErrOrderNotFound):
			slog.Warn("persisted order missing, writing again",
				"tenant", s.tenantID,
				"customer", s.customerKey,
				"order", s.persistedOrderID,
			)
		default:
			return tenant.OrderRecord{}, false, tx.persistenceFailed("read order", err)
		}
	}

	if len(s.items) == 0 {
		return tenant.OrderRecord{}, false, NewError(ErrCodeInvalidTransitionInput, s.tenantID, s.customerKey,
			"cannot finalize an empty cart", nil)
	}

	rec := tx.orderRecord(status)
	id, inserted, err := tx.e.orders.WriteOrder(tx.ctx, s.tenantID, rec)
	if err != nil {
		return tenant.OrderRecord{}, false, tx.persistenceFailed("write order", err)
	}

	if !inserted {
		// Same lifecycle id already on disk; return what is stored.
		if stored, err := tx.e.orders.ReadOrder(tx.ctx, s.tenantID, id); err == nil {
			rec = stored
		}
	}

	s.orderPersisted = true
	s.persistedOrderID = id

	if inserted {
		slog.Info("order saved",
			"tenant", s.tenantID,
			"customer", s.customerKey,
			"order", id,
			"total", rec.Total.StringFixed(2),
		)
		if err := tx.e.orders.AddSpend(tx.ctx, s.tenantID, s.customerKey, rec.Total); err != nil {
			slog.Warn("failed to record customer spend", "tenant", s.tenantID, "customer", s.customerKey, "error", err)
		}
		saved := rec
		tx.e.publish(events.Event{
			Kind:        events.KindOrderSaved,
			TenantID:    s.tenantID,
			CustomerKey: s.customerKey,
			Order:       &saved,
			Cart:        s.eventCart(),
		})
	}

	if err := tx.enterStatus(rec.Status); err != nil {
		return rec, inserted, err
	}
	return rec, inserted, nil
}

// orderRecord snapshots the cart into an order.
func (tx *Tx) orderRecord(status tenant.OrderStatus) tenant.OrderRecord {
	s := tx.s
	s.recompute()

	items := make([]tenant.OrderItem, len(s.items))
	copy(items, s.items)

	rec := tenant.OrderRecord{
		ID:            s.lifecycleID,
		TenantID:      s.tenantID,
		CustomerKey:   s.customerKey,
		CustomerName:  s.customerName,
		CreatedAt:     tx.e.now(),
		Items:         items,
		ItemsTotal:    s.itemsTotal,
		Delivery:      s.delivery,
		Total:         s.grandTotal,
		PaymentMethod: s.paymentMethod,
		ChangeFor:     s.changeFor,
		Note:          s.note,
		Status:        status,
	}
	if s.delivery {
		rec.DeliveryFee = s.deliveryFee
		rec.Address = s.address
		rec.Lat = copyFloat(s.lat)
		rec.Lng = copyFloat(s.lng)
	}
	return rec
}

func (tx *Tx) enterStatus(status tenant.OrderStatus) error {
	target := stateForStatus(status)
	if tx.s.state == target {
		return nil
	}
	return tx.SetState(target)
}

func (tx *Tx) persistenceFailed(op string, err error) error {
	s := tx.s
	slog.Error("order persistence failed",
		"tenant", s.tenantID,
		"customer", s.customerKey,
		"op", op,
		"error", err,
	)
	tx.e.publish(events.Event{
		Kind:        events.KindOrderPersistenceFailed,
		TenantID:    s.tenantID,
		CustomerKey: s.customerKey,
		Cart:        s.eventCart(),
		Error:       err.Error(),
	})
	return NewError(ErrCodePersistenceFailure, s.tenantID, s.customerKey, op+" failed", err)
}
