package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/comanda/internal/events"
)

const reminderTimeout = 30 * time.Second

func followupKey(tenantID, customerKey string) string {
	return tenantID + "/" + customerKey
}

// armFollowup schedules the idle-cart reminder, replacing any armed one.
func (tx *Tx) armFollowup() {
	s := tx.s
	delay := tx.e.followupDelay(s.tenantID)
	if delay <= 0 {
		return
	}
	tenantID, customerKey := s.tenantID, s.customerKey
	s.followupGen = tx.e.scheduler.Arm(followupKey(tenantID, customerKey), delay, func(gen uint64) {
		tx.e.fireFollowup(tenantID, customerKey, gen)
	})
}

// disarmFollowup cancels the reminder and clears the sent flag.
func (tx *Tx) disarmFollowup() {
	s := tx.s
	tx.e.scheduler.Disarm(followupKey(s.tenantID, s.customerKey))
	s.followupGen = 0
	s.followupSent = false
}

// fireFollowup runs when a reminder timer expires. It re-checks the cart
// inside the critical section: a timer superseded by a reset, re-arm, or
// terminal transition finds a different generation and does nothing.
func (e *Engine) fireFollowup(tenantID, customerKey string, gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), reminderTimeout)
	defer cancel()

	err := e.Do(ctx, tenantID, customerKey, func(tx *Tx) error {
		s := tx.s
		if s.followupGen != gen {
			return nil
		}
		s.followupGen = 0
		if len(s.items) == 0 || s.state.Terminal() || s.orderPersisted || s.followupSent {
			return nil
		}

		if e.reminder != nil {
			if err := e.reminder.Remind(ctx, s.snapshot()); err != nil {
				return NewError(ErrCodeCollaboratorUnavailable, tenantID, customerKey, "send follow-up", err)
			}
		}
		s.followupSent = true
		slog.Info("follow-up sent", "tenant", tenantID, "customer", customerKey)
		e.publish(events.Event{
			Kind:        events.KindFollowupSent,
			TenantID:    tenantID,
			CustomerKey: customerKey,
			State:       string(s.state),
			Cart:        s.eventCart(),
		})
		return nil
	})
	if err != nil {
		slog.Warn("follow-up failed", "tenant", tenantID, "customer", customerKey, "error", err)
	}
}
