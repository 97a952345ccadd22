package bot

import (
	"context"
	"log/slog"

	"github.com/roach88/comanda/internal/conversation"
	"github.com/roach88/comanda/internal/messages"
	"github.com/roach88/comanda/internal/session"
	"github.com/roach88/comanda/internal/transport"
)

// Reminder sends the idle-cart nudge through the transport. It is the
// session engine's Reminder.
type Reminder struct {
	out   transport.Sender
	texts conversation.Texts
	flags *Flags
}

// NewReminder creates a Reminder. flags may be nil.
func NewReminder(out transport.Sender, texts conversation.Texts, flags *Flags) *Reminder {
	return &Reminder{out: out, texts: texts, flags: flags}
}

// Remind sends the follow-up for snap. Tenants whose bot is switched off
// are skipped silently.
func (r *Reminder) Remind(ctx context.Context, snap session.Snapshot) error {
	if r.flags != nil {
		enabled, err := r.flags.BotEnabled(ctx, snap.TenantID)
		if err != nil {
			slog.Warn("bot flag unavailable", "tenant", snap.TenantID, "error", err)
		}
		if !enabled {
			return nil
		}
	}
	set := r.texts.For(ctx, snap.TenantID)
	return r.out.Send(ctx, snap.TenantID, snap.CustomerKey, transport.Outbound{
		Text: messages.Followup(set, snap),
	})
}
