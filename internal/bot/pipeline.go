// Package bot connects a chat transport to the conversation machine.
//
// For every inbound message the pipeline resolves the tenant from the
// sender, checks the tenant's bot flag, runs the message through the state
// machine and sends the replies. New orders and requests for a human are
// relayed to the tenant's operator chat.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/comanda/internal/conversation"
	"github.com/roach88/comanda/internal/messages"
	"github.com/roach88/comanda/internal/session"
	"github.com/roach88/comanda/internal/tenant"
	"github.com/roach88/comanda/internal/transport"
)

// Dialog runs one message through the conversation. *conversation.Machine
// satisfies it.
type Dialog interface {
	Handle(ctx context.Context, tenantID, customerKey string, in transport.Inbound) (conversation.Reply, error)
}

// Resetter starts a new session lifecycle. *session.Engine satisfies it.
type Resetter interface {
	Reset(ctx context.Context, tenantID, customerKey string) (session.Snapshot, error)
}

// Pipeline is the inbound message handler. It satisfies transport.Handler.
type Pipeline struct {
	resolver *tenant.Resolver
	dialog   Dialog
	sessions Resetter
	texts    conversation.Texts
	flags    *Flags
	out      transport.Sender

	operator func(tenantID string) string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithOperators sets the operator chat of each tenant. Tenants without one
// get no order or support notices.
func WithOperators(operator func(tenantID string) string) Option {
	return func(p *Pipeline) {
		p.operator = operator
	}
}

// NewPipeline creates a Pipeline.
func NewPipeline(
	resolver *tenant.Resolver,
	dialog Dialog,
	sessions Resetter,
	texts conversation.Texts,
	flags *Flags,
	out transport.Sender,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		resolver: resolver,
		dialog:   dialog,
		sessions: sessions,
		texts:    texts,
		flags:    flags,
		out:      out,
		operator: func(string) string { return "" },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var _ transport.Handler = (*Pipeline)(nil)

// HandleInbound processes one message. Unroutable senders and tenants with
// the bot switched off are accepted and ignored.
//
// An error is returned only when the message was not processed and may be
// retried: ctx ended before the session was free. Failed sends are logged,
// because the conversation has already advanced.
func (p *Pipeline) HandleInbound(ctx context.Context, in transport.Inbound) error {
	tenantID, key, err := p.resolver.Resolve(in.Account, in.Sender)
	if errors.Is(err, tenant.ErrUnroutableSender) {
		slog.Debug("dropping unroutable message", "sender", in.Sender, "id", in.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve tenant: %w", err)
	}

	if op := p.operator(tenantID); op != "" && tenant.SanitizeContact(op) == key {
		slog.Debug("ignoring message from operator chat", "tenant", tenantID)
		return nil
	}

	enabled, err := p.flags.BotEnabled(ctx, tenantID)
	if err != nil {
		slog.Warn("bot flag unavailable, using default", "tenant", tenantID, "error", err)
	}
	if !enabled {
		slog.Debug("bot disabled, message left for operator", "tenant", tenantID, "customer", key)
		return nil
	}

	reply, err := p.dialog.Handle(ctx, tenantID, key, in)
	if session.IsUnknownState(err) {
		p.resetStuck(ctx, tenantID, key, err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("handle message: %w", err)
	}

	for _, msg := range reply.Messages {
		p.send(ctx, tenantID, key, msg)
	}
	if reply.Created && reply.Order != nil {
		p.notifyOperator(ctx, tenantID, messages.OperatorSummary(*reply.Order))
	}
	if reply.Escalate {
		p.notifyOperator(ctx, tenantID, supportNotice(key, in.Text))
	}
	return nil
}

// resetStuck resets a session stuck in a state with no handler and asks the
// customer to start over.
func (p *Pipeline) resetStuck(ctx context.Context, tenantID, key string, cause error) {
	slog.Error("resetting session in unknown state",
		"tenant", tenantID,
		"customer", key,
		"error", cause,
	)
	if _, err := p.sessions.Reset(ctx, tenantID, key); err != nil {
		slog.Error("failed to reset session", "tenant", tenantID, "customer", key, "error", err)
	}
	set := p.texts.For(ctx, tenantID)
	p.send(ctx, tenantID, key, transport.Outbound{Text: set.Get(messages.KeyRetry)})
}

func (p *Pipeline) notifyOperator(ctx context.Context, tenantID, text string) {
	op := p.operator(tenantID)
	if op == "" {
		return
	}
	p.send(ctx, tenantID, tenant.SanitizeContact(op), transport.Outbound{Text: text})
}

func (p *Pipeline) send(ctx context.Context, tenantID, key string, msg transport.Outbound) {
	if err := p.out.Send(ctx, tenantID, key, msg); err != nil {
		slog.Warn("failed to send message",
			"tenant", tenantID,
			"customer", key,
			"error", err,
		)
	}
}

func supportNotice(customerKey, text string) string {
	return fmt.Sprintf("🙋 *ATENDIMENTO*\nCliente: %s\nMensagem: %s", customerKey, text)
}
