package testutil

import (
	"context"
	"sync"

	"github.com/roach88/comanda/internal/transport"
)

// SentMessage is one message captured by RecordingTransport.
type SentMessage struct {
	TenantID    string
	CustomerKey string
	transport.Outbound
}

// RecordingTransport captures outbound messages instead of sending them.
//
// Set Err to make every Send fail.
//
// Thread-safety: safe for concurrent use via internal mutex.
type RecordingTransport struct {
	mu   sync.Mutex
	sent []SentMessage
	Err  error
}

// NewRecordingTransport creates an empty recorder.
func NewRecordingTransport() *RecordingTransport {
	return &RecordingTransport{}
}

// Send records msg, or returns Err when set.
func (r *RecordingTransport) Send(_ context.Context, tenantID, customerKey string, msg transport.Outbound) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.sent = append(r.sent, SentMessage{TenantID: tenantID, CustomerKey: customerKey, Outbound: msg})
	return nil
}

// Sent returns every recorded message in send order.
func (r *RecordingTransport) Sent() []SentMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SentMessage, len(r.sent))
	copy(out, r.sent)
	return out
}

// To returns the texts sent to one customer of one tenant.
func (r *RecordingTransport) To(tenantID, customerKey string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, m := range r.sent {
		if m.TenantID == tenantID && m.CustomerKey == customerKey {
			out = append(out, m.Text)
		}
	}
	return out
}

// Last returns the last text sent to the customer, or "".
func (r *RecordingTransport) Last(tenantID, customerKey string) string {
	texts := r.To(tenantID, customerKey)
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

// Reset forgets every recorded message.
func (r *RecordingTransport) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}
