// Package transport defines how chat messages enter and leave the engine.
//
// The messaging network itself lives outside this module. Adapters here
// either talk to a person at a terminal (Console) or exchange JSON with a
// network gateway through RabbitMQ (Broker).
package transport

import "context"

// Location is a shared map pin.
type Location struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address,omitempty"`
}

// Attachment is a media item sent with a message.
type Attachment struct {
	Kind     string `json:"kind"`
	Ref      string `json:"ref"`
	MimeType string `json:"mime_type,omitempty"`
}

// Inbound is one message received from a customer.
type Inbound struct {
	ID          string       `json:"id,omitempty"`
	Account     string       `json:"account,omitempty"` // receiving bot number
	Sender      string       `json:"sender"`
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Location    *Location    `json:"location,omitempty"`
}

// Outbound is one message to send.
type Outbound struct {
	Text     string `json:"text,omitempty"`
	MediaRef string `json:"media_ref,omitempty"`
}

// Sender delivers outbound messages to a customer of a tenant.
type Sender interface {
	Send(ctx context.Context, tenantID, customerKey string, msg Outbound) error
}

// Handler processes inbound messages.
type Handler interface {
	HandleInbound(ctx context.Context, in Inbound) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, in Inbound) error

// HandleInbound calls f.
func (f HandlerFunc) HandleInbound(ctx context.Context, in Inbound) error {
	return f(ctx, in)
}
