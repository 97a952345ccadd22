package tenant

import (
	"errors"
	"strings"
	"unicode"
)

// ErrUnroutableSender is returned for group chats, broadcasts, and empty senders.
var ErrUnroutableSender = errors.New("sender cannot be routed to a tenant")

var contactSuffixes = []string{"@c.us", "@s.whatsapp.net", "@broadcast"}

// SanitizeContact strips messaging-network suffixes from a sender id and
// returns the bare contact key.
func SanitizeContact(sender string) string {
	key := strings.TrimSpace(sender)
	for _, suffix := range contactSuffixes {
		key = strings.TrimSuffix(key, suffix)
	}
	return key
}

// Resolver maps an inbound message to the tenant that owns the conversation.
//
// The receiving account is matched first, then the sender. Phones are
// matched on digits only, so "+55 11 99999-0000" and
// "5511999990000@c.us" route the same way.
type Resolver struct {
	byPhone       map[string]string
	defaultTenant string
}

// NewResolver builds a resolver from tenant → phone numbers.
// Senders that match no phone fall back to defaultTenant.
func NewResolver(phones map[string][]string, defaultTenant string) *Resolver {
	r := &Resolver{
		byPhone:       make(map[string]string),
		defaultTenant: defaultTenant,
	}
	for tenantID, list := range phones {
		for _, phone := range list {
			if d := digits(phone); d != "" {
				r.byPhone[d] = tenantID
			}
		}
	}
	return r
}

// Resolve returns the tenant id and sanitized customer key for a message
// sent by sender to account. account may be empty for single-number setups.
func (r *Resolver) Resolve(account, sender string) (tenantID, customerKey string, err error) {
	if sender == "" || strings.HasSuffix(sender, "@g.us") || strings.HasSuffix(sender, "@broadcast") {
		return "", "", ErrUnroutableSender
	}
	key := SanitizeContact(sender)
	if key == "" {
		return "", "", ErrUnroutableSender
	}
	if d := digits(SanitizeContact(account)); d != "" {
		if id, ok := r.byPhone[d]; ok {
			return id, key, nil
		}
	}
	if id, ok := r.byPhone[digits(key)]; ok {
		return id, key, nil
	}
	if r.defaultTenant == "" {
		return "", "", ErrUnroutableSender
	}
	return r.defaultTenant, key, nil
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
