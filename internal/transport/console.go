package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
)

// Console is a terminal chat: every input line is an inbound message from a
// fixed sender, and replies are printed.
//
// Lines starting with "/loc lat,lng" send a location pin instead of text.
// "/quit" ends the session.
type Console struct {
	in      io.Reader
	account string
	sender  string

	mu  sync.Mutex
	out io.Writer
}

// NewConsole creates a console chatting as sender with the bot account.
func NewConsole(in io.Reader, out io.Writer, account, sender string) *Console {
	return &Console{in: in, out: out, account: account, sender: sender}
}

// Send prints msg.
func (c *Console) Send(_ context.Context, tenantID, customerKey string, msg Outbound) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if msg.MediaRef != "" {
		if _, err := fmt.Fprintf(c.out, "[%s → %s] <media %s>\n", tenantID, customerKey, msg.MediaRef); err != nil {
			return fmt.Errorf("console send: %w", err)
		}
	}
	if msg.Text != "" {
		if _, err := fmt.Fprintf(c.out, "[%s → %s]\n%s\n\n", tenantID, customerKey, msg.Text); err != nil {
			return fmt.Errorf("console send: %w", err)
		}
	}
	return nil
}

// Run reads lines until EOF, "/quit", or ctx ends, passing each to h.
// Handler errors are logged and the loop continues.
func (c *Console) Run(ctx context.Context, h Handler) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for n := 1; ; n++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("read console: %w", err)
					}
				default:
				}
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if line == "/quit" {
				return nil
			}
			in, err := c.parse(line)
			if err != nil {
				c.mu.Lock()
				fmt.Fprintf(c.out, "! %v\n", err)
				c.mu.Unlock()
				continue
			}
			in.ID = "console-" + strconv.Itoa(n)
			if err := h.HandleInbound(ctx, in); err != nil {
				slog.Warn("console message failed", "error", err)
			}
		}
	}
}

func (c *Console) parse(line string) (Inbound, error) {
	in := Inbound{Account: c.account, Sender: c.sender}
	rest, ok := strings.CutPrefix(line, "/loc ")
	if !ok {
		in.Text = line
		return in, nil
	}
	latS, lngS, found := strings.Cut(rest, ",")
	if !found {
		return Inbound{}, fmt.Errorf("usage: /loc lat,lng")
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latS), 64)
	if err != nil {
		return Inbound{}, fmt.Errorf("invalid latitude %q", latS)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(lngS), 64)
	if err != nil {
		return Inbound{}, fmt.Errorf("invalid longitude %q", lngS)
	}
	in.Location = &Location{Lat: lat, Lng: lng}
	return in, nil
}
