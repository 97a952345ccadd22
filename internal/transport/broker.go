package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"
)

// Publisher is the subset of *amqp.Channel the broker uses to send.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// outboundMessage is the JSON body published for each reply.
type outboundMessage struct {
	TenantID    string `json:"tenant_id"`
	CustomerKey string `json:"customer_key"`
	Outbound
}

// Broker exchanges messages with a messaging-network gateway over RabbitMQ.
// Inbound messages are JSON-encoded Inbound values on a queue; replies are
// published to a topic exchange with routing key "<tenant>.outbound".
//
// Deliveries are spread over lanes by sender, so one customer's messages are
// handled in order while different customers proceed in parallel.
type Broker struct {
	pub      Publisher
	exchange string
	lanes    int
	timeout  time.Duration
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithLanes sets how many senders are handled concurrently.
func WithLanes(n int) BrokerOption {
	return func(b *Broker) {
		if n > 0 {
			b.lanes = n
		}
	}
}

// NewBroker creates a broker publishing replies to exchange.
func NewBroker(pub Publisher, exchange string, opts ...BrokerOption) *Broker {
	b := &Broker{pub: pub, exchange: exchange, lanes: 8, timeout: 5 * time.Second}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Send publishes msg for the gateway to deliver.
func (b *Broker) Send(ctx context.Context, tenantID, customerKey string, msg Outbound) error {
	body, err := json.Marshal(outboundMessage{TenantID: tenantID, CustomerKey: customerKey, Outbound: msg})
	if err != nil {
		return fmt.Errorf("marshal outbound: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	key := tenantID + ".outbound"
	err = b.pub.PublishWithContext(ctx,
		b.exchange, // exchange
		key,        // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
		})
	if err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	return nil
}

// Serve handles deliveries until the channel closes or ctx ends.
//
// A delivery that cannot be decoded is rejected without requeue. A handler
// error requeues the delivery once; a redelivered message that fails again
// is rejected.
func (b *Broker) Serve(ctx context.Context, deliveries <-chan amqp.Delivery, h Handler) error {
	g, ctx := errgroup.WithContext(ctx)

	lanes := make([]chan amqp.Delivery, b.lanes)
	for i := range lanes {
		lane := make(chan amqp.Delivery)
		lanes[i] = lane
		g.Go(func() error {
			for d := range lane {
				b.handle(ctx, d, h)
			}
			return nil
		})
	}

	g.Go(func() error {
		defer func() {
			for _, lane := range lanes {
				close(lane)
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return nil
			case d, ok := <-deliveries:
				if !ok {
					return nil
				}
				lane := lanes[b.laneFor(d)]
				select {
				case lane <- d:
				case <-ctx.Done():
					return nil
				}
			}
		}
	})

	return g.Wait()
}

func (b *Broker) laneFor(d amqp.Delivery) int {
	var probe struct {
		Sender string `json:"sender"`
	}
	_ = json.Unmarshal(d.Body, &probe)
	h := fnv.New32a()
	h.Write([]byte(probe.Sender))
	return int(h.Sum32() % uint32(b.lanes))
}

func (b *Broker) handle(ctx context.Context, d amqp.Delivery, h Handler) {
	var in Inbound
	if err := json.Unmarshal(d.Body, &in); err != nil {
		slog.Warn("dropping undecodable message", "message_id", d.MessageId, "error", err)
		if err := d.Nack(false, false); err != nil {
			slog.Warn("nack failed", "message_id", d.MessageId, "error", err)
		}
		return
	}
	if in.ID == "" {
		in.ID = d.MessageId
	}

	if err := h.HandleInbound(ctx, in); err != nil {
		requeue := !d.Redelivered
		slog.Warn("inbound message failed",
			"message_id", in.ID,
			"requeue", requeue,
			"error", err,
		)
		if err := d.Nack(false, requeue); err != nil {
			slog.Warn("nack failed", "message_id", in.ID, "error", err)
		}
		return
	}
	if err := d.Ack(false); err != nil {
		slog.Warn("ack failed", "message_id", in.ID, "error", err)
	}
}

// BrokerConnection owns the connection and channel of a Broker.
type BrokerConnection struct {
	Conn       *amqp.Connection
	Channel    *amqp.Channel
	Deliveries <-chan amqp.Delivery
}

// DialBroker connects to url, declares the reply exchange and the inbound
// queue, and starts consuming it.
func DialBroker(url, exchange, queue string) (*BrokerConnection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	fail := func(err error) (*BrokerConnection, error) {
		ch.Close()
		conn.Close()
		return nil, err
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return fail(fmt.Errorf("declare exchange %s: %w", exchange, err))
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fail(fmt.Errorf("declare queue %s: %w", queue, err))
	}
	if err := ch.Qos(32, 0, false); err != nil {
		return fail(fmt.Errorf("set qos: %w", err))
	}
	deliveries, err := ch.Consume(
		queue,     // queue
		"comanda", // consumer
		false,     // auto-ack
		false,     // exclusive
		false,     // no-local
		false,     // no-wait
		nil,       // args
	)
	if err != nil {
		return fail(fmt.Errorf("consume %s: %w", queue, err))
	}
	return &BrokerConnection{Conn: conn, Channel: ch, Deliveries: deliveries}, nil
}

// Close closes the channel and the connection.
func (c *BrokerConnection) Close() error {
	if c.Channel != nil {
		c.Channel.Close()
	}
	if c.Conn != nil {
		return c.Conn.Close()
	}
	return nil
}
