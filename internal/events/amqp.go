package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher is the subset of *amqp.Channel the bridge uses.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPBridge forwards bus events to a RabbitMQ topic exchange.
// Messages are JSON encoded with routing key "<tenant>.<kind>".
type AMQPBridge struct {
	pub      Publisher
	exchange string
	timeout  time.Duration
}

// NewAMQPBridge creates a bridge publishing to exchange through pub.
func NewAMQPBridge(pub Publisher, exchange string) *AMQPBridge {
	return &AMQPBridge{pub: pub, exchange: exchange, timeout: 5 * time.Second}
}

// Handle publishes e. It is meant to be registered with Bus.Subscribe.
// Failures are logged; the bus keeps delivering subsequent events.
func (b *AMQPBridge) Handle(e Event) {
	if err := b.Forward(context.Background(), e); err != nil {
		slog.Warn("amqp publish failed",
			"tenant", e.TenantID,
			"kind", e.Kind,
			"error", err,
		)
	}
}

// Forward publishes e and returns any error.
func (b *AMQPBridge) Forward(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	err = b.pub.PublishWithContext(ctx,
		b.exchange,     // exchange
		e.RoutingKey(), // routing key
		false,          // mandatory
		false,          // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Type:         string(e.Kind),
			Body:         body,
			Timestamp:    e.At,
		})
	if err != nil {
		return fmt.Errorf("publish %s: %w", e.RoutingKey(), err)
	}
	return nil
}

// AMQPConnection owns a broker connection and the channel used to publish.
type AMQPConnection struct {
	Conn    *amqp.Connection
	Channel *amqp.Channel
}

// DialAMQP connects to url and declares exchange as a durable topic exchange.
func DialAMQP(url, exchange string) (*AMQPConnection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	return &AMQPConnection{Conn: conn, Channel: ch}, nil
}

// Close closes the channel and the connection.
func (c *AMQPConnection) Close() error {
	if c.Channel != nil {
		c.Channel.Close()
	}
	if c.Conn != nil {
		return c.Conn.Close()
	}
	return nil
}
