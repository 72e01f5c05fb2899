package rabbit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/wb-go/wbf/zlog"
)

// Handler processes one delivery. A non-nil error requeues it once; a
// redelivered message that fails again is dropped.
type Handler func(ctx context.Context, routingKey string, body []byte) error

type Client struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	queue    string
}

// Bindings are the routing keys the notification queue receives.
var Bindings = []string{"event.*", "registration.*"}

// NewRabbit connects to url and declares a durable topic exchange with a
// durable queue bound to Bindings.
func NewRabbit(url, exchange, queue string) (*Client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to connect to RabbitMQ")
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		zlog.Logger.Error().Err(err).Msg("failed to open RabbitMQ channel")
		return nil, fmt.Errorf("open channel: %w", err)
	}

	client := &Client{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		queue:    queue,
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		client.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		client.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	for _, key := range Bindings {
		if err := ch.QueueBind(queue, key, exchange, false, nil); err != nil {
			client.Close()
			return nil, fmt.Errorf("bind queue to %s: %w", key, err)
		}
	}

	zlog.Logger.Info().Msgf("RabbitMQ initialized (exchange=%s, queue=%s)", exchange, queue)
	return client, nil
}

func (c *Client) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	zlog.Logger.Info().Msg("RabbitMQ connection closed")
}

// PublishJSON publishes v as a persistent JSON message under routingKey.
func (c *Client) PublishJSON(ctx context.Context, routingKey string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", routingKey, err)
	}

	err = c.channel.PublishWithContext(ctx,
		c.exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		zlog.Logger.Error().Err(err).Str("routing_key", routingKey).Msg("failed to publish message to RabbitMQ")
		return err
	}
	zlog.Logger.Debug().Msgf("Message published to exchange=%s key=%s", c.exchange, routingKey)
	return nil
}

// ErrDeliveriesClosed is returned by Consume when the broker closes the
// delivery channel.
var ErrDeliveriesClosed = errors.New("rabbitmq delivery channel closed")

// Consume delivers messages to handler until ctx is cancelled or the
// channel closes.
func (c *Client) Consume(ctx context.Context, handler Handler) error {
	msgs, err := c.channel.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to start consuming messages")
		return err
	}
	zlog.Logger.Info().Msgf("Started consuming from queue %s", c.queue)

	return drain(ctx, msgs, handler, settle)
}

// drain runs until ctx is cancelled, which is a clean stop, or msgs closes,
// which means the broker dropped the channel.
func drain(ctx context.Context, msgs <-chan amqp.Delivery, handler Handler, ack func(amqp.Delivery, error)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return ErrDeliveriesClosed
			}
			ack(d, handler(ctx, d.RoutingKey, d.Body))
		}
	}
}

type acker interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func settle(d amqp.Delivery, err error) {
	settleWith(&d, d.Redelivered, d.RoutingKey, err)
}

func settleWith(a acker, redelivered bool, key string, err error) {
	if err == nil {
		_ = a.Ack(false)
		return
	}
	zlog.Logger.Warn().Err(err).Str("routing_key", key).Bool("redelivered", redelivered).Msg("failed to process message")
	_ = a.Nack(false, !redelivered)
}

// Nop discards notifications. It stands in when no broker is configured.
type Nop struct{}

func (Nop) PublishJSON(context.Context, string, any) error { return nil }
