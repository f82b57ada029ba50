package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"spendsnap/internal/log"
)

// AMQPBus fans messages out through a RabbitMQ fanout exchange. Each
// instance consumes from its own exclusive, auto-deleted queue, so every
// running instance (the publisher included) receives every message.
type AMQPBus struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
	queueName    string
	origin       string
	reg          *registry
	logger       *log.Logger

	publishMu sync.Mutex
}

var _ Bus = (*AMQPBus)(nil)

func NewAMQPBus(url, exchangeName string, logger *log.Logger) (*AMQPBus, error) {
	if logger == nil {
		logger = log.Discard()
	}

	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	bus := &AMQPBus{
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
		origin:       newOrigin(),
		reg:          newRegistry(),
		logger:       logger.WithComponent(log.ComponentBroadcast),
	}

	if err := bus.setup(); err != nil {
		bus.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}

	return bus, nil
}

func (b *AMQPBus) setup() error {
	err := b.channel.ExchangeDeclare(
		b.exchangeName, // name
		"fanout",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	q, err := b.channel.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	b.queueName = q.Name

	if err := b.channel.QueueBind(b.queueName, "", b.exchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

func (b *AMQPBus) Origin() string { return b.origin }

func (b *AMQPBus) Subscribe(key string, h Handler) func() {
	return b.reg.add(key, h)
}

func (b *AMQPBus) Publish(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	b.publishMu.Lock()
	err = b.channel.PublishWithContext(
		ctx,
		b.exchangeName, // exchange
		"",             // routing key (ignored by fanout)
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType: "application/json",
			Timestamp:   msg.Timestamp,
			AppId:       b.origin,
			Body:        body,
		},
	)
	b.publishMu.Unlock()
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	b.logger.DebugContext(ctx, "Published broadcast",
		log.FieldOperation, log.OpPublish,
		log.FieldKey, msg.Key,
		log.FieldOrigin, msg.Origin,
		"exchange", b.exchangeName)
	return nil
}

// Run consumes broadcasts until ctx is cancelled or the channel closes.
func (b *AMQPBus) Run(ctx context.Context) error {
	msgs, err := b.channel.Consume(
		b.queueName, // queue
		b.origin,    // consumer
		false,       // auto-ack (we want manual ack)
		true,        // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	b.logger.InfoContext(ctx, "Started consuming broadcasts",
		log.FieldOperation, log.OpConsume,
		"queue", b.queueName)

	for {
		select {
		case <-ctx.Done():
			b.logger.InfoContext(ctx, "Stopping broadcast consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}
			if err := b.handleDelivery(ctx, delivery.Body); err != nil {
				b.logger.ErrorContext(ctx, "Failed to unmarshal broadcast",
					log.FieldError, err,
					log.FieldErrorType, log.ErrorTypeValidation)
				delivery.Nack(false, false) // reject and don't requeue
				continue
			}
			delivery.Ack(false)
		}
	}
}

func (b *AMQPBus) handleDelivery(ctx context.Context, body []byte) error {
	msg, err := decodeMessage(body)
	if err != nil {
		return err
	}
	n := b.reg.dispatch(ctx, msg)
	b.logger.DebugContext(ctx, "Delivered broadcast",
		log.FieldKey, msg.Key,
		log.FieldOrigin, msg.Origin,
		"handlers", n)
	return nil
}

func decodeMessage(body []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return Message{}, err
	}
	if msg.Key == "" {
		return Message{}, fmt.Errorf("message without key")
	}
	return msg, nil
}

func (b *AMQPBus) Close() error {
	if b.channel != nil {
		b.channel.Close()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}
