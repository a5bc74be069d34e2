package rabbitmq

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"friend-graph-service/internal/observability"
)

const publishTimeout = 5 * time.Second

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

type publisher struct {
	conn         *amqp.Connection
	channel      *amqp.Channel
	exchangeName string
	mu           sync.Mutex
}

// NewPublisher dials RabbitMQ and declares a durable topic exchange.
func NewPublisher(amqpURL, exchangeName string) (Publisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := ch.ExchangeDeclare(
		exchangeName,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &publisher{conn: conn, channel: ch, exchangeName: exchangeName}, nil
}

// Open returns a connected publisher, or a no-op one when amqpURL is empty or the broker
// is unreachable. Event delivery is best effort and never blocks startup.
func Open(amqpURL, exchangeName string, logger logrus.FieldLogger) Publisher {
	log := logger.WithField("exchange", exchangeName)
	if amqpURL == "" {
		log.Warn("AMQP_URL not set; event publishing disabled")
		return NewNoopPublisher(logger)
	}
	pub, err := NewPublisher(amqpURL, exchangeName)
	if err != nil {
		log.WithError(err).Warn("failed to initialize RabbitMQ publisher")
		return NewNoopPublisher(logger)
	}
	return pub
}

func (p *publisher) Publish(ctx context.Context, routingKey string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel == nil {
		observability.IncAMQPPublishError()
		return amqp.ErrClosed
	}

	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = p.channel.PublishWithContext(ctx,
		p.exchangeName,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		observability.IncAMQPPublishError()
	}
	return err
}

func (p *publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		_ = p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
	return nil
}

type noopPublisher struct {
	logger logrus.FieldLogger
}

// NewNoopPublisher returns a publisher that drops events and logs the routing key at debug level.
func NewNoopPublisher(logger logrus.FieldLogger) Publisher {
	return &noopPublisher{logger: logger}
}

func (n *noopPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	if n.logger != nil {
		n.logger.WithField("routing_key", routingKey).Debug("RabbitMQ not configured; skipping publish")
	}
	return nil
}

func (n *noopPublisher) Close() error { return nil }
