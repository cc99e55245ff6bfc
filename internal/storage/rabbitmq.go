package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"jobmatch-go/internal/config"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// MessageQueue is the broker surface the run dispatcher needs.
type MessageQueue interface {
	PublishJSON(ctx context.Context, exchange, routingKey string, data interface{}, persistent bool) error
	EnsureExchange(exchange, kind string, durable bool) error
	EnsureQueue(queue string, durable bool) error
	BindQueue(queue, exchange, routingKey string) error
	Consume(ctx context.Context, queue string, prefetch, workers int, handler func(ctx context.Context, body []byte) error) error
	Close() error
}

var _ MessageQueue = (*RabbitMQ)(nil)

// RabbitMQ dispatches ingestion-run requests through an AMQP broker so the
// HTTP handler can return a run ID immediately.
type RabbitMQ struct {
	conn         *amqp.Connection
	publishCh    *amqp.Channel
	publishMutex sync.Mutex
	declared     map[string]bool
	cfg          *config.RabbitMQConfig
	logger       zerolog.Logger
}

// NewRabbitMQ dials the broker and opens a dedicated publish channel.
func NewRabbitMQ(cfg *config.RabbitMQConfig, logger zerolog.Logger) (*RabbitMQ, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, fmt.Errorf("rabbitmq url is required")
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	return &RabbitMQ{
		conn:      conn,
		publishCh: ch,
		declared:  make(map[string]bool),
		cfg:       cfg,
		logger:    logger.With().Str("component", "rabbitmq").Logger(),
	}, nil
}

// EnsureExchange declares an exchange once per process.
func (r *RabbitMQ) EnsureExchange(exchange, kind string, durable bool) error {
	r.publishMutex.Lock()
	defer r.publishMutex.Unlock()
	key := "ex:" + exchange
	if r.declared[key] {
		return nil
	}
	if err := r.publishCh.ExchangeDeclare(exchange, kind, durable, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	r.declared[key] = true
	return nil
}

// EnsureQueue declares a queue once per process.
func (r *RabbitMQ) EnsureQueue(queue string, durable bool) error {
	r.publishMutex.Lock()
	defer r.publishMutex.Unlock()
	key := "q:" + queue
	if r.declared[key] {
		return nil
	}
	if _, err := r.publishCh.QueueDeclare(queue, durable, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	r.declared[key] = true
	return nil
}

// BindQueue binds a queue to an exchange.
func (r *RabbitMQ) BindQueue(queue, exchange, routingKey string) error {
	r.publishMutex.Lock()
	defer r.publishMutex.Unlock()
	key := fmt.Sprintf("bind:%s:%s:%s", exchange, queue, routingKey)
	if r.declared[key] {
		return nil
	}
	if err := r.publishCh.QueueBind(queue, routingKey, exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s to %s: %w", queue, exchange, err)
	}
	r.declared[key] = true
	return nil
}

// PublishJSON publishes a JSON message.
func (r *RabbitMQ) PublishJSON(ctx context.Context, exchange, routingKey string, data interface{}, persistent bool) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	deliveryMode := amqp.Transient
	if persistent {
		deliveryMode = amqp.Persistent
	}
	r.publishMutex.Lock()
	defer r.publishMutex.Unlock()
	err = r.publishCh.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: deliveryMode,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
	}
	return nil
}

// Consume starts worker goroutines draining the queue. Each delivery is
// acked on handler success and nacked without requeue on failure; run-level
// failures are recorded in the run row, not retried by the broker.
func (r *RabbitMQ) Consume(ctx context.Context, queue string, prefetch, workers int, handler func(ctx context.Context, body []byte) error) error {
	if workers < 1 {
		workers = 1
	}
	ch, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("open consume channel: %w", err)
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		return fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return fmt.Errorf("consume %s: %w", queue, err)
	}

	for i := 0; i < workers; i++ {
		go func(worker int) {
			for {
				select {
				case <-ctx.Done():
					return
				case d, ok := <-deliveries:
					if !ok {
						return
					}
					if err := handler(ctx, d.Body); err != nil {
						r.logger.Error().Err(err).Int("worker", worker).Msg("message handler failed")
						_ = d.Nack(false, false)
						continue
					}
					_ = d.Ack(false)
				}
			}
		}(i)
	}

	go func() {
		<-ctx.Done()
		ch.Close()
	}()
	return nil
}

// Close closes the publish channel and the connection.
func (r *RabbitMQ) Close() error {
	r.publishMutex.Lock()
	defer r.publishMutex.Unlock()
	if r.publishCh != nil {
		_ = r.publishCh.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
