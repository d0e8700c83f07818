package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/streadway/amqp"
)

// BaseConsumer wires RabbitMQ connectivity, topology declaration and a worker
// pool draining one queue.
type BaseConsumer struct {
	conn         *amqp.Connection
	queue        string
	dlq          string
	prefetch     int
	workerCount  int
	logger       *slog.Logger
	exchangeName string
	routingKey   string
}

// Handler processes one delivery. It owns acknowledging the delivery.
type Handler func(context.Context, amqp.Delivery) error

func NewBaseConsumer(conn *amqp.Connection, exchange, routingKey, queue, dlq string, prefetch, workerCount int, logger *slog.Logger) *BaseConsumer {
	if prefetch <= 0 {
		prefetch = 20
	}
	if workerCount <= 0 {
		workerCount = 2
	}
	return &BaseConsumer{
		conn:         conn,
		queue:        queue,
		dlq:          dlq,
		prefetch:     prefetch,
		workerCount:  workerCount,
		logger:       logger,
		exchangeName: exchange,
		routingKey:   routingKey,
	}
}

// Start consumes until ctx is cancelled or the delivery channel closes.
func (c *BaseConsumer) Start(ctx context.Context, handler Handler) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := DeclareTopology(ch, c.exchangeName, c.routingKey, c.queue, c.dlq); err != nil {
		return fmt.Errorf("queue setup failed: %w", err)
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("qos configuration failed: %w", err)
	}

	deliveries, err := ch.Consume(
		c.queue,
		"",
		false, // autoAck
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	c.logger.Info("consumer started", slog.String("queue", c.queue), slog.Int("workers", c.workerCount))
	runWorkers(ctx, c.workerCount, deliveries, handler, c.logger)
	return nil
}

// runWorkers drains deliveries with n workers until ctx is done or the
// channel closes.
func runWorkers(ctx context.Context, n int, deliveries <-chan amqp.Delivery, handler Handler, logger *slog.Logger) {
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-deliveries:
					if !ok {
						return
					}
					if err := handler(ctx, msg); err != nil {
						logger.Error("handler returned error", slog.Int("worker", id), slog.Any("error", err))
					}
				}
			}
		}(i)
	}
	wg.Wait()
}

// DeclareTopology declares the direct exchange, the work queue bound to it
// and, when dlq is set, the dead-letter queue. Publisher and consumer both
// call it so either can start first.
func DeclareTopology(ch *amqp.Channel, exchange, routingKey, queue, dlq string) error {
	args := amqp.Table{}
	if dlq != "" {
		args["x-dead-letter-exchange"] = ""
		args["x-dead-letter-routing-key"] = dlq
	}

	if err := ch.ExchangeDeclare(
		exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(
		queue,
		true,
		false,
		false,
		false,
		args,
	); err != nil {
		return err
	}

	if err := ch.QueueBind(
		queue,
		routingKey,
		exchange,
		false,
		nil,
	); err != nil {
		return err
	}

	if dlq != "" {
		if _, err := ch.QueueDeclare(
			dlq,
			true,
			false,
			false,
			false,
			nil,
		); err != nil {
			return err
		}
	}
	return nil
}
