package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/dobeutech/dobeunet/internal/models"
	"github.com/dobeutech/dobeunet/internal/services"
)

// Processor handles one decoded inquiry.
type Processor interface {
	Process(ctx context.Context, env *models.InquiryEnvelope) error
}

// Republisher puts a failed delivery back on its exchange. An amqp channel
// satisfies it.
type Republisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// RetryCountHeader carries how many times an inquiry has failed processing.
// The broker does not count plain requeues, so the consumer republishes
// failed deliveries with this header incremented.
const RetryCountHeader = "x-retry-count"

type InquiryConsumer struct {
	base          *BaseConsumer
	processor     Processor
	republisher   Republisher
	logger        *slog.Logger
	maxDeliveries int
}

func NewInquiryConsumer(base *BaseConsumer, processor Processor, republisher Republisher, logger *slog.Logger, maxDeliveries int) *InquiryConsumer {
	if maxDeliveries <= 0 {
		maxDeliveries = 5
	}
	return &InquiryConsumer{
		base:          base,
		processor:     processor,
		republisher:   republisher,
		logger:        logger,
		maxDeliveries: maxDeliveries,
	}
}

func (p *InquiryConsumer) Start(ctx context.Context) error {
	return p.base.Start(ctx, p.handleDelivery)
}

func (p *InquiryConsumer) handleDelivery(ctx context.Context, msg amqp.Delivery) error {
	var envelope models.InquiryEnvelope
	if err := json.Unmarshal(msg.Body, &envelope); err != nil {
		p.logger.Error("failed to unmarshal inquiry", slog.Any("error", err))
		_ = msg.Reject(false)
		return err
	}

	if err := p.processor.Process(ctx, &envelope); err != nil {
		if errors.Is(err, services.ErrRejected) {
			p.logger.Error("inquiry rejected, message dead-lettered", slog.String("request_id", envelope.RequestID), slog.Any("error", err))
			_ = msg.Reject(false)
			return err
		}
		p.retryOrDeadLetter(&msg, envelope.RequestID, err)
		return err
	}

	return msg.Ack(false)
}

// retryOrDeadLetter republishes msg with its failure count bumped, or
// dead-letters it once maxDeliveries processing attempts have failed.
func (p *InquiryConsumer) retryOrDeadLetter(msg *amqp.Delivery, requestID string, cause error) {
	failures := failedAttempts(msg) + 1
	if failures >= p.maxDeliveries {
		p.logger.Error("processing failed, message dead-lettered",
			slog.String("request_id", requestID),
			slog.Int("attempts", failures),
			slog.Any("error", cause),
		)
		_ = msg.Nack(false, false)
		return
	}

	if err := p.republisher.Publish(msg.Exchange, msg.RoutingKey, false, false, retryPublishing(msg, failures)); err != nil {
		p.logger.Error("failed to republish inquiry, message dead-lettered",
			slog.String("request_id", requestID),
			slog.Any("error", err),
		)
		_ = msg.Nack(false, false)
		return
	}
	p.logger.Warn("processing failed, message republished",
		slog.String("request_id", requestID),
		slog.Int("attempts", failures),
		slog.Any("error", cause),
	)
	_ = msg.Ack(false)
}

func retryPublishing(msg *amqp.Delivery, failures int) amqp.Publishing {
	headers := amqp.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[RetryCountHeader] = int32(failures)

	return amqp.Publishing{
		Headers:      headers,
		ContentType:  msg.ContentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.MessageId,
		Timestamp:    msg.Timestamp,
		Body:         msg.Body,
	}
}

// failedAttempts reads the failure count carried by msg.
func failedAttempts(msg *amqp.Delivery) int {
	switch n := msg.Headers[RetryCountHeader].(type) {
	case int32:
		return int(n)
	case int64:
		return int(n)
	case int16:
		return int(n)
	case int:
		return n
	}
	return 0
}
