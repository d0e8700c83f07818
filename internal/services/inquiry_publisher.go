package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"github.com/dobeutech/dobeunet/internal/models"
)

const (
	// InquiryExchange is the direct exchange inquiries are published to.
	InquiryExchange = "site.direct"
	// InquiryRoutingKey binds the inquiry queue to InquiryExchange.
	InquiryRoutingKey = "inquiry"
)

// Channel is the part of *amqp.Channel the publisher uses.
type Channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// InquiryPublisher hands validated inquiries to the queue. An amqp channel is
// not safe for concurrent publishing, so calls are serialised.
type InquiryPublisher struct {
	mu sync.Mutex
	ch Channel
}

func NewInquiryPublisher(ch Channel) *InquiryPublisher {
	return &InquiryPublisher{ch: ch}
}

func (p *InquiryPublisher) Publish(ctx context.Context, env *models.InquiryEnvelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode inquiry: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.Publish(InquiryExchange, InquiryRoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    env.RequestID,
		Timestamp:    time.Now().UTC(),
		Type:         string(env.Kind),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish inquiry %s: %w", env.RequestID, err)
	}
	return nil
}
