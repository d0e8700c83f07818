package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/require"

	"github.com/dobeutech/dobeunet/internal/models"
	"github.com/dobeutech/dobeunet/internal/repository"
	"github.com/dobeutech/dobeunet/pkg/metrics"
	"github.com/dobeutech/dobeunet/pkg/retry"
)

type fakeStore struct {
	mu       sync.Mutex
	failures int
	err      error
	saved    []repository.InquiryRecord
	calls    int
}

func (s *fakeStore) Save(_ context.Context, rec *repository.InquiryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		if s.err != nil {
			return s.err
		}
		return errors.New("connection reset")
	}
	s.saved = append(s.saved, *rec)
	return nil
}

func newTestProcessor(store *fakeStore) (*InquiryProcessor, *metrics.Metrics) {
	logr := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()
	cfg := retry.Config{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
	return NewInquiryProcessor(store, NewStatusUpdater(store, logr), m, logr, cfg), m
}

func contactEnvelope() *models.InquiryEnvelope {
	return &models.InquiryEnvelope{
		RequestID: "req-1",
		Kind:      models.KindContact,
		CreatedAt: fixedNow,
		Contact:   validContact(),
	}
}

func TestProcess_Stores(t *testing.T) {
	store := &fakeStore{}
	p, m := newTestProcessor(store)

	require.NoError(t, p.Process(context.Background(), contactEnvelope()))
	require.Len(t, store.saved, 1)

	rec := store.saved[0]
	require.Equal(t, "req-1", rec.RequestID)
	require.Equal(t, models.StatusStored, rec.Status)
	require.Equal(t, "John Doe", rec.Name)
	require.Equal(t, "contact from John Doe <john@example.com>: Test Subject", rec.Summary)

	var decoded models.InquiryEnvelope
	require.NoError(t, json.Unmarshal([]byte(rec.Payload), &decoded))
	require.Equal(t, "john@example.com", decoded.Contact.Email)
	require.Equal(t, 1.0, counterValue(t, m, "dobeunet_inquiry_persisted_total"))
}

func counterValue(t *testing.T, m *metrics.Metrics, name string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	return 0
}

func TestProcess_RetriesStore(t *testing.T) {
	store := &fakeStore{failures: 2}
	p, m := newTestProcessor(store)

	require.NoError(t, p.Process(context.Background(), contactEnvelope()))
	require.Equal(t, 3, store.calls)
	require.Len(t, store.saved, 1)
	require.Equal(t, 2.0, counterValue(t, m, "dobeunet_inquiry_retried_total"))
}

func TestProcess_GivesUp(t *testing.T) {
	store := &fakeStore{failures: 10}
	p, _ := newTestProcessor(store)

	err := p.Process(context.Background(), contactEnvelope())
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrRejected)
	require.Equal(t, 3, store.calls)
}

func TestProcess_InvalidRecordNotRetried(t *testing.T) {
	store := &fakeStore{failures: 10, err: fmt.Errorf("%w: bad column", repository.ErrInvalidRecord)}
	p, m := newTestProcessor(store)

	err := p.Process(context.Background(), contactEnvelope())
	require.ErrorIs(t, err, ErrRejected)
	require.Equal(t, 1, store.calls)
	require.Zero(t, counterValue(t, m, "dobeunet_inquiry_retried_total"))
}

func TestProcess_RejectsEnvelopeWithoutForm(t *testing.T) {
	store := &fakeStore{}
	p, _ := newTestProcessor(store)

	env := &models.InquiryEnvelope{RequestID: "req-2", Kind: models.KindBooking}
	err := p.Process(context.Background(), env)
	require.ErrorIs(t, err, ErrRejected)
	require.Len(t, store.saved, 1)
	require.Equal(t, models.StatusFailed, store.saved[0].Status)

	err = p.Process(context.Background(), &models.InquiryEnvelope{Kind: models.KindContact, Contact: validContact()})
	require.ErrorIs(t, err, ErrRejected)
	require.Len(t, store.saved, 1, "no row without a request id")
}

func TestRenderSummary(t *testing.T) {
	require.Equal(t, "hi {{ who }}", RenderSummary("hi {{ who }}", map[string]string{"x": "y"}))
	require.Equal(t, "hi bob", RenderSummary("hi {{ who }}", map[string]string{"who": "bob"}))
	require.Equal(t, "", RenderSummary("", map[string]string{"who": "bob"}))

	booking := &models.InquiryEnvelope{Kind: models.KindBooking, Booking: validBooking()}
	require.Equal(t,
		"booking from Jane Roe <jane@example.com> (it_consulting on 2026-10-21 at 9:30)",
		RenderSummary(DefaultSummaryTemplate, SummaryVars(booking)))

	news := &models.InquiryEnvelope{Kind: models.KindNewsletter, Newsletter: &models.NewsletterForm{Email: "a@b.co"}}
	require.Equal(t, "newsletter from a@b.co", RenderSummary(DefaultSummaryTemplate, SummaryVars(news)))
}

type fakeChannel struct {
	published []amqp.Publishing
	keys      []string
	err       error
}

func (c *fakeChannel) Publish(exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if c.err != nil {
		return c.err
	}
	c.keys = append(c.keys, exchange+"/"+key)
	c.published = append(c.published, msg)
	return nil
}

func TestInquiryPublisher(t *testing.T) {
	ch := &fakeChannel{}
	pub := NewInquiryPublisher(ch)

	require.NoError(t, pub.Publish(context.Background(), contactEnvelope()))
	require.Equal(t, []string{"site.direct/inquiry"}, ch.keys)
	msg := ch.published[0]
	require.Equal(t, "req-1", msg.MessageId)
	require.Equal(t, uint8(amqp.Persistent), msg.DeliveryMode)
	require.Equal(t, "contact", msg.Type)

	ch.err = errors.New("channel closed")
	require.ErrorContains(t, pub.Publish(context.Background(), contactEnvelope()), "channel closed")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, pub.Publish(ctx, contactEnvelope()), context.Canceled)
}
