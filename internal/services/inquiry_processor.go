package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dobeutech/dobeunet/internal/models"
	"github.com/dobeutech/dobeunet/internal/repository"
	"github.com/dobeutech/dobeunet/pkg/metrics"
	"github.com/dobeutech/dobeunet/pkg/retry"
)

// ErrRejected marks an envelope that can never be processed. Consumers must
// not requeue it.
var ErrRejected = errors.New("inquiry rejected")

type InquiryProcessor struct {
	store    InquiryWriter
	status   *StatusUpdater
	metrics  *metrics.Metrics
	logger   *slog.Logger
	retryCfg retry.Config
	template string
}

func NewInquiryProcessor(
	store InquiryWriter,
	status *StatusUpdater,
	metrics *metrics.Metrics,
	logger *slog.Logger,
	retryCfg retry.Config,
) *InquiryProcessor {
	retryCfg.OnRetry = func(attempt int, err error) {
		metrics.IncRetried()
		logger.Warn("inquiry store failed, retrying", slog.Int("attempt", attempt), slog.Any("error", err))
	}
	return &InquiryProcessor{
		store:    store,
		status:   status,
		metrics:  metrics,
		logger:   logger,
		retryCfg: retryCfg,
		template: DefaultSummaryTemplate,
	}
}

// Process stores one queued inquiry. Store errors are retried with backoff;
// malformed envelopes are recorded as failed and reported as ErrRejected.
func (p *InquiryProcessor) Process(ctx context.Context, env *models.InquiryEnvelope) error {
	rec, err := p.record(env)
	if err != nil {
		p.metrics.IncFailed()
		if rec.RequestID != "" {
			p.status.MarkFailed(ctx, rec, err.Error())
		}
		return fmt.Errorf("%w: %v", ErrRejected, err)
	}

	err = retry.Do(ctx, p.retryCfg, func() error {
		err := p.store.Save(ctx, rec)
		if errors.Is(err, repository.ErrInvalidRecord) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		p.metrics.IncFailed()
		if errors.Is(err, repository.ErrInvalidRecord) {
			return fmt.Errorf("%w: %v", ErrRejected, err)
		}
		return fmt.Errorf("store inquiry %s: %w", env.RequestID, err)
	}

	p.metrics.IncPersisted()
	p.logger.Info("inquiry stored",
		slog.String("request_id", env.RequestID),
		slog.String("kind", string(env.Kind)),
	)
	return nil
}

func (p *InquiryProcessor) record(env *models.InquiryEnvelope) (*repository.InquiryRecord, error) {
	name, email := env.Sender()
	created := env.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	rec := &repository.InquiryRecord{
		RequestID: env.RequestID,
		Kind:      string(env.Kind),
		DeviceID:  env.DeviceID,
		Name:      name,
		Email:     email,
		Status:    models.StatusStored,
		CreatedAt: created,
	}

	if env.RequestID == "" {
		return rec, errors.New("missing request id")
	}
	if !hasForm(env) {
		return rec, fmt.Errorf("no %s form in envelope", env.Kind)
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return rec, fmt.Errorf("encode payload: %w", err)
	}
	rec.Payload = string(payload)
	rec.Summary = RenderSummary(p.template, SummaryVars(env))
	return rec, nil
}

func hasForm(env *models.InquiryEnvelope) bool {
	switch env.Kind {
	case models.KindContact:
		return env.Contact != nil
	case models.KindBooking:
		return env.Booking != nil
	case models.KindNewsletter:
		return env.Newsletter != nil
	case models.KindPremiumChat:
		return env.PremiumChat != nil
	default:
		return false
	}
}
