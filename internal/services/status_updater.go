package services

import (
	"context"
	"log/slog"

	"github.com/dobeutech/dobeunet/internal/models"
	"github.com/dobeutech/dobeunet/internal/repository"
)

// InquiryWriter is the subset of the inquiry store the processor needs.
type InquiryWriter interface {
	Save(ctx context.Context, rec *repository.InquiryRecord) error
}

// StatusUpdater records terminal inquiry states that are not a successful
// store. Failures are logged, not returned, so bookkeeping never blocks
// delivery handling.
type StatusUpdater struct {
	store  InquiryWriter
	logger *slog.Logger
}

func NewStatusUpdater(store InquiryWriter, logger *slog.Logger) *StatusUpdater {
	return &StatusUpdater{
		store:  store,
		logger: logger,
	}
}

// MarkFailed keeps a row for an inquiry that will never be stored normally,
// so it stays visible to whoever reviews the inbox.
func (s *StatusUpdater) MarkFailed(ctx context.Context, rec *repository.InquiryRecord, detail string) {
	rec.Status = models.StatusFailed
	rec.Detail = detail
	if err := s.store.Save(ctx, rec); err != nil {
		s.logger.Error("failed to record failed inquiry", slog.String("request_id", rec.RequestID), slog.Any("error", err))
	}
}
