package routes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dobeutech/dobeunet/internal/bridge"
	"github.com/dobeutech/dobeunet/internal/models"
	"github.com/dobeutech/dobeunet/internal/services"
	"github.com/dobeutech/dobeunet/pkg/metrics"
)

const maxFormBytes = 64 << 10

// Publisher queues validated inquiries.
type Publisher interface {
	Publish(ctx context.Context, env *models.InquiryEnvelope) error
}

type intakeAPI struct {
	publisher Publisher
	validator *services.Validator
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

func (a *intakeAPI) routes(r chi.Router) {
	r.Post("/contact", a.handle(models.KindContact))
	r.Post("/booking", a.handle(models.KindBooking))
	r.Post("/newsletter", a.handle(models.KindNewsletter))
	r.Post("/premium-chat", a.handle(models.KindPremiumChat))
}

func (a *intakeAPI) handle(kind models.InquiryKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		env := &models.InquiryEnvelope{
			RequestID: uuid.NewString(),
			Kind:      kind,
			CreatedAt: a.now().UTC(),
		}
		if c, err := r.Cookie(bridge.DeviceCookie); err == nil {
			env.DeviceID = c.Value
		}

		if err := decodeForm(io.LimitReader(r.Body, maxFormBytes), env); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"success": false,
				"message": "malformed request body",
			})
			return
		}

		if err := a.validator.ValidateEnvelope(env); err != nil {
			var verr *services.ValidationError
			if errors.As(err, &verr) {
				writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
					"success": false,
					"message": "validation failed",
					"errors":  verr.Fields,
				})
				return
			}
			a.logger.Error("validator failure", slog.String("kind", string(kind)), slog.Any("error", err))
			writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
				"success": false,
				"message": "Something went wrong",
			})
			return
		}

		if err := a.publisher.Publish(r.Context(), env); err != nil {
			a.logger.Error("failed to queue inquiry",
				slog.String("request_id", env.RequestID),
				slog.String("kind", string(kind)),
				slog.Any("error", err),
			)
			writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"success": false,
				"message": "inquiry could not be queued, please try again",
			})
			return
		}

		a.metrics.IncAccepted(string(kind))
		a.logger.Info("inquiry accepted",
			slog.String("request_id", env.RequestID),
			slog.String("kind", string(kind)),
		)
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"success": true,
			"message": "inquiry accepted",
			"data": map[string]string{
				"request_id": env.RequestID,
				"status":     models.StatusReceived,
			},
		})
	}
}

// decodeForm reads the form for env.Kind from body.
func decodeForm(body io.Reader, env *models.InquiryEnvelope) error {
	switch env.Kind {
	case models.KindContact:
		return decodeInto(body, &env.Contact)
	case models.KindBooking:
		return decodeInto(body, &env.Booking)
	case models.KindNewsletter:
		return decodeInto(body, &env.Newsletter)
	case models.KindPremiumChat:
		return decodeInto(body, &env.PremiumChat)
	default:
		return fmt.Errorf("unknown inquiry kind %q", env.Kind)
	}
}

func decodeInto[T any](body io.Reader, dst **T) error {
	form := new(T)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(form); err != nil {
		return err
	}
	*dst = form
	return nil
}
