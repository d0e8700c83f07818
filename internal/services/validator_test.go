package services

import (
	"errors"
	"testing"
	"time"

	"github.com/dobeutech/dobeunet/internal/models"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func newTestValidator() *Validator {
	return NewValidator(func() time.Time { return fixedNow })
}

func fieldsOf(t *testing.T, err error) map[string]string {
	t.Helper()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
	out := make(map[string]string, len(verr.Fields))
	for _, f := range verr.Fields {
		out[f.Field] = f.Message
	}
	return out
}

func validContact() *models.ContactForm {
	return &models.ContactForm{
		Name:    "John Doe",
		Email:   "john@example.com",
		Subject: "Test Subject",
		Message: "This is a test message with enough characters.",
	}
}

func TestContactForm(t *testing.T) {
	v := newTestValidator()
	require.NoError(t, v.Struct(validContact()))

	noSubject := validContact()
	noSubject.Subject = ""
	require.NoError(t, v.Struct(noSubject))

	cases := map[string]func(*models.ContactForm){
		"name":    func(f *models.ContactForm) { f.Name = "J" },
		"email":   func(f *models.ContactForm) { f.Email = "invalid-email" },
		"message": func(f *models.ContactForm) { f.Message = "Short" },
		"subject": func(f *models.ContactForm) { f.Subject = "Hi" },
	}
	for field, mutate := range cases {
		t.Run(field, func(t *testing.T) {
			form := validContact()
			mutate(form)
			fields := fieldsOf(t, v.Struct(form))
			require.Contains(t, fields, field)
		})
	}
}

func TestContactForm_NameCharacters(t *testing.T) {
	v := newTestValidator()
	form := validContact()
	form.Name = "R2-D2"
	fields := fieldsOf(t, v.Struct(form))
	require.Equal(t, "Name can only contain letters, spaces, hyphens, and apostrophes", fields["name"])

	form.Name = "Mary O'Neil-Smith"
	require.NoError(t, v.Struct(form))
}

func validBooking() *models.BookingForm {
	return &models.BookingForm{
		Name:             "Jane Roe",
		Email:            "jane@example.com",
		ConsultationType: "it_consulting",
		PreferredDate:    fixedNow.Add(48 * time.Hour),
		PreferredTime:    "9:30",
	}
}

func TestBookingForm(t *testing.T) {
	v := newTestValidator()
	require.NoError(t, v.Struct(validBooking()))

	past := validBooking()
	past.PreferredDate = fixedNow.Add(-time.Hour)
	require.Equal(t, "Date must be in the future", fieldsOf(t, v.Struct(past))["preferred_date"])

	missing := validBooking()
	missing.PreferredDate = time.Time{}
	require.Equal(t, "Please select a preferred date", fieldsOf(t, v.Struct(missing))["preferred_date"])

	badType := validBooking()
	badType.ConsultationType = "astrology"
	require.Contains(t, fieldsOf(t, v.Struct(badType)), "consultation_type")

	for _, tm := range []string{"24:00", "12:60", "noon", "1230"} {
		bad := validBooking()
		bad.PreferredTime = tm
		require.Equal(t, "Please enter a valid time", fieldsOf(t, v.Struct(bad))["preferred_time"], tm)
	}
	for _, tm := range []string{"00:00", "23:59", "07:05"} {
		ok := validBooking()
		ok.PreferredTime = tm
		require.NoError(t, v.Struct(ok), tm)
	}

	shortMsg := validBooking()
	shortMsg.Message = "too short"
	require.Equal(t, "Message must be at least 10 characters", fieldsOf(t, v.Struct(shortMsg))["message"])
}

func TestValidateEnvelope(t *testing.T) {
	v := newTestValidator()

	env := &models.InquiryEnvelope{Kind: models.KindNewsletter, Newsletter: &models.NewsletterForm{Email: "subscriber@example.com"}}
	require.NoError(t, v.ValidateEnvelope(env))

	env = &models.InquiryEnvelope{Kind: models.KindNewsletter, Newsletter: &models.NewsletterForm{Email: "not-valid"}}
	require.Contains(t, fieldsOf(t, v.ValidateEnvelope(env)), "email")

	chat := &models.InquiryEnvelope{Kind: models.KindPremiumChat, PremiumChat: &models.PremiumChatForm{
		Subject: "Billing",
		Message: "Please call me back about the invoice.",
	}}
	require.NoError(t, v.ValidateEnvelope(chat))
	require.Equal(t, "medium", chat.PremiumChat.Priority)

	chat.PremiumChat.Priority = "urgent"
	require.Contains(t, fieldsOf(t, v.ValidateEnvelope(chat)), "priority")

	require.Contains(t, fieldsOf(t, v.ValidateEnvelope(&models.InquiryEnvelope{Kind: "spam"})), "kind")
	require.Contains(t, fieldsOf(t, v.ValidateEnvelope(&models.InquiryEnvelope{Kind: models.KindBooking})), "booking")
}

func TestValidateEnvelope_StripsMarkup(t *testing.T) {
	v := newTestValidator()
	env := &models.InquiryEnvelope{
		Kind: models.KindContact,
		Contact: &models.ContactForm{
			Name:    "  Jane O'Neil ",
			Email:   "jane@example.com",
			Message: `<script>alert(1)</script><b>Please</b> call me back & soon`,
		},
	}

	require.NoError(t, v.ValidateEnvelope(env))
	require.Equal(t, "Jane O'Neil", env.Contact.Name)
	require.Equal(t, "Please call me back & soon", env.Contact.Message)
}

func TestValidateEnvelope_MarkupDoesNotCountTowardsLength(t *testing.T) {
	v := newTestValidator()
	env := &models.InquiryEnvelope{
		Kind: models.KindPremiumChat,
		PremiumChat: &models.PremiumChatForm{
			Subject: "<em>Hi</em>",
			Message: "Enough characters here.",
		},
	}

	fields := fieldsOf(t, v.ValidateEnvelope(env))
	require.Contains(t, fields, "subject")
}
