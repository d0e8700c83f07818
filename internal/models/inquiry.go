package models

import "time"

// InquiryKind names the intake form an inquiry came from.
type InquiryKind string

const (
	KindContact     InquiryKind = "contact"
	KindBooking     InquiryKind = "booking"
	KindNewsletter  InquiryKind = "newsletter"
	KindPremiumChat InquiryKind = "premium_chat"
)

const (
	// StatusReceived marks an inquiry accepted by the API and queued.
	StatusReceived = "received"
	// StatusStored marks an inquiry persisted by the consumer.
	StatusStored = "stored"
	// StatusFailed marks an inquiry the consumer gave up on.
	StatusFailed = "failed"
)

// InquiryEnvelope is published by the intake API and consumed by the inquiry
// consumer. Exactly one form pointer is set, matching Kind.
type InquiryEnvelope struct {
	RequestID   string           `json:"request_id"`
	DeviceID    string           `json:"device_id,omitempty"`
	Kind        InquiryKind      `json:"kind"`
	CreatedAt   time.Time        `json:"created_at"`
	Contact     *ContactForm     `json:"contact,omitempty"`
	Booking     *BookingForm     `json:"booking,omitempty"`
	Newsletter  *NewsletterForm  `json:"newsletter,omitempty"`
	PremiumChat *PremiumChatForm `json:"premium_chat,omitempty"`
}

// Sender returns the name and email the inquiry came from, when known.
func (e *InquiryEnvelope) Sender() (name, email string) {
	switch {
	case e.Contact != nil:
		return e.Contact.Name, e.Contact.Email
	case e.Booking != nil:
		return e.Booking.Name, e.Booking.Email
	case e.Newsletter != nil:
		return "", e.Newsletter.Email
	default:
		return "", ""
	}
}

type ContactForm struct {
	Name    string `json:"name" validate:"required,min=2,max=100,personname"`
	Email   string `json:"email" validate:"required,email,max=255"`
	Subject string `json:"subject,omitempty" validate:"omitempty,min=3,max=200"`
	Message string `json:"message" validate:"required,min=10,max=2000"`
}

// ConsultationTypes lists the accepted booking consultation types.
var ConsultationTypes = []string{"supply_chain", "it_consulting", "marketing", "networking", "quick_qa"}

type BookingForm struct {
	Name             string    `json:"name" validate:"required,min=2,max=100"`
	Email            string    `json:"email" validate:"required,email,max=255"`
	ConsultationType string    `json:"consultation_type" validate:"required,oneof=supply_chain it_consulting marketing networking quick_qa"`
	PreferredDate    time.Time `json:"preferred_date" validate:"required,future"`
	PreferredTime    string    `json:"preferred_time" validate:"required,clock"`
	Message          string    `json:"message,omitempty" validate:"omitempty,min=10,max=1000"`
}

type NewsletterForm struct {
	Email string `json:"email" validate:"required,email"`
}

type PremiumChatForm struct {
	Subject  string `json:"subject" validate:"required,min=3,max=200"`
	Message  string `json:"message" validate:"required,min=10,max=1000"`
	Priority string `json:"priority" validate:"oneof=low medium high"`
}
