package services

import (
	"regexp"
	"strings"

	"github.com/dobeutech/dobeunet/internal/models"
)

var placeholderRegex = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// DefaultSummaryTemplate renders the one-line summary stored with each inquiry.
const DefaultSummaryTemplate = "{{kind}} from {{sender}}{{detail}}"

// RenderSummary replaces {{key}} placeholders with values from vars. Unknown
// placeholders are left untouched.
func RenderSummary(template string, vars map[string]string) string {
	if template == "" || len(vars) == 0 {
		return template
	}
	return placeholderRegex.ReplaceAllStringFunc(template, func(match string) string {
		key := placeholderRegex.FindStringSubmatch(match)[1]
		if value, ok := vars[key]; ok {
			return value
		}
		return match
	})
}

// SummaryVars extracts the placeholder values for an inquiry.
func SummaryVars(env *models.InquiryEnvelope) map[string]string {
	name, email := env.Sender()
	sender := strings.TrimSpace(name)
	switch {
	case sender != "" && email != "":
		sender += " <" + email + ">"
	case sender == "" && email != "":
		sender = email
	case sender == "":
		sender = "anonymous"
	}

	detail := ""
	switch {
	case env.Contact != nil && env.Contact.Subject != "":
		detail = ": " + env.Contact.Subject
	case env.Booking != nil:
		detail = " (" + env.Booking.ConsultationType + " on " +
			env.Booking.PreferredDate.Format("2006-01-02") + " at " + env.Booking.PreferredTime + ")"
	case env.PremiumChat != nil:
		detail = " [" + env.PremiumChat.Priority + "]: " + env.PremiumChat.Subject
	}

	return map[string]string{
		"kind":       string(env.Kind),
		"sender":     sender,
		"detail":     detail,
		"request_id": env.RequestID,
	}
}
