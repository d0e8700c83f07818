package services

import (
	"errors"
	"fmt"
	"html"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"

	"github.com/dobeutech/dobeunet/internal/models"
)

var (
	personNameRegex = regexp.MustCompile(`^[a-zA-Z\s'-]+$`)
	clockRegex      = regexp.MustCompile(`^([0-1]?[0-9]|2[0-3]):[0-5][0-9]$`)
)

// FieldError is a single rejected field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every rejected field of a form.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Validator checks intake forms.
type Validator struct {
	validate *validator.Validate
	strip    *bluemonday.Policy
	now      func() time.Time
}

func NewValidator(now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	v := &Validator{validate: validator.New(), strip: bluemonday.StrictPolicy(), now: now}

	v.validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	mustRegister(v.validate, "personname", func(fl validator.FieldLevel) bool {
		return personNameRegex.MatchString(fl.Field().String())
	})
	mustRegister(v.validate, "clock", func(fl validator.FieldLevel) bool {
		return clockRegex.MatchString(fl.Field().String())
	})
	mustRegister(v.validate, "future", func(fl validator.FieldLevel) bool {
		t, ok := fl.Field().Interface().(time.Time)
		return ok && t.After(v.now())
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %s validation: %v", tag, err))
	}
}

// ValidateEnvelope normalises and validates the form matching env.Kind.
// Markup is stripped from free text before length rules apply.
func (v *Validator) ValidateEnvelope(env *models.InquiryEnvelope) error {
	var form any
	switch env.Kind {
	case models.KindContact:
		if f := env.Contact; f != nil {
			v.clean(&f.Name, &f.Email, &f.Subject, &f.Message)
			form = f
		}
	case models.KindBooking:
		if f := env.Booking; f != nil {
			v.clean(&f.Name, &f.Email, &f.PreferredTime, &f.Message)
			form = f
		}
	case models.KindNewsletter:
		if f := env.Newsletter; f != nil {
			v.clean(&f.Email)
			form = f
		}
	case models.KindPremiumChat:
		if f := env.PremiumChat; f != nil {
			v.clean(&f.Subject, &f.Message)
			if f.Priority == "" {
				f.Priority = "medium"
			}
			form = f
		}
	default:
		return &ValidationError{Fields: []FieldError{{Field: "kind", Message: fmt.Sprintf("unknown inquiry kind %q", env.Kind)}}}
	}
	if form == nil {
		return &ValidationError{Fields: []FieldError{{Field: string(env.Kind), Message: "form is missing"}}}
	}
	return v.Struct(form)
}

func (v *Validator) clean(fields ...*string) {
	for _, f := range fields {
		*f = strings.TrimSpace(html.UnescapeString(v.strip.Sanitize(*f)))
	}
}

// Struct validates a single form and converts failures into a ValidationError.
func (v *Validator) Struct(form any) error {
	err := v.validate.Struct(form)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Message: message(fe)})
	}
	sort.SliceStable(out.Fields, func(i, j int) bool { return out.Fields[i].Field < out.Fields[j].Field })
	return out
}

func message(fe validator.FieldError) string {
	label := humanize(fe.Field())
	switch fe.Tag() {
	case "required":
		switch fe.Field() {
		case "consultation_type":
			return "Please select a consultation type"
		case "preferred_date":
			return "Please select a preferred date"
		}
		return label + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", label, fe.Param())
	case "max":
		return fmt.Sprintf("%s must not exceed %s characters", label, fe.Param())
	case "email":
		return "Please enter a valid email address"
	case "personname":
		return "Name can only contain letters, spaces, hyphens, and apostrophes"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", label, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "future":
		return "Date must be in the future"
	case "clock":
		return "Please enter a valid time"
	default:
		return label + " is invalid"
	}
}

func humanize(field string) string {
	s := strings.ReplaceAll(field, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
