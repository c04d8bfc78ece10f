package utils

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// DateLayout is the only date format accepted on query parameters.
const DateLayout = "2006-01-02"

const maxInputRunes = 200

// FieldError is one failed check on a named input.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return e.Field + " " + e.Message
}

// Validator collects at most one error per field, in the order checked.
// Optional checks skip empty values; pair them with ValidateRequired.
type Validator struct {
	errs []FieldError
}

func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) HasErrors() bool {
	return len(v.errs) > 0
}

func (v *Validator) Errors() []FieldError {
	return v.errs
}

// ErrorString joins every error with "; ".
func (v *Validator) ErrorString() string {
	parts := make([]string, len(v.errs))
	for i, e := range v.errs {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "; ")
}

func (v *Validator) check(field string, ok bool, format string, args ...interface{}) *Validator {
	if ok {
		return v
	}
	for _, e := range v.errs {
		if e.Field == field {
			return v
		}
	}
	v.errs = append(v.errs, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	return v
}

func (v *Validator) ValidateRequired(value, field string) *Validator {
	return v.check(field, strings.TrimSpace(value) != "", "is required")
}

// ValidateDigits checks that value is exactly n ASCII digits.
func (v *Validator) ValidateDigits(value, field string, n int) *Validator {
	return v.check(field, value == "" || (len(value) == n && DigitsOnly(value) == value), "must be %d digits", n)
}

// ValidatePhone accepts anything carrying between 5 and 20 digits once
// separators and a leading plus are removed.
func (v *Validator) ValidatePhone(value, field string) *Validator {
	n := len(DigitsOnly(value))
	return v.check(field, value == "" || (n >= 5 && n <= 20), "must be a valid phone number")
}

func (v *Validator) ValidateDate(value, field string) *Validator {
	ok := value == ""
	if !ok {
		_, err := time.Parse(DateLayout, value)
		ok = err == nil
	}
	return v.check(field, ok, "must be a date in YYYY-MM-DD format")
}

// ValidateSafeText rejects control characters.
func (v *Validator) ValidateSafeText(value, field string) *Validator {
	return v.check(field, strings.IndexFunc(value, unicode.IsControl) < 0, "contains invalid characters")
}

// DigitsOnly strips everything except ASCII digits.
func DigitsOnly(value string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, value)
}

// SanitizeInput trims, drops control characters and caps the length of a
// free-text query parameter.
func SanitizeInput(input string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(input))

	if utf8.RuneCountInString(cleaned) > maxInputRunes {
		cleaned = string([]rune(cleaned)[:maxInputRunes])
	}
	return cleaned
}
