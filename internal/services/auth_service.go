package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"bitableTimesheet/internal/bitable"
	"bitableTimesheet/internal/logger"
	"bitableTimesheet/internal/models"
	"bitableTimesheet/internal/observability"
	"bitableTimesheet/internal/session"
	"bitableTimesheet/internal/sms"
	"bitableTimesheet/internal/utils"
)

// EmployeeFinder looks a person up by digits-only phone number.
type EmployeeFinder interface {
	FindByPhone(ctx context.Context, digits string) (*models.Employee, error)
}

// PhoneDirectory finds employees by scanning a phone column.
type PhoneDirectory struct {
	records     RecordLister
	table       bitable.TableRef
	phoneField  string
	nameField   string
	countryCode string
}

// NewPhoneDirectory creates a lookup over table.
func NewPhoneDirectory(records RecordLister, table bitable.TableRef, phoneField, nameField, countryCode string) *PhoneDirectory {
	return &PhoneDirectory{
		records:     records,
		table:       table,
		phoneField:  phoneField,
		nameField:   nameField,
		countryCode: countryCode,
	}
}

// FindByPhone returns nil, nil when no row carries the number. Numbers are
// compared digits-only, with a leading country code ignored on both sides.
func (d *PhoneDirectory) FindByPhone(ctx context.Context, digits string) (*models.Employee, error) {
	if !d.table.Configured() {
		return nil, errors.New("employee table is not configured")
	}

	records, err := d.records.ListRecords(ctx, d.table, bitable.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list employee records: %w", err)
	}

	want := d.national(digits)
	for _, rec := range records {
		stored := utils.DigitsOnly(rec.Cell(d.phoneField).String())
		if stored == "" || d.national(stored) != want {
			continue
		}
		name := bitable.Normalize(rec.Cell(d.nameField))
		if name == "" {
			continue
		}
		return &models.Employee{Name: name, Phone: stored}, nil
	}
	return nil, nil
}

func (d *PhoneDirectory) national(digits string) string {
	digits = strings.TrimPrefix(digits, "00")
	if d.countryCode != "" && len(digits) > 11 && strings.HasPrefix(digits, d.countryCode) {
		return digits[len(d.countryCode):]
	}
	return digits
}

// AuthConfig tunes the login flow.
type AuthConfig struct {
	// DebugMode returns codes in the response instead of sending them.
	DebugMode   bool
	CountryCode string
}

// CodeIssued is the result of a code request.
type CodeIssued struct {
	Message   string
	DebugCode string
}

// VerifiedSession is the result of a successful verification.
type VerifiedSession struct {
	Token      string
	PersonName string
	ExpiresAt  time.Time
}

// AuthService handles the phone login flow
type AuthService struct {
	employees EmployeeFinder
	codes     *session.CodeStore
	tokens    *session.Issuer
	sender    sms.Sender
	cfg       AuthConfig
	logger    *logger.Logger
}

// NewAuthService creates a new authentication service
func NewAuthService(employees EmployeeFinder, codes *session.CodeStore, tokens *session.Issuer, sender sms.Sender, cfg AuthConfig, log *logger.Logger) *AuthService {
	if log == nil {
		log = logger.Discard()
	}
	if sender == nil {
		sender = sms.LogSender{Logger: log}
	}
	return &AuthService{
		employees: employees,
		codes:     codes,
		tokens:    tokens,
		sender:    sender,
		cfg:       cfg,
		logger:    log,
	}
}

// RequestCode issues a login code for a registered phone number.
func (s *AuthService) RequestCode(ctx context.Context, phone string) (*CodeIssued, error) {
	phone = strings.TrimSpace(phone)
	v := utils.NewValidator().
		ValidateRequired(phone, "phone").
		ValidatePhone(phone, "phone")
	if v.HasErrors() {
		return nil, NewValidationError(v.ErrorString())
	}
	digits := utils.DigitsOnly(phone)

	employee, err := s.employees.FindByPhone(ctx, digits)
	if err != nil {
		return nil, NewInternalError("employee lookup failed", err)
	}
	if employee == nil {
		s.logger.WithField("phone", maskPhone(digits)).Info("Login code requested for unknown phone")
		return nil, NewValidationError("phone number is not registered")
	}

	pending, err := s.codes.Issue(digits, employee.Name)
	if err != nil {
		var cooldown *session.CooldownError
		if errors.As(err, &cooldown) {
			wait := int(math.Ceil(cooldown.Remaining.Seconds()))
			return nil, NewRateLimitError(fmt.Sprintf("please wait %d seconds before requesting another code", wait), cooldown.Remaining)
		}
		return nil, NewInternalError("code generation failed", err)
	}
	observability.RecordLoginCode("issued")

	if s.cfg.DebugMode {
		s.logger.WithFields(logger.Fields{
			"phone":  maskPhone(digits),
			"person": employee.Name,
		}).Debug("Login code issued in debug mode")
		return &CodeIssued{Message: "code generated", DebugCode: pending.Code}, nil
	}

	to := sms.ToInternational(digits, s.cfg.CountryCode)
	message := fmt.Sprintf("Your verification code is %s", pending.Code)
	if err := s.sender.Send(ctx, to, message); err != nil {
		return nil, NewInternalError("sms dispatch failed", err)
	}

	s.logger.WithFields(logger.Fields{
		"phone":  maskPhone(digits),
		"person": employee.Name,
	}).Info("Login code sent")
	return &CodeIssued{Message: "code sent"}, nil
}

// VerifyCode consumes a login code and returns a signed session token.
func (s *AuthService) VerifyCode(ctx context.Context, phone, code string) (*VerifiedSession, error) {
	phone = strings.TrimSpace(phone)
	code = strings.TrimSpace(code)
	v := utils.NewValidator().
		ValidateRequired(phone, "phone").
		ValidatePhone(phone, "phone").
		ValidateRequired(code, "code").
		ValidateDigits(code, "code", 6)
	if v.HasErrors() {
		return nil, NewValidationError(v.ErrorString())
	}
	digits := utils.DigitsOnly(phone)

	pending, err := s.codes.Verify(digits, code)
	if err != nil {
		observability.RecordLoginCode("rejected")
		if errors.Is(err, session.ErrInvalidCode) {
			return nil, NewValidationError("invalid or expired code")
		}
		return nil, NewInternalError("code verification failed", err)
	}

	token, sess, err := s.tokens.Issue(pending.PersonName)
	if err != nil {
		return nil, NewInternalError("session issue failed", err)
	}
	observability.RecordLoginCode("verified")

	s.logger.WithFields(logger.Fields{
		"phone":  maskPhone(digits),
		"person": pending.PersonName,
	}).Info("Login code verified")

	return &VerifiedSession{
		Token:      token,
		PersonName: sess.PersonName,
		ExpiresAt:  sess.ExpiresAt,
	}, nil
}

// ResolveSession returns the session carried by token, or nil when the token
// is empty, forged or expired.
func (s *AuthService) ResolveSession(token string) *models.Session {
	if strings.TrimSpace(token) == "" {
		return nil
	}
	sess, err := s.tokens.Verify(token)
	if err != nil {
		s.logger.WithError(err).Debug("Ignoring invalid session token")
		return nil
	}
	return sess
}

// SessionTTL reports how long issued session tokens last.
func (s *AuthService) SessionTTL() time.Duration {
	return s.tokens.TTL()
}

func maskPhone(digits string) string {
	if len(digits) <= 4 {
		return digits
	}
	return strings.Repeat("*", len(digits)-4) + digits[len(digits)-4:]
}
