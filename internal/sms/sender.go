// Package sms dispatches login codes to an external SMS gateway.
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"bitableTimesheet/internal/logger"
)

// DefaultCountryCode is prefixed to national numbers.
const DefaultCountryCode = "86"

// Sender defines an SMS dispatch contract. to is in international format.
type Sender interface {
	Send(ctx context.Context, to, message string) error
}

// LogSender stands in for a gateway. It logs that a message was due with
// its digits masked, so neither the code nor the full number reach the log.
type LogSender struct {
	Logger *logger.Logger
}

// Send logs the masked message.
func (s LogSender) Send(_ context.Context, to, message string) error {
	if s.Logger != nil {
		s.Logger.WithFields(logger.Fields{
			"to":      maskNumber(to),
			"message": maskDigits(message),
		}).Warn("SMS gateway not configured, message not delivered")
	}
	return nil
}

func maskDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return '*'
		}
		return r
	}, s)
}

// maskNumber keeps the last four digits of a phone number.
func maskNumber(number string) string {
	if len(number) <= 4 {
		return maskDigits(number)
	}
	return maskDigits(number[:len(number)-4]) + number[len(number)-4:]
}

// HTTPSender posts messages to a webhook style gateway.
type HTTPSender struct {
	client *http.Client
	url    string
	apiKey string
}

// NewHTTPSender constructs an HTTPSender.
func NewHTTPSender(endpoint, apiKey string, timeout time.Duration) *HTTPSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSender{
		client: &http.Client{Timeout: timeout},
		url:    strings.TrimRight(endpoint, "/"),
		apiKey: apiKey,
	}
}

type sendRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// Send triggers an HTTP POST with the destination and body.
func (h *HTTPSender) Send(ctx context.Context, to, message string) error {
	body, err := json.Marshal(sendRequest{To: to, Message: message})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &DispatchError{Status: resp.StatusCode}
	}
	return nil
}

// DispatchError represents a non-successful gateway response.
type DispatchError struct {
	Status int
}

func (e *DispatchError) Error() string {
	return "sms dispatch failed with status " + http.StatusText(e.Status)
}

// ToInternational formats a digits-only phone number as +<country><national>.
// Numbers that already carry the country code, or an 00 prefix, keep it.
func ToInternational(digits, countryCode string) string {
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}
	switch {
	case strings.HasPrefix(digits, "00"):
		return "+" + digits[2:]
	case strings.HasPrefix(digits, countryCode) && len(digits) > 11:
		return "+" + digits
	default:
		return "+" + countryCode + strings.TrimLeft(digits, "0")
	}
}
