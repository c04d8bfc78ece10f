package models

import "time"

// PhoneCode is a pending login code, keyed by the digits-only phone number.
type PhoneCode struct {
	Code       string    `json:"code"`
	PersonName string    `json:"person_name"`
	ExpiresAt  time.Time `json:"expires_at"`
	Attempts   int       `json:"attempts"`
}

// Session is what a verified session token carries.
type Session struct {
	PersonName string    `json:"person_name"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Employee is one entry of the phone lookup table.
type Employee struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}
