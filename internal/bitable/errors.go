package bitable

import "fmt"

// AuthError reports a failed access token exchange.
type AuthError struct {
	Status int
	Code   int
	Msg    string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("bitable: token request failed: %v", e.Err)
	}
	return fmt.Sprintf("bitable: token request rejected (http %d, code %d): %s", e.Status, e.Code, e.Msg)
}

func (e *AuthError) Unwrap() error { return e.Err }

// FetchError reports a failed page request. The whole listing is discarded.
type FetchError struct {
	Op     string
	Table  string
	Page   int
	Status int
	Code   int
	Msg    string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("bitable: %s %s page %d: %v", e.Op, e.Table, e.Page, e.Err)
	}
	return fmt.Sprintf("bitable: %s %s page %d rejected (http %d, code %d): %s", e.Op, e.Table, e.Page, e.Status, e.Code, e.Msg)
}

func (e *FetchError) Unwrap() error { return e.Err }
