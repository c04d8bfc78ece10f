package utils

import (
	"encoding/json"
	"log"
	"net/http"
)

// Envelope status codes carried in the "code" field of every JSON body.
const (
	CodeOK    = 0
	CodeError = 1
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// SuccessResponse represents a standardized success response
type SuccessResponse struct {
	Code int         `json:"code"`
	Data interface{} `json:"data"`
}

// MessageResponse is a success body without a data payload.
type MessageResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// RespondWithJSON sends payload as JSON with the given status
func RespondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Failed to encode JSON response: %v", err)
	}
}

// RespondWithData sends {code:0, data}
func RespondWithData(w http.ResponseWriter, data interface{}) {
	RespondWithJSON(w, http.StatusOK, SuccessResponse{Code: CodeOK, Data: data})
}

// RespondWithError sends {code:1, msg}
func RespondWithError(w http.ResponseWriter, status int, message string) {
	RespondWithJSON(w, status, ErrorResponse{Code: CodeError, Msg: message})
}

func BadRequestError(w http.ResponseWriter, message string) {
	RespondWithError(w, http.StatusBadRequest, message)
}

func TooManyRequestsError(w http.ResponseWriter, message string) {
	RespondWithError(w, http.StatusTooManyRequests, message)
}

// InternalServerError never echoes internal detail to the client.
func InternalServerError(w http.ResponseWriter) {
	RespondWithError(w, http.StatusInternalServerError, "Server error")
}

// NoStore marks a response as uncacheable.
func NoStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
}
