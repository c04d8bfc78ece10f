package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/sessions"

	"bitableTimesheet/internal/logger"
	"bitableTimesheet/internal/services"
	"bitableTimesheet/internal/utils"
)

// LoginService is the phone login flow.
type LoginService interface {
	RequestCode(ctx context.Context, phone string) (*services.CodeIssued, error)
	VerifyCode(ctx context.Context, phone, code string) (*services.VerifiedSession, error)
	SessionTTL() time.Duration
}

type requestCodeRequest struct {
	Phone string `json:"phone"`
}

type requestCodeResponse struct {
	Code      int    `json:"code"`
	Msg       string `json:"msg"`
	DebugCode string `json:"debug_code,omitempty"`
}

type verifyCodeRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

type verifyCodeResponse struct {
	Code       int    `json:"code"`
	Token      string `json:"token"`
	PersonName string `json:"personName"`
	ExpiresAt  string `json:"expiresAt"`
}

// AuthHandlers handles the phone login endpoints
type AuthHandlers struct {
	login   LoginService
	cookies sessions.Store
	logger  *logger.Logger
}

// NewAuthHandlers creates new authentication handlers. cookies may be nil
// to skip the session cookie.
func NewAuthHandlers(login LoginService, cookies sessions.Store, log *logger.Logger) *AuthHandlers {
	if log == nil {
		log = logger.Discard()
	}
	return &AuthHandlers{
		login:   login,
		cookies: cookies,
		logger:  log,
	}
}

// HandleRequestCode handles POST /api/request_code
func (h *AuthHandlers) HandleRequestCode(w http.ResponseWriter, r *http.Request) {
	utils.NoStore(w)

	var req requestCodeRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		utils.BadRequestError(w, "invalid request body")
		return
	}

	issued, err := h.login.RequestCode(r.Context(), req.Phone)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, requestCodeResponse{
		Code:      utils.CodeOK,
		Msg:       issued.Message,
		DebugCode: issued.DebugCode,
	})
}

// HandleVerifyCode handles POST /api/verify_code
func (h *AuthHandlers) HandleVerifyCode(w http.ResponseWriter, r *http.Request) {
	utils.NoStore(w)

	var req verifyCodeRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		utils.BadRequestError(w, "invalid request body")
		return
	}

	verified, err := h.login.VerifyCode(r.Context(), req.Phone, req.Code)
	if err != nil {
		if services.IsKind(err, services.KindValidation) {
			h.logger.WithFields(logger.Fields{
				"ip":         r.RemoteAddr,
				"request_id": utils.GetRequestID(r),
			}).Info("Login code rejected")
		}
		writeServiceError(w, r, h.logger, err)
		return
	}

	if h.cookies != nil {
		if err := saveSessionToken(w, r, h.cookies, verified.Token, h.login.SessionTTL()); err != nil {
			h.logger.WithError(err).Warn("Failed to set session cookie")
		}
	}

	utils.RespondWithJSON(w, http.StatusOK, verifyCodeResponse{
		Code:       utils.CodeOK,
		Token:      verified.Token,
		PersonName: verified.PersonName,
		ExpiresAt:  verified.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

const maxBodyBytes = 1 << 16

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(dst)
}
