package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"bitableTimesheet/internal/logger"
	"bitableTimesheet/internal/services"
	"bitableTimesheet/internal/utils"
)

// writeServiceError maps a service error onto the response envelope.
// Anything that is not a client error is logged and reported as "Server error".
func writeServiceError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	var svcErr *services.Error
	if errors.As(err, &svcErr) {
		switch svcErr.Kind {
		case services.KindValidation:
			utils.BadRequestError(w, svcErr.Message)
			return
		case services.KindRateLimited:
			if svcErr.RetryAfter > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(svcErr.RetryAfter.Seconds()))))
			}
			utils.TooManyRequestsError(w, svcErr.Message)
			return
		}
	}

	log.WithFields(logger.Fields{
		"method":     r.Method,
		"path":       r.URL.Path,
		"request_id": utils.GetRequestID(r),
	}).WithError(err).Error("Request failed")
	utils.InternalServerError(w)
}
