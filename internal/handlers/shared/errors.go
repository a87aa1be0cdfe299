package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"zoomgo/internal/services"
	"zoomgo/internal/utils"
	"zoomgo/internal/validators"
	"zoomgo/pkg/logger"

	"github.com/gin-gonic/gin"
)

var kindStatus = map[string]int{
	services.CodeUnauthenticated:   http.StatusUnauthorized,
	services.CodeForbidden:         http.StatusForbidden,
	services.CodeInvalidInput:      http.StatusBadRequest,
	services.CodeInvalidRideType:   http.StatusBadRequest,
	services.CodeInvalidPrice:      http.StatusBadRequest,
	services.CodeNotFound:          http.StatusNotFound,
	services.CodeInvalidTransition: http.StatusConflict,
	services.CodeStoreUnavailable:  http.StatusServiceUnavailable,
	services.CodeInternal:          http.StatusInternalServerError,
}

// StatusForError maps a ledger error onto its HTTP status.
func StatusForError(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusServiceUnavailable
	}
	if status, ok := kindStatus[services.KindCode(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, log *logger.Logger, err error) {
	code := services.KindCode(err)
	status := StatusForError(err)
	if errors.Is(err, context.DeadlineExceeded) {
		code = services.CodeStoreUnavailable
	}

	message := utils.ErrInternalServer
	var ledgerErr *services.LedgerError
	if errors.As(err, &ledgerErr) {
		message = ledgerErr.Message
	}

	if status >= http.StatusInternalServerError {
		log.WithContext(c.Request.Context()).WithError(err).WithField("code", code).Error("Request failed")
		if code == services.CodeInternal {
			message = utils.ErrInternalServer
		}
	}

	utils.ErrorResponse(c, status, code, message)
}

func respondValidation(c *gin.Context, errs validators.ValidationErrors) {
	code := services.CodeInvalidInput
	if errs.HasTag("ride_type") {
		code = services.CodeInvalidRideType
	}
	utils.ValidationErrorResponse(c, code, errs.Details())
}

// withTimeout bounds a ledger call by the configured request timeout.
func withTimeout(c *gin.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(c.Request.Context())
	}
	return context.WithTimeout(c.Request.Context(), timeout)
}
