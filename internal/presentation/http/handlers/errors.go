// Package handlers provides HTTP request handlers for the presentation layer.
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/AtRiskMedia/leaddesk-go/internal/application/services"
	"github.com/AtRiskMedia/leaddesk-go/internal/domain/apperrors"
	"github.com/AtRiskMedia/leaddesk-go/internal/presentation/http/middleware"
	"github.com/gin-gonic/gin"
)

// statusFor maps an application error to an HTTP status.
func statusFor(err *apperrors.Error) int {
	switch err.Code {
	case apperrors.CodeInvalidState:
		return http.StatusConflict
	case apperrors.CodeAccessDenied:
		return http.StatusForbidden
	case apperrors.CodeBackendRejected, apperrors.CodeOtpMismatch:
		return http.StatusBadRequest
	}
	switch err.Kind {
	case apperrors.KindValidation:
		return http.StatusBadRequest
	case apperrors.KindAuth:
		return http.StatusUnauthorized
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindNetwork:
		return http.StatusServiceUnavailable
	case apperrors.KindDecode:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func respondError(c *gin.Context, err error) {
	appErr := apperrors.From(err)
	c.JSON(statusFor(appErr), gin.H{
		"error":     appErr.Message,
		"code":      appErr.Code,
		"retryable": appErr.Retryable(),
	})
}

// respondBackendError is respondError for calls made with the session
// credential: a credential the backend no longer accepts ends the session.
func respondBackendError(c *gin.Context, cs *services.ConsoleSession, err error) {
	if errors.Is(err, apperrors.ErrInvalidCredentials) || errors.Is(err, apperrors.ErrTokenExpired) {
		cs.Store.ForceExpire(c.Request.Context())
	}
	respondError(c, err)
}

func consoleSession(c *gin.Context) (*services.ConsoleSession, bool) {
	cs, ok := middleware.GetConsoleSession(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "console session not found"})
	}
	return cs, ok
}

func int64Param(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a positive integer", "code": apperrors.CodeInvalidInput})
		return 0, false
	}
	return id, true
}
