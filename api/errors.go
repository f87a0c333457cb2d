package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Domenick1991/mentorbooking/internal/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	codeUnauthenticated = "UNAUTHENTICATED"
	codeIdempotencyBusy = "IDEMPOTENCY_KEY_IN_USE"
	codeInternal        = "INTERNAL"
)

type errorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindAuthorization:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError renders err and aborts the chain. Errors outside the domain
// taxonomy are logged and hidden behind a generic 500.
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	var domainErr *domain.Error
	if !errors.As(err, &domainErr) {
		logger.Error("unhandled error",
			zap.String("request_id", requestID(c)),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: "internal error", Code: codeInternal})
		return
	}

	status := statusFor(domainErr.Kind)
	if status >= http.StatusInternalServerError {
		logger.Warn("request failed",
			zap.String("request_id", requestID(c)),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(status, errorResponse{
		Error:   domainErr.Message,
		Code:    domainErr.Code,
		Details: domainErr.Details,
	})
}

func abortUnauthenticated(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: msg, Code: codeUnauthenticated})
}

func parseID(c *gin.Context, param string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Validation("%s must be a positive integer", param)
	}
	return id, nil
}
