package api

import (
	"net/http"

	apperrors "peoplegraph/backend/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response is the envelope every endpoint returns.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func respond(c *gin.Context, status int, message string, data any) {
	c.JSON(status, Response{Success: true, Message: message, Data: data})
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, Response{Success: false, Message: message})
}

// statusFor maps an error kind to the HTTP status the client sees.
func statusFor(err error) int {
	switch apperrors.KindOf(err) {
	case apperrors.ErrorTypeNotFound:
		return http.StatusNotFound
	case apperrors.ErrorTypeInvalidInput:
		return http.StatusBadRequest
	case apperrors.ErrorTypeConflict:
		return http.StatusConflict
	case apperrors.ErrorTypeCancelled:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// handleError writes the error response. Internal failures are logged and
// reported without detail.
func (h *handler) handleError(c *gin.Context, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("op", op),
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.Error(err),
		)
		fail(c, status, "Internal server error")
		return
	}
	h.logger.Debug("Request rejected", zap.String("op", op), zap.Int("status", status), zap.Error(err))
	fail(c, status, clientMessage(err))
}

func clientMessage(err error) string {
	if msg := apperrors.MessageOf(err); msg != "" {
		return msg
	}
	return err.Error()
}
