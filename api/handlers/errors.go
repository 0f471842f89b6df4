// Package handlers provides HTTP API request handlers.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/remote-cue-control/backend/internal/model"
	"github.com/remote-cue-control/backend/internal/ws"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// sendError sends an error response with the appropriate status code.
func sendError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// sendIntentError maps a controller error to a response.
func sendIntentError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, model.ErrIndexOutOfRange):
		sendError(c, http.StatusNotFound, ws.ErrorCode(err), err.Error())
	case errors.Is(err, model.ErrEmptyServerList),
		errors.Is(err, model.ErrEmptyCueList),
		errors.Is(err, model.ErrNotConnected):
		sendError(c, http.StatusConflict, ws.ErrorCode(err), err.Error())
	case errors.Is(err, model.ErrConnectionFailed):
		sendError(c, http.StatusBadGateway, ws.ErrorCode(err), err.Error())
	case errors.Is(err, model.ErrLoopClosed):
		sendError(c, http.StatusServiceUnavailable, "SHUTTING_DOWN", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		sendError(c, http.StatusGatewayTimeout, "TIMEOUT", "Controller did not respond in time")
	default:
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}
