package web

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"novel/internal/game"
	"novel/internal/service"
)

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	ErrCodeBadRequest           = "bad_request"
	ErrCodeUserNotFound         = "user_not_found"
	ErrCodeSessionNotFound      = "session_not_found"
	ErrCodeInvalidChoice        = "invalid_choice"
	ErrCodeInvalidAmount        = "invalid_amount"
	ErrCodeInsufficientBalance  = "insufficient_balance"
	ErrCodeTransitionInProgress = "transition_in_progress"
	ErrCodeSceneNotFound        = "scene_not_found"
	ErrCodeInternal             = "internal_error"
)

// handleServiceError maps service and engine errors to a status and body.
// A missing scene is a content or data bug, never the client's fault.
func (s *Server) handleServiceError(c *gin.Context, err error) {
	var statusCode int
	var errResp ErrorResponse

	switch {
	case errors.Is(err, service.ErrUserNotFound):
		statusCode = http.StatusNotFound
		errResp = ErrorResponse{Code: ErrCodeUserNotFound, Message: "User not found"}
	case errors.Is(err, service.ErrSessionNotFound):
		statusCode = http.StatusNotFound
		errResp = ErrorResponse{Code: ErrCodeSessionNotFound, Message: "Session not found"}
	case errors.Is(err, game.ErrInvalidChoice):
		statusCode = http.StatusBadRequest
		errResp = ErrorResponse{Code: ErrCodeInvalidChoice, Message: "Invalid choice"}
	case errors.Is(err, service.ErrInvalidAmount):
		statusCode = http.StatusBadRequest
		errResp = ErrorResponse{Code: ErrCodeInvalidAmount, Message: err.Error()}
	case errors.Is(err, service.ErrInsufficientBalance):
		statusCode = http.StatusBadRequest
		errResp = ErrorResponse{Code: ErrCodeInsufficientBalance, Message: "Insufficient balance"}
	case errors.Is(err, service.ErrTransitionInProgress):
		statusCode = http.StatusConflict
		errResp = ErrorResponse{Code: ErrCodeTransitionInProgress, Message: err.Error()}
	case errors.Is(err, game.ErrSceneNotFound):
		s.logger().Error("Scene missing from story graph", zap.Error(err))
		statusCode = http.StatusInternalServerError
		errResp = ErrorResponse{Code: ErrCodeSceneNotFound, Message: "Scene not found"}
	default:
		s.logger().Error("Unhandled internal error in handleServiceError", zap.Error(err))
		statusCode = http.StatusInternalServerError
		errResp = ErrorResponse{Code: ErrCodeInternal, Message: "An unexpected internal error occurred"}
	}

	c.AbortWithStatusJSON(statusCode, errResp)
}
