package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/asergian/beacon-sub001/dto"
	apperrors "github.com/asergian/beacon-sub001/internal/errors"
)

var statusByKind = map[string]int{
	"invalid_request":       http.StatusBadRequest,
	"settings_unavailable":  http.StatusServiceUnavailable,
	"cache_unavailable":     http.StatusServiceUnavailable,
	"quota_exceeded":        http.StatusTooManyRequests,
	"fetch_failed":          http.StatusBadGateway,
	"worker_timeout":        http.StatusBadGateway,
	"worker_crashed":        http.StatusBadGateway,
	"worker_protocol_error": http.StatusBadGateway,
	"task_failed":           http.StatusBadGateway,
	"llm_call_failed":       http.StatusBadGateway,
}

// StatusForError maps an error onto the HTTP status returned to callers.
func StatusForError(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if status, ok := statusByKind[apperrors.Kind(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func errorResponse(err error) *dto.ErrorResponse {
	return &dto.ErrorResponse{
		Error: err.Error(),
		Kind:  apperrors.Kind(err),
	}
}

func abortWithError(c *gin.Context, status int, message string, kind string) {
	c.AbortWithStatusJSON(status, dto.ErrorResponse{Error: message, Kind: kind})
}
