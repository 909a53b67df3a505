package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/asergian/beacon-sub001/dto"
	"github.com/asergian/beacon-sub001/interfaces"
	"github.com/asergian/beacon-sub001/internal/logger"
	"github.com/asergian/beacon-sub001/internal/models"
	"github.com/asergian/beacon-sub001/internal/tracing"
	"github.com/asergian/beacon-sub001/internal/utils"
)

type PipelineHandler struct {
	pipeline interfaces.PipelineOrchestrator
	log      logger.Logger
}

func NewPipelineHandler(pipeline interfaces.PipelineOrchestrator, log logger.Logger) *PipelineHandler {
	return &PipelineHandler{pipeline: pipeline, log: log}
}

// bindRequest reads the body and the caller identity. It writes the error response itself and returns
// false when the request cannot proceed.
func (h *PipelineHandler) bindRequest(c *gin.Context, stream bool) (models.PipelineRequest, bool) {
	ctx := c.Request.Context()

	userId := utils.GetUserIdFromContext(ctx)
	if userId == "" {
		abortWithError(c, http.StatusUnauthorized, "user id header is required", "invalid_request")
		return models.PipelineRequest{}, false
	}

	var body dto.PipelineRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "invalid request body",
			Kind:    "invalid_request",
			Details: err.Error(),
		})
		return models.PipelineRequest{}, false
	}

	return body.ToModel(utils.GetRequestIdFromContext(ctx), userId, stream), true
}

// Run executes the pipeline and returns the whole result at once.
func (h *PipelineHandler) Run() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "PipelineHandler.Run")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		request, ok := h.bindRequest(c, false)
		if !ok {
			return
		}
		tracing.TagCredential(span, request.CredentialRef)

		result, err := h.pipeline.Run(ctx, request)
		response := dto.PipelineResponse{}
		if result != nil {
			response.RequestID = result.RequestID
			response.Messages = result.Messages
			response.Stats = result.Stats
			response.Errors = result.Errors
		}
		if response.Messages == nil {
			response.Messages = []models.PipelineMessage{}
		}
		if response.Errors == nil {
			response.Errors = []models.ItemError{}
		}
		if err != nil {
			tracing.TraceErr(span, err)
			h.log.Warnf("Pipeline run %s for user %s failed: %v", request.RequestID, request.UserID, err)
			response.Error = errorResponse(err)
		}

		c.JSON(StatusForError(err), response)
	}
}

// Stream executes the pipeline and forwards every event as a server-sent event. Validation failures are
// reported in-band: the stream always ends with a stats event.
func (h *PipelineHandler) Stream() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "PipelineHandler.Stream")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		request, ok := h.bindRequest(c, true)
		if !ok {
			return
		}
		tracing.TagCredential(span, request.CredentialRef)

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)
		c.Writer.Flush()

		sent := 0
		for event := range h.pipeline.Stream(ctx, request) {
			if err := writeEvent(c, event); err != nil {
				// client is gone; keep draining so the run can finish
				continue
			}
			sent++
		}
		span.LogKV("result.events", sent)
	}
}

func writeEvent(c *gin.Context, event models.PipelineEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := c.Writer.WriteString("id: " + event.ID + "\nevent: " + string(event.Type) + "\ndata: " + string(data) + "\n\n"); err != nil {
		return err
	}
	c.Writer.Flush()
	return nil
}
