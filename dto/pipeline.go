package dto

import "github.com/asergian/beacon-sub001/internal/models"

// PipelineRequest is the HTTP body accepted by the pipeline endpoints. The user is taken from the
// X-Beacon-User-Id header.
type PipelineRequest struct {
	CredentialRef     string   `json:"credentialRef" binding:"required"`
	Query             string   `json:"query"`
	DaysBack          int      `json:"daysBack"`
	MaxResults        int      `json:"maxResults"`
	CacheDurationDays int      `json:"cacheDurationDays"`
	BatchSize         int      `json:"batchSize"`
	MinPriority       int      `json:"minPriority"`
	Categories        []string `json:"categories"`
}

// ToModel builds the orchestrator request for userID.
func (r PipelineRequest) ToModel(requestID, userID string, stream bool) models.PipelineRequest {
	return models.PipelineRequest{
		RequestID:         requestID,
		UserID:            userID,
		CredentialRef:     r.CredentialRef,
		Query:             r.Query,
		DaysBack:          r.DaysBack,
		MaxResults:        r.MaxResults,
		CacheDurationDays: r.CacheDurationDays,
		BatchSize:         r.BatchSize,
		MinPriority:       r.MinPriority,
		Categories:        r.Categories,
		Stream:            stream,
	}
}

// PipelineResponse is the batch endpoint body. Error is set when the run ended in a terminal failure;
// the partial result is still included.
type PipelineResponse struct {
	RequestID string                   `json:"requestId"`
	Messages  []models.PipelineMessage `json:"messages"`
	Stats     models.PipelineStats     `json:"stats"`
	Errors    []models.ItemError       `json:"errors"`
	Error     *ErrorResponse           `json:"error,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	Details string `json:"details,omitempty"`
}
