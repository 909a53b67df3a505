package models

import (
	"time"

	"github.com/asergian/beacon-sub001/internal/enum"
)

// PipelineRequest describes one ingestion run. It is never persisted.
type PipelineRequest struct {
	RequestID         string   `json:"requestId"`
	UserID            string   `json:"userId"`
	CredentialRef     string   `json:"credentialRef"`
	Query             string   `json:"query,omitempty"`
	DaysBack          int      `json:"daysBack"`
	MaxResults        int      `json:"maxResults"`
	CacheDurationDays int      `json:"cacheDurationDays,omitempty"`
	BatchSize         int      `json:"batchSize,omitempty"`
	MinPriority       int      `json:"minPriority,omitempty"`
	Categories        []string `json:"categories,omitempty"`
	Stream            bool     `json:"stream,omitempty"`
}

// Since is the lower bound of the fetch window, truncated to the start of the UTC day.
func (r PipelineRequest) Since(now time.Time) time.Time {
	day := now.UTC().Truncate(24 * time.Hour)
	return day.AddDate(0, 0, -r.DaysBack)
}

type ItemError struct {
	Kind      string             `json:"kind"`
	Stage     enum.PipelineStage `json:"stage"`
	MessageID string             `json:"messageId,omitempty"`
	Message   string             `json:"message"`
}

// PipelineMessage is one presented message: the canonical content, its analysis and presentation flags.
type PipelineMessage struct {
	Message     CanonicalMessage `json:"message"`
	Analysis    AnalysisResult   `json:"analysis"`
	Cached      bool             `json:"cached"`
	Highlighted bool             `json:"highlighted"`
	LocalDate   time.Time        `json:"localDate"`
}

type PipelineStats struct {
	RequestID        string             `json:"requestId"`
	UserID           string             `json:"userId"`
	State            enum.PipelineState `json:"state"`
	Listed           int                `json:"listed"`
	CacheHits        int                `json:"cacheHits"`
	CacheMisses      int                `json:"cacheMisses"`
	Reanalyzed       int                `json:"reanalyzed"`
	Fetched          int                `json:"fetched"`
	Parsed           int                `json:"parsed"`
	ParseErrors      int                `json:"parseErrors"`
	Analyzed         int                `json:"analyzed"`
	FallbackCount    int                `json:"fallbackCount"`
	Returned         int                `json:"returned"`
	FilteredOut      int                `json:"filteredOut"`
	FetchBatches     int                `json:"fetchBatches"`
	AnalysisChunks   int                `json:"analysisChunks"`
	Usage            TokenUsage         `json:"usage"`
	CacheUnavailable bool               `json:"cacheUnavailable,omitempty"`
	ErrorCount       int                `json:"errorCount"`
	StartedAt        time.Time          `json:"startedAt"`
	FinishedAt       time.Time          `json:"finishedAt"`
	DurationMs       int64              `json:"durationMs"`
}

// PipelineEvent is one element of a streamed run. Exactly one of the payload fields is set, matching
// Type.
type PipelineEvent struct {
	ID       string                 `json:"id"`
	Type     enum.PipelineEventType `json:"type"`
	State    enum.PipelineState     `json:"state,omitempty"`
	Messages []PipelineMessage      `json:"messages,omitempty"`
	Stats    *PipelineStats         `json:"stats,omitempty"`
	Errors   []ItemError            `json:"errors,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

type PipelineResult struct {
	RequestID string            `json:"requestId"`
	Messages  []PipelineMessage `json:"messages"`
	Stats     PipelineStats     `json:"stats"`
	Errors    []ItemError       `json:"errors"`
}
