package dto

import (
	"encoding/json"
	"time"

	"github.com/asergian/beacon-sub001/internal/enum"
	"github.com/asergian/beacon-sub001/internal/models"
)

// WorkerTask is written by the manager to the child's stdin as a single JSON document.
type WorkerTask struct {
	ID     string            `json:"id"`
	Action enum.WorkerAction `json:"action"`
	Args   json.RawMessage   `json:"args"`
	Trace  map[string]string `json:"trace,omitempty"`
}

// WorkerResponse is the single line the child writes to stdout.
type WorkerResponse struct {
	TaskID string           `json:"taskId"`
	OK     bool             `json:"ok"`
	Result json.RawMessage  `json:"result,omitempty"`
	Error  *WorkerTaskError `json:"error,omitempty"`
}

type WorkerTaskError struct {
	Message   string `json:"message"`
	Retriable bool   `json:"retriable"`
}

type ProviderListArgs struct {
	CredentialRef string    `json:"credentialRef"`
	Query         string    `json:"query,omitempty"`
	Since         time.Time `json:"since"`
	MaxResults    int       `json:"maxResults"`
	PageSize      int       `json:"pageSize"`
}

type ProviderListResult struct {
	IDs []string `json:"ids"`
}

type ProviderFetchArgs struct {
	CredentialRef string   `json:"credentialRef"`
	IDs           []string `json:"ids"`
}

type ProviderFetchResult struct {
	Messages []models.RawMessage `json:"messages"`
}

type LinguisticArgs struct {
	Texts        []string `json:"texts"`
	MaxTextRunes int      `json:"maxTextRunes"`
	MaxKeywords  int      `json:"maxKeywords"`
}

type LinguisticResult struct {
	Insights []models.LinguisticInsight `json:"insights"`
}
