package models

import (
	"time"

	"github.com/asergian/beacon-sub001/internal/enum"
)

type Entity struct {
	Text string          `json:"text"`
	Type enum.EntityType `json:"type"`
}

type LinguisticInsight struct {
	Entities     []Entity `json:"entities"`
	Keywords     []string `json:"keywords"`
	UrgencyScore float64  `json:"urgencyScore"`
	Truncated    bool     `json:"truncated,omitempty"`
}

type ActionItem struct {
	Description string     `json:"description"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
}

type TokenUsage struct {
	PromptTokens     int     `json:"promptTokens"`
	CompletionTokens int     `json:"completionTokens"`
	CostUSD          float64 `json:"costUsd"`
}

func (u TokenUsage) TotalTokens() int {
	return u.PromptTokens + u.CompletionTokens
}

func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		CostUSD:          u.CostUSD + other.CostUSD,
	}
}

// AnalysisResult merges linguistic and semantic output for one message.
type AnalysisResult struct {
	MessageID       string       `json:"messageId"`
	Entities        []Entity     `json:"entities"`
	Keywords        []string     `json:"keywords"`
	UrgencyScore    float64      `json:"urgencyScore"`
	Category        string       `json:"category"`
	Priority        int          `json:"priority"`
	NeedsAction     bool         `json:"needsAction"`
	ActionItems     []ActionItem `json:"actionItems"`
	Summary         string       `json:"summary"`
	Usage           TokenUsage   `json:"usage"`
	Fallback        bool         `json:"fallback"`
	SettingsVersion string       `json:"settingsVersion"`
	AnalyzedAt      time.Time    `json:"analyzedAt"`
}

// AnalysisInput pairs a message with its optional linguistic insight.
type AnalysisInput struct {
	Message CanonicalMessage
	Insight *LinguisticInsight
}

// NewFallbackAnalysis is the deterministic result used when the LLM cannot classify a message.
func NewFallbackAnalysis(input AnalysisInput, settingsVersion string, analyzedAt time.Time) AnalysisResult {
	result := AnalysisResult{
		MessageID:       input.Message.ID,
		Entities:        []Entity{},
		Keywords:        []string{},
		Category:        enum.CategoryUnclassified,
		Priority:        0,
		NeedsAction:     false,
		ActionItems:     []ActionItem{},
		Fallback:        true,
		SettingsVersion: settingsVersion,
		AnalyzedAt:      analyzedAt,
	}
	if input.Insight != nil {
		result.Entities = input.Insight.Entities
		result.Keywords = input.Insight.Keywords
		result.UrgencyScore = input.Insight.UrgencyScore
	}
	return result
}

// SemanticBatchResult holds one result per input, in input order, plus the batch totals.
type SemanticBatchResult struct {
	Results []AnalysisResult `json:"results"`
	Usage   TokenUsage       `json:"usage"`
	Errors  []ItemError      `json:"errors"`
	Chunks  int              `json:"chunks"`
}
