package interfaces

import (
	"context"

	"github.com/asergian/beacon-sub001/internal/models"
)

type LinguisticAnalyzer interface {
	AnalyzeBatch(ctx context.Context, texts []string) ([]models.LinguisticInsight, error)
}

type SemanticAnalyzer interface {
	AnalyzeBatch(ctx context.Context, inputs []models.AnalysisInput, settings models.SettingsSnapshot) models.SemanticBatchResult
	AnalyzeChunks(ctx context.Context, inputs []models.AnalysisInput, settings models.SettingsSnapshot, onChunk func(models.SemanticBatchResult)) models.SemanticBatchResult
}

type LLMClient interface {
	Complete(ctx context.Context, request models.CompletionRequest) (*models.Completion, error)
}
