package pipeline

import (
	"strings"

	"github.com/asergian/beacon-sub001/internal/models"
)

// presenter applies the request filters and the user's presentation settings.
type presenter struct {
	minPriority int
	categories  map[string]struct{}
	threshold   int
	timezone    string
}

func newPresenter(req models.PipelineRequest, settings models.SettingsSnapshot) presenter {
	p := presenter{
		minPriority: req.MinPriority,
		threshold:   settings.PriorityThreshold,
		timezone:    settings.Timezone,
	}
	if len(req.Categories) > 0 {
		p.categories = make(map[string]struct{}, len(req.Categories))
		for _, c := range req.Categories {
			p.categories[strings.ToLower(c)] = struct{}{}
		}
	}
	return p
}

func (p presenter) keep(analysis models.AnalysisResult) bool {
	if analysis.Priority < p.minPriority {
		return false
	}
	if p.categories == nil {
		return true
	}
	_, ok := p.categories[strings.ToLower(analysis.Category)]
	return ok
}

func (p presenter) present(msg models.CanonicalMessage, analysis models.AnalysisResult, cached bool) models.PipelineMessage {
	return models.PipelineMessage{
		Message:     msg,
		Analysis:    analysis,
		Cached:      cached,
		Highlighted: analysis.Priority >= p.threshold,
		LocalDate:   msg.LocalDate(p.timezone),
	}
}
