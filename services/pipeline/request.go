package pipeline

import (
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/asergian/beacon-sub001/config"
	apperrors "github.com/asergian/beacon-sub001/internal/errors"
	"github.com/asergian/beacon-sub001/internal/models"
)

// normalizeRequest validates the request and fills defaults. The returned copy is what the run uses.
func normalizeRequest(cfg *config.PipelineConfig, req models.PipelineRequest) (models.PipelineRequest, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	req.CredentialRef = strings.TrimSpace(req.CredentialRef)
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	switch {
	case req.UserID == "":
		return req, errors.Wrap(apperrors.ErrInvalidRequest, "userId is required")
	case req.CredentialRef == "":
		return req, errors.Wrap(apperrors.ErrInvalidRequest, "credentialRef is required")
	case req.DaysBack < 0:
		return req, errors.Wrap(apperrors.ErrInvalidRequest, "daysBack must not be negative")
	case req.MaxResults < 0:
		return req, errors.Wrap(apperrors.ErrInvalidRequest, "maxResults must not be negative")
	case req.BatchSize < 0:
		return req, errors.Wrap(apperrors.ErrInvalidRequest, "batchSize must not be negative")
	case req.MinPriority < 0 || req.MinPriority > 100:
		return req, errors.Wrap(apperrors.ErrInvalidRequest, "minPriority must be within 0-100")
	case req.CacheDurationDays < 0:
		return req, errors.Wrap(apperrors.ErrInvalidRequest, "cacheDurationDays must not be negative")
	}

	if req.DaysBack == 0 {
		req.DaysBack = cfg.DefaultDaysBack
	}
	if cfg.MaxDaysBack > 0 && req.DaysBack > cfg.MaxDaysBack {
		req.DaysBack = cfg.MaxDaysBack
	}
	if req.MaxResults == 0 {
		req.MaxResults = cfg.DefaultMaxResults
	}
	if cfg.MaxResultsLimit > 0 && req.MaxResults > cfg.MaxResultsLimit {
		req.MaxResults = cfg.MaxResultsLimit
	}

	categories := make([]string, 0, len(req.Categories))
	for _, c := range req.Categories {
		if c = strings.TrimSpace(c); c != "" {
			categories = append(categories, c)
		}
	}
	req.Categories = categories
	return req, nil
}
