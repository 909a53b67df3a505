package settings

import (
	"context"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/asergian/beacon-sub001/config"
	"github.com/asergian/beacon-sub001/interfaces"
	"github.com/asergian/beacon-sub001/internal/enum"
	apperrors "github.com/asergian/beacon-sub001/internal/errors"
	"github.com/asergian/beacon-sub001/internal/logger"
	"github.com/asergian/beacon-sub001/internal/models"
	"github.com/asergian/beacon-sub001/internal/tracing"
)

type settingsProvider struct {
	repo     interfaces.UserSettingsRepository
	defaults *config.SettingsDefaults
	log      logger.Logger
}

// NewSettingsProvider reads user settings through repo. A nil repo serves the defaults to every user.
func NewSettingsProvider(repo interfaces.UserSettingsRepository, defaults *config.SettingsDefaults, log logger.Logger) interfaces.SettingsProvider {
	if defaults == nil {
		defaults = &config.SettingsDefaults{}
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &settingsProvider{repo: repo, defaults: defaults, log: log}
}

func (s *settingsProvider) GetSnapshot(ctx context.Context, userID string) (*models.SettingsSnapshot, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SettingsProvider.GetSnapshot")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, userID)

	if userID == "" {
		err := errors.Wrap(apperrors.ErrSettingsUnavailable, "user id is empty")
		tracing.TraceErr(span, err)
		return nil, err
	}

	var snapshot models.SettingsSnapshot
	if s.repo == nil {
		snapshot = s.defaultSnapshot(userID)
	} else {
		row, err := s.repo.GetByUserID(ctx, userID)
		if err != nil {
			tracing.TraceErr(span, err)
			return nil, errors.Wrap(apperrors.ErrSettingsUnavailable, err.Error())
		}
		if row == nil {
			snapshot = s.defaultSnapshot(userID)
		} else {
			snapshot = row.Snapshot()
		}
	}

	normalized := s.normalize(snapshot)
	tracing.LogObjectAsJson(span, "snapshot", normalized)
	return &normalized, nil
}

func (s *settingsProvider) defaultSnapshot(userID string) models.SettingsSnapshot {
	d := s.defaults
	return models.SettingsSnapshot{
		UserID:            userID,
		AIEnabled:         d.AIEnabled,
		ModelType:         d.ModelType,
		ContextLength:     d.ContextLength,
		SummaryLength:     d.SummaryLength,
		CustomCategories:  append([]string(nil), d.CustomCategories...),
		PriorityThreshold: d.PriorityThreshold,
		CacheDurationDays: d.CacheDurationDays,
		Timezone:          d.Timezone,
	}
}

// normalize repairs values the settings front end should never store but sometimes does.
func (s *settingsProvider) normalize(snapshot models.SettingsSnapshot) models.SettingsSnapshot {
	switch enum.ModelType(strings.ToLower(strings.TrimSpace(snapshot.ModelType))) {
	case enum.ModelTypeAccurate:
		snapshot.ModelType = string(enum.ModelTypeAccurate)
	default:
		snapshot.ModelType = string(enum.ModelTypeFast)
	}

	if snapshot.ContextLength < 0 {
		snapshot.ContextLength = 0
	}
	if snapshot.SummaryLength <= 0 {
		snapshot.SummaryLength = s.defaults.SummaryLength
	}
	if snapshot.PriorityThreshold < 0 {
		snapshot.PriorityThreshold = 0
	}
	if snapshot.PriorityThreshold > 100 {
		snapshot.PriorityThreshold = 100
	}
	if snapshot.CacheDurationDays <= 0 {
		snapshot.CacheDurationDays = s.defaults.CacheDurationDays
	}

	snapshot.CustomCategories = cleanCategories(snapshot.CustomCategories)

	if snapshot.Timezone == "" {
		snapshot.Timezone = "UTC"
	} else if _, err := time.LoadLocation(snapshot.Timezone); err != nil {
		s.log.Warnf("Unknown timezone %q for user %s, using UTC", snapshot.Timezone, snapshot.UserID)
		snapshot.Timezone = "UTC"
	}
	return snapshot
}

func cleanCategories(categories []string) []string {
	out := make([]string, 0, enum.MaxCustomCategories)
	seen := make(map[string]bool, len(categories))
	for _, c := range categories {
		c = strings.TrimSpace(c)
		key := strings.ToLower(c)
		if c == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
		if len(out) == enum.MaxCustomCategories {
			break
		}
	}
	return out
}
