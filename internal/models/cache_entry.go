package models

import "time"

type CacheEntry struct {
	UserID          string           `json:"userId"`
	Message         CanonicalMessage `json:"message"`
	Analysis        *AnalysisResult  `json:"analysis,omitempty"`
	SettingsVersion string           `json:"settingsVersion"`
	StoredAt        time.Time        `json:"storedAt"`
	ExpiresAt       time.Time        `json:"expiresAt"`
}

func (e CacheEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}
