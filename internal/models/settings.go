package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/lib/pq"
)

// UserSettings is the persisted row owned by the settings front end. The pipeline only reads it.
type UserSettings struct {
	UserID            string         `gorm:"column:user_id;type:varchar(64);primaryKey" json:"userId"`
	AIEnabled         bool           `gorm:"column:ai_enabled;default:true" json:"aiEnabled"`
	ModelType         string         `gorm:"column:model_type;type:varchar(50);default:'fast'" json:"modelType"`
	ContextLength     int            `gorm:"column:context_length;default:2000" json:"contextLength"`
	SummaryLength     int            `gorm:"column:summary_length;default:200" json:"summaryLength"`
	CustomCategories  pq.StringArray `gorm:"column:custom_categories;type:text[]" json:"customCategories"`
	PriorityThreshold int            `gorm:"column:priority_threshold;default:50" json:"priorityThreshold"`
	CacheDurationDays int            `gorm:"column:cache_duration_days;default:7" json:"cacheDurationDays"`
	Timezone          string         `gorm:"column:timezone;type:varchar(64);default:'UTC'" json:"timezone"`
	CreatedAt         time.Time      `gorm:"column:created_at;type:timestamp" json:"createdAt"`
	UpdatedAt         time.Time      `gorm:"column:updated_at;type:timestamp" json:"updatedAt"`
}

func (UserSettings) TableName() string {
	return "user_settings"
}

// SettingsSnapshot is the per-request copy of a user's analysis settings.
type SettingsSnapshot struct {
	UserID            string   `json:"userId"`
	AIEnabled         bool     `json:"aiEnabled"`
	ModelType         string   `json:"modelType"`
	ContextLength     int      `json:"contextLength"`
	SummaryLength     int      `json:"summaryLength"`
	CustomCategories  []string `json:"customCategories"`
	PriorityThreshold int      `json:"priorityThreshold"`
	CacheDurationDays int      `json:"cacheDurationDays"`
	Timezone          string   `json:"timezone"`
}

func (s UserSettings) Snapshot() SettingsSnapshot {
	custom := make([]string, 0, len(s.CustomCategories))
	custom = append(custom, s.CustomCategories...)
	return SettingsSnapshot{
		UserID:            s.UserID,
		AIEnabled:         s.AIEnabled,
		ModelType:         s.ModelType,
		ContextLength:     s.ContextLength,
		SummaryLength:     s.SummaryLength,
		CustomCategories:  custom,
		PriorityThreshold: s.PriorityThreshold,
		CacheDurationDays: s.CacheDurationDays,
		Timezone:          s.Timezone,
	}
}

// Version hashes the fields that influence analysis output. Cached analyses produced under a different
// version are discarded on read.
func (s SettingsSnapshot) Version() string {
	payload, _ := json.Marshal(struct {
		AIEnabled        bool     `json:"a"`
		ModelType        string   `json:"m"`
		ContextLength    int      `json:"c"`
		SummaryLength    int      `json:"s"`
		CustomCategories []string `json:"k"`
	}{s.AIEnabled, s.ModelType, s.ContextLength, s.SummaryLength, s.CustomCategories})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:8])
}

func (s SettingsSnapshot) CacheTTL() time.Duration {
	return time.Duration(s.CacheDurationDays) * 24 * time.Hour
}
