package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/asergian/beacon-sub001/internal/utils"
)

type ActivityLog struct {
	ID           string    `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	UserID       string    `gorm:"column:user_id;type:varchar(64);index" json:"userId"`
	RequestID    string    `gorm:"column:request_id;type:varchar(64)" json:"requestId"`
	MessageCount int       `gorm:"column:message_count" json:"messageCount"`
	State        string    `gorm:"column:state;type:varchar(20)" json:"state"`
	Stats        JSONMap   `gorm:"column:stats;type:jsonb" json:"stats"`
	Timestamp    time.Time `gorm:"column:timestamp;type:timestamp;index" json:"timestamp"`
}

func (ActivityLog) TableName() string {
	return "activity_logs"
}

func (a *ActivityLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = utils.GenerateNanoIDWithPrefix("act", 16)
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = utils.Now()
	}
	return nil
}
