package models

import (
	"time"
)

// PipelineLock is the single-flight guard for one pipeline invocation.
// It lives in the database rather than in-process so that overlapping
// scheduled and manual triggers, or two deployed instances, exclude each
// other. A lock whose ExpiresAt has passed may be stolen.
type PipelineLock struct {
	Name      string    `gorm:"type:varchar(50);primaryKey" json:"name"`
	Holder    string    `gorm:"type:varchar(64);not null" json:"holder"`
	LockedAt  time.Time `gorm:"type:timestamptz;not null" json:"locked_at"`
	ExpiresAt time.Time `gorm:"type:timestamptz;not null" json:"expires_at"`
}

func (PipelineLock) TableName() string {
	return "pipeline_locks"
}
