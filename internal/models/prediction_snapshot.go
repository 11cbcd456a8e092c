package models

import (
	"fmt"
	"time"
)

// Prediction snapshot lifecycle. A row is created pending, moves to scored once
// points are computed, and to settled only after the external balance update is
// confirmed and the audit transactions are written.
const (
	PredictionPending = "pending"
	PredictionScored  = "scored"
	PredictionSettled = "settled"
)

// PredictionSnapshot is one user's one prediction slot at one point in time.
//
// PredictionTS is the prediction's own timestamp as asserted by the source of
// truth (an on-chain account field) and is the authoritative change marker:
// (wallet, category, rank, prediction_ts) is the dedup key. PointsAtSnapshot
// is a denormalized echo of the external balance at capture time, never the
// authority. Rows are never deleted.
type PredictionSnapshot struct {
	ID uint64 `gorm:"primaryKey;autoIncrement" json:"id"`

	Wallet   string `gorm:"type:varchar(64);not null;uniqueIndex:idx_prediction_dedup,priority:1;index:idx_prediction_slot,priority:1" json:"wallet"`
	Category string `gorm:"type:varchar(20);not null;uniqueIndex:idx_prediction_dedup,priority:2;index:idx_prediction_slot,priority:2" json:"category"`
	Rank     int    `gorm:"not null;uniqueIndex:idx_prediction_dedup,priority:3;index:idx_prediction_slot,priority:3" json:"rank"`
	// Symbol is part of the dedup index so the anomaly path (symbol changed
	// while the source timestamp stayed put) can still record a row.
	Symbol string `gorm:"type:varchar(30);not null;uniqueIndex:idx_prediction_dedup,priority:5" json:"symbol"`

	PredictionTS     int64  `gorm:"not null;uniqueIndex:idx_prediction_dedup,priority:4" json:"prediction_ts"`
	PointsAtSnapshot uint64 `gorm:"not null;default:0" json:"points_at_snapshot"`
	SourceUpdatedTS  int64  `gorm:"not null;default:0" json:"source_updated_ts"`

	SnapshotAt   time.Time `gorm:"type:timestamptz;not null;index" json:"snapshot_at"`
	Status       string    `gorm:"type:varchar(10);not null;default:'pending';index" json:"status"`
	PointsEarned *int64    `json:"points_earned"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (PredictionSnapshot) TableName() string {
	return "prediction_snapshots"
}

// ValidStatusTransition rejects transitions that skip a lifecycle stage,
// in particular settling a row that was never scored.
func ValidStatusTransition(from, to string) error {
	switch {
	case from == PredictionPending && to == PredictionScored:
		return nil
	case from == PredictionScored && to == PredictionScored:
		// Re-score after a settlement retry is allowed.
		return nil
	case from == PredictionScored && to == PredictionSettled:
		return nil
	}
	return fmt.Errorf("invalid prediction status transition %s -> %s", from, to)
}
