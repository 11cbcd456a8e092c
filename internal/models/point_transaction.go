package models

import (
	"time"

	"gorm.io/datatypes"
)

// Point transaction types, one per award kind.
const (
	TxExactMatch         = "exact_match"
	TxCategoryMatch      = "category_match"
	TxParticipation      = "participation"
	TxParlayBonusTop     = "parlay_bonus_top"
	TxParlayBonusWorst   = "parlay_bonus_worst"
	TxCrossCategoryBonus = "cross_category_bonus"
)

// PointTransaction is the append-only audit record of one point award.
// ConfirmationRef is the external settlement reference shared by every
// transaction written in the same per-user settlement.
type PointTransaction struct {
	ID      uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	Wallet  string `gorm:"type:varchar(64);not null;index" json:"wallet"`
	RoundID string `gorm:"type:varchar(64);not null;index" json:"round_id"`

	TxType string `gorm:"type:varchar(30);not null;index" json:"tx_type"`
	Amount int64  `gorm:"not null" json:"amount"`

	ConfirmationRef string         `gorm:"type:varchar(120);not null;index" json:"confirmation_ref"`
	PredictionIDs   datatypes.JSON `gorm:"type:jsonb" json:"prediction_ids"`
	Metadata        datatypes.JSON `gorm:"type:jsonb" json:"metadata"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
}

func (PointTransaction) TableName() string {
	return "point_transactions"
}
