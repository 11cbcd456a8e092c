package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Prediction categories. A round carries one ranked list per category.
const (
	CategoryTopPerformer   = "top_performer"
	CategoryWorstPerformer = "worst_performer"
)

// RankDepth is how many slots each category ranking carries.
const RankDepth = 5

// Round is one market-data snapshot cycle. Immutable after creation.
type Round struct {
	ID         string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	SnapshotAt time.Time `gorm:"type:timestamptz;not null;index" json:"snapshot_at"`
	CreatedAt  time.Time `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
}

func (Round) TableName() string {
	return "rounds"
}

// RoundEntry is one ranked record within a round. For worst_performer the
// list is stored worst-first, so rank 1 is the single worst coin.
type RoundEntry struct {
	ID      uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	RoundID string `gorm:"type:varchar(64);not null;uniqueIndex:idx_round_category_rank,priority:1" json:"round_id"`

	Category string `gorm:"type:varchar(20);not null;uniqueIndex:idx_round_category_rank,priority:2" json:"category"`
	Rank     int    `gorm:"not null;uniqueIndex:idx_round_category_rank,priority:3" json:"rank"`

	CoinID          string          `gorm:"type:varchar(100);not null" json:"coin_id"`
	Symbol          string          `gorm:"type:varchar(30);not null;index" json:"symbol"`
	Name            string          `gorm:"type:varchar(100)" json:"name"`
	PercentChange24 decimal.Decimal `gorm:"type:numeric(20,10);not null" json:"percent_change_24h"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
}

func (RoundEntry) TableName() string {
	return "round_entries"
}
