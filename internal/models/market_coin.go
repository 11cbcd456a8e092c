package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketCoin is the denormalized full-market cache backing read endpoints.
// The table is fully replaced every round: the new round's rows are inserted
// first and stale rows deleted after, so a reader never observes an empty table.
type MarketCoin struct {
	ID      uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	RoundID string `gorm:"type:varchar(64);not null;index" json:"round_id"`

	CoinID          string           `gorm:"type:varchar(100);not null;index" json:"coin_id"`
	Symbol          string           `gorm:"type:varchar(30);not null;index" json:"symbol"`
	Name            string           `gorm:"type:varchar(100)" json:"name"`
	PercentChange24 decimal.Decimal  `gorm:"type:numeric(20,10);not null" json:"percent_change_24h"`
	PriceUSD        *decimal.Decimal `gorm:"type:numeric(30,12)" json:"price_usd"`
	MarketCapUSD    *decimal.Decimal `gorm:"type:numeric(30,2)" json:"market_cap_usd"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
}

func (MarketCoin) TableName() string {
	return "market_coins"
}
