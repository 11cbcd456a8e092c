package market

import (
	"github.com/shopspring/decimal"
)

// Coin is one market record from the data source. PercentChange24 is a
// pointer because the source reports null for freshly listed coins; such
// records are not rankable.
type Coin struct {
	ID              string           `json:"id"`
	Symbol          string           `json:"symbol"`
	Name            string           `json:"name"`
	PercentChange24 *decimal.Decimal `json:"price_change_percentage_24h"`
	PriceUSD        *decimal.Decimal `json:"current_price"`
	MarketCapUSD    *decimal.Decimal `json:"market_cap"`
}
