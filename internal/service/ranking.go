package service

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"coinpicks/internal/cache"
	"coinpicks/internal/client/market"
	"coinpicks/internal/models"
	"coinpicks/internal/repository"
)

// CacheKeyLatestRanking is where the most recent ranking is mirrored for
// read endpoints.
const CacheKeyLatestRanking = "coinpicks:ranking:latest"

// RankedCoin is one slot of a round's realized ranking.
type RankedCoin struct {
	CoinID          string          `json:"coin_id"`
	Symbol          string          `json:"symbol"`
	Name            string          `json:"name"`
	PercentChange24 decimal.Decimal `json:"percent_change_24h"`
}

// Ranking is the Snapshotter output for one round. WorstPerformers is stored
// worst-first: index 0 is the single worst coin.
type Ranking struct {
	RoundID         string       `json:"round_id"`
	SnapshotAt      time.Time    `json:"snapshot_at"`
	TopGainers      []RankedCoin `json:"top_gainers"`
	WorstPerformers []RankedCoin `json:"worst_performers"`
}

// RankMarkets filters and ranks a market snapshot into the round's top and
// worst performers. Records without a symbol or a 24h change are not rankable.
// With fewer than RankDepth eligible records it returns as many as available;
// downstream scoring treats missing ranks as simply unmatchable.
func RankMarkets(coins []market.Coin) Ranking {
	eligible := make([]RankedCoin, 0, len(coins))
	for _, c := range coins {
		if strings.TrimSpace(c.Symbol) == "" || c.PercentChange24 == nil {
			continue
		}
		eligible = append(eligible, RankedCoin{
			CoinID:          c.ID,
			Symbol:          c.Symbol,
			Name:            c.Name,
			PercentChange24: *c.PercentChange24,
		})
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].PercentChange24.GreaterThan(eligible[j].PercentChange24)
	})

	depth := models.RankDepth
	topN := depth
	if topN > len(eligible) {
		topN = len(eligible)
	}
	top := append([]RankedCoin{}, eligible[:topN]...)

	worstN := depth
	if worstN > len(eligible) {
		worstN = len(eligible)
	}
	worst := make([]RankedCoin, 0, worstN)
	for i := len(eligible) - 1; i >= len(eligible)-worstN; i-- {
		worst = append(worst, eligible[i])
	}

	return Ranking{
		RoundID:         uuid.NewString(),
		SnapshotAt:      time.Now().UTC(),
		TopGainers:      top,
		WorstPerformers: worst,
	}
}

// MarketSource abstracts the market-data API for tests.
type MarketSource interface {
	FetchMarketSnapshot(ctx context.Context) ([]market.Coin, error)
}

// SnapshotService captures one round: fetch the market, rank it, persist the
// round with its entries, and replace the denormalized market cache.
type SnapshotService struct {
	Repo   repository.Repository
	Market MarketSource
	Cache  *cache.Store
	Logger *zap.Logger
}

func (s *SnapshotService) RunOnce(ctx context.Context) (*Ranking, error) {
	if s == nil || s.Repo == nil || s.Market == nil {
		return nil, nil
	}
	coins, err := s.Market.FetchMarketSnapshot(ctx)
	if err != nil {
		s.logWarn("market snapshot fetch failed", err)
		return nil, err
	}

	ranking := RankMarkets(coins)
	round := &models.Round{
		ID:         ranking.RoundID,
		SnapshotAt: ranking.SnapshotAt,
	}
	entries := make([]models.RoundEntry, 0, len(ranking.TopGainers)+len(ranking.WorstPerformers))
	for i, c := range ranking.TopGainers {
		entries = append(entries, models.RoundEntry{
			RoundID:         ranking.RoundID,
			Category:        models.CategoryTopPerformer,
			Rank:            i + 1,
			CoinID:          c.CoinID,
			Symbol:          c.Symbol,
			Name:            c.Name,
			PercentChange24: c.PercentChange24,
		})
	}
	for i, c := range ranking.WorstPerformers {
		entries = append(entries, models.RoundEntry{
			RoundID:         ranking.RoundID,
			Category:        models.CategoryWorstPerformer,
			Rank:            i + 1,
			CoinID:          c.CoinID,
			Symbol:          c.Symbol,
			Name:            c.Name,
			PercentChange24: c.PercentChange24,
		})
	}

	marketRows := make([]models.MarketCoin, 0, len(coins))
	for _, c := range coins {
		if strings.TrimSpace(c.Symbol) == "" || c.PercentChange24 == nil {
			continue
		}
		marketRows = append(marketRows, models.MarketCoin{
			RoundID:         ranking.RoundID,
			CoinID:          c.ID,
			Symbol:          c.Symbol,
			Name:            c.Name,
			PercentChange24: *c.PercentChange24,
			PriceUSD:        c.PriceUSD,
			MarketCapUSD:    c.MarketCapUSD,
		})
	}

	err = s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		if err := s.Repo.InsertRoundTx(ctx, tx, round, entries); err != nil {
			return err
		}
		return s.Repo.ReplaceMarketCoinsTx(ctx, tx, ranking.RoundID, marketRows)
	})
	if err != nil {
		s.logWarn("round persist failed", err, zap.String("round_id", ranking.RoundID))
		return nil, err
	}

	if raw, err := json.Marshal(ranking); err == nil {
		if err := s.Cache.Set(ctx, CacheKeyLatestRanking, raw); err != nil {
			s.logWarn("ranking cache write failed", err)
		}
	}

	if s.Logger != nil {
		s.Logger.Info("round snapshot ok",
			zap.String("round_id", ranking.RoundID),
			zap.Int("coins", len(marketRows)),
			zap.Int("top", len(ranking.TopGainers)),
			zap.Int("worst", len(ranking.WorstPerformers)),
		)
	}
	return &ranking, nil
}

func (s *SnapshotService) logWarn(msg string, err error, fields ...zap.Field) {
	if s == nil || s.Logger == nil {
		return
	}
	s.Logger.Warn(msg, append(fields, zap.Error(err))...)
}
