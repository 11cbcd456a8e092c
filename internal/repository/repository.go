package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"coinpicks/internal/models"
)

type ListTransactionsParams struct {
	Limit   int
	Offset  int
	Wallet  *string
	RoundID *string
	TxType  *string
}

type ListPredictionsParams struct {
	Limit    int
	Offset   int
	Wallet   *string
	Category *string
	Status   *string
}

// Repository is the persistence boundary of the scoring/settlement pipeline.
type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Rounds and the denormalized market cache.
	InsertRoundTx(ctx context.Context, tx *gorm.DB, round *models.Round, entries []models.RoundEntry) error
	GetLatestRound(ctx context.Context) (*models.Round, []models.RoundEntry, error)
	ReplaceMarketCoinsTx(ctx context.Context, tx *gorm.DB, roundID string, items []models.MarketCoin) error
	ListMarketCoins(ctx context.Context, limit int) ([]models.MarketCoin, error)

	// Prediction snapshots.
	GetLatestPredictionSlot(ctx context.Context, wallet, category string, rank int) (*models.PredictionSnapshot, error)
	InsertPredictionSnapshot(ctx context.Context, item *models.PredictionSnapshot) error
	ListEligiblePredictions(ctx context.Context, cutoff time.Time) ([]models.PredictionSnapshot, error)
	MarkPredictionScored(ctx context.Context, id uint64, points int64) error
	MarkPredictionsSettled(ctx context.Context, ids []uint64) error
	ListPredictions(ctx context.Context, params ListPredictionsParams) ([]models.PredictionSnapshot, error)

	// Audit trail.
	InsertPointTransactions(ctx context.Context, items []models.PointTransaction) error
	ListPointTransactions(ctx context.Context, params ListTransactionsParams) ([]models.PointTransaction, error)
	FilterPredictionIDsWithTransactions(ctx context.Context, ids []uint64) (map[uint64]struct{}, error)

	// Single-flight pipeline lock.
	AcquirePipelineLock(ctx context.Context, name, holder string, ttl time.Duration) (bool, error)
	ReleasePipelineLock(ctx context.Context, name, holder string) error
}
