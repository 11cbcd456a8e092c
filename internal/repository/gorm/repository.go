package gormrepository

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"coinpicks/internal/models"
	"coinpicks/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- Rounds ------------------------------------------------------------------

func (s *Store) InsertRoundTx(ctx context.Context, tx *gorm.DB, round *models.Round, entries []models.RoundEntry) error {
	if s == nil || tx == nil || round == nil {
		return nil
	}
	if err := tx.WithContext(ctx).Create(round).Error; err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Create(&entries).Error
}

func (s *Store) GetLatestRound(ctx context.Context) (*models.Round, []models.RoundEntry, error) {
	if s == nil || s.db == nil {
		return nil, nil, nil
	}
	var round models.Round
	err := s.db.WithContext(ctx).
		Model(&models.Round{}).
		Order("snapshot_at desc").
		First(&round).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	var entries []models.RoundEntry
	if err := s.db.WithContext(ctx).
		Model(&models.RoundEntry{}).
		Where("round_id = ?", round.ID).
		Order("category asc, rank asc").
		Find(&entries).Error; err != nil {
		return nil, nil, err
	}
	return &round, entries, nil
}

func (s *Store) ReplaceMarketCoinsTx(ctx context.Context, tx *gorm.DB, roundID string, items []models.MarketCoin) error {
	if s == nil || tx == nil || strings.TrimSpace(roundID) == "" {
		return nil
	}
	// Insert the new round's rows first, then drop stale rows, so a concurrent
	// reader never observes an empty table between rounds.
	if len(items) > 0 {
		if err := tx.WithContext(ctx).CreateInBatches(&items, 200).Error; err != nil {
			return err
		}
	}
	return tx.WithContext(ctx).
		Where("round_id <> ?", roundID).
		Delete(&models.MarketCoin{}).Error
}

func (s *Store) ListMarketCoins(ctx context.Context, limit int) ([]models.MarketCoin, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	limit = normalizeLimit(limit, 200)
	var items []models.MarketCoin
	if err := s.db.WithContext(ctx).
		Model(&models.MarketCoin{}).
		Order("percent_change_24h desc").
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Prediction snapshots ----------------------------------------------------

func (s *Store) GetLatestPredictionSlot(ctx context.Context, wallet, category string, rank int) (*models.PredictionSnapshot, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.PredictionSnapshot
	// Ties on prediction_ts happen when an anomaly row was recorded for the
	// same source timestamp; the newest row must win or the anomaly re-fires
	// on every pass.
	err := s.db.WithContext(ctx).
		Model(&models.PredictionSnapshot{}).
		Where("wallet = ?", wallet).
		Where("category = ?", category).
		Where("rank = ?", rank).
		Order("prediction_ts desc, id desc").
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) InsertPredictionSnapshot(ctx context.Context, item *models.PredictionSnapshot) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListEligiblePredictions(ctx context.Context, cutoff time.Time) ([]models.PredictionSnapshot, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.PredictionSnapshot
	if err := s.db.WithContext(ctx).
		Model(&models.PredictionSnapshot{}).
		Where("status <> ?", models.PredictionSettled).
		Where("snapshot_at < ?", cutoff).
		Order("wallet asc, category asc, rank asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) MarkPredictionScored(ctx context.Context, id uint64, points int64) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item models.PredictionSnapshot
		if err := tx.First(&item, id).Error; err != nil {
			return err
		}
		if err := models.ValidStatusTransition(item.Status, models.PredictionScored); err != nil {
			return err
		}
		return tx.Model(&models.PredictionSnapshot{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"status":        models.PredictionScored,
				"points_earned": points,
			}).Error
	})
}

func (s *Store) MarkPredictionsSettled(ctx context.Context, ids []uint64) error {
	if s == nil || s.db == nil || len(ids) == 0 {
		return nil
	}
	res := s.db.WithContext(ctx).
		Model(&models.PredictionSnapshot{}).
		Where("id IN ?", ids).
		Where("status = ?", models.PredictionScored).
		Update("status", models.PredictionSettled)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != int64(len(ids)) {
		return errors.New("settle touched fewer rows than expected: some rows were not in scored state")
	}
	return nil
}

func (s *Store) ListPredictions(ctx context.Context, params repository.ListPredictionsParams) ([]models.PredictionSnapshot, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.PredictionSnapshot{})
	if params.Wallet != nil && strings.TrimSpace(*params.Wallet) != "" {
		query = query.Where("wallet = ?", strings.TrimSpace(*params.Wallet))
	}
	if params.Category != nil && strings.TrimSpace(*params.Category) != "" {
		query = query.Where("category = ?", strings.TrimSpace(*params.Category))
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.PredictionSnapshot
	if err := query.
		Order("snapshot_at desc").
		Limit(limit).
		Offset(offset).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Audit trail -------------------------------------------------------------

func (s *Store) InsertPointTransactions(ctx context.Context, items []models.PointTransaction) error {
	if s == nil || s.db == nil || len(items) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).CreateInBatches(&items, 100).Error
}

// FilterPredictionIDsWithTransactions returns the subset of prediction row
// ids that already appear in a recorded point transaction. Settlement uses it
// to recover from a crash between recording the trail and marking rows
// settled without awarding the same rows twice.
func (s *Store) FilterPredictionIDsWithTransactions(ctx context.Context, ids []uint64) (map[uint64]struct{}, error) {
	out := map[uint64]struct{}{}
	if s == nil || s.db == nil || len(ids) == 0 {
		return out, nil
	}
	for _, id := range ids {
		raw, err := json.Marshal([]uint64{id})
		if err != nil {
			return nil, err
		}
		var count int64
		if err := s.db.WithContext(ctx).
			Model(&models.PointTransaction{}).
			Where("prediction_ids @> ?::jsonb", string(raw)).
			Count(&count).Error; err != nil {
			return nil, err
		}
		if count > 0 {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

func (s *Store) ListPointTransactions(ctx context.Context, params repository.ListTransactionsParams) ([]models.PointTransaction, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.PointTransaction{})
	if params.Wallet != nil && strings.TrimSpace(*params.Wallet) != "" {
		query = query.Where("wallet = ?", strings.TrimSpace(*params.Wallet))
	}
	if params.RoundID != nil && strings.TrimSpace(*params.RoundID) != "" {
		query = query.Where("round_id = ?", strings.TrimSpace(*params.RoundID))
	}
	if params.TxType != nil && strings.TrimSpace(*params.TxType) != "" {
		query = query.Where("tx_type = ?", strings.TrimSpace(*params.TxType))
	}
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.PointTransaction
	if err := query.
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Pipeline lock -----------------------------------------------------------

func (s *Store) AcquirePipelineLock(ctx context.Context, name, holder string, ttl time.Duration) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	now := time.Now().UTC()
	item := models.PipelineLock{
		Name:      name,
		Holder:    holder,
		LockedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&item)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 1 {
		return true, nil
	}
	// Row exists: steal only if the previous holder's lease expired.
	res = s.db.WithContext(ctx).
		Model(&models.PipelineLock{}).
		Where("name = ?", name).
		Where("expires_at < ?", now).
		Updates(map[string]any{
			"holder":     holder,
			"locked_at":  now,
			"expires_at": now.Add(ttl),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) ReleasePipelineLock(ctx context.Context, name, holder string) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).
		Where("name = ?", name).
		Where("holder = ?", holder).
		Delete(&models.PipelineLock{}).Error
}

// --- helpers -----------------------------------------------------------------

func normalizeLimit(limit, def int) int {
	if limit <= 0 || limit > 1000 {
		return def
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
