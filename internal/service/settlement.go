package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"coinpicks/internal/config"
	"coinpicks/internal/ledger"
	"coinpicks/internal/models"
	"coinpicks/internal/repository"
)

// SettlementService resolves eligible predictions against the latest realized
// round and drives the external balance updates. One invocation holds the
// pipeline lock for its whole duration; users are settled strictly
// sequentially because ledger submit+confirm is long-latency and balance
// writes carry absolute totals.
type SettlementService struct {
	Repo     repository.Repository
	Ledger   ledger.Ledger
	Logger   *zap.Logger
	Pipeline config.PipelineConfig
	Config   config.SettlementConfig
}

// PipelineResult is the aggregate outcome of one settlement pass. Per-user
// failures are counted here, never propagated to the scheduler.
type PipelineResult struct {
	EligibleRows  int   `json:"eligible_rows"`
	SettledUsers  int   `json:"settled_users"`
	SettledRows   int   `json:"settled_rows"`
	PointsAwarded int64 `json:"points_awarded"`
	SkippedUsers  int   `json:"skipped_users"`
	Errors        int   `json:"errors"`
	LockHeld      bool  `json:"lock_held"`
}

// ErrPipelineBusy means another invocation holds the single-flight lock.
var ErrPipelineBusy = errors.New("settlement pipeline already running")

func (s *SettlementService) RunOnce(ctx context.Context) (PipelineResult, error) {
	var result PipelineResult
	if s == nil || s.Repo == nil || s.Ledger == nil {
		return result, nil
	}

	lockName := s.Pipeline.LockName
	if lockName == "" {
		lockName = "settlement_pipeline"
	}
	lockTTL := s.Pipeline.LockTTL
	if lockTTL <= 0 {
		lockTTL = 10 * time.Minute
	}
	holder := uuid.NewString()
	acquired, err := s.Repo.AcquirePipelineLock(ctx, lockName, holder, lockTTL)
	if err != nil {
		return result, err
	}
	if !acquired {
		if s.Logger != nil {
			s.Logger.Info("settlement pass skipped, lock held elsewhere")
		}
		return result, ErrPipelineBusy
	}
	result.LockHeld = true
	defer func() {
		// Release on a fresh context: a pass aborted by a canceled run
		// context must not strand the lease until the TTL expires.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Repo.ReleasePipelineLock(releaseCtx, lockName, holder); err != nil {
			s.logWarn("pipeline lock release failed", err)
		}
	}()

	interval := s.Config.ResolutionInterval
	if interval <= 0 {
		interval = time.Hour
	}
	cutoff := time.Now().UTC().Add(-interval)
	rows, err := s.Repo.ListEligiblePredictions(ctx, cutoff)
	if err != nil {
		return result, err
	}
	result.EligibleRows = len(rows)
	if len(rows) == 0 {
		// Stop early: no ledger writes and no zero-amount transactions.
		return result, nil
	}

	round, entries, err := s.Repo.GetLatestRound(ctx)
	if err != nil {
		return result, err
	}
	if round == nil {
		s.logWarn("no realized round available, deferring settlement", nil)
		return result, nil
	}
	top, worst := BuildRankMaps(entries)

	byWallet := map[string][]models.PredictionSnapshot{}
	for _, row := range rows {
		byWallet[row.Wallet] = append(byWallet[row.Wallet], row)
	}
	wallets := make([]string, 0, len(byWallet))
	for wallet := range byWallet {
		wallets = append(wallets, wallet)
	}
	sort.Strings(wallets)

	for _, wallet := range wallets {
		settled, awarded, err := s.settleUser(ctx, wallet, byWallet[wallet], round.ID, top, worst)
		if err != nil {
			if errors.Is(err, ledger.ErrAccountNotFound) {
				result.SkippedUsers++
				continue
			}
			result.Errors++
			s.logWarn("user settlement failed, deferred to next pass", err, zap.String("wallet", wallet))
			continue
		}
		result.SettledUsers++
		result.SettledRows += settled
		result.PointsAwarded += awarded
	}

	if s.Logger != nil {
		s.Logger.Info("settlement pass ok",
			zap.String("round_id", round.ID),
			zap.Int("eligible_rows", result.EligibleRows),
			zap.Int("settled_users", result.SettledUsers),
			zap.Int("settled_rows", result.SettledRows),
			zap.Int64("points_awarded", result.PointsAwarded),
			zap.Int("skipped_users", result.SkippedUsers),
			zap.Int("errors", result.Errors),
		)
	}
	return result, nil
}

// settleUser runs the full load -> compute -> submit -> confirm -> record ->
// mark cycle for one user. Any failure leaves the user's rows unsettled; the
// next pass re-reads the external balance and recomputes, which is why the
// balance update always carries an absolute total.
func (s *SettlementService) settleUser(ctx context.Context, wallet string, rows []models.PredictionSnapshot, roundID string, top, worst RankMap) (int, int64, error) {
	// Crash recovery: rows whose audit transactions already exist were
	// awarded by a previous pass that died before marking them settled.
	// Settle them without awarding again.
	allIDs := make([]uint64, 0, len(rows))
	for _, row := range rows {
		allIDs = append(allIDs, row.ID)
	}
	recorded, err := s.Repo.FilterPredictionIDsWithTransactions(ctx, allIDs)
	if err != nil {
		return 0, 0, err
	}
	if len(recorded) > 0 {
		recoveredIDs := make([]uint64, 0, len(recorded))
		fresh := rows[:0:0]
		for _, row := range rows {
			if _, ok := recorded[row.ID]; ok {
				recoveredIDs = append(recoveredIDs, row.ID)
			} else {
				fresh = append(fresh, row)
			}
		}
		if err := s.Repo.MarkPredictionsSettled(ctx, recoveredIDs); err != nil {
			return 0, 0, err
		}
		s.logWarn("recovered predictions settled without re-award", nil,
			zap.String("wallet", wallet),
			zap.Int("rows", len(recoveredIDs)),
		)
		if len(fresh) == 0 {
			return len(recoveredIDs), 0, nil
		}
		settled, awarded, err := s.settleUser(ctx, wallet, fresh, roundID, top, worst)
		return settled + len(recoveredIDs), awarded, err
	}

	balance, err := s.Ledger.ReadBalance(ctx, wallet)
	if err != nil {
		return 0, 0, err
	}

	type scoredRow struct {
		row    models.PredictionSnapshot
		points int64
		txType string
	}
	scored := make([]scoredRow, 0, len(rows))
	var rowPoints int64
	for _, row := range rows {
		points, txType := ClassifyPrediction(row, top, worst)
		scored = append(scored, scoredRow{row: row, points: points, txType: txType})
		rowPoints += points
	}
	bonusPoints, bonuses := ParlayBonuses(rows, top, worst)
	total := rowPoints + bonusPoints
	if total <= 0 {
		return 0, 0, nil
	}

	for _, sr := range scored {
		if err := s.Repo.MarkPredictionScored(ctx, sr.row.ID, sr.points); err != nil {
			return 0, 0, err
		}
	}

	newTotal := balance + uint64(total)
	ref, err := s.Ledger.SubmitBalanceUpdate(ctx, wallet, newTotal)
	if err != nil {
		return 0, 0, err
	}
	// A timed-out confirmation is a failure; success is never assumed.
	if err := s.Ledger.AwaitConfirmation(ctx, ref); err != nil {
		return 0, 0, err
	}

	txs := make([]models.PointTransaction, 0, len(scored)+len(bonuses))
	ids := make([]uint64, 0, len(scored))
	for _, sr := range scored {
		ids = append(ids, sr.row.ID)
		meta, _ := json.Marshal(map[string]any{
			"symbol":   sr.row.Symbol,
			"category": sr.row.Category,
			"rank":     sr.row.Rank,
		})
		idsJSON, _ := json.Marshal([]uint64{sr.row.ID})
		txs = append(txs, models.PointTransaction{
			Wallet:          wallet,
			RoundID:         roundID,
			TxType:          sr.txType,
			Amount:          sr.points,
			ConfirmationRef: ref,
			PredictionIDs:   datatypes.JSON(idsJSON),
			Metadata:        datatypes.JSON(meta),
		})
	}
	for _, bonus := range bonuses {
		idsJSON, _ := json.Marshal(bonus.PredictionIDs)
		txs = append(txs, models.PointTransaction{
			Wallet:          wallet,
			RoundID:         roundID,
			TxType:          bonus.TxType,
			Amount:          bonus.Amount,
			ConfirmationRef: ref,
			PredictionIDs:   datatypes.JSON(idsJSON),
		})
	}
	if err := s.Repo.InsertPointTransactions(ctx, txs); err != nil {
		return 0, 0, err
	}

	// Mark settled only after the audit trail landed. A crash before this
	// point re-settles these rows next pass against the already-updated
	// balance; the pipeline lock keeps concurrent invocations from widening
	// that window.
	if err := s.Repo.MarkPredictionsSettled(ctx, ids); err != nil {
		return 0, 0, err
	}
	return len(ids), total, nil
}

func (s *SettlementService) logWarn(msg string, err error, fields ...zap.Field) {
	if s == nil || s.Logger == nil {
		return
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	s.Logger.Warn(msg, fields...)
}
