package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"coinpicks/internal/ledger"
	"coinpicks/internal/models"
	"coinpicks/internal/repository"
)

// ChangeDetector snapshots on-chain prediction state into the relational
// store. A slot's own prediction timestamp is the authoritative change marker;
// observing the same state twice writes nothing.
type ChangeDetector struct {
	Repo   repository.Repository
	Source ledger.PredictionSource
	Logger *zap.Logger
}

type DetectResult struct {
	Users      int
	Observed   int
	Inserted   int
	Anomalies  int
	Duplicates int
	Errors     int
}

func (d *ChangeDetector) RunOnce(ctx context.Context) (DetectResult, error) {
	var result DetectResult
	if d == nil || d.Repo == nil || d.Source == nil {
		return result, nil
	}
	states, err := d.Source.FetchAllUserPredictions(ctx)
	if err != nil {
		d.logWarn("prediction state fetch failed", err)
		return result, err
	}
	now := time.Now().UTC()
	result.Users = len(states)
	for _, state := range states {
		wallet := strings.TrimSpace(state.Wallet)
		if wallet == "" {
			continue
		}
		for _, slot := range state.Slots {
			if !slot.Active() {
				// Empty slots (including a blank symbol left with a stale
				// timestamp) are invisible, never persisted as placeholders.
				continue
			}
			result.Observed++
			inserted, anomaly, err := d.detectSlot(ctx, state, slot, now)
			if err != nil {
				result.Errors++
				d.logWarn("slot detection failed", err,
					zap.String("wallet", wallet),
					zap.String("category", slot.Category),
					zap.Int("rank", slot.Rank),
				)
				continue
			}
			if anomaly {
				result.Anomalies++
			}
			if inserted {
				result.Inserted++
			} else {
				result.Duplicates++
			}
		}
	}
	if d.Logger != nil {
		d.Logger.Info("prediction change detection ok",
			zap.Int("users", result.Users),
			zap.Int("observed", result.Observed),
			zap.Int("inserted", result.Inserted),
			zap.Int("anomalies", result.Anomalies),
			zap.Int("duplicates", result.Duplicates),
			zap.Int("errors", result.Errors),
		)
	}
	return result, nil
}

// detectSlot applies the insert-or-skip decision for one observed slot:
//  1. no prior row                       -> insert (new prediction)
//  2. prior prediction_ts differs       -> insert (updated prediction)
//  3. same ts but different symbol      -> insert anyway, flagged as anomaly
//  4. otherwise                          -> no-op
func (d *ChangeDetector) detectSlot(ctx context.Context, state ledger.UserPredictionState, slot ledger.PredictionSlot, now time.Time) (inserted bool, anomaly bool, err error) {
	wallet := strings.TrimSpace(state.Wallet)
	prior, err := d.Repo.GetLatestPredictionSlot(ctx, wallet, slot.Category, slot.Rank)
	if err != nil {
		return false, false, err
	}
	if prior != nil && prior.PredictionTS == slot.PredictionTS {
		if strings.EqualFold(strings.TrimSpace(prior.Symbol), strings.TrimSpace(slot.Symbol)) {
			return false, false, nil
		}
		// Symbol changed without a timestamp change. A well-behaved source
		// never does this; record it permissively rather than reject.
		anomaly = true
		d.logWarn("prediction symbol changed without timestamp change", nil,
			zap.String("wallet", wallet),
			zap.String("category", slot.Category),
			zap.Int("rank", slot.Rank),
			zap.String("old_symbol", prior.Symbol),
			zap.String("new_symbol", slot.Symbol),
		)
	}
	row := &models.PredictionSnapshot{
		Wallet:           wallet,
		Category:         slot.Category,
		Rank:             slot.Rank,
		Symbol:           strings.TrimSpace(slot.Symbol),
		PredictionTS:     slot.PredictionTS,
		PointsAtSnapshot: state.Points,
		SourceUpdatedTS:  state.UpdatedTS,
		SnapshotAt:       now,
		Status:           models.PredictionPending,
	}
	if err := d.Repo.InsertPredictionSnapshot(ctx, row); err != nil {
		return false, anomaly, err
	}
	return true, anomaly, nil
}

func (d *ChangeDetector) logWarn(msg string, err error, fields ...zap.Field) {
	if d == nil || d.Logger == nil {
		return
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	d.Logger.Warn(msg, fields...)
}
