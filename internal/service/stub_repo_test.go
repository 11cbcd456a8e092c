package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"coinpicks/internal/ledger"
	"coinpicks/internal/models"
	"coinpicks/internal/repository"
)

// stubRepo is a test-only in-memory implementation of repository.Repository.
type stubRepo struct {
	rounds      []models.Round
	entries     map[string][]models.RoundEntry
	marketCoins []models.MarketCoin
	predictions []models.PredictionSnapshot
	txs         []models.PointTransaction
	nextID      uint64

	lockHeld   bool
	failSettle bool
}

func (s *stubRepo) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func (s *stubRepo) InsertRoundTx(ctx context.Context, tx *gorm.DB, round *models.Round, entries []models.RoundEntry) error {
	s.rounds = append(s.rounds, *round)
	if s.entries == nil {
		s.entries = map[string][]models.RoundEntry{}
	}
	s.entries[round.ID] = append(s.entries[round.ID], entries...)
	return nil
}

func (s *stubRepo) GetLatestRound(ctx context.Context) (*models.Round, []models.RoundEntry, error) {
	if len(s.rounds) == 0 {
		return nil, nil, nil
	}
	latest := s.rounds[0]
	for _, r := range s.rounds[1:] {
		if r.SnapshotAt.After(latest.SnapshotAt) {
			latest = r
		}
	}
	return &latest, s.entries[latest.ID], nil
}

func (s *stubRepo) ReplaceMarketCoinsTx(ctx context.Context, tx *gorm.DB, roundID string, items []models.MarketCoin) error {
	kept := append([]models.MarketCoin{}, items...)
	s.marketCoins = kept
	return nil
}

func (s *stubRepo) ListMarketCoins(ctx context.Context, limit int) ([]models.MarketCoin, error) {
	return s.marketCoins, nil
}

func (s *stubRepo) GetLatestPredictionSlot(ctx context.Context, wallet, category string, rank int) (*models.PredictionSnapshot, error) {
	var latest *models.PredictionSnapshot
	for i := range s.predictions {
		p := &s.predictions[i]
		if p.Wallet != wallet || p.Category != category || p.Rank != rank {
			continue
		}
		if latest == nil || p.PredictionTS > latest.PredictionTS ||
			(p.PredictionTS == latest.PredictionTS && p.ID > latest.ID) {
			latest = p
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (s *stubRepo) InsertPredictionSnapshot(ctx context.Context, item *models.PredictionSnapshot) error {
	s.nextID++
	item.ID = s.nextID
	s.predictions = append(s.predictions, *item)
	return nil
}

func (s *stubRepo) ListEligiblePredictions(ctx context.Context, cutoff time.Time) ([]models.PredictionSnapshot, error) {
	var out []models.PredictionSnapshot
	for _, p := range s.predictions {
		if p.Status != models.PredictionSettled && p.SnapshotAt.Before(cutoff) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *stubRepo) MarkPredictionScored(ctx context.Context, id uint64, points int64) error {
	for i := range s.predictions {
		if s.predictions[i].ID != id {
			continue
		}
		if err := models.ValidStatusTransition(s.predictions[i].Status, models.PredictionScored); err != nil {
			return err
		}
		s.predictions[i].Status = models.PredictionScored
		s.predictions[i].PointsEarned = &points
		return nil
	}
	return fmt.Errorf("prediction %d not found", id)
}

func (s *stubRepo) MarkPredictionsSettled(ctx context.Context, ids []uint64) error {
	if s.failSettle {
		return fmt.Errorf("simulated settle failure")
	}
	for _, id := range ids {
		for i := range s.predictions {
			if s.predictions[i].ID != id {
				continue
			}
			if s.predictions[i].Status != models.PredictionScored {
				return fmt.Errorf("prediction %d not in scored state", id)
			}
			s.predictions[i].Status = models.PredictionSettled
		}
	}
	return nil
}

func (s *stubRepo) ListPredictions(ctx context.Context, params repository.ListPredictionsParams) ([]models.PredictionSnapshot, error) {
	var out []models.PredictionSnapshot
	for _, p := range s.predictions {
		if params.Wallet != nil && p.Wallet != *params.Wallet {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *stubRepo) InsertPointTransactions(ctx context.Context, items []models.PointTransaction) error {
	s.txs = append(s.txs, items...)
	return nil
}

func (s *stubRepo) ListPointTransactions(ctx context.Context, params repository.ListTransactionsParams) ([]models.PointTransaction, error) {
	var out []models.PointTransaction
	for _, tx := range s.txs {
		if params.Wallet != nil && tx.Wallet != *params.Wallet {
			continue
		}
		if params.TxType != nil && tx.TxType != *params.TxType {
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

func (s *stubRepo) FilterPredictionIDsWithTransactions(ctx context.Context, ids []uint64) (map[uint64]struct{}, error) {
	out := map[uint64]struct{}{}
	for _, tx := range s.txs {
		var txIDs []uint64
		if len(tx.PredictionIDs) > 0 {
			_ = json.Unmarshal(tx.PredictionIDs, &txIDs)
		}
		for _, txID := range txIDs {
			for _, id := range ids {
				if id == txID {
					out[id] = struct{}{}
				}
			}
		}
	}
	return out, nil
}

func (s *stubRepo) AcquirePipelineLock(ctx context.Context, name, holder string, ttl time.Duration) (bool, error) {
	if s.lockHeld {
		return false, nil
	}
	s.lockHeld = true
	return true, nil
}

func (s *stubRepo) ReleasePipelineLock(ctx context.Context, name, holder string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.lockHeld = false
	return nil
}

// stubLedger is a test-only ledger gateway. Confirmed submissions are applied
// to the balances map, mirroring the absolute-value write semantics.
type stubLedger struct {
	balances   map[string]uint64
	states     []ledger.UserPredictionState
	submitErr  error
	confirmErr error
	submitted  []string
	refSeq     int
	pending    map[string]struct {
		wallet string
		total  uint64
	}
}

func (l *stubLedger) ReadBalance(ctx context.Context, wallet string) (uint64, error) {
	balance, ok := l.balances[wallet]
	if !ok {
		return 0, ledger.ErrAccountNotFound
	}
	return balance, nil
}

func (l *stubLedger) SubmitBalanceUpdate(ctx context.Context, wallet string, newTotal uint64) (string, error) {
	if l.submitErr != nil {
		return "", l.submitErr
	}
	l.refSeq++
	ref := fmt.Sprintf("ref-%d", l.refSeq)
	if l.pending == nil {
		l.pending = map[string]struct {
			wallet string
			total  uint64
		}{}
	}
	l.pending[ref] = struct {
		wallet string
		total  uint64
	}{wallet: wallet, total: newTotal}
	l.submitted = append(l.submitted, ref)
	return ref, nil
}

func (l *stubLedger) AwaitConfirmation(ctx context.Context, ref string) error {
	if l.confirmErr != nil {
		return l.confirmErr
	}
	p, ok := l.pending[ref]
	if !ok {
		return fmt.Errorf("unknown ref %s", ref)
	}
	l.balances[p.wallet] = p.total
	return nil
}

func (l *stubLedger) FetchAllUserPredictions(ctx context.Context) ([]ledger.UserPredictionState, error) {
	return l.states, nil
}
