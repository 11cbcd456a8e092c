package ledger

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrAccountNotFound is returned by ReadBalance when the external ledger has
// no record for a wallet. Settlement skips such users and retries later.
var ErrAccountNotFound = errors.New("ledger: account not found")

// PredictionSlot is one (category, rank) slot of a user's on-chain prediction
// state as observed from the source of truth.
type PredictionSlot struct {
	Category        string          `json:"category"`
	Rank            int             `json:"rank"`
	Symbol          string          `json:"symbol"`
	PredictionTS    int64           `json:"prediction_ts"`
	ResolutionPrice decimal.Decimal `json:"resolution_price"`
}

// Active reports whether the slot holds an unresolved prediction: a non-blank
// symbol, a positive prediction timestamp, and no resolution price yet.
// A blank symbol with a stale non-zero timestamp is treated as invisible.
func (s PredictionSlot) Active() bool {
	return strings.TrimSpace(s.Symbol) != "" && s.PredictionTS > 0 && s.ResolutionPrice.IsZero()
}

// UserPredictionState is one user's full observed prediction state plus the
// balance echo captured at observation time.
type UserPredictionState struct {
	Wallet    string           `json:"wallet"`
	Points    uint64           `json:"points"`
	UpdatedTS int64            `json:"updated_ts"`
	Slots     []PredictionSlot `json:"slots"`
}

// Ledger is the external, authoritative store of user point balances.
// Balance updates carry the absolute new total, not a delta, so a retried
// submission cannot double-count.
type Ledger interface {
	ReadBalance(ctx context.Context, wallet string) (uint64, error)
	SubmitBalanceUpdate(ctx context.Context, wallet string, newTotal uint64) (string, error)
	AwaitConfirmation(ctx context.Context, ref string) error
}

// PredictionSource reads all users' current prediction state from the source
// of truth.
type PredictionSource interface {
	FetchAllUserPredictions(ctx context.Context) ([]UserPredictionState, error)
}
