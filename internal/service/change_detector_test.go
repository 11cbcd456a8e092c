package service

import (
	"context"
	"testing"

	"coinpicks/internal/ledger"
	"coinpicks/internal/models"
)

func mkState(wallet string, slots ...ledger.PredictionSlot) ledger.UserPredictionState {
	return ledger.UserPredictionState{
		Wallet:    wallet,
		Points:    100,
		UpdatedTS: 1700000000,
		Slots:     slots,
	}
}

func TestChangeDetector_Idempotence(t *testing.T) {
	repo := &stubRepo{}
	src := &stubLedger{
		states: []ledger.UserPredictionState{
			mkState("wallet-a", ledger.PredictionSlot{
				Category:     models.CategoryTopPerformer,
				Rank:         1,
				Symbol:       "BTC",
				PredictionTS: 1700000100,
			}),
		},
	}
	d := &ChangeDetector{Repo: repo, Source: src}

	for pass := 0; pass < 2; pass++ {
		if _, err := d.RunOnce(context.Background()); err != nil {
			t.Fatalf("pass %d: err=%v", pass, err)
		}
	}
	if len(repo.predictions) != 1 {
		t.Fatalf("rows=%d want=1", len(repo.predictions))
	}
}

func TestChangeDetector_TimestampChangeInsertsNewRow(t *testing.T) {
	repo := &stubRepo{}
	slot := ledger.PredictionSlot{
		Category:     models.CategoryTopPerformer,
		Rank:         1,
		Symbol:       "BTC",
		PredictionTS: 1700000100,
	}
	src := &stubLedger{states: []ledger.UserPredictionState{mkState("wallet-a", slot)}}
	d := &ChangeDetector{Repo: repo, Source: src}

	if _, err := d.RunOnce(context.Background()); err != nil {
		t.Fatalf("err=%v", err)
	}
	slot.PredictionTS = 1700000200
	src.states = []ledger.UserPredictionState{mkState("wallet-a", slot)}
	if _, err := d.RunOnce(context.Background()); err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(repo.predictions) != 2 {
		t.Fatalf("rows=%d want=2", len(repo.predictions))
	}
}

func TestChangeDetector_SymbolAnomalyStillInserts(t *testing.T) {
	repo := &stubRepo{}
	slot := ledger.PredictionSlot{
		Category:     models.CategoryWorstPerformer,
		Rank:         2,
		Symbol:       "LUNA",
		PredictionTS: 1700000100,
	}
	src := &stubLedger{states: []ledger.UserPredictionState{mkState("wallet-a", slot)}}
	d := &ChangeDetector{Repo: repo, Source: src}

	if _, err := d.RunOnce(context.Background()); err != nil {
		t.Fatalf("err=%v", err)
	}
	// Same timestamp, different symbol: should not happen upstream, but is
	// recorded permissively and counted as an anomaly.
	slot.Symbol = "FTT"
	src.states = []ledger.UserPredictionState{mkState("wallet-a", slot)}
	result, err := d.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if result.Anomalies != 1 {
		t.Fatalf("anomalies=%d want=1", result.Anomalies)
	}
	if len(repo.predictions) != 2 {
		t.Fatalf("rows=%d want=2", len(repo.predictions))
	}

	// Re-observing the identical post-anomaly state must be a no-op: the
	// anomaly row is now the latest for the slot and matches the source.
	result, err = d.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if result.Inserted != 0 || result.Anomalies != 0 {
		t.Fatalf("anomaly re-fired on identical state: %+v", result)
	}
	if result.Duplicates != 1 {
		t.Fatalf("duplicates=%d want=1", result.Duplicates)
	}
	if len(repo.predictions) != 2 {
		t.Fatalf("rows=%d want=2", len(repo.predictions))
	}
}

func TestChangeDetector_SkipsInactiveSlots(t *testing.T) {
	repo := &stubRepo{}
	src := &stubLedger{
		states: []ledger.UserPredictionState{
			mkState("wallet-a",
				ledger.PredictionSlot{Category: models.CategoryTopPerformer, Rank: 1, Symbol: "", PredictionTS: 1700000100},
				ledger.PredictionSlot{Category: models.CategoryTopPerformer, Rank: 2, Symbol: "ETH", PredictionTS: 0},
			),
		},
	}
	d := &ChangeDetector{Repo: repo, Source: src}
	result, err := d.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if result.Observed != 0 {
		t.Fatalf("observed=%d want=0", result.Observed)
	}
	if len(repo.predictions) != 0 {
		t.Fatalf("rows=%d want=0", len(repo.predictions))
	}
}
