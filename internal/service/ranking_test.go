package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"

	"coinpicks/internal/client/market"
)

func mkCoins(changes ...float64) []market.Coin {
	coins := make([]market.Coin, 0, len(changes))
	for i, change := range changes {
		d := decimal.NewFromFloat(change)
		coins = append(coins, market.Coin{
			ID:              fmt.Sprintf("coin-%d", i),
			Symbol:          fmt.Sprintf("C%d", i),
			Name:            fmt.Sprintf("Coin %d", i),
			PercentChange24: &d,
		})
	}
	return coins
}

func TestRankMarkets_Determinism(t *testing.T) {
	// Distinct changes, deliberately unsorted.
	coins := mkCoins(3.5, -8.0, 12.1, 0.4, -2.2, 7.7, -15.3, 22.0, 1.1, -0.6)
	ranking := RankMarkets(coins)

	wantTop := []string{"C7", "C2", "C5", "C0", "C8"}
	if len(ranking.TopGainers) != 5 {
		t.Fatalf("top=%d want=5", len(ranking.TopGainers))
	}
	for i, want := range wantTop {
		if ranking.TopGainers[i].Symbol != want {
			t.Fatalf("top[%d]=%s want=%s", i, ranking.TopGainers[i].Symbol, want)
		}
	}

	// Worst-first: index 0 is the single worst coin.
	wantWorst := []string{"C6", "C1", "C4", "C9", "C3"}
	if len(ranking.WorstPerformers) != 5 {
		t.Fatalf("worst=%d want=5", len(ranking.WorstPerformers))
	}
	for i, want := range wantWorst {
		if ranking.WorstPerformers[i].Symbol != want {
			t.Fatalf("worst[%d]=%s want=%s", i, ranking.WorstPerformers[i].Symbol, want)
		}
	}

	if ranking.RoundID == "" {
		t.Fatalf("round id is empty")
	}
}

func TestRankMarkets_InsufficientInput(t *testing.T) {
	coins := mkCoins(5.0, -3.0, 1.0)
	ranking := RankMarkets(coins)
	if len(ranking.TopGainers) != 3 {
		t.Fatalf("top=%d want=3", len(ranking.TopGainers))
	}
	if len(ranking.WorstPerformers) != 3 {
		t.Fatalf("worst=%d want=3", len(ranking.WorstPerformers))
	}
	if ranking.TopGainers[0].Symbol != "C0" {
		t.Fatalf("top[0]=%s want=C0", ranking.TopGainers[0].Symbol)
	}
	if ranking.WorstPerformers[0].Symbol != "C1" {
		t.Fatalf("worst[0]=%s want=C1", ranking.WorstPerformers[0].Symbol)
	}
}

func TestRankMarkets_SkipsUnrankable(t *testing.T) {
	coins := mkCoins(4.0, 2.0, -1.0, 3.0, 0.5, -2.5)
	coins = append(coins, market.Coin{ID: "nochange", Symbol: "NC"})
	coins = append(coins, market.Coin{ID: "nosymbol", PercentChange24: decPtr(9.9)})
	ranking := RankMarkets(coins)
	for _, c := range ranking.TopGainers {
		if c.Symbol == "NC" || c.CoinID == "nosymbol" {
			t.Fatalf("unrankable coin made it into the ranking: %+v", c)
		}
	}
}

func decPtr(v float64) *decimal.Decimal {
	d := decimal.NewFromFloat(v)
	return &d
}

type stubMarket struct {
	coins []market.Coin
	err   error
}

func (m *stubMarket) FetchMarketSnapshot(ctx context.Context) ([]market.Coin, error) {
	return m.coins, m.err
}

func TestSnapshotService_RunOnce(t *testing.T) {
	repo := &stubRepo{}
	src := &stubMarket{coins: mkCoins(3.5, -8.0, 12.1, 0.4, -2.2, 7.7, -15.3, 22.0, 1.1, -0.6)}
	svc := &SnapshotService{Repo: repo, Market: src}

	ranking, err := svc.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if ranking == nil {
		t.Fatalf("ranking is nil")
	}
	if len(repo.rounds) != 1 || repo.rounds[0].ID != ranking.RoundID {
		t.Fatalf("rounds=%+v", repo.rounds)
	}
	entries := repo.entries[ranking.RoundID]
	if len(entries) != 10 {
		t.Fatalf("entries=%d want=10", len(entries))
	}
	for _, e := range entries {
		if e.Rank < 1 || e.Rank > 5 {
			t.Fatalf("entry rank out of range: %+v", e)
		}
	}
	if len(repo.marketCoins) != 10 {
		t.Fatalf("market coins=%d want=10", len(repo.marketCoins))
	}

	round, got, err := repo.GetLatestRound(context.Background())
	if err != nil || round == nil {
		t.Fatalf("round=%v err=%v", round, err)
	}
	if len(got) != 10 {
		t.Fatalf("round entries=%d want=10", len(got))
	}
}

func TestSnapshotService_FetchFailureWritesNothing(t *testing.T) {
	repo := &stubRepo{}
	src := &stubMarket{err: fmt.Errorf("upstream 503")}
	svc := &SnapshotService{Repo: repo, Market: src}

	if _, err := svc.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if len(repo.rounds) != 0 || len(repo.marketCoins) != 0 {
		t.Fatalf("partial write: rounds=%d coins=%d", len(repo.rounds), len(repo.marketCoins))
	}
}
