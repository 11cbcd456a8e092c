package service

import (
	"strings"

	"coinpicks/internal/models"
)

// Per-prediction awards.
const (
	PointsExactMatch    = 50
	PointsCategoryMatch = 10
	PointsParticipation = 1
)

// CrossCategoryBonus is the flat award for at least one correct prediction in
// both categories within the same settlement pass.
const CrossCategoryBonus = 50

// RankMap maps a lowercased symbol to its realized rank (1-based) within one
// category of a round.
type RankMap map[string]int

// BuildRankMaps splits a round's entries into one symbol->rank map per
// category. Symbols are lowercased so lookups are case-insensitive.
func BuildRankMaps(entries []models.RoundEntry) (top RankMap, worst RankMap) {
	top = RankMap{}
	worst = RankMap{}
	for _, e := range entries {
		symbol := strings.ToLower(strings.TrimSpace(e.Symbol))
		if symbol == "" {
			continue
		}
		switch e.Category {
		case models.CategoryTopPerformer:
			top[symbol] = e.Rank
		case models.CategoryWorstPerformer:
			worst[symbol] = e.Rank
		}
	}
	return top, worst
}

// ClassifyPrediction scores one prediction against the realized ranking of its
// own category. Cross-category lookups are never performed: a top_performer
// prediction only checks the realized top gainers, and vice versa.
func ClassifyPrediction(row models.PredictionSnapshot, top, worst RankMap) (int64, string) {
	ranks := top
	if row.Category == models.CategoryWorstPerformer {
		ranks = worst
	}
	realized, ok := ranks[strings.ToLower(strings.TrimSpace(row.Symbol))]
	if !ok {
		return PointsParticipation, models.TxParticipation
	}
	if realized == row.Rank {
		return PointsExactMatch, models.TxExactMatch
	}
	return PointsCategoryMatch, models.TxCategoryMatch
}

// ScorePrediction returns just the points for one prediction.
func ScorePrediction(row models.PredictionSnapshot, top, worst RankMap) int64 {
	points, _ := ClassifyPrediction(row, top, worst)
	return points
}

// BonusAward is one triggered parlay or cross-category bonus, with the row ids
// that counted toward it.
type BonusAward struct {
	TxType        string
	Amount        int64
	PredictionIDs []uint64
}

// parlayTierBonus returns the cumulative tier bonus for a category's correct
// count: >=2 -> 25, >=3 -> 75, >=4 -> 200, =5 -> 500.
func parlayTierBonus(correctCount int) int64 {
	var total int64
	if correctCount >= 2 {
		total += 25
	}
	if correctCount >= 3 {
		total += 50
	}
	if correctCount >= 4 {
		total += 125
	}
	if correctCount >= 5 {
		total += 300
	}
	return total
}

// ParlayBonuses computes the tiered per-category bonuses plus the
// cross-category bonus for one user's scored rows in a settlement pass.
// A row counts as correct when its symbol appears anywhere in the realized
// ranking for its own category, regardless of rank. Zero-amount bonuses are
// omitted from the breakdown.
func ParlayBonuses(rows []models.PredictionSnapshot, top, worst RankMap) (int64, []BonusAward) {
	var topCorrect, worstCorrect []uint64
	for _, row := range rows {
		ranks := top
		if row.Category == models.CategoryWorstPerformer {
			ranks = worst
		}
		if _, ok := ranks[strings.ToLower(strings.TrimSpace(row.Symbol))]; !ok {
			continue
		}
		if row.Category == models.CategoryWorstPerformer {
			worstCorrect = append(worstCorrect, row.ID)
		} else {
			topCorrect = append(topCorrect, row.ID)
		}
	}

	var total int64
	var awards []BonusAward
	if bonus := parlayTierBonus(len(topCorrect)); bonus > 0 {
		total += bonus
		awards = append(awards, BonusAward{
			TxType:        models.TxParlayBonusTop,
			Amount:        bonus,
			PredictionIDs: topCorrect,
		})
	}
	if bonus := parlayTierBonus(len(worstCorrect)); bonus > 0 {
		total += bonus
		awards = append(awards, BonusAward{
			TxType:        models.TxParlayBonusWorst,
			Amount:        bonus,
			PredictionIDs: worstCorrect,
		})
	}
	if len(topCorrect) > 0 && len(worstCorrect) > 0 {
		total += CrossCategoryBonus
		awards = append(awards, BonusAward{
			TxType:        models.TxCrossCategoryBonus,
			Amount:        CrossCategoryBonus,
			PredictionIDs: append(append([]uint64{}, topCorrect...), worstCorrect...),
		})
	}
	return total, awards
}
