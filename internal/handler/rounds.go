package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"coinpicks/internal/cache"
	"coinpicks/internal/models"
	"coinpicks/internal/repository"
	"coinpicks/internal/service"
)

type RoundHandler struct {
	Repo  repository.Repository
	Cache *cache.Store
}

func (h *RoundHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1")
	group.GET("/rounds/latest", h.latest)
	group.GET("/market", h.market)
}

func (h *RoundHandler) latest(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	// Read-through: the snapshotter mirrors each new ranking into the cache.
	if raw, ok, err := h.Cache.Get(c.Request.Context(), service.CacheKeyLatestRanking); err == nil && ok {
		var ranking service.Ranking
		if err := json.Unmarshal(raw, &ranking); err == nil {
			Ok(c, ranking, map[string]any{"source": "cache"})
			return
		}
	}
	round, entries, err := h.Repo.GetLatestRound(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if round == nil {
		Error(c, http.StatusNotFound, "no round captured yet", nil)
		return
	}
	ranking := service.Ranking{
		RoundID:    round.ID,
		SnapshotAt: round.SnapshotAt,
	}
	for _, e := range entries {
		coin := service.RankedCoin{
			CoinID:          e.CoinID,
			Symbol:          e.Symbol,
			Name:            e.Name,
			PercentChange24: e.PercentChange24,
		}
		switch e.Category {
		case models.CategoryTopPerformer:
			ranking.TopGainers = append(ranking.TopGainers, coin)
		case models.CategoryWorstPerformer:
			ranking.WorstPerformers = append(ranking.WorstPerformers, coin)
		}
	}
	// Write-back so reads before the next snapshot stop hitting the DB.
	if raw, err := json.Marshal(ranking); err == nil {
		_ = h.Cache.Set(c.Request.Context(), service.CacheKeyLatestRanking, raw)
	}
	Ok(c, ranking, map[string]any{"source": "db"})
}

func (h *RoundHandler) market(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			limit = v
		}
	}
	coins, err := h.Repo.ListMarketCoins(c.Request.Context(), limit)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, coins, map[string]any{"count": len(coins)})
}
