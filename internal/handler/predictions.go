package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"coinpicks/internal/repository"
)

type PredictionHandler struct {
	Repo repository.Repository
}

func (h *PredictionHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1")
	group.GET("/predictions/:wallet", h.byWallet)
	group.GET("/transactions", h.transactions)
}

func (h *PredictionHandler) byWallet(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	wallet := strings.TrimSpace(c.Param("wallet"))
	if wallet == "" {
		Error(c, http.StatusBadRequest, "wallet required", nil)
		return
	}
	params := repository.ListPredictionsParams{
		Wallet: &wallet,
		Limit:  parseIntQuery(c, "limit", 100),
		Offset: parseIntQuery(c, "offset", 0),
	}
	if status := strings.TrimSpace(c.Query("status")); status != "" {
		params.Status = &status
	}
	if category := strings.TrimSpace(c.Query("category")); category != "" {
		params.Category = &category
	}
	items, err := h.Repo.ListPredictions(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"count": len(items)})
}

func (h *PredictionHandler) transactions(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	params := repository.ListTransactionsParams{
		Limit:  parseIntQuery(c, "limit", 100),
		Offset: parseIntQuery(c, "offset", 0),
	}
	if wallet := strings.TrimSpace(c.Query("wallet")); wallet != "" {
		params.Wallet = &wallet
	}
	if roundID := strings.TrimSpace(c.Query("round_id")); roundID != "" {
		params.RoundID = &roundID
	}
	if txType := strings.TrimSpace(c.Query("tx_type")); txType != "" {
		params.TxType = &txType
	}
	items, err := h.Repo.ListPointTransactions(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"count": len(items)})
}

func parseIntQuery(c *gin.Context, key string, def int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
