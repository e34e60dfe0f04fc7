package wallet

import (
	"net/http"
	"strconv"

	"offerpay/internal/api"
	"offerpay/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
)

type Handler struct {
	repo Repository
}

func NewHandler(db *sqlx.DB) *Handler {
	return &Handler{
		repo: NewRepository(db),
	}
}

// GetSummary godoc
// @Summary      Wallet summary
// @Description  Returns the caller's wallet balance, creating the wallet on first access.
// @Tags         wallet
// @Security     BearerAuth
// @Produce      json
// @Success      200 {object} Summary
// @Failure      401 {object} api.ErrorResponse
// @Failure      500 {object} api.ErrorResponse
// @Router       /wallet [get]
func (h *Handler) GetSummary(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.Error(api.CodeValidation, "user not authenticated"))
		return
	}

	w, err := h.repo.EnsureWallet(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.Error(api.CodeInternal, "failed to load wallet"))
		return
	}

	c.JSON(http.StatusOK, Summary{
		BalanceCents:      w.BalanceCents,
		ReservedCents:     w.ReservedCents,
		Currency:          w.Currency,
		Status:            w.Status,
		LastTransactionAt: w.LastTransactionAt,
	})
}

// ListTransactions godoc
// @Summary      Wallet ledger
// @Description  Returns the caller's ledger entries, newest first.
// @Tags         wallet
// @Security     BearerAuth
// @Produce      json
// @Param        limit  query int    false "Page size (max 100)"
// @Param        offset query int    false "Offset"
// @Param        type   query string false "Filter by transaction type"
// @Success      200 {array}  Transaction
// @Failure      401 {object} api.ErrorResponse
// @Failure      500 {object} api.ErrorResponse
// @Router       /wallet/transactions [get]
func (h *Handler) ListTransactions(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.Error(api.CodeValidation, "user not authenticated"))
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	txType := c.Query("type")

	txs, err := h.repo.ListTransactions(c.Request.Context(), userID, limit, offset, txType)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.Error(api.CodeInternal, "failed to load transactions"))
		return
	}

	c.JSON(http.StatusOK, txs)
}
