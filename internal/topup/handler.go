package topup

import (
	"errors"
	"net/http"
	"strconv"

	"offerpay/internal/api"
	"offerpay/internal/auth"
	"offerpay/internal/coupon"
	"offerpay/internal/db"
	"offerpay/internal/gateway"
	"offerpay/internal/wallet"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
)

type Handler struct {
	orchestrator *Orchestrator
	settlement   *Settlement
	repo         Repository
}

func NewHandler(database *sqlx.DB, gw gateway.Client) *Handler {
	attempts := NewRepository(database)
	wallets := wallet.NewRepository(database)
	coupons := coupon.NewRepository(database)

	return &Handler{
		orchestrator: NewOrchestrator(database, attempts, wallets, coupons, gw),
		settlement:   NewSettlement(database, attempts, wallets, coupons, gw),
		repo:         attempts,
	}
}

type CreateTopupRequest struct {
	PlanID         string `json:"plan_id"`
	AmountCents    int64  `json:"amount_cents" binding:"omitempty,gt=0"`
	CouponCode     string `json:"coupon_code"`
	IdempotencyKey string `json:"idempotency_key" binding:"omitempty,max=64"`
}

type CreateTopupResponse struct {
	TopUpAttemptID int    `json:"topup_attempt_id"`
	OrderID        string `json:"order_id"`
	FinalCents     int64  `json:"final_cents"`
	CreditCents    int64  `json:"credit_cents"`
	DiscountCents  int64  `json:"discount_cents"`
	BonusCents     int64  `json:"bonus_cents"`
	AlreadyExisted bool   `json:"already_existed,omitempty"`
}

// Create godoc
// @Summary      Create a top-up order
// @Description  Quotes a top-up (plan or free amount, optional coupon) and creates the gateway order.
// @Tags         topup
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body CreateTopupRequest true "Top-up request"
// @Success      201 {object} CreateTopupResponse
// @Failure      400 {object} api.ErrorResponse
// @Failure      502 {object} api.ErrorResponse
// @Router       /topup [post]
func (h *Handler) Create(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.Error(api.CodeValidation, "user not authenticated"))
		return
	}

	var req CreateTopupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.Error(api.CodeValidation, err.Error()))
		return
	}

	result, err := h.orchestrator.CreateTopupOrder(c.Request.Context(), CreateOrderRequest{
		UserID:         userID,
		UserType:       auth.GetUserType(c),
		PlanID:         req.PlanID,
		AmountCents:    req.AmountCents,
		CouponCode:     req.CouponCode,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrNoAmount), errors.Is(err, ErrUnknownPlan),
			errors.Is(err, ErrInvalidCoupon), errors.Is(err, ErrCouponExhausted):
			c.JSON(http.StatusBadRequest, api.Error(api.CodeValidation, err.Error()))
		case errors.Is(err, gateway.ErrOrderRejected):
			c.JSON(http.StatusBadGateway, api.Error(api.CodePayment, "payment gateway rejected the order"))
		case errors.Is(err, db.ErrConflict):
			c.JSON(http.StatusConflict, api.Error(api.CodeConflict, "operation conflicted, retry the request"))
		default:
			c.JSON(http.StatusInternalServerError, api.Error(api.CodeInternal, "failed to create top-up order"))
		}
		return
	}

	status := http.StatusCreated
	if result.AlreadyExisted {
		status = http.StatusOK
	}

	resp := CreateTopupResponse{
		TopUpAttemptID: result.Attempt.ID,
		FinalCents:     result.Attempt.FinalCents,
		CreditCents:    result.Attempt.CreditCents,
		DiscountCents:  result.DiscountCents,
		BonusCents:     result.BonusCents,
		AlreadyExisted: result.AlreadyExisted,
	}
	if result.Attempt.ProviderOrderID != nil {
		resp.OrderID = *result.Attempt.ProviderOrderID
	}

	c.JSON(status, resp)
}

type PaymentStatusResponse struct {
	Status      AttemptStatus `json:"status"`
	FinalCents  int64         `json:"final_cents"`
	CreditCents int64         `json:"credit_cents"`
	CreatedAt   string        `json:"created_at"`
	UpdatedAt   string        `json:"updated_at"`
}

// GetStatus godoc
// @Summary      Top-up status
// @Tags         topup
// @Security     BearerAuth
// @Produce      json
// @Param        orderID path string true "Provider order ID"
// @Success      200 {object} PaymentStatusResponse
// @Failure      404 {object} api.ErrorResponse
// @Router       /topup/{orderID}/status [get]
func (h *Handler) GetStatus(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.Error(api.CodeValidation, "user not authenticated"))
		return
	}

	attempt, err := h.repo.GetByUserAndOrderID(c.Request.Context(), userID, c.Param("orderID"))
	if err != nil {
		if errors.Is(err, ErrAttemptNotFound) {
			c.JSON(http.StatusNotFound, api.Error(api.CodeNotFound, "top-up not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, api.Error(api.CodeInternal, "failed to load top-up"))
		return
	}

	c.JSON(http.StatusOK, PaymentStatusResponse{
		Status:      attempt.Status,
		FinalCents:  attempt.FinalCents,
		CreditCents: attempt.CreditCents,
		CreatedAt:   attempt.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		UpdatedAt:   attempt.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	})
}

type VerifyRequest struct {
	OrderID   string `json:"order_id" binding:"required"`
	PaymentID string `json:"payment_id" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

type VerifyResponse struct {
	Status           AttemptStatus `json:"status"`
	CreditCents      int64         `json:"credit_cents"`
	AlreadyProcessed bool          `json:"already_processed"`
}

// Verify godoc
// @Summary      Verify and settle a payment
// @Description  Synchronous settlement path for client-side checkout confirmation.
// @Tags         topup
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body VerifyRequest true "Checkout result"
// @Success      200 {object} VerifyResponse
// @Failure      400 {object} api.ErrorResponse
// @Failure      404 {object} api.ErrorResponse
// @Router       /topup/verify [post]
func (h *Handler) Verify(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.Error(api.CodeValidation, "user not authenticated"))
		return
	}

	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.Error(api.CodeValidation, err.Error()))
		return
	}

	result, err := h.settlement.VerifyAndSettle(c.Request.Context(), userID, req.OrderID, req.PaymentID, req.Signature)
	if err != nil {
		switch {
		case errors.Is(err, gateway.ErrSignatureMismatch):
			c.JSON(http.StatusBadRequest, api.Error(api.CodePayment, "payment signature mismatch"))
		case errors.Is(err, ErrAttemptNotFound):
			c.JSON(http.StatusNotFound, api.Error(api.CodeNotFound, "top-up not found"))
		default:
			c.JSON(http.StatusInternalServerError, api.Error(api.CodeInternal, "failed to settle payment"))
		}
		return
	}

	c.JSON(http.StatusOK, VerifyResponse{
		Status:           StatusCompleted,
		CreditCents:      result.Attempt.CreditCents,
		AlreadyProcessed: result.AlreadyProcessed,
	})
}

// ListPlans godoc
// @Summary      List top-up plans
// @Tags         topup
// @Security     BearerAuth
// @Produce      json
// @Success      200 {array} Plan
// @Router       /topup/plans [get]
func (h *Handler) ListPlans(c *gin.Context) {
	c.JSON(http.StatusOK, Plans())
}

// ListHistory godoc
// @Summary      Top-up history
// @Tags         topup
// @Security     BearerAuth
// @Produce      json
// @Param        limit  query int false "Page size"
// @Param        offset query int false "Offset"
// @Success      200 {array} Attempt
// @Router       /topup/history [get]
func (h *Handler) ListHistory(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.Error(api.CodeValidation, "user not authenticated"))
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	attempts, err := h.repo.ListByUser(c.Request.Context(), userID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.Error(api.CodeInternal, "failed to load top-up history"))
		return
	}

	c.JSON(http.StatusOK, attempts)
}
