package coupon

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"offerpay/internal/api"
	"offerpay/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type Handler struct {
	repo   Repository
	engine *Engine
}

func NewHandler(db *sqlx.DB) *Handler {
	return &Handler{
		repo:   NewRepository(db),
		engine: NewEngine(),
	}
}

type ValidateRequest struct {
	Code        string `json:"code" binding:"required"`
	AmountCents int64  `json:"amount_cents" binding:"required,gt=0"`
	PlanID      string `json:"plan_id"`
}

type ValidateResponse struct {
	Code     string   `json:"code"`
	Discount Discount `json:"discount"`
}

// Validate godoc
// @Summary      Validate a top-up coupon
// @Description  Dry-run of the discount calculation. Never mutates settlement state.
// @Tags         coupons
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body ValidateRequest true "Code and base amount"
// @Success      200 {object} ValidateResponse
// @Failure      400 {object} api.ErrorResponse
// @Failure      404 {object} api.ErrorResponse
// @Router       /coupons/validate [post]
func (h *Handler) Validate(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.Error(api.CodeValidation, "user not authenticated"))
		return
	}

	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.Error(api.CodeValidation, "code and positive amount_cents are required"))
		return
	}

	coup, err := h.repo.GetByCode(c.Request.Context(), req.Code)
	if err != nil {
		if errors.Is(err, ErrCouponNotFound) {
			c.JSON(http.StatusNotFound, api.Error(api.CodeNotFound, "coupon not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, api.Error(api.CodeInternal, "failed to load coupon"))
		return
	}

	if !h.engine.IsValidForUser(coup, userID, auth.GetUserType(c)) {
		c.JSON(http.StatusBadRequest, api.Error(api.CodeValidation, "coupon is not valid for this user"))
		return
	}

	if coup.PerUserLimit > 0 {
		used, err := h.repo.CountUserUsages(c.Request.Context(), coup.ID, userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, api.Error(api.CodeInternal, "failed to check coupon usage"))
			return
		}
		if used >= coup.PerUserLimit {
			c.JSON(http.StatusBadRequest, api.Error(api.CodeValidation, "coupon usage limit reached for this user"))
			return
		}
	}

	discount := h.engine.CalculateDiscount(coup, req.AmountCents, req.PlanID)
	if !discount.Valid {
		c.JSON(http.StatusBadRequest, api.Error(api.CodeValidation, discount.Reason))
		return
	}

	c.JSON(http.StatusOK, ValidateResponse{Code: coup.Code, Discount: discount})
}

// ListAvailable godoc
// @Summary      List available coupons
// @Tags         coupons
// @Security     BearerAuth
// @Produce      json
// @Success      200 {array}  Coupon
// @Failure      401 {object} api.ErrorResponse
// @Router       /coupons [get]
func (h *Handler) ListAvailable(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.Error(api.CodeValidation, "user not authenticated"))
		return
	}

	coupons, err := h.repo.ListAvailableForUser(c.Request.Context(), userID, auth.GetUserType(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.Error(api.CodeInternal, "failed to list coupons"))
		return
	}

	c.JSON(http.StatusOK, coupons)
}

// History godoc
// @Summary      Coupon usage history
// @Tags         coupons
// @Security     BearerAuth
// @Produce      json
// @Param        limit  query int false "Page size"
// @Param        offset query int false "Offset"
// @Success      200 {array}  UsageWithCode
// @Router       /coupons/history [get]
func (h *Handler) History(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.Error(api.CodeValidation, "user not authenticated"))
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	history, err := h.repo.ListUsageHistory(c.Request.Context(), userID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.Error(api.CodeInternal, "failed to load coupon history"))
		return
	}

	c.JSON(http.StatusOK, history)
}

type UpsertRequest struct {
	Code              string   `json:"code" binding:"required,min=3,max=32"`
	DiscountType      string   `json:"discount_type" binding:"required,oneof=flat percentage bonus"`
	DiscountValue     int64    `json:"discount_value" binding:"required,gt=0"`
	ApplicablePlans   []string `json:"applicable_plans"`
	MinPurchaseCents  int64    `json:"min_purchase_cents" binding:"gte=0"`
	MaxDiscountCents  int64    `json:"max_discount_cents" binding:"gte=0"`
	BonusCents        int64    `json:"bonus_cents" binding:"gte=0"`
	ValidFrom         time.Time `json:"valid_from" binding:"required"`
	ValidTill         time.Time `json:"valid_till" binding:"required"`
	UsageLimit        int      `json:"usage_limit" binding:"gte=0"`
	PerUserLimit      int      `json:"per_user_limit" binding:"gte=0"`
	EligibleUserTypes []string `json:"eligible_user_types"`
	SpecificUsers     []int64  `json:"specific_users"`
	IsActive          bool     `json:"is_active"`
}

func (req *UpsertRequest) toModel() *Coupon {
	return &Coupon{
		Code:              req.Code,
		DiscountType:      DiscountType(req.DiscountType),
		DiscountValue:     req.DiscountValue,
		ApplicablePlans:   pq.StringArray(req.ApplicablePlans),
		MinPurchaseCents:  req.MinPurchaseCents,
		MaxDiscountCents:  req.MaxDiscountCents,
		BonusCents:        req.BonusCents,
		ValidFrom:         req.ValidFrom,
		ValidTill:         req.ValidTill,
		UsageLimit:        req.UsageLimit,
		PerUserLimit:      req.PerUserLimit,
		EligibleUserTypes: pq.StringArray(req.EligibleUserTypes),
		SpecificUsers:     pq.Int64Array(req.SpecificUsers),
		IsActive:          req.IsActive,
	}
}

// CreateCoupon godoc
// @Summary      Create a top-up coupon
// @Tags         admin
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body UpsertRequest true "Coupon definition"
// @Success      201 {object} Coupon
// @Failure      400 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Router       /admin/coupons [post]
func (h *Handler) CreateCoupon(c *gin.Context) {
	var req UpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.Error(api.CodeValidation, err.Error()))
		return
	}
	if !req.ValidTill.After(req.ValidFrom) {
		c.JSON(http.StatusBadRequest, api.Error(api.CodeValidation, "valid_till must be after valid_from"))
		return
	}

	created, err := h.repo.Create(c.Request.Context(), req.toModel())
	if err != nil {
		c.JSON(http.StatusConflict, api.Error(api.CodeConflict, "coupon code already exists"))
		return
	}

	c.JSON(http.StatusCreated, created)
}

// UpdateCoupon godoc
// @Summary      Update a top-up coupon
// @Tags         admin
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        couponID path int true "Coupon ID"
// @Param        request  body UpsertRequest true "Coupon definition"
// @Success      200 {object} Coupon
// @Failure      400 {object} api.ErrorResponse
// @Failure      404 {object} api.ErrorResponse
// @Router       /admin/coupons/{couponID} [put]
func (h *Handler) UpdateCoupon(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("couponID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, api.Error(api.CodeValidation, "invalid coupon id"))
		return
	}

	var req UpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.Error(api.CodeValidation, err.Error()))
		return
	}

	m := req.toModel()
	m.ID = id
	updated, err := h.repo.Update(c.Request.Context(), m)
	if err != nil {
		if errors.Is(err, ErrCouponNotFound) {
			c.JSON(http.StatusNotFound, api.Error(api.CodeNotFound, "coupon not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, api.Error(api.CodeInternal, "failed to update coupon"))
		return
	}

	c.JSON(http.StatusOK, updated)
}

// DeleteCoupon godoc
// @Summary      Soft-delete a top-up coupon
// @Tags         admin
// @Security     BearerAuth
// @Produce      json
// @Param        couponID path int true "Coupon ID"
// @Success      200 {object} api.MessageResponse
// @Failure      404 {object} api.ErrorResponse
// @Router       /admin/coupons/{couponID} [delete]
func (h *Handler) DeleteCoupon(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("couponID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, api.Error(api.CodeValidation, "invalid coupon id"))
		return
	}

	if err := h.repo.SoftDelete(c.Request.Context(), id); err != nil {
		if errors.Is(err, ErrCouponNotFound) {
			c.JSON(http.StatusNotFound, api.Error(api.CodeNotFound, "coupon not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, api.Error(api.CodeInternal, "failed to delete coupon"))
		return
	}

	c.JSON(http.StatusOK, api.MessageResponse{Message: "coupon deleted"})
}

// ListCoupons godoc
// @Summary      List all coupons
// @Tags         admin
// @Security     BearerAuth
// @Produce      json
// @Param        limit  query int false "Page size"
// @Param        offset query int false "Offset"
// @Success      200 {array} Coupon
// @Router       /admin/coupons [get]
func (h *Handler) ListCoupons(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	coupons, err := h.repo.List(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.Error(api.CodeInternal, "failed to list coupons"))
		return
	}

	c.JSON(http.StatusOK, coupons)
}
