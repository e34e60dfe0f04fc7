package coupon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validCoupon(dtype DiscountType, value int64) *Coupon {
	now := time.Now()
	return &Coupon{
		ID:            1,
		Code:          "WELCOME",
		DiscountType:  dtype,
		DiscountValue: value,
		ValidFrom:     now.Add(-time.Hour),
		ValidTill:     now.Add(24 * time.Hour),
		IsActive:      true,
	}
}

func TestCalculateDiscount_PercentageClamped(t *testing.T) {
	c := validCoupon(DiscountPercentage, 20)
	c.MaxDiscountCents = 1500

	d := NewEngine().CalculateDiscount(c, 10000, "")

	assert.True(t, d.Valid)
	assert.Equal(t, int64(1500), d.DiscountCents)
	assert.Equal(t, int64(8500), d.FinalAmountCents)
	assert.Equal(t, int64(8500), d.FinalCreditCents)
}

func TestCalculateDiscount_PercentageRoundHalfUp(t *testing.T) {
	c := validCoupon(DiscountPercentage, 15)

	// 15% of 1005 = 150.75 -> 151
	d := NewEngine().CalculateDiscount(c, 1005, "")

	assert.True(t, d.Valid)
	assert.Equal(t, int64(151), d.DiscountCents)
}

func TestCalculateDiscount_FlatNeverExceedsBase(t *testing.T) {
	c := validCoupon(DiscountFlat, 50000)

	d := NewEngine().CalculateDiscount(c, 10000, "")

	assert.True(t, d.Valid)
	assert.Equal(t, int64(10000), d.DiscountCents)
	assert.Equal(t, int64(0), d.FinalAmountCents)
	assert.Equal(t, int64(0), d.FinalCreditCents)
}

func TestCalculateDiscount_BonusAddsCreditWithoutAffectingCharge(t *testing.T) {
	c := validCoupon(DiscountBonus, 500)

	d := NewEngine().CalculateDiscount(c, 10000, "")

	assert.True(t, d.Valid)
	assert.Equal(t, int64(0), d.DiscountCents)
	assert.Equal(t, int64(500), d.BonusCents)
	assert.Equal(t, int64(10000), d.FinalAmountCents)
	assert.Equal(t, int64(10500), d.FinalCreditCents)
}

func TestCalculateDiscount_TopLevelBonusStacks(t *testing.T) {
	c := validCoupon(DiscountPercentage, 10)
	c.BonusCents = 200

	d := NewEngine().CalculateDiscount(c, 10000, "")

	assert.True(t, d.Valid)
	assert.Equal(t, int64(1000), d.DiscountCents)
	assert.Equal(t, int64(200), d.BonusCents)
	assert.Equal(t, int64(9000), d.FinalAmountCents)
	assert.Equal(t, int64(9200), d.FinalCreditCents)
}

func TestCalculateDiscount_PlanRestriction(t *testing.T) {
	c := validCoupon(DiscountFlat, 100)
	c.ApplicablePlans = []string{"gold", "platinum"}

	engine := NewEngine()

	assert.False(t, engine.CalculateDiscount(c, 10000, "silver").Valid)
	assert.False(t, engine.CalculateDiscount(c, 10000, "").Valid)
	assert.True(t, engine.CalculateDiscount(c, 10000, "gold").Valid)
}

func TestCalculateDiscount_MinPurchase(t *testing.T) {
	c := validCoupon(DiscountFlat, 100)
	c.MinPurchaseCents = 5000

	engine := NewEngine()

	assert.False(t, engine.CalculateDiscount(c, 4999, "").Valid)
	assert.True(t, engine.CalculateDiscount(c, 5000, "").Valid)
}

func TestCalculateDiscount_UnknownType(t *testing.T) {
	c := validCoupon("cashback", 100)

	assert.False(t, NewEngine().CalculateDiscount(c, 10000, "").Valid)
}

func TestIsValidForUser(t *testing.T) {
	engine := NewEngine()

	t.Run("active within window", func(t *testing.T) {
		assert.True(t, engine.IsValidForUser(validCoupon(DiscountFlat, 100), 1, "customer"))
	})

	t.Run("inactive", func(t *testing.T) {
		c := validCoupon(DiscountFlat, 100)
		c.IsActive = false
		assert.False(t, engine.IsValidForUser(c, 1, "customer"))
	})

	t.Run("deleted", func(t *testing.T) {
		c := validCoupon(DiscountFlat, 100)
		c.IsDeleted = true
		assert.False(t, engine.IsValidForUser(c, 1, "customer"))
	})

	t.Run("expired", func(t *testing.T) {
		c := validCoupon(DiscountFlat, 100)
		c.ValidTill = time.Now().Add(-time.Minute)
		assert.False(t, engine.IsValidForUser(c, 1, "customer"))
	})

	t.Run("not yet valid", func(t *testing.T) {
		c := validCoupon(DiscountFlat, 100)
		c.ValidFrom = time.Now().Add(time.Hour)
		assert.False(t, engine.IsValidForUser(c, 1, "customer"))
	})

	t.Run("global limit reached", func(t *testing.T) {
		c := validCoupon(DiscountFlat, 100)
		c.UsageLimit = 10
		c.UsedCount = 10
		assert.False(t, engine.IsValidForUser(c, 1, "customer"))
	})

	t.Run("user type wildcard", func(t *testing.T) {
		c := validCoupon(DiscountFlat, 100)
		c.EligibleUserTypes = []string{"all"}
		assert.True(t, engine.IsValidForUser(c, 1, "partner"))
	})

	t.Run("user type mismatch", func(t *testing.T) {
		c := validCoupon(DiscountFlat, 100)
		c.EligibleUserTypes = []string{"partner"}
		assert.False(t, engine.IsValidForUser(c, 1, "customer"))
	})

	t.Run("specific users whitelist", func(t *testing.T) {
		c := validCoupon(DiscountFlat, 100)
		c.SpecificUsers = []int64{7, 8}
		assert.False(t, engine.IsValidForUser(c, 1, "customer"))
		assert.True(t, engine.IsValidForUser(c, 7, "customer"))
	})
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "WELCOME50", NormalizeCode("  welcome50 "))
}
