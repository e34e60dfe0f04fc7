package coupon

import (
	"strings"
	"time"
)

// Engine is the stateless discount calculator. It never touches the database;
// per-user usage limits are checked by the caller against existing Usage rows.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// NormalizeCode folds a user-supplied code to its canonical form.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsValidForUser checks everything about the instrument that does not depend
// on the purchase amount: active flag, validity window, global usage limit,
// user-type eligibility and the specific-users whitelist.
func (e *Engine) IsValidForUser(c *Coupon, userID int, userType string) bool {
	if c == nil || !c.IsActive || c.IsDeleted {
		return false
	}

	now := time.Now()
	if now.Before(c.ValidFrom) || now.After(c.ValidTill) {
		return false
	}

	if c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit {
		return false
	}

	if len(c.EligibleUserTypes) > 0 {
		eligible := false
		for _, t := range c.EligibleUserTypes {
			if t == "all" || t == userType {
				eligible = true
				break
			}
		}
		if !eligible {
			return false
		}
	}

	if len(c.SpecificUsers) > 0 {
		listed := false
		for _, id := range c.SpecificUsers {
			if int(id) == userID {
				listed = true
				break
			}
		}
		if !listed {
			return false
		}
	}

	return true
}

// Discount is the decomposition of a coupon against a base charge.
// FinalAmountCents is what the user pays; FinalCreditCents is what the wallet
// receives, which exceeds the charge when a bonus applies.
type Discount struct {
	DiscountCents    int64  `json:"discount_cents"`
	BonusCents       int64  `json:"bonus_cents"`
	FinalAmountCents int64  `json:"final_amount_cents"`
	FinalCreditCents int64  `json:"final_credit_cents"`
	Valid            bool   `json:"valid"`
	Reason           string `json:"reason,omitempty"`
}

func invalid(reason string) Discount {
	return Discount{Valid: false, Reason: reason}
}

// CalculateDiscount decomposes baseCents under the instrument's terms. All
// amounts are integer minor currency units; percentage rounding is
// round-half-up; results are never negative.
func (e *Engine) CalculateDiscount(c *Coupon, baseCents int64, planID string) Discount {
	if baseCents <= 0 {
		return invalid("amount must be positive")
	}

	if len(c.ApplicablePlans) > 0 {
		applicable := false
		for _, p := range c.ApplicablePlans {
			if p == planID {
				applicable = true
				break
			}
		}
		if !applicable {
			return invalid("coupon not applicable to this plan")
		}
	}

	if c.MinPurchaseCents > 0 && baseCents < c.MinPurchaseCents {
		return invalid("amount below coupon minimum")
	}

	var discountCents, bonusCents int64

	switch c.DiscountType {
	case DiscountFlat:
		discountCents = c.DiscountValue
		if discountCents > baseCents {
			discountCents = baseCents
		}
	case DiscountPercentage:
		discountCents = (baseCents*c.DiscountValue + 50) / 100
		if c.MaxDiscountCents > 0 && discountCents > c.MaxDiscountCents {
			discountCents = c.MaxDiscountCents
		}
		if discountCents > baseCents {
			discountCents = baseCents
		}
	case DiscountBonus:
		bonusCents = c.DiscountValue
	default:
		return invalid("unknown discount type")
	}

	// A flat instrument-level bonus stacks on top of every type.
	bonusCents += c.BonusCents

	if discountCents < 0 {
		discountCents = 0
	}
	if bonusCents < 0 {
		bonusCents = 0
	}

	return Discount{
		DiscountCents:    discountCents,
		BonusCents:       bonusCents,
		FinalAmountCents: baseCents - discountCents,
		FinalCreditCents: baseCents + bonusCents - discountCents,
		Valid:            true,
	}
}
