package topup

import "errors"

var ErrUnknownPlan = errors.New("unknown plan")

// Plan is a fixed top-up offer. CreditCents above PriceCents is the built-in
// incentive for the larger packs; free-amount top-ups credit 1:1.
type Plan struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	PriceCents  int64  `json:"price_cents"`
	CreditCents int64  `json:"credit_cents"`
}

func Plans() []Plan {
	return []Plan{
		{
			ID:          "starter",
			Name:        "Starter",
			Description: "Pay 100, get 100 wallet credit",
			PriceCents:  10000,
			CreditCents: 10000,
		},
		{
			ID:          "value",
			Name:        "Value Pack",
			Description: "Pay 500, get 550 wallet credit",
			PriceCents:  50000,
			CreditCents: 55000,
		},
		{
			ID:          "pro",
			Name:        "Pro Pack",
			Description: "Pay 1000, get 1150 wallet credit",
			PriceCents:  100000,
			CreditCents: 115000,
		},
	}
}

func FindPlan(planID string) (Plan, error) {
	for _, p := range Plans() {
		if p.ID == planID {
			return p, nil
		}
	}
	return Plan{}, ErrUnknownPlan
}
