package models

// CreditTier maps a domain-rating range to earn and spend pricing.
// Tiers are read-only reference data.
type CreditTier struct {
	DRMin           int `json:"dr_min" db:"dr_min"`
	DRMax           int `json:"dr_max" db:"dr_max"`
	CreditPriceEarn int `json:"credit_price_earn" db:"credit_price_earn"`
	CreditCostSpend int `json:"credit_cost_spend" db:"credit_cost_spend"`
}

// CreditTiers is an ordered tier table.
type CreditTiers []CreditTier

// DefaultCreditTiers is the pricing used when no tier table is stored.
var DefaultCreditTiers = CreditTiers{
	{DRMin: 0, DRMax: 19, CreditPriceEarn: 1, CreditCostSpend: 1},
	{DRMin: 20, DRMax: 39, CreditPriceEarn: 2, CreditCostSpend: 2},
	{DRMin: 40, DRMax: 59, CreditPriceEarn: 3, CreditCostSpend: 4},
	{DRMin: 60, DRMax: 79, CreditPriceEarn: 5, CreditCostSpend: 6},
	{DRMin: 80, DRMax: 100, CreditPriceEarn: 8, CreditCostSpend: 10},
}

func (t CreditTiers) tierFor(dr int) (CreditTier, bool) {
	for _, tier := range t {
		if dr >= tier.DRMin && dr <= tier.DRMax {
			return tier, true
		}
	}
	return CreditTier{}, false
}

// SpendFor returns the credit cost of receiving a link from a site with the
// given domain rating. Falls back to the last tier when out of range.
func (t CreditTiers) SpendFor(dr int) int {
	if tier, ok := t.tierFor(dr); ok {
		return tier.CreditCostSpend
	}
	if len(t) == 0 {
		return 0
	}
	return t[len(t)-1].CreditCostSpend
}

// EarnFor returns the credits earned by hosting a link for a site with the
// given domain rating.
func (t CreditTiers) EarnFor(dr int) int {
	if tier, ok := t.tierFor(dr); ok {
		return tier.CreditPriceEarn
	}
	if len(t) == 0 {
		return 0
	}
	return t[len(t)-1].CreditPriceEarn
}
