package domain

import (
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
)

// PricingTier maps a package price range to a fixed credit cost. Ranges
// are half-open: [MinPrice, MaxPrice), with a nil MaxPrice meaning +inf.
type PricingTier struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	MinPrice   int64        `json:"min_price" gorm:"not null"`
	MaxPrice   *int64       `json:"max_price,omitempty" gorm:""`
	CreditCost int64        `json:"credit_cost" gorm:"not null"`
	Active     bool         `json:"active" gorm:"not null;default:true;index"`
	CreatedAt  time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PricingTier) TableName() string { return "lead_pricing_tiers" }

// Contains reports whether price falls inside the tier range.
func (t PricingTier) Contains(price int64) bool {
	if price < t.MinPrice {
		return false
	}
	if t.MaxPrice == nil {
		return true
	}
	return price < *t.MaxPrice
}

// ValidateTierSet checks that the active ranges are pairwise disjoint and
// cover every non-negative price. A gap or overlap is a configuration
// defect and must be rejected before the set takes effect.
func ValidateTierSet(tiers []PricingTier) error {
	if len(tiers) == 0 {
		return ErrEmptyTierSet
	}

	sorted := make([]PricingTier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MinPrice < sorted[j].MinPrice })

	next := int64(0)
	for i, tier := range sorted {
		if tier.CreditCost <= 0 {
			return ErrInvalidCreditCost
		}
		if tier.MinPrice < next {
			return ErrTierOverlap
		}
		if tier.MinPrice > next {
			return ErrTierGap
		}
		if tier.MaxPrice == nil {
			if i != len(sorted)-1 {
				return ErrTierOverlap
			}
			return nil
		}
		if *tier.MaxPrice <= tier.MinPrice {
			return ErrInvalidTierRange
		}
		next = *tier.MaxPrice
	}

	// The highest tier stopped short of +inf.
	return ErrTierGap
}

// ResolveCost finds the one tier containing price in a validated, sorted
// set. The search is pure so it stays unit-testable apart from storage.
func ResolveCost(sorted []PricingTier, price int64) (int64, error) {
	if price < 0 {
		return 0, ErrInvalidPrice
	}

	lo, hi := 0, len(sorted)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		tier := sorted[mid]
		switch {
		case tier.Contains(price):
			return tier.CreditCost, nil
		case price < tier.MinPrice:
			hi = mid - 1
		default:
			lo = mid + 1
		}
	}

	return 0, ErrPriceUnresolvable
}
