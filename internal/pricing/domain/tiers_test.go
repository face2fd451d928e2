package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func ptr(v int64) *int64 { return &v }

func defaultTiers() []PricingTier {
	return []PricingTier{
		{MinPrice: 0, MaxPrice: ptr(5000), CreditCost: 100},
		{MinPrice: 5000, MaxPrice: ptr(15000), CreditCost: 180},
		{MinPrice: 15000, MaxPrice: ptr(50000), CreditCost: 300},
		{MinPrice: 50000, MaxPrice: nil, CreditCost: 500},
	}
}

func TestValidateTierSet(t *testing.T) {
	cases := []struct {
		name    string
		tiers   []PricingTier
		wantErr error
	}{
		{"default_set", defaultTiers(), nil},
		{"empty", nil, ErrEmptyTierSet},
		{
			"missing_open_end",
			[]PricingTier{{MinPrice: 0, MaxPrice: ptr(5000), CreditCost: 100}},
			ErrTierGap,
		},
		{
			"gap_between_tiers",
			[]PricingTier{
				{MinPrice: 0, MaxPrice: ptr(5000), CreditCost: 100},
				{MinPrice: 6000, MaxPrice: nil, CreditCost: 200},
			},
			ErrTierGap,
		},
		{
			"not_starting_at_zero",
			[]PricingTier{{MinPrice: 100, MaxPrice: nil, CreditCost: 100}},
			ErrTierGap,
		},
		{
			"overlap",
			[]PricingTier{
				{MinPrice: 0, MaxPrice: ptr(5000), CreditCost: 100},
				{MinPrice: 4000, MaxPrice: nil, CreditCost: 200},
			},
			ErrTierOverlap,
		},
		{
			"open_tier_not_last",
			[]PricingTier{
				{MinPrice: 0, MaxPrice: nil, CreditCost: 100},
				{MinPrice: 5000, MaxPrice: nil, CreditCost: 200},
			},
			ErrTierOverlap,
		},
		{
			"inverted_range",
			[]PricingTier{
				{MinPrice: 0, MaxPrice: ptr(0), CreditCost: 100},
				{MinPrice: 0, MaxPrice: nil, CreditCost: 200},
			},
			ErrInvalidTierRange,
		},
		{
			"zero_cost",
			[]PricingTier{{MinPrice: 0, MaxPrice: nil, CreditCost: 0}},
			ErrInvalidCreditCost,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateTierSet(tc.tiers)
			if tc.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestResolveCostBoundaries(t *testing.T) {
	tiers := defaultTiers()

	cases := []struct {
		price int64
		want  int64
	}{
		{0, 100},
		{4999, 100},
		{5000, 180}, // boundary belongs to the upper tier
		{14999, 180},
		{15000, 300},
		{49999, 300},
		{50000, 500},
		{1_000_000, 500}, // open-ended top tier
	}

	for _, tc := range cases {
		cost, err := ResolveCost(tiers, tc.price)
		assert.NoError(t, err)
		assert.Equal(t, tc.want, cost, "price %d", tc.price)
	}

	_, err := ResolveCost(tiers, -1)
	assert.ErrorIs(t, err, ErrInvalidPrice)

	// A gapped set (invalid by construction) surfaces as unresolvable.
	gapped := []PricingTier{
		{MinPrice: 0, MaxPrice: ptr(100), CreditCost: 10},
		{MinPrice: 200, MaxPrice: nil, CreditCost: 20},
	}
	_, err = ResolveCost(gapped, 150)
	assert.ErrorIs(t, err, ErrPriceUnresolvable)
}
