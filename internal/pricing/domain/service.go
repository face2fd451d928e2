package domain

import (
	"context"
	"errors"
	"time"
)

type Service interface {
	// Resolve maps a package price to its credit cost using the active
	// tier set. A configuration gap surfaces as ErrPriceUnresolvable.
	Resolve(ctx context.Context, price int64) (int64, error)

	List(ctx context.Context) ([]TierResponse, error)

	// Replace installs a new active tier set after validating coverage.
	// The previous set is deactivated, never deleted, and the change is
	// audit-logged with old and new values.
	Replace(ctx context.Context, req ReplaceRequest) ([]TierResponse, error)

	// Seed installs the bootstrap tier set when no active tiers exist.
	Seed(ctx context.Context) error
}

type TierInput struct {
	MinPrice   int64  `json:"min_price"`
	MaxPrice   *int64 `json:"max_price"`
	CreditCost int64  `json:"credit_cost"`
}

type ReplaceRequest struct {
	Tiers []TierInput `json:"tiers"`
}

type TierResponse struct {
	ID         string    `json:"id"`
	MinPrice   int64     `json:"min_price"`
	MaxPrice   *int64    `json:"max_price,omitempty"`
	CreditCost int64     `json:"credit_cost"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

var (
	ErrEmptyTierSet      = errors.New("empty_tier_set")
	ErrTierGap           = errors.New("tier_gap")
	ErrTierOverlap       = errors.New("tier_overlap")
	ErrInvalidTierRange  = errors.New("invalid_tier_range")
	ErrInvalidCreditCost = errors.New("invalid_credit_cost")
	ErrInvalidPrice      = errors.New("invalid_price")
	ErrPriceUnresolvable = errors.New("price_unresolvable")
)
