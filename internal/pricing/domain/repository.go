package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	// ListActive returns the active tier set ordered by min_price.
	ListActive(ctx context.Context, db *gorm.DB) ([]PricingTier, error)

	Insert(ctx context.Context, db *gorm.DB, tier *PricingTier) error

	// DeactivateAll retires the current active set.
	DeactivateAll(ctx context.Context, db *gorm.DB, at time.Time) error
}
