package repository

import (
	"context"
	"time"

	pricingdomain "github.com/medimarket/platform/internal/pricing/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() pricingdomain.Repository {
	return &repo{}
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB) ([]pricingdomain.PricingTier, error) {
	var tiers []pricingdomain.PricingTier
	err := db.WithContext(ctx).Raw(
		`SELECT id, min_price, max_price, credit_cost, active, created_at, updated_at
		 FROM lead_pricing_tiers
		 WHERE active = ?
		 ORDER BY min_price ASC`,
		true,
	).Scan(&tiers).Error
	if err != nil {
		return nil, err
	}
	return tiers, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, tier *pricingdomain.PricingTier) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO lead_pricing_tiers (
			id, min_price, max_price, credit_cost, active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tier.ID,
		tier.MinPrice,
		tier.MaxPrice,
		tier.CreditCost,
		tier.Active,
		tier.CreatedAt,
		tier.UpdatedAt,
	).Error
}

func (r *repo) DeactivateAll(ctx context.Context, db *gorm.DB, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE lead_pricing_tiers SET active = ?, updated_at = ? WHERE active = ?`,
		false,
		at.UTC(),
		true,
	).Error
}
