package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByLeadID(ctx context.Context, db *gorm.DB, leadID snowflake.ID) (*LeadBilling, error)

	// Upsert inserts the outcome row or overwrites a retryable one.
	Upsert(ctx context.Context, db *gorm.DB, record *LeadBilling) error
}
