package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	ClinicID snowflake.ID
	Status   DisputeStatus
	Limit    int
}

type Repository interface {
	// Insert files a pending dispute. The partial unique index on
	// (lead_id) where status = 'pending' is the concurrency backstop.
	Insert(ctx context.Context, db *gorm.DB, dispute *Dispute) error

	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Dispute, error)

	FindOpenByLeadID(ctx context.Context, db *gorm.DB, leadID snowflake.ID) (*Dispute, error)

	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Dispute, error)

	// MarkResolved transitions pending -> status and reports whether
	// this call won the transition. A false return means the dispute
	// was already resolved.
	MarkResolved(ctx context.Context, db *gorm.DB, id snowflake.ID, status DisputeStatus, resolvedBy, notes string, refundTransactionID snowflake.ID, at time.Time) (bool, error)

	// SetRefundTransaction records the refund posting on an approved
	// dispute that does not have one yet, and reports whether this call
	// made the update.
	SetRefundTransaction(ctx context.Context, db *gorm.DB, id snowflake.ID, refundTransactionID snowflake.ID, at time.Time) (bool, error)
}
