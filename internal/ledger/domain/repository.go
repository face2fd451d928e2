package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/medimarket/platform/pkg/db/pagination"
	"gorm.io/gorm"
)

type HistoryFilter struct {
	ClinicID snowflake.ID
	Kind     TransactionKind
	Cursor   *pagination.Cursor
	Limit    int
}

// Repository is the append-only transaction log. Append performs a durable
// ordered insert and nothing else; balance preconditions belong to the
// caller's transaction boundary.
type Repository interface {
	// LockAccount takes the per-clinic row lock inside tx, creating the
	// account row on first use. Every read-balance-then-append sequence
	// runs behind this lock.
	LockAccount(ctx context.Context, tx *gorm.DB, clinicID snowflake.ID) error

	// Append inserts the posting. When the posting carries a reference,
	// a duplicate (reference_id, kind) pair inserts nothing and returns
	// ErrDuplicateReference.
	Append(ctx context.Context, tx *gorm.DB, posting *CreditTransaction) error

	// FindByReference returns the completed posting recorded for the
	// given idempotency key, or nil when none exists.
	FindByReference(ctx context.Context, db *gorm.DB, referenceID string, kind TransactionKind) (*CreditTransaction, error)

	// BalanceOf computes the signed sum of completed postings.
	BalanceOf(ctx context.Context, db *gorm.DB, clinicID snowflake.ID) (int64, error)

	// History lists postings newest first.
	History(ctx context.Context, db *gorm.DB, filter HistoryFilter) ([]*CreditTransaction, error)
}
