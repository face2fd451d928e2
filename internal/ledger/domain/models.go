package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// TransactionKind is the closed set of ledger posting kinds. Every posting
// carries exactly one kind; corrections append an offsetting posting with
// its own kind rather than mutating history.
type TransactionKind string

const (
	KindAllocation      TransactionKind = "allocation"
	KindPurchase        TransactionKind = "purchase"
	KindBonus           TransactionKind = "bonus"
	KindLeadDeduction   TransactionKind = "lead_deduction"
	KindAdminAdjustment TransactionKind = "admin_adjustment"
	KindDebitAdjustment TransactionKind = "debit_adjustment"
	KindTransferOut     TransactionKind = "transfer_out"
	KindTransferIn      TransactionKind = "transfer_in"
	KindRefund          TransactionKind = "refund"
)

// Valid reports whether k is a known posting kind.
func (k TransactionKind) Valid() bool {
	switch k {
	case KindAllocation, KindPurchase, KindBonus, KindLeadDeduction,
		KindAdminAdjustment, KindDebitAdjustment, KindTransferOut,
		KindTransferIn, KindRefund:
		return true
	default:
		return false
	}
}

// IsDebit reports whether the kind always posts a negative amount.
// Credit kinds always post positive; admin adjustments carry either sign.
func (k TransactionKind) IsDebit() bool {
	switch k {
	case KindLeadDeduction, KindDebitAdjustment, KindTransferOut:
		return true
	default:
		return false
	}
}

// IsCredit reports whether the kind always posts a positive amount.
func (k TransactionKind) IsCredit() bool {
	switch k {
	case KindAllocation, KindPurchase, KindBonus, KindTransferIn, KindRefund:
		return true
	default:
		return false
	}
}

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
	StatusRefunded  TransactionStatus = "refunded"
)

// CreditTransaction is an immutable ledger entry. Once completed, kind and
// amount never change; the clinic balance is the signed sum of completed
// rows.
type CreditTransaction struct {
	ID          snowflake.ID      `json:"id" gorm:"primaryKey"`
	ClinicID    snowflake.ID      `json:"clinic_id" gorm:"not null;index:idx_credit_transactions_clinic_created,priority:1"`
	Kind        TransactionKind   `json:"kind" gorm:"type:text;not null"`
	Amount      int64             `json:"amount" gorm:"not null"`
	Description string            `json:"description" gorm:"type:text"`
	ReferenceID string            `json:"reference_id,omitempty" gorm:"type:text"`
	Status      TransactionStatus `json:"status" gorm:"type:text;not null"`
	CreatedBy   string            `json:"created_by,omitempty" gorm:"type:text"`
	CreatedAt   time.Time         `json:"created_at" gorm:"not null;index:idx_credit_transactions_clinic_created,priority:2"`
}

// TableName sets the database table name.
func (CreditTransaction) TableName() string { return "credit_transactions" }

// CreditAccount exists once per clinic and anchors the per-account row
// lock. It is created implicitly on first posting and never deleted; the
// balance column is a reconciliation aid only, never the source of truth.
type CreditAccount struct {
	ClinicID  snowflake.ID `json:"clinic_id" gorm:"primaryKey;autoIncrement:false"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (CreditAccount) TableName() string { return "credit_accounts" }

// NewTransaction validates and assembles a posting. The amount sign must
// agree with the kind: debit kinds post negative amounts, credit kinds
// positive ones.
func NewTransaction(id snowflake.ID, clinicID snowflake.ID, kind TransactionKind, amount int64, description, referenceID, createdBy string, at time.Time) (*CreditTransaction, error) {
	if clinicID == 0 {
		return nil, ErrInvalidClinic
	}
	if !kind.Valid() {
		return nil, ErrInvalidKind
	}
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	if kind.IsDebit() && amount > 0 {
		return nil, ErrAmountSignMismatch
	}
	if kind.IsCredit() && amount < 0 {
		return nil, ErrAmountSignMismatch
	}

	return &CreditTransaction{
		ID:          id,
		ClinicID:    clinicID,
		Kind:        kind,
		Amount:      amount,
		Description: description,
		ReferenceID: referenceID,
		Status:      StatusCompleted,
		CreatedBy:   createdBy,
		CreatedAt:   at.UTC(),
	}, nil
}
