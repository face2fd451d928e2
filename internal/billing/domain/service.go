package domain

import (
	"context"
	"errors"
	"time"
)

// Service is the single mutation path into the credit ledger. Every
// operation is idempotent for a given (reference_id, kind) pair and
// leaves the ledger untouched on failure.
type Service interface {
	// Allocate credits a clinic unconditionally.
	Allocate(ctx context.Context, req AllocateRequest) (*Receipt, error)

	// Debit withdraws credits. Unless AllowNegative is set it fails with
	// ErrInsufficientBalance before appending anything.
	Debit(ctx context.Context, req DebitRequest) (*Receipt, error)

	// Transfer moves credits between clinics, all-or-nothing.
	Transfer(ctx context.Context, req TransferRequest) (*TransferReceipt, error)

	// Refund credits a clinic back for a previously billed lead.
	Refund(ctx context.Context, req RefundRequest) (*Receipt, error)

	// BulkAllocate processes entries independently; one entry's failure
	// never aborts the batch.
	BulkAllocate(ctx context.Context, req BulkAllocateRequest) (*BulkAllocateResponse, error)
}

type AllocateRequest struct {
	ClinicID    string `json:"clinic_id"`
	Amount      int64  `json:"amount"`
	Kind        string `json:"kind"` // allocation, purchase or bonus; defaults to allocation
	Description string `json:"description"`
	ReferenceID string `json:"reference_id"`
	Actor       string `json:"-"`
}

type DebitRequest struct {
	ClinicID      string `json:"clinic_id"`
	Amount        int64  `json:"amount"`
	Kind          string `json:"kind"` // debit_adjustment, admin_adjustment or lead_deduction
	Description   string `json:"description"`
	ReferenceID   string `json:"reference_id"`
	Actor         string `json:"-"`
	AllowNegative bool   `json:"allow_negative"`
}

type TransferRequest struct {
	FromClinicID string `json:"from_clinic_id"`
	ToClinicID   string `json:"to_clinic_id"`
	Amount       int64  `json:"amount"`
	Description  string `json:"description"`
	ReferenceID  string `json:"reference_id"`
	Actor        string `json:"-"`
}

type RefundRequest struct {
	ClinicID string `json:"clinic_id"`
	Amount   int64  `json:"amount"`
	LeadID   string `json:"lead_id"`
	Actor    string `json:"-"`
}

type BulkAllocateEntry struct {
	ClinicID    string `json:"clinic_id"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

type BulkAllocateRequest struct {
	Entries []BulkAllocateEntry `json:"entries"`
	Actor   string              `json:"-"`
}

type FailedEntry struct {
	Index    int    `json:"index"`
	ClinicID string `json:"clinic_id"`
	Reason   string `json:"reason"`
}

type BulkAllocateResponse struct {
	SuccessCount int           `json:"success_count"`
	FailureCount int           `json:"failure_count"`
	Failed       []FailedEntry `json:"failed,omitempty"`
}

// Receipt reports a committed posting and the balance it produced.
// Replayed idempotent calls return the original posting with Replayed set.
type Receipt struct {
	TransactionID string    `json:"transaction_id"`
	ClinicID      string    `json:"clinic_id"`
	Kind          string    `json:"kind"`
	Amount        int64     `json:"amount"`
	Balance       int64     `json:"balance"`
	Replayed      bool      `json:"replayed,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type TransferReceipt struct {
	OutTransactionID string `json:"out_transaction_id"`
	InTransactionID  string `json:"in_transaction_id"`
	FromBalance      int64  `json:"from_balance"`
	ToBalance        int64  `json:"to_balance"`
}

var (
	ErrInsufficientBalance = errors.New("insufficient_balance")
	ErrAccountBusy         = errors.New("account_busy")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidKind         = errors.New("invalid_kind")
	ErrInvalidClinic       = errors.New("invalid_clinic")
	ErrSameAccount         = errors.New("same_account")
	ErrEmptyBatch          = errors.New("empty_batch")
)
