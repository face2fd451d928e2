package domain

import (
	"context"
	"errors"
	"time"

	"github.com/medimarket/platform/pkg/db/pagination"
)

// Service is the read surface of the ledger. Mutations go through the
// billing engine, which drives the Repository inside its own transaction
// boundary.
type Service interface {
	BalanceOf(ctx context.Context, clinicID string) (BalanceResponse, error)
	History(ctx context.Context, req HistoryRequest) (HistoryResponse, error)
}

type BalanceResponse struct {
	ClinicID string `json:"clinic_id"`
	Balance  int64  `json:"balance"`
}

type HistoryRequest struct {
	pagination.Pagination
	ClinicID string
	Kind     string
}

type HistoryEntry struct {
	ID          string    `json:"id"`
	ClinicID    string    `json:"clinic_id"`
	Kind        string    `json:"kind"`
	Amount      int64     `json:"amount"`
	Description string    `json:"description"`
	ReferenceID string    `json:"reference_id,omitempty"`
	Status      string    `json:"status"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type HistoryResponse struct {
	pagination.PageInfo
	Transactions []HistoryEntry `json:"transactions"`
}

var (
	ErrInvalidClinic      = errors.New("invalid_clinic")
	ErrInvalidKind        = errors.New("invalid_kind")
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrAmountSignMismatch = errors.New("amount_sign_mismatch")
	ErrInvalidPageToken   = errors.New("invalid_page_token")
	ErrDuplicateReference = errors.New("duplicate_reference")
)
