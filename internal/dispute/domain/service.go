package domain

import (
	"context"
	"errors"
	"time"
)

const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

type Service interface {
	// Open files a dispute over a billed lead. Fails with
	// ErrDuplicateDispute when an open dispute already exists.
	Open(ctx context.Context, req OpenRequest) (*Response, error)

	// Resolve closes a pending dispute. Approval posts exactly one
	// refund; resolving an already-resolved dispute returns the prior
	// result without ledger effect.
	Resolve(ctx context.Context, req ResolveRequest) (*Response, error)

	Get(ctx context.Context, id string) (*Response, error)

	List(ctx context.Context, req ListRequest) ([]Response, error)
}

type OpenRequest struct {
	LeadID   string `json:"lead_id"`
	ClinicID string `json:"clinic_id"`
	Reason   string `json:"reason"`
}

type ResolveRequest struct {
	DisputeID string `json:"-"`
	Decision  string `json:"decision"`
	Notes     string `json:"notes"`
	Actor     string `json:"-"`
}

type ListRequest struct {
	ClinicID string
	Status   string
	Limit    int
}

type Response struct {
	ID                  string     `json:"id"`
	LeadID              string     `json:"lead_id"`
	ClinicID            string     `json:"clinic_id"`
	Reason              string     `json:"reason"`
	Status              string     `json:"status"`
	Notes               string     `json:"notes,omitempty"`
	ResolvedBy          string     `json:"resolved_by,omitempty"`
	ResolvedAt          *time.Time `json:"resolved_at,omitempty"`
	RefundTransactionID string     `json:"refund_transaction_id,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

var (
	ErrDuplicateDispute = errors.New("duplicate_dispute")
	ErrNotFound         = errors.New("dispute_not_found")
	ErrInvalidLead      = errors.New("invalid_lead")
	ErrInvalidClinic    = errors.New("invalid_clinic")
	ErrInvalidReason    = errors.New("invalid_reason")
	ErrInvalidDecision  = errors.New("invalid_decision")
	ErrInvalidID        = errors.New("invalid_id")
	ErrLeadNotBilled    = errors.New("lead_not_billed")
)
