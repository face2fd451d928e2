package domain

import (
	"context"
	"errors"
)

// Deny reasons surfaced to the lead-creation flow.
const (
	ReasonPricingUnavailable  = "pricing_unavailable"
	ReasonInsufficientBalance = "insufficient_balance"
)

type Service interface {
	// AdmitLead decides whether the lead may be billed and records the
	// outcome. Calling it again for the same lead returns the prior
	// decision without a second deduction.
	AdmitLead(ctx context.Context, req AdmitRequest) (*Decision, error)

	// ForceAdmit bills the lead even when the balance cannot cover it.
	// Admin override for leads previously denied on balance.
	ForceAdmit(ctx context.Context, req AdmitRequest) (*Decision, error)

	// MarkRefunded transitions a billed lead after an approved dispute.
	MarkRefunded(ctx context.Context, leadID string) error

	// Get returns the recorded billing state for a lead, or nil when
	// the lead was never admitted.
	Get(ctx context.Context, leadID string) (*LeadBilling, error)
}

type AdmitRequest struct {
	LeadID       string `json:"lead_id"`
	ClinicID     string `json:"clinic_id"`
	PackagePrice int64  `json:"package_price"`
	Actor        string `json:"-"`
}

type Decision struct {
	LeadID        string `json:"lead_id"`
	Billed        bool   `json:"billed"`
	Reason        string `json:"reason,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	Amount        int64  `json:"amount,omitempty"`
	Balance       int64  `json:"balance,omitempty"`
	Replayed      bool   `json:"replayed,omitempty"`
}

var (
	ErrInvalidLead     = errors.New("invalid_lead")
	ErrInvalidClinic   = errors.New("invalid_clinic")
	ErrInvalidPrice    = errors.New("invalid_package_price")
	ErrLeadNotBilled   = errors.New("lead_not_billed")
	ErrAlreadyRefunded = errors.New("lead_already_refunded")
)
