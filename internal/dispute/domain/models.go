package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type DisputeStatus string

const (
	StatusPending  DisputeStatus = "pending"
	StatusApproved DisputeStatus = "approved"
	StatusRejected DisputeStatus = "rejected"
)

// Dispute is a clinic's challenge to a lead deduction. At most one open
// dispute may exist per lead, and the pending -> approved transition is
// the only path that creates a refund posting.
type Dispute struct {
	ID                  snowflake.ID  `json:"id" gorm:"primaryKey"`
	LeadID              snowflake.ID  `json:"lead_id" gorm:"not null;index"`
	ClinicID            snowflake.ID  `json:"clinic_id" gorm:"not null;index"`
	Reason              string        `json:"reason" gorm:"type:text;not null"`
	Status              DisputeStatus `json:"status" gorm:"type:text;not null;index"`
	Notes               string        `json:"notes,omitempty" gorm:"type:text"`
	ResolvedBy          string        `json:"resolved_by,omitempty" gorm:"type:text"`
	ResolvedAt          *time.Time    `json:"resolved_at,omitempty"`
	RefundTransactionID snowflake.ID  `json:"refund_transaction_id,omitempty"`
	CreatedAt           time.Time     `json:"created_at" gorm:"not null"`
	UpdatedAt           time.Time     `json:"updated_at" gorm:"not null"`
}

// TableName sets the database table name.
func (Dispute) TableName() string { return "disputes" }

// Resolved reports whether the dispute reached a terminal state.
func (d Dispute) Resolved() bool {
	return d.Status == StatusApproved || d.Status == StatusRejected
}
