package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// LeadBillingStatus is the admission state machine. A lead starts
// unbilled (no row), then lands on billed or billing_denied; an approved
// dispute later moves a billed lead to refunded.
type LeadBillingStatus string

const (
	StatusBilled        LeadBillingStatus = "billed"
	StatusBillingDenied LeadBillingStatus = "billing_denied"
	StatusRefunded      LeadBillingStatus = "refunded"
)

// LeadBilling records the billing outcome for an externally owned lead.
// The lead itself lives in the marketplace; only its billing state is
// owned here.
type LeadBilling struct {
	LeadID               snowflake.ID      `json:"lead_id" gorm:"primaryKey;autoIncrement:false"`
	ClinicID             snowflake.ID      `json:"clinic_id" gorm:"not null;index"`
	Status               LeadBillingStatus `json:"status" gorm:"type:text;not null"`
	PackagePrice         int64             `json:"package_price" gorm:"not null"`
	BillingAmount        int64             `json:"billing_amount"`
	BillingTransactionID snowflake.ID      `json:"billing_transaction_id"`
	DenyReason           string            `json:"deny_reason,omitempty" gorm:"type:text"`
	CreatedAt            time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt            time.Time         `json:"updated_at" gorm:"not null"`
}

// TableName sets the database table name.
func (LeadBilling) TableName() string { return "lead_billing" }
