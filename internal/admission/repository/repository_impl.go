package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	admissiondomain "github.com/medimarket/platform/internal/admission/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() admissiondomain.Repository {
	return &repo{}
}

func (r *repo) FindByLeadID(ctx context.Context, db *gorm.DB, leadID snowflake.ID) (*admissiondomain.LeadBilling, error) {
	var record admissiondomain.LeadBilling
	err := db.WithContext(ctx).Raw(
		`SELECT lead_id, clinic_id, status, package_price, billing_amount,
		        billing_transaction_id, deny_reason, created_at, updated_at
		 FROM lead_billing
		 WHERE lead_id = ?`,
		leadID,
	).Scan(&record).Error
	if err != nil {
		return nil, err
	}
	if record.LeadID == 0 {
		return nil, nil
	}
	return &record, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, record *admissiondomain.LeadBilling) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO lead_billing (
			lead_id, clinic_id, status, package_price, billing_amount,
			billing_transaction_id, deny_reason, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (lead_id) DO UPDATE SET
			status = excluded.status,
			billing_amount = excluded.billing_amount,
			billing_transaction_id = excluded.billing_transaction_id,
			deny_reason = excluded.deny_reason,
			updated_at = excluded.updated_at`,
		record.LeadID,
		record.ClinicID,
		string(record.Status),
		record.PackagePrice,
		record.BillingAmount,
		record.BillingTransactionID,
		record.DenyReason,
		record.CreatedAt,
		record.UpdatedAt,
	).Error
}
