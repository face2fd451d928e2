package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	disputedomain "github.com/medimarket/platform/internal/dispute/domain"
	"github.com/medimarket/platform/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() disputedomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, dispute *disputedomain.Dispute) error {
	err := conn.WithContext(ctx).Exec(
		`INSERT INTO disputes (
			id, lead_id, clinic_id, reason, status, notes, resolved_by,
			refund_transaction_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, '', '', 0, ?, ?)`,
		dispute.ID,
		dispute.LeadID,
		dispute.ClinicID,
		dispute.Reason,
		string(dispute.Status),
		dispute.CreatedAt,
		dispute.UpdatedAt,
	).Error
	if db.IsDuplicateKeyErr(err) {
		return disputedomain.ErrDuplicateDispute
	}
	return err
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*disputedomain.Dispute, error) {
	var dispute disputedomain.Dispute
	err := conn.WithContext(ctx).Raw(
		`SELECT id, lead_id, clinic_id, reason, status, notes, resolved_by,
		        resolved_at, refund_transaction_id, created_at, updated_at
		 FROM disputes
		 WHERE id = ?`,
		id,
	).Scan(&dispute).Error
	if err != nil {
		return nil, err
	}
	if dispute.ID == 0 {
		return nil, nil
	}
	return &dispute, nil
}

func (r *repo) FindOpenByLeadID(ctx context.Context, conn *gorm.DB, leadID snowflake.ID) (*disputedomain.Dispute, error) {
	var dispute disputedomain.Dispute
	err := conn.WithContext(ctx).Raw(
		`SELECT id, lead_id, clinic_id, reason, status, notes, resolved_by,
		        resolved_at, refund_transaction_id, created_at, updated_at
		 FROM disputes
		 WHERE lead_id = ? AND status = ?
		 LIMIT 1`,
		leadID,
		string(disputedomain.StatusPending),
	).Scan(&dispute).Error
	if err != nil {
		return nil, err
	}
	if dispute.ID == 0 {
		return nil, nil
	}
	return &dispute, nil
}

func (r *repo) List(ctx context.Context, conn *gorm.DB, filter disputedomain.ListFilter) ([]disputedomain.Dispute, error) {
	var disputes []disputedomain.Dispute
	stmt := conn.WithContext(ctx).Model(&disputedomain.Dispute{})

	if filter.ClinicID != 0 {
		stmt = stmt.Where("clinic_id = ?", filter.ClinicID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", string(filter.Status))
	}

	stmt = stmt.Order("created_at desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}

	if err := stmt.Find(&disputes).Error; err != nil {
		return nil, err
	}
	return disputes, nil
}

func (r *repo) MarkResolved(ctx context.Context, conn *gorm.DB, id snowflake.ID, status disputedomain.DisputeStatus, resolvedBy, notes string, refundTransactionID snowflake.ID, at time.Time) (bool, error) {
	result := conn.WithContext(ctx).Exec(
		`UPDATE disputes
		 SET status = ?, resolved_by = ?, notes = ?, refund_transaction_id = ?,
		     resolved_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(status),
		resolvedBy,
		notes,
		refundTransactionID,
		at,
		at,
		id,
		string(disputedomain.StatusPending),
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) SetRefundTransaction(ctx context.Context, conn *gorm.DB, id snowflake.ID, refundTransactionID snowflake.ID, at time.Time) (bool, error) {
	result := conn.WithContext(ctx).Exec(
		`UPDATE disputes
		 SET refund_transaction_id = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND refund_transaction_id = 0`,
		refundTransactionID,
		at,
		id,
		string(disputedomain.StatusApproved),
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
