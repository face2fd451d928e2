package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/medimarket/platform/internal/ledger/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() ledgerdomain.Repository {
	return &repo{}
}

func (r *repo) LockAccount(ctx context.Context, tx *gorm.DB, clinicID snowflake.ID) error {
	if err := tx.WithContext(ctx).Exec(
		`INSERT INTO credit_accounts (clinic_id, created_at)
		 VALUES (?, CURRENT_TIMESTAMP)
		 ON CONFLICT (clinic_id) DO NOTHING`,
		clinicID,
	).Error; err != nil {
		return err
	}

	var locked snowflake.ID
	err := tx.WithContext(ctx).Raw(
		`SELECT clinic_id
		 FROM credit_accounts
		 WHERE clinic_id = ?
		 FOR UPDATE`,
		clinicID,
	).Scan(&locked).Error
	if err != nil {
		return err
	}
	if locked == 0 {
		return ledgerdomain.ErrInvalidClinic
	}
	return nil
}

func (r *repo) Append(ctx context.Context, tx *gorm.DB, posting *ledgerdomain.CreditTransaction) error {
	if strings.TrimSpace(posting.ReferenceID) == "" {
		return tx.WithContext(ctx).Exec(
			`INSERT INTO credit_transactions (
				id, clinic_id, kind, amount, description, reference_id, status, created_by, created_at
			) VALUES (?, ?, ?, ?, ?, '', ?, ?, ?)`,
			posting.ID,
			posting.ClinicID,
			string(posting.Kind),
			posting.Amount,
			posting.Description,
			string(posting.Status),
			posting.CreatedBy,
			posting.CreatedAt,
		).Error
	}

	result := tx.WithContext(ctx).Exec(
		`INSERT INTO credit_transactions (
			id, clinic_id, kind, amount, description, reference_id, status, created_by, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (reference_id, kind) WHERE reference_id <> '' DO NOTHING`,
		posting.ID,
		posting.ClinicID,
		string(posting.Kind),
		posting.Amount,
		posting.Description,
		posting.ReferenceID,
		string(posting.Status),
		posting.CreatedBy,
		posting.CreatedAt,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ledgerdomain.ErrDuplicateReference
	}
	return nil
}

func (r *repo) FindByReference(ctx context.Context, db *gorm.DB, referenceID string, kind ledgerdomain.TransactionKind) (*ledgerdomain.CreditTransaction, error) {
	referenceID = strings.TrimSpace(referenceID)
	if referenceID == "" {
		return nil, nil
	}

	var posting ledgerdomain.CreditTransaction
	err := db.WithContext(ctx).Raw(
		`SELECT id, clinic_id, kind, amount, description, reference_id, status, created_by, created_at
		 FROM credit_transactions
		 WHERE reference_id = ? AND kind = ? AND status = ?
		 LIMIT 1`,
		referenceID,
		string(kind),
		string(ledgerdomain.StatusCompleted),
	).Scan(&posting).Error
	if err != nil {
		return nil, err
	}
	if posting.ID == 0 {
		return nil, nil
	}
	return &posting, nil
}

func (r *repo) BalanceOf(ctx context.Context, db *gorm.DB, clinicID snowflake.ID) (int64, error) {
	var balance int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0)
		 FROM credit_transactions
		 WHERE clinic_id = ? AND status = ?`,
		clinicID,
		string(ledgerdomain.StatusCompleted),
	).Scan(&balance).Error
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (r *repo) History(ctx context.Context, db *gorm.DB, filter ledgerdomain.HistoryFilter) ([]*ledgerdomain.CreditTransaction, error) {
	var postings []*ledgerdomain.CreditTransaction
	stmt := db.WithContext(ctx).Model(&ledgerdomain.CreditTransaction{}).
		Where("clinic_id = ?", filter.ClinicID)

	if filter.Kind != "" {
		stmt = stmt.Where("kind = ?", string(filter.Kind))
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			filter.Cursor.CreatedAt,
			filter.Cursor.CreatedAt,
			filter.Cursor.ID,
		)
	}

	stmt = stmt.Order("created_at desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}

	if err := stmt.Find(&postings).Error; err != nil {
		return nil, err
	}
	return postings, nil
}
