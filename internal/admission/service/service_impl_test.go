package service

import (
	"context"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	admissiondomain "github.com/medimarket/platform/internal/admission/domain"
	"github.com/medimarket/platform/internal/admission/repository"
	auditrepository "github.com/medimarket/platform/internal/audit/repository"
	auditservice "github.com/medimarket/platform/internal/audit/service"
	billingdomain "github.com/medimarket/platform/internal/billing/domain"
	billingservice "github.com/medimarket/platform/internal/billing/service"
	"github.com/medimarket/platform/internal/clock"
	"github.com/medimarket/platform/internal/config"
	ledgerrepository "github.com/medimarket/platform/internal/ledger/repository"
	pricingrepository "github.com/medimarket/platform/internal/pricing/repository"
	pricingservice "github.com/medimarket/platform/internal/pricing/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

const admissionSchema = `
CREATE TABLE credit_accounts (
	clinic_id INTEGER PRIMARY KEY,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE credit_transactions (
	id INTEGER PRIMARY KEY,
	clinic_id INTEGER NOT NULL,
	kind TEXT NOT NULL,
	amount INTEGER NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	reference_id TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	created_by TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);
CREATE UNIQUE INDEX uq_credit_transactions_reference_kind
	ON credit_transactions (reference_id, kind)
	WHERE reference_id <> '';
CREATE TABLE lead_pricing_tiers (
	id INTEGER PRIMARY KEY,
	min_price INTEGER NOT NULL,
	max_price INTEGER,
	credit_cost INTEGER NOT NULL,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE TABLE lead_billing (
	lead_id INTEGER PRIMARY KEY,
	clinic_id INTEGER NOT NULL,
	status TEXT NOT NULL,
	package_price INTEGER NOT NULL,
	billing_amount INTEGER NOT NULL DEFAULT 0,
	billing_transaction_id INTEGER NOT NULL DEFAULT 0,
	deny_reason TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE TABLE audit_logs (
	id INTEGER PRIMARY KEY,
	actor TEXT NOT NULL,
	action TEXT NOT NULL,
	target_type TEXT NOT NULL,
	target_id TEXT NOT NULL DEFAULT '',
	metadata TEXT,
	created_at DATETIME NOT NULL
);
`

type fixture struct {
	db         *gorm.DB
	node       *snowflake.Node
	admission  admissiondomain.Service
	billingSvc billingdomain.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	// SQLite support hack: remove FOR UPDATE clauses
	db.Callback().Query().Before("gorm:query").Register("sqlite_skip_locked", func(d *gorm.DB) {
		sql := d.Statement.SQL.String()
		if strings.Contains(sql, "FOR UPDATE") {
			newSQL := strings.ReplaceAll(sql, "FOR UPDATE", "")
			d.Statement.SQL.Reset()
			d.Statement.SQL.WriteString(newSQL)
		}
	})
	db.Callback().Row().Before("gorm:row").Register("sqlite_skip_locked_row", func(d *gorm.DB) {
		sql := d.Statement.SQL.String()
		if strings.Contains(sql, "FOR UPDATE") {
			newSQL := strings.ReplaceAll(sql, "FOR UPDATE", "")
			d.Statement.SQL.Reset()
			d.Statement.SQL.WriteString(newSQL)
		}
	})

	for _, stmt := range strings.Split(admissionSchema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		require.NoError(t, db.Exec(stmt).Error)
	}

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zaptest.NewLogger(t)
	cfg := config.Config{SystemActor: "system", AccountLockWaitMS: 2000}
	sysClock := &clock.SystemClock{}

	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: sysClock,
		Repo:  auditrepository.Provide(),
	})

	holder, err := config.NewPricingConfigHolder(log)
	require.NoError(t, err)
	pricingSvc := pricingservice.NewService(pricingservice.Params{
		DB:         db,
		Log:        log,
		GenID:      node,
		Clock:      sysClock,
		Repo:       pricingrepository.Provide(),
		AuditSvc:   auditSvc,
		PricingCfg: holder,
	})
	require.NoError(t, pricingSvc.Seed(context.Background()))

	billingSvc := billingservice.NewService(billingservice.Params{
		DB:         db,
		Log:        log,
		GenID:      node,
		Clock:      sysClock,
		Config:     cfg,
		LedgerRepo: ledgerrepository.Provide(),
		AuditSvc:   auditSvc,
	})

	admissionSvc := NewService(Params{
		DB:         db,
		Log:        log,
		Clock:      sysClock,
		Config:     cfg,
		Repo:       repository.Provide(),
		PricingSvc: pricingSvc,
		BillingSvc: billingSvc,
	})

	return &fixture{db: db, node: node, admission: admissionSvc, billingSvc: billingSvc}
}

func (f *fixture) fund(t *testing.T, clinicID string, amount int64) {
	t.Helper()
	_, err := f.billingSvc.Allocate(context.Background(), billingdomain.AllocateRequest{
		ClinicID: clinicID,
		Amount:   amount,
	})
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, clinicID string) int64 {
	t.Helper()
	var balance int64
	f.db.Raw(`SELECT COALESCE(SUM(amount), 0) FROM credit_transactions WHERE clinic_id = ? AND status = 'completed'`, clinicID).Scan(&balance)
	return balance
}

func TestAdmitLeadBillsTierCost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	clinicID := f.node.Generate().String()
	leadID := f.node.Generate().String()
	f.fund(t, clinicID, 1000)

	// 10k falls in the 180-credit tier of the bootstrap set.
	decision, err := f.admission.AdmitLead(ctx, admissiondomain.AdmitRequest{
		LeadID:       leadID,
		ClinicID:     clinicID,
		PackagePrice: 10_000,
	})
	require.NoError(t, err)
	assert.True(t, decision.Billed)
	assert.Equal(t, int64(180), decision.Amount)
	assert.Equal(t, int64(820), f.balance(t, clinicID))

	record, err := f.admission.Get(ctx, leadID)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, admissiondomain.StatusBilled, record.Status)
	assert.Equal(t, int64(180), record.BillingAmount)
}

func TestAdmitLeadIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	clinicID := f.node.Generate().String()
	leadID := f.node.Generate().String()
	f.fund(t, clinicID, 1000)

	req := admissiondomain.AdmitRequest{LeadID: leadID, ClinicID: clinicID, PackagePrice: 10_000}
	first, err := f.admission.AdmitLead(ctx, req)
	require.NoError(t, err)

	second, err := f.admission.AdmitLead(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.TransactionID, second.TransactionID)
	// Only one deduction for the lead.
	assert.Equal(t, int64(820), f.balance(t, clinicID))
}

func TestAdmitLeadDeniedOnInsufficientBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	clinicID := f.node.Generate().String()
	leadID := f.node.Generate().String()
	f.fund(t, clinicID, 50)

	decision, err := f.admission.AdmitLead(ctx, admissiondomain.AdmitRequest{
		LeadID:       leadID,
		ClinicID:     clinicID,
		PackagePrice: 10_000,
	})
	require.NoError(t, err)
	assert.False(t, decision.Billed)
	assert.Equal(t, admissiondomain.ReasonInsufficientBalance, decision.Reason)
	// The denial never touches the ledger.
	assert.Equal(t, int64(50), f.balance(t, clinicID))

	record, err := f.admission.Get(ctx, leadID)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, admissiondomain.StatusBillingDenied, record.Status)
}

func TestDeniedLeadCanBeRetriedAfterTopUp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	clinicID := f.node.Generate().String()
	leadID := f.node.Generate().String()
	f.fund(t, clinicID, 50)

	req := admissiondomain.AdmitRequest{LeadID: leadID, ClinicID: clinicID, PackagePrice: 1_000}
	decision, err := f.admission.AdmitLead(ctx, req)
	require.NoError(t, err)
	require.False(t, decision.Billed)

	f.fund(t, clinicID, 500)

	decision, err = f.admission.AdmitLead(ctx, req)
	require.NoError(t, err)
	assert.True(t, decision.Billed)
	assert.Equal(t, int64(100), decision.Amount)
	assert.Equal(t, int64(450), f.balance(t, clinicID))
}

func TestForceAdmitBillsPastZero(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	clinicID := f.node.Generate().String()
	leadID := f.node.Generate().String()
	f.fund(t, clinicID, 50)

	decision, err := f.admission.ForceAdmit(ctx, admissiondomain.AdmitRequest{
		LeadID:       leadID,
		ClinicID:     clinicID,
		PackagePrice: 10_000,
	})
	require.NoError(t, err)
	assert.True(t, decision.Billed)
	assert.Equal(t, int64(-130), f.balance(t, clinicID))
}

func TestMarkRefundedTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	clinicID := f.node.Generate().String()
	leadID := f.node.Generate().String()
	f.fund(t, clinicID, 1000)

	_, err := f.admission.AdmitLead(ctx, admissiondomain.AdmitRequest{
		LeadID:       leadID,
		ClinicID:     clinicID,
		PackagePrice: 10_000,
	})
	require.NoError(t, err)

	require.NoError(t, f.admission.MarkRefunded(ctx, leadID))
	record, err := f.admission.Get(ctx, leadID)
	require.NoError(t, err)
	assert.Equal(t, admissiondomain.StatusRefunded, record.Status)

	// Marking twice is a no-op.
	require.NoError(t, f.admission.MarkRefunded(ctx, leadID))

	err = f.admission.MarkRefunded(ctx, f.node.Generate().String())
	assert.ErrorIs(t, err, admissiondomain.ErrLeadNotBilled)
}

func TestAdmitRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.admission.AdmitLead(ctx, admissiondomain.AdmitRequest{
		LeadID:       "garbage",
		ClinicID:     f.node.Generate().String(),
		PackagePrice: 100,
	})
	assert.ErrorIs(t, err, admissiondomain.ErrInvalidLead)

	_, err = f.admission.AdmitLead(ctx, admissiondomain.AdmitRequest{
		LeadID:       f.node.Generate().String(),
		ClinicID:     f.node.Generate().String(),
		PackagePrice: -5,
	})
	assert.ErrorIs(t, err, admissiondomain.ErrInvalidPrice)
}
