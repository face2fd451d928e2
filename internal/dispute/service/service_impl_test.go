package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	admissiondomain "github.com/medimarket/platform/internal/admission/domain"
	admissionrepository "github.com/medimarket/platform/internal/admission/repository"
	admissionservice "github.com/medimarket/platform/internal/admission/service"
	auditdomain "github.com/medimarket/platform/internal/audit/domain"
	auditrepository "github.com/medimarket/platform/internal/audit/repository"
	auditservice "github.com/medimarket/platform/internal/audit/service"
	billingdomain "github.com/medimarket/platform/internal/billing/domain"
	billingservice "github.com/medimarket/platform/internal/billing/service"
	"github.com/medimarket/platform/internal/clock"
	"github.com/medimarket/platform/internal/config"
	disputedomain "github.com/medimarket/platform/internal/dispute/domain"
	"github.com/medimarket/platform/internal/dispute/repository"
	ledgerrepository "github.com/medimarket/platform/internal/ledger/repository"
	pricingrepository "github.com/medimarket/platform/internal/pricing/repository"
	pricingservice "github.com/medimarket/platform/internal/pricing/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

const disputeSchema = `
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
CREATE TABLE disputes (
	id INTEGER PRIMARY KEY,
	lead_id INTEGER NOT NULL,
	clinic_id INTEGER NOT NULL,
	reason TEXT NOT NULL,
	status TEXT NOT NULL,
	notes TEXT NOT NULL DEFAULT '',
	resolved_by TEXT NOT NULL DEFAULT '',
	resolved_at DATETIME,
	refund_transaction_id INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE UNIQUE INDEX uq_disputes_open_lead
	ON disputes (lead_id)
	WHERE status = 'pending';
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
	db        *gorm.DB
	node      *snowflake.Node
	disputes  disputedomain.Service
	admission admissiondomain.Service
	billing   billingdomain.Service
	audit     auditdomain.Service
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

	for _, stmt := range strings.Split(disputeSchema, ";") {
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
	ledgerRepo := ledgerrepository.Provide()

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
		LedgerRepo: ledgerRepo,
		AuditSvc:   auditSvc,
	})

	admissionSvc := admissionservice.NewService(admissionservice.Params{
		DB:         db,
		Log:        log,
		Clock:      sysClock,
		Config:     cfg,
		Repo:       admissionrepository.Provide(),
		PricingSvc: pricingSvc,
		BillingSvc: billingSvc,
	})

	disputeSvc := NewService(Params{
		DB:           db,
		Log:          log,
		GenID:        node,
		Clock:        sysClock,
		Config:       cfg,
		Repo:         repository.Provide(),
		LedgerRepo:   ledgerRepo,
		BillingSvc:   billingSvc,
		AdmissionSvc: admissionSvc,
		AuditSvc:     auditSvc,
	})

	return &fixture{db: db, node: node, disputes: disputeSvc, admission: admissionSvc, billing: billingSvc, audit: auditSvc}
}

// billLead funds the clinic and admits the lead, returning a billed lead id.
func (f *fixture) billLead(t *testing.T, clinicID string) string {
	t.Helper()
	ctx := context.Background()

	_, err := f.billing.Allocate(ctx, billingdomain.AllocateRequest{ClinicID: clinicID, Amount: 1000})
	require.NoError(t, err)

	leadID := f.node.Generate().String()
	decision, err := f.admission.AdmitLead(ctx, admissiondomain.AdmitRequest{
		LeadID:       leadID,
		ClinicID:     clinicID,
		PackagePrice: 10_000,
	})
	require.NoError(t, err)
	require.True(t, decision.Billed)
	return leadID
}

func (f *fixture) balance(t *testing.T, clinicID string) int64 {
	t.Helper()
	var balance int64
	f.db.Raw(`SELECT COALESCE(SUM(amount), 0) FROM credit_transactions WHERE clinic_id = ? AND status = 'completed'`, clinicID).Scan(&balance)
	return balance
}

func TestOpenDispute(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	clinicID := f.node.Generate().String()
	leadID := f.billLead(t, clinicID)

	resp, err := f.disputes.Open(ctx, disputedomain.OpenRequest{
		LeadID:   leadID,
		ClinicID: clinicID,
		Reason:   "patient never showed",
	})
	require.NoError(t, err)
	assert.Equal(t, string(disputedomain.StatusPending), resp.Status)

	// One open dispute per lead.
	_, err = f.disputes.Open(ctx, disputedomain.OpenRequest{
		LeadID:   leadID,
		ClinicID: clinicID,
		Reason:   "second attempt",
	})
	assert.ErrorIs(t, err, disputedomain.ErrDuplicateDispute)

	// Disputes require a billed lead.
	_, err = f.disputes.Open(ctx, disputedomain.OpenRequest{
		LeadID:   f.node.Generate().String(),
		ClinicID: clinicID,
		Reason:   "no such lead",
	})
	assert.ErrorIs(t, err, disputedomain.ErrLeadNotBilled)

	_, err = f.disputes.Open(ctx, disputedomain.OpenRequest{
		LeadID:   leadID,
		ClinicID: clinicID,
		Reason:   "   ",
	})
	assert.ErrorIs(t, err, disputedomain.ErrInvalidReason)
}

func TestApproveRefundsExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	clinicID := f.node.Generate().String()
	leadID := f.billLead(t, clinicID)
	require.Equal(t, int64(820), f.balance(t, clinicID))

	opened, err := f.disputes.Open(ctx, disputedomain.OpenRequest{
		LeadID:   leadID,
		ClinicID: clinicID,
		Reason:   "patient never showed",
	})
	require.NoError(t, err)

	resolved, err := f.disputes.Resolve(ctx, disputedomain.ResolveRequest{
		DisputeID: opened.ID,
		Decision:  disputedomain.DecisionApprove,
		Actor:     "admin",
	})
	require.NoError(t, err)
	assert.Equal(t, string(disputedomain.StatusApproved), resolved.Status)
	assert.NotEmpty(t, resolved.RefundTransactionID)
	assert.Equal(t, int64(1000), f.balance(t, clinicID))

	// The lead billing record follows the approval.
	record, err := f.admission.Get(ctx, leadID)
	require.NoError(t, err)
	assert.Equal(t, admissiondomain.StatusRefunded, record.Status)

	// Re-resolving replays the recorded outcome with no second refund.
	again, err := f.disputes.Resolve(ctx, disputedomain.ResolveRequest{
		DisputeID: opened.ID,
		Decision:  disputedomain.DecisionApprove,
		Actor:     "admin",
	})
	require.NoError(t, err)
	assert.Equal(t, resolved.RefundTransactionID, again.RefundTransactionID)
	assert.Equal(t, int64(1000), f.balance(t, clinicID))

	var refunds int64
	f.db.Raw(`SELECT COUNT(*) FROM credit_transactions WHERE kind = 'refund'`).Scan(&refunds)
	assert.Equal(t, int64(1), refunds)
}

func TestRejectLeavesLedgerUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	clinicID := f.node.Generate().String()
	leadID := f.billLead(t, clinicID)

	opened, err := f.disputes.Open(ctx, disputedomain.OpenRequest{
		LeadID:   leadID,
		ClinicID: clinicID,
		Reason:   "duplicate lead",
	})
	require.NoError(t, err)

	resolved, err := f.disputes.Resolve(ctx, disputedomain.ResolveRequest{
		DisputeID: opened.ID,
		Decision:  disputedomain.DecisionReject,
		Notes:     "lead was genuine",
		Actor:     "admin",
	})
	require.NoError(t, err)
	assert.Equal(t, string(disputedomain.StatusRejected), resolved.Status)
	assert.Empty(t, resolved.RefundTransactionID)
	assert.Equal(t, int64(820), f.balance(t, clinicID))

	// A rejected dispute stays rejected even if approved afterwards.
	again, err := f.disputes.Resolve(ctx, disputedomain.ResolveRequest{
		DisputeID: opened.ID,
		Decision:  disputedomain.DecisionApprove,
		Actor:     "admin",
	})
	require.NoError(t, err)
	assert.Equal(t, string(disputedomain.StatusRejected), again.Status)
	assert.Equal(t, int64(820), f.balance(t, clinicID))

	// The lead can be disputed again after rejection.
	_, err = f.disputes.Open(ctx, disputedomain.OpenRequest{
		LeadID:   leadID,
		ClinicID: clinicID,
		Reason:   "new evidence",
	})
	assert.NoError(t, err)
}

func TestResolveValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.disputes.Resolve(ctx, disputedomain.ResolveRequest{
		DisputeID: f.node.Generate().String(),
		Decision:  "escalate",
	})
	assert.ErrorIs(t, err, disputedomain.ErrInvalidDecision)

	_, err = f.disputes.Resolve(ctx, disputedomain.ResolveRequest{
		DisputeID: f.node.Generate().String(),
		Decision:  disputedomain.DecisionReject,
	})
	assert.ErrorIs(t, err, disputedomain.ErrNotFound)

	_, err = f.disputes.Get(ctx, "garbage")
	assert.ErrorIs(t, err, disputedomain.ErrInvalidID)
}

func TestListDisputesFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	clinicA := f.node.Generate().String()
	clinicB := f.node.Generate().String()
	leadA := f.billLead(t, clinicA)
	leadB := f.billLead(t, clinicB)

	openedA, err := f.disputes.Open(ctx, disputedomain.OpenRequest{LeadID: leadA, ClinicID: clinicA, Reason: "r"})
	require.NoError(t, err)
	_, err = f.disputes.Open(ctx, disputedomain.OpenRequest{LeadID: leadB, ClinicID: clinicB, Reason: "r"})
	require.NoError(t, err)

	_, err = f.disputes.Resolve(ctx, disputedomain.ResolveRequest{
		DisputeID: openedA.ID,
		Decision:  disputedomain.DecisionReject,
		Actor:     "admin",
	})
	require.NoError(t, err)

	all, err := f.disputes.List(ctx, disputedomain.ListRequest{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	pending, err := f.disputes.List(ctx, disputedomain.ListRequest{Status: "pending"})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, clinicB, pending[0].ClinicID)

	forA, err := f.disputes.List(ctx, disputedomain.ListRequest{ClinicID: clinicA})
	require.NoError(t, err)
	assert.Len(t, forA, 1)
}

// interveningBilling runs before once right ahead of the refund posting,
// modeling a concurrent resolver hitting the narrowest window.
type interveningBilling struct {
	billingdomain.Service
	before func()
}

func (w *interveningBilling) Refund(ctx context.Context, req billingdomain.RefundRequest) (*billingdomain.Receipt, error) {
	if w.before != nil {
		fn := w.before
		w.before = nil
		fn()
	}
	return w.Service.Refund(ctx, req)
}

func TestRejectCannotWinOnceApprovalClaimed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	clinicID := f.node.Generate().String()
	leadID := f.billLead(t, clinicID)

	opened, err := f.disputes.Open(ctx, disputedomain.OpenRequest{
		LeadID:   leadID,
		ClinicID: clinicID,
		Reason:   "patient never showed",
	})
	require.NoError(t, err)
	disputeID, err := snowflake.ParseString(opened.ID)
	require.NoError(t, err)

	disputeRepo := repository.Provide()
	rejectWon := true
	wrapped := &interveningBilling{Service: f.billing, before: func() {
		// A rival rejection lands between the approval claim and the
		// refund posting. It must lose the status transition.
		won, err := disputeRepo.MarkResolved(ctx, f.db, disputeID, disputedomain.StatusRejected, "rival-admin", "", 0, time.Now())
		require.NoError(t, err)
		rejectWon = won
	}}

	svc := NewService(Params{
		DB:           f.db,
		Log:          zaptest.NewLogger(t),
		GenID:        f.node,
		Clock:        &clock.SystemClock{},
		Config:       config.Config{SystemActor: "system", AccountLockWaitMS: 2000},
		Repo:         disputeRepo,
		LedgerRepo:   ledgerrepository.Provide(),
		BillingSvc:   wrapped,
		AdmissionSvc: f.admission,
		AuditSvc:     f.audit,
	})

	resolved, err := svc.Resolve(ctx, disputedomain.ResolveRequest{
		DisputeID: opened.ID,
		Decision:  disputedomain.DecisionApprove,
		Actor:     "admin",
	})
	require.NoError(t, err)
	assert.False(t, rejectWon)
	assert.Equal(t, string(disputedomain.StatusApproved), resolved.Status)
	assert.NotEmpty(t, resolved.RefundTransactionID)
	assert.Equal(t, int64(1000), f.balance(t, clinicID))

	// A rejected dispute never coexists with a refund transaction.
	final, err := f.disputes.Get(ctx, opened.ID)
	require.NoError(t, err)
	assert.Equal(t, string(disputedomain.StatusApproved), final.Status)
	var refunds int64
	f.db.Raw(`SELECT COUNT(*) FROM credit_transactions WHERE kind = 'refund'`).Scan(&refunds)
	assert.Equal(t, int64(1), refunds)
}

func TestInterruptedApprovalCompletesOnRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	clinicID := f.node.Generate().String()
	leadID := f.billLead(t, clinicID)

	opened, err := f.disputes.Open(ctx, disputedomain.OpenRequest{
		LeadID:   leadID,
		ClinicID: clinicID,
		Reason:   "patient never showed",
	})
	require.NoError(t, err)
	disputeID, err := snowflake.ParseString(opened.ID)
	require.NoError(t, err)

	// Approval claimed but the process died before the refund posted.
	won, err := repository.Provide().MarkResolved(ctx, f.db, disputeID, disputedomain.StatusApproved, "admin", "", 0, time.Now())
	require.NoError(t, err)
	require.True(t, won)
	require.Equal(t, int64(820), f.balance(t, clinicID))

	// Any later Resolve finishes the refund, whatever its decision.
	resolved, err := f.disputes.Resolve(ctx, disputedomain.ResolveRequest{
		DisputeID: opened.ID,
		Decision:  disputedomain.DecisionReject,
		Actor:     "someone-else",
	})
	require.NoError(t, err)
	assert.Equal(t, string(disputedomain.StatusApproved), resolved.Status)
	assert.NotEmpty(t, resolved.RefundTransactionID)
	assert.Equal(t, int64(1000), f.balance(t, clinicID))

	record, err := f.admission.Get(ctx, leadID)
	require.NoError(t, err)
	assert.Equal(t, admissiondomain.StatusRefunded, record.Status)

	var refunds int64
	f.db.Raw(`SELECT COUNT(*) FROM credit_transactions WHERE kind = 'refund'`).Scan(&refunds)
	assert.Equal(t, int64(1), refunds)
}
