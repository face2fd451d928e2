package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	admissiondomain "github.com/medimarket/platform/internal/admission/domain"
	auditdomain "github.com/medimarket/platform/internal/audit/domain"
	billingdomain "github.com/medimarket/platform/internal/billing/domain"
	"github.com/medimarket/platform/internal/clock"
	"github.com/medimarket/platform/internal/config"
	disputedomain "github.com/medimarket/platform/internal/dispute/domain"
	ledgerdomain "github.com/medimarket/platform/internal/ledger/domain"
	obsmetrics "github.com/medimarket/platform/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultListLimit = 50

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Config       config.Config
	Repo         disputedomain.Repository
	LedgerRepo   ledgerdomain.Repository
	BillingSvc   billingdomain.Service
	AdmissionSvc admissiondomain.Service
	AuditSvc     auditdomain.Service
	Metrics      *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	systemActor  string
	repo         disputedomain.Repository
	ledgerRepo   ledgerdomain.Repository
	billingSvc   billingdomain.Service
	admissionSvc admissiondomain.Service
	auditSvc     auditdomain.Service
	metrics      *obsmetrics.Metrics
}

func NewService(p Params) disputedomain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("dispute.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		systemActor:  p.Config.SystemActor,
		repo:         p.Repo,
		ledgerRepo:   p.LedgerRepo,
		billingSvc:   p.BillingSvc,
		admissionSvc: p.AdmissionSvc,
		auditSvc:     p.AuditSvc,
		metrics:      p.Metrics,
	}
}

func (s *Service) Open(ctx context.Context, req disputedomain.OpenRequest) (*disputedomain.Response, error) {
	leadID, err := parseID(req.LeadID, disputedomain.ErrInvalidLead)
	if err != nil {
		return nil, err
	}
	clinicID, err := parseID(req.ClinicID, disputedomain.ErrInvalidClinic)
	if err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, disputedomain.ErrInvalidReason
	}

	// Only deductions that actually happened can be disputed.
	billing, err := s.admissionSvc.Get(ctx, leadID.String())
	if err != nil {
		return nil, err
	}
	if billing == nil || billing.Status == admissiondomain.StatusBillingDenied {
		return nil, disputedomain.ErrLeadNotBilled
	}

	if open, err := s.repo.FindOpenByLeadID(ctx, s.db, leadID); err != nil {
		return nil, err
	} else if open != nil {
		return nil, disputedomain.ErrDuplicateDispute
	}

	now := s.clock.Now()
	dispute := &disputedomain.Dispute{
		ID:        s.genID.Generate(),
		LeadID:    leadID,
		ClinicID:  clinicID,
		Reason:    reason,
		Status:    disputedomain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, s.db, dispute); err != nil {
		return nil, err
	}

	s.log.Info("dispute opened",
		zap.String("dispute_id", dispute.ID.String()),
		zap.String("lead_id", leadID.String()),
		zap.String("clinic_id", clinicID.String()),
	)
	if s.metrics != nil {
		s.metrics.DisputeTransition("opened")
	}

	return toResponse(dispute), nil
}

func (s *Service) Resolve(ctx context.Context, req disputedomain.ResolveRequest) (*disputedomain.Response, error) {
	disputeID, err := parseID(req.DisputeID, disputedomain.ErrInvalidID)
	if err != nil {
		return nil, err
	}

	switch req.Decision {
	case disputedomain.DecisionApprove, disputedomain.DecisionReject:
	default:
		return nil, disputedomain.ErrInvalidDecision
	}

	dispute, err := s.repo.FindByID(ctx, s.db, disputeID)
	if err != nil {
		return nil, err
	}
	if dispute == nil {
		return nil, disputedomain.ErrNotFound
	}
	if dispute.Resolved() {
		// Resolution is terminal. A repeated call, whatever its
		// decision, replays the recorded outcome. An approved dispute
		// whose refund posting was interrupted is finished here first.
		if dispute.Status == disputedomain.StatusApproved && dispute.RefundTransactionID == 0 {
			return s.completeRefund(ctx, dispute)
		}
		return toResponse(dispute), nil
	}

	actor := strings.TrimSpace(req.Actor)
	if actor == "" {
		actor = s.systemActor
	}

	if req.Decision == disputedomain.DecisionReject {
		return s.conclude(ctx, dispute, disputedomain.StatusRejected, actor, req.Notes, 0)
	}
	return s.approve(ctx, dispute, actor, req.Notes)
}

// approve claims the pending -> approved transition before touching the
// ledger, so only a durably approved dispute can ever post a refund and
// a concurrent reject can never win once credits moved. A crash between
// the claim and the posting leaves an approved dispute without a refund
// transaction id; the next Resolve call completes the refund off the
// idempotent (lead_id, refund) ledger key.
func (s *Service) approve(ctx context.Context, dispute *disputedomain.Dispute, actor, notes string) (*disputedomain.Response, error) {
	deduction, err := s.ledgerRepo.FindByReference(ctx, s.db, dispute.LeadID.String(), ledgerdomain.KindLeadDeduction)
	if err != nil {
		return nil, err
	}
	if deduction == nil {
		return nil, disputedomain.ErrLeadNotBilled
	}

	now := s.clock.Now()
	won, err := s.repo.MarkResolved(ctx, s.db, dispute.ID, disputedomain.StatusApproved, actor, notes, 0, now)
	if err != nil {
		return nil, err
	}
	if !won {
		// Lost the claim to a concurrent resolver; read back its result.
		current, err := s.repo.FindByID(ctx, s.db, dispute.ID)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, disputedomain.ErrNotFound
		}
		if current.Status == disputedomain.StatusApproved && current.RefundTransactionID == 0 {
			return s.completeRefund(ctx, current)
		}
		return toResponse(current), nil
	}

	dispute.Status = disputedomain.StatusApproved
	dispute.ResolvedBy = actor
	dispute.Notes = notes
	dispute.ResolvedAt = &now
	dispute.UpdatedAt = now

	return s.completeRefund(ctx, dispute)
}

// completeRefund posts the refund for an already-approved dispute and
// records the transaction id. An error leaves the dispute approved with
// the refund still owed; callers retry the whole Resolve.
func (s *Service) completeRefund(ctx context.Context, dispute *disputedomain.Dispute) (*disputedomain.Response, error) {
	deduction, err := s.ledgerRepo.FindByReference(ctx, s.db, dispute.LeadID.String(), ledgerdomain.KindLeadDeduction)
	if err != nil {
		return nil, err
	}
	if deduction == nil {
		return nil, disputedomain.ErrLeadNotBilled
	}

	actor := dispute.ResolvedBy
	if actor == "" {
		actor = s.systemActor
	}

	receipt, err := s.billingSvc.Refund(ctx, billingdomain.RefundRequest{
		ClinicID: dispute.ClinicID.String(),
		Amount:   -deduction.Amount,
		LeadID:   dispute.LeadID.String(),
		Actor:    actor,
	})
	if err != nil {
		return nil, err
	}

	refundID, err := snowflake.ParseString(receipt.TransactionID)
	if err != nil {
		return nil, err
	}

	recorded, err := s.repo.SetRefundTransaction(ctx, s.db, dispute.ID, refundID, s.clock.Now())
	if err != nil {
		return nil, err
	}
	dispute.RefundTransactionID = refundID
	if !recorded {
		// A concurrent completion already recorded the same refund.
		return toResponse(dispute), nil
	}

	if s.metrics != nil {
		s.metrics.DisputeTransition(string(disputedomain.StatusApproved))
	}
	if err := s.auditSvc.AuditLog(ctx, actor, "dispute.resolved", "dispute", dispute.ID.String(), map[string]any{
		"lead_id":               dispute.LeadID.String(),
		"clinic_id":             dispute.ClinicID.String(),
		"status":                string(disputedomain.StatusApproved),
		"refund_transaction_id": refundID.String(),
	}); err != nil {
		s.log.Warn("failed to write dispute audit log", zap.Error(err))
	}

	if err := s.admissionSvc.MarkRefunded(ctx, dispute.LeadID.String()); err != nil {
		s.log.Warn("failed to mark lead refunded",
			zap.String("lead_id", dispute.LeadID.String()),
			zap.Error(err),
		)
	}
	return toResponse(dispute), nil
}

func (s *Service) conclude(ctx context.Context, dispute *disputedomain.Dispute, status disputedomain.DisputeStatus, actor, notes string, refundID snowflake.ID) (*disputedomain.Response, error) {
	now := s.clock.Now()
	won, err := s.repo.MarkResolved(ctx, s.db, dispute.ID, status, actor, notes, refundID, now)
	if err != nil {
		return nil, err
	}
	if !won {
		// Lost the race to a concurrent resolver; read back its result.
		current, err := s.repo.FindByID(ctx, s.db, dispute.ID)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, disputedomain.ErrNotFound
		}
		return toResponse(current), nil
	}

	dispute.Status = status
	dispute.ResolvedBy = actor
	dispute.Notes = notes
	dispute.ResolvedAt = &now
	dispute.RefundTransactionID = refundID
	dispute.UpdatedAt = now

	if s.metrics != nil {
		s.metrics.DisputeTransition(string(status))
	}
	metadata := map[string]any{
		"lead_id":   dispute.LeadID.String(),
		"clinic_id": dispute.ClinicID.String(),
		"status":    string(status),
	}
	if refundID != 0 {
		metadata["refund_transaction_id"] = refundID.String()
	}
	if err := s.auditSvc.AuditLog(ctx, actor, "dispute.resolved", "dispute", dispute.ID.String(), metadata); err != nil {
		s.log.Warn("failed to write dispute audit log", zap.Error(err))
	}

	return toResponse(dispute), nil
}

func (s *Service) Get(ctx context.Context, id string) (*disputedomain.Response, error) {
	disputeID, err := parseID(id, disputedomain.ErrInvalidID)
	if err != nil {
		return nil, err
	}
	dispute, err := s.repo.FindByID(ctx, s.db, disputeID)
	if err != nil {
		return nil, err
	}
	if dispute == nil {
		return nil, disputedomain.ErrNotFound
	}
	return toResponse(dispute), nil
}

func (s *Service) List(ctx context.Context, req disputedomain.ListRequest) ([]disputedomain.Response, error) {
	filter := disputedomain.ListFilter{Limit: req.Limit}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}

	if clinic := strings.TrimSpace(req.ClinicID); clinic != "" {
		id, err := parseID(clinic, disputedomain.ErrInvalidClinic)
		if err != nil {
			return nil, err
		}
		filter.ClinicID = id
	}
	if status := strings.TrimSpace(req.Status); status != "" {
		filter.Status = disputedomain.DisputeStatus(status)
	}

	disputes, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}

	responses := make([]disputedomain.Response, 0, len(disputes))
	for i := range disputes {
		responses = append(responses, *toResponse(&disputes[i]))
	}
	return responses, nil
}

func toResponse(d *disputedomain.Dispute) *disputedomain.Response {
	resp := &disputedomain.Response{
		ID:         d.ID.String(),
		LeadID:     d.LeadID.String(),
		ClinicID:   d.ClinicID.String(),
		Reason:     d.Reason,
		Status:     string(d.Status),
		Notes:      d.Notes,
		ResolvedBy: d.ResolvedBy,
		ResolvedAt: d.ResolvedAt,
		CreatedAt:  d.CreatedAt,
	}
	if d.RefundTransactionID != 0 {
		resp.RefundTransactionID = d.RefundTransactionID.String()
	}
	return resp
}

func parseID(value string, invalid error) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, invalid
	}
	return id, nil
}
