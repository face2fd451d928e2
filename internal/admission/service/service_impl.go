package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	admissiondomain "github.com/medimarket/platform/internal/admission/domain"
	billingdomain "github.com/medimarket/platform/internal/billing/domain"
	"github.com/medimarket/platform/internal/clock"
	"github.com/medimarket/platform/internal/config"
	ledgerdomain "github.com/medimarket/platform/internal/ledger/domain"
	obsmetrics "github.com/medimarket/platform/internal/observability/metrics"
	pricingdomain "github.com/medimarket/platform/internal/pricing/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Config     config.Config
	Repo       admissiondomain.Repository
	PricingSvc pricingdomain.Service
	BillingSvc billingdomain.Service
	Metrics    *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	systemActor string
	repo        admissiondomain.Repository
	pricingSvc  pricingdomain.Service
	billingSvc  billingdomain.Service
	metrics     *obsmetrics.Metrics
}

func NewService(p Params) admissiondomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("admission.service"),
		clock:       p.Clock,
		systemActor: p.Config.SystemActor,
		repo:        p.Repo,
		pricingSvc:  p.PricingSvc,
		billingSvc:  p.BillingSvc,
		metrics:     p.Metrics,
	}
}

func (s *Service) AdmitLead(ctx context.Context, req admissiondomain.AdmitRequest) (*admissiondomain.Decision, error) {
	return s.admit(ctx, req, false)
}

func (s *Service) ForceAdmit(ctx context.Context, req admissiondomain.AdmitRequest) (*admissiondomain.Decision, error) {
	return s.admit(ctx, req, true)
}

func (s *Service) admit(ctx context.Context, req admissiondomain.AdmitRequest, allowNegative bool) (*admissiondomain.Decision, error) {
	leadID, err := parseID(req.LeadID, admissiondomain.ErrInvalidLead)
	if err != nil {
		return nil, err
	}
	clinicID, err := parseID(req.ClinicID, admissiondomain.ErrInvalidClinic)
	if err != nil {
		return nil, err
	}
	if req.PackagePrice < 0 {
		return nil, admissiondomain.ErrInvalidPrice
	}

	// A lead already billed (or refunded after billing) is terminal;
	// replay the recorded decision instead of deducting again.
	existing, err := s.repo.FindByLeadID(ctx, s.db, leadID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Status != admissiondomain.StatusBillingDenied {
		return &admissiondomain.Decision{
			LeadID:        existing.LeadID.String(),
			Billed:        true,
			TransactionID: existing.BillingTransactionID.String(),
			Amount:        existing.BillingAmount,
			Replayed:      true,
		}, nil
	}

	cost, err := s.pricingSvc.Resolve(ctx, req.PackagePrice)
	if err != nil {
		if errors.Is(err, pricingdomain.ErrPriceUnresolvable) || errors.Is(err, pricingdomain.ErrInvalidPrice) {
			return s.deny(ctx, leadID, clinicID, req.PackagePrice, admissiondomain.ReasonPricingUnavailable)
		}
		return nil, err
	}

	actor := strings.TrimSpace(req.Actor)
	if actor == "" {
		actor = s.systemActor
	}

	receipt, err := s.billingSvc.Debit(ctx, billingdomain.DebitRequest{
		ClinicID:      clinicID.String(),
		Amount:        cost,
		Kind:          string(ledgerdomain.KindLeadDeduction),
		Description:   fmt.Sprintf("lead %s admission", leadID.String()),
		ReferenceID:   leadID.String(),
		Actor:         actor,
		AllowNegative: allowNegative,
	})
	if err != nil {
		if errors.Is(err, billingdomain.ErrInsufficientBalance) {
			return s.deny(ctx, leadID, clinicID, req.PackagePrice, admissiondomain.ReasonInsufficientBalance)
		}
		// Busy or storage failure: record nothing, the caller retries
		// the admission as a whole.
		return nil, err
	}

	txID, err := snowflake.ParseString(receipt.TransactionID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	record := &admissiondomain.LeadBilling{
		LeadID:               leadID,
		ClinicID:             clinicID,
		Status:               admissiondomain.StatusBilled,
		PackagePrice:         req.PackagePrice,
		BillingAmount:        cost,
		BillingTransactionID: txID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.repo.Upsert(ctx, s.db, record); err != nil {
		// The deduction is committed; admission replays idempotently
		// off the ledger on retry.
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.AdmissionDecided("billed")
	}

	return &admissiondomain.Decision{
		LeadID:        leadID.String(),
		Billed:        true,
		TransactionID: receipt.TransactionID,
		Amount:        cost,
		Balance:       receipt.Balance,
		Replayed:      receipt.Replayed,
	}, nil
}

func (s *Service) deny(ctx context.Context, leadID, clinicID snowflake.ID, packagePrice int64, reason string) (*admissiondomain.Decision, error) {
	now := s.clock.Now()
	record := &admissiondomain.LeadBilling{
		LeadID:       leadID,
		ClinicID:     clinicID,
		Status:       admissiondomain.StatusBillingDenied,
		PackagePrice: packagePrice,
		DenyReason:   reason,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Upsert(ctx, s.db, record); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.AdmissionDecided(reason)
	}
	s.log.Info("lead admission denied",
		zap.String("lead_id", leadID.String()),
		zap.String("clinic_id", clinicID.String()),
		zap.String("reason", reason),
	)

	return &admissiondomain.Decision{
		LeadID: leadID.String(),
		Billed: false,
		Reason: reason,
	}, nil
}

func (s *Service) MarkRefunded(ctx context.Context, leadID string) error {
	id, err := parseID(leadID, admissiondomain.ErrInvalidLead)
	if err != nil {
		return err
	}

	existing, err := s.repo.FindByLeadID(ctx, s.db, id)
	if err != nil {
		return err
	}
	if existing == nil || existing.Status == admissiondomain.StatusBillingDenied {
		return admissiondomain.ErrLeadNotBilled
	}
	if existing.Status == admissiondomain.StatusRefunded {
		return nil
	}

	existing.Status = admissiondomain.StatusRefunded
	existing.UpdatedAt = s.clock.Now()
	return s.repo.Upsert(ctx, s.db, existing)
}

func (s *Service) Get(ctx context.Context, leadID string) (*admissiondomain.LeadBilling, error) {
	id, err := parseID(leadID, admissiondomain.ErrInvalidLead)
	if err != nil {
		return nil, err
	}
	return s.repo.FindByLeadID(ctx, s.db, id)
}

func parseID(value string, invalid error) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, invalid
	}
	return id, nil
}
