package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/medimarket/platform/internal/audit/domain"
	billingdomain "github.com/medimarket/platform/internal/billing/domain"
	"github.com/medimarket/platform/internal/clock"
	"github.com/medimarket/platform/internal/config"
	"github.com/medimarket/platform/internal/dlock"
	ledgerdomain "github.com/medimarket/platform/internal/ledger/domain"
	notificationdomain "github.com/medimarket/platform/internal/notification/domain"
	notificationservice "github.com/medimarket/platform/internal/notification/service"
	obsmetrics "github.com/medimarket/platform/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const accountLockTTL = 15 * time.Second

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     config.Config
	LedgerRepo ledgerdomain.Repository
	AuditSvc   auditdomain.Service
	Dispatcher *notificationservice.Dispatcher `optional:"true"`
	Locker     *dlock.Locker                   `optional:"true"`
	Metrics    *obsmetrics.Metrics             `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	ledgerRepo ledgerdomain.Repository
	auditSvc   auditdomain.Service
	dispatcher *notificationservice.Dispatcher
	locker     *dlock.Locker
	metrics    *obsmetrics.Metrics
	guard      *accountGuard
	lockWait   time.Duration
}

func NewService(p Params) billingdomain.Service {
	lockWait := time.Duration(p.Config.AccountLockWaitMS) * time.Millisecond
	if lockWait <= 0 {
		lockWait = 5 * time.Second
	}

	return &Service{
		db:         p.DB,
		log:        p.Log.Named("billing.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		ledgerRepo: p.LedgerRepo,
		auditSvc:   p.AuditSvc,
		dispatcher: p.Dispatcher,
		locker:     p.Locker,
		metrics:    p.Metrics,
		guard:      newAccountGuard(),
		lockWait:   lockWait,
	}
}

func (s *Service) Allocate(ctx context.Context, req billingdomain.AllocateRequest) (*billingdomain.Receipt, error) {
	clinicID, err := parseClinicID(req.ClinicID)
	if err != nil {
		return nil, err
	}
	if req.Amount <= 0 {
		return nil, billingdomain.ErrInvalidAmount
	}

	kind := ledgerdomain.KindAllocation
	if typed := strings.TrimSpace(req.Kind); typed != "" {
		kind = ledgerdomain.TransactionKind(typed)
	}
	switch kind {
	case ledgerdomain.KindAllocation, ledgerdomain.KindPurchase, ledgerdomain.KindBonus:
	default:
		return nil, billingdomain.ErrInvalidKind
	}

	if receipt, err := s.replayed(ctx, req.ReferenceID, kind); receipt != nil || err != nil {
		return receipt, err
	}

	var posting *ledgerdomain.CreditTransaction
	var balance int64
	replayed := false

	err = s.withAccounts(ctx, []snowflake.ID{clinicID}, func(tx *gorm.DB) error {
		current, err := s.ledgerRepo.BalanceOf(ctx, tx, clinicID)
		if err != nil {
			return err
		}

		posting, err = ledgerdomain.NewTransaction(
			s.genID.Generate(), clinicID, kind, req.Amount,
			req.Description, strings.TrimSpace(req.ReferenceID), req.Actor, s.clock.Now(),
		)
		if err != nil {
			return err
		}

		if err := s.ledgerRepo.Append(ctx, tx, posting); err != nil {
			if errors.Is(err, ledgerdomain.ErrDuplicateReference) {
				existing, lookupErr := s.ledgerRepo.FindByReference(ctx, tx, posting.ReferenceID, kind)
				if lookupErr != nil {
					return lookupErr
				}
				posting = existing
				replayed = true
				balance = current
				return nil
			}
			return err
		}

		balance = current + req.Amount
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !replayed {
		s.afterCommit(ctx, posting, "credits.allocated")
	}
	return receipt(posting, balance, replayed), nil
}

func (s *Service) Debit(ctx context.Context, req billingdomain.DebitRequest) (*billingdomain.Receipt, error) {
	clinicID, err := parseClinicID(req.ClinicID)
	if err != nil {
		return nil, err
	}
	if req.Amount <= 0 {
		return nil, billingdomain.ErrInvalidAmount
	}

	kind := ledgerdomain.KindDebitAdjustment
	if typed := strings.TrimSpace(req.Kind); typed != "" {
		kind = ledgerdomain.TransactionKind(typed)
	}
	switch kind {
	case ledgerdomain.KindLeadDeduction, ledgerdomain.KindDebitAdjustment, ledgerdomain.KindAdminAdjustment:
	default:
		return nil, billingdomain.ErrInvalidKind
	}

	if receipt, err := s.replayed(ctx, req.ReferenceID, kind); receipt != nil || err != nil {
		return receipt, err
	}

	var posting *ledgerdomain.CreditTransaction
	var balance int64
	replayed := false

	err = s.withAccounts(ctx, []snowflake.ID{clinicID}, func(tx *gorm.DB) error {
		current, err := s.ledgerRepo.BalanceOf(ctx, tx, clinicID)
		if err != nil {
			return err
		}

		if !req.AllowNegative && current < req.Amount {
			return billingdomain.ErrInsufficientBalance
		}

		posting, err = ledgerdomain.NewTransaction(
			s.genID.Generate(), clinicID, kind, -req.Amount,
			req.Description, strings.TrimSpace(req.ReferenceID), req.Actor, s.clock.Now(),
		)
		if err != nil {
			return err
		}

		if err := s.ledgerRepo.Append(ctx, tx, posting); err != nil {
			if errors.Is(err, ledgerdomain.ErrDuplicateReference) {
				existing, lookupErr := s.ledgerRepo.FindByReference(ctx, tx, posting.ReferenceID, kind)
				if lookupErr != nil {
					return lookupErr
				}
				posting = existing
				replayed = true
				balance = current
				return nil
			}
			return err
		}

		balance = current - req.Amount
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !replayed {
		s.afterCommit(ctx, posting, "credits.debited")
	}
	return receipt(posting, balance, replayed), nil
}

func (s *Service) Transfer(ctx context.Context, req billingdomain.TransferRequest) (*billingdomain.TransferReceipt, error) {
	fromID, err := parseClinicID(req.FromClinicID)
	if err != nil {
		return nil, err
	}
	toID, err := parseClinicID(req.ToClinicID)
	if err != nil {
		return nil, err
	}
	if fromID == toID {
		return nil, billingdomain.ErrSameAccount
	}
	if req.Amount <= 0 {
		return nil, billingdomain.ErrInvalidAmount
	}

	reference := strings.TrimSpace(req.ReferenceID)
	if reference != "" {
		existingOut, err := s.ledgerRepo.FindByReference(ctx, s.db, reference, ledgerdomain.KindTransferOut)
		if err != nil {
			return nil, err
		}
		if existingOut != nil {
			return s.transferReplay(ctx, existingOut, reference)
		}
	}

	var out, in *ledgerdomain.CreditTransaction
	var fromBalance, toBalance int64
	replayed := false

	err = s.withAccounts(ctx, []snowflake.ID{fromID, toID}, func(tx *gorm.DB) error {
		currentFrom, err := s.ledgerRepo.BalanceOf(ctx, tx, fromID)
		if err != nil {
			return err
		}
		if currentFrom < req.Amount {
			return billingdomain.ErrInsufficientBalance
		}
		currentTo, err := s.ledgerRepo.BalanceOf(ctx, tx, toID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		out, err = ledgerdomain.NewTransaction(
			s.genID.Generate(), fromID, ledgerdomain.KindTransferOut, -req.Amount,
			req.Description, reference, req.Actor, now,
		)
		if err != nil {
			return err
		}
		in, err = ledgerdomain.NewTransaction(
			s.genID.Generate(), toID, ledgerdomain.KindTransferIn, req.Amount,
			req.Description, reference, req.Actor, now,
		)
		if err != nil {
			return err
		}

		if err := s.ledgerRepo.Append(ctx, tx, out); err != nil {
			if errors.Is(err, ledgerdomain.ErrDuplicateReference) {
				replayed = true
				return nil
			}
			return err
		}
		if err := s.ledgerRepo.Append(ctx, tx, in); err != nil {
			return err
		}

		fromBalance = currentFrom - req.Amount
		toBalance = currentTo + req.Amount
		return nil
	})
	if err != nil {
		return nil, err
	}

	if replayed {
		existingOut, err := s.ledgerRepo.FindByReference(ctx, s.db, reference, ledgerdomain.KindTransferOut)
		if err != nil {
			return nil, err
		}
		return s.transferReplay(ctx, existingOut, reference)
	}

	s.afterCommit(ctx, out, "credits.transferred")
	s.afterCommit(ctx, in, "")

	return &billingdomain.TransferReceipt{
		OutTransactionID: out.ID.String(),
		InTransactionID:  in.ID.String(),
		FromBalance:      fromBalance,
		ToBalance:        toBalance,
	}, nil
}

func (s *Service) Refund(ctx context.Context, req billingdomain.RefundRequest) (*billingdomain.Receipt, error) {
	clinicID, err := parseClinicID(req.ClinicID)
	if err != nil {
		return nil, err
	}
	if req.Amount <= 0 {
		return nil, billingdomain.ErrInvalidAmount
	}
	leadID := strings.TrimSpace(req.LeadID)
	if leadID == "" {
		return nil, billingdomain.ErrInvalidAmount
	}

	if receipt, err := s.replayed(ctx, leadID, ledgerdomain.KindRefund); receipt != nil || err != nil {
		return receipt, err
	}

	var posting *ledgerdomain.CreditTransaction
	var balance int64
	replayed := false

	err = s.withAccounts(ctx, []snowflake.ID{clinicID}, func(tx *gorm.DB) error {
		current, err := s.ledgerRepo.BalanceOf(ctx, tx, clinicID)
		if err != nil {
			return err
		}

		posting, err = ledgerdomain.NewTransaction(
			s.genID.Generate(), clinicID, ledgerdomain.KindRefund, req.Amount,
			"refund for lead "+leadID, leadID, req.Actor, s.clock.Now(),
		)
		if err != nil {
			return err
		}

		if err := s.ledgerRepo.Append(ctx, tx, posting); err != nil {
			if errors.Is(err, ledgerdomain.ErrDuplicateReference) {
				existing, lookupErr := s.ledgerRepo.FindByReference(ctx, tx, leadID, ledgerdomain.KindRefund)
				if lookupErr != nil {
					return lookupErr
				}
				posting = existing
				replayed = true
				balance = current
				return nil
			}
			return err
		}

		balance = current + req.Amount
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !replayed {
		s.afterCommit(ctx, posting, "credits.refunded")
	}
	return receipt(posting, balance, replayed), nil
}

func (s *Service) BulkAllocate(ctx context.Context, req billingdomain.BulkAllocateRequest) (*billingdomain.BulkAllocateResponse, error) {
	if len(req.Entries) == 0 {
		return nil, billingdomain.ErrEmptyBatch
	}

	resp := &billingdomain.BulkAllocateResponse{}
	for i, entry := range req.Entries {
		_, err := s.Allocate(ctx, billingdomain.AllocateRequest{
			ClinicID:    entry.ClinicID,
			Amount:      entry.Amount,
			Description: entry.Description,
			Actor:       req.Actor,
		})
		if err != nil {
			resp.FailureCount++
			resp.Failed = append(resp.Failed, billingdomain.FailedEntry{
				Index:    i,
				ClinicID: entry.ClinicID,
				Reason:   err.Error(),
			})
			continue
		}
		resp.SuccessCount++
	}

	return resp, nil
}

// replayed short-circuits an operation whose idempotency key has already
// produced a completed posting.
func (s *Service) replayed(ctx context.Context, referenceID string, kind ledgerdomain.TransactionKind) (*billingdomain.Receipt, error) {
	referenceID = strings.TrimSpace(referenceID)
	if referenceID == "" {
		return nil, nil
	}

	existing, err := s.ledgerRepo.FindByReference(ctx, s.db, referenceID, kind)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}

	balance, err := s.ledgerRepo.BalanceOf(ctx, s.db, existing.ClinicID)
	if err != nil {
		return nil, err
	}
	return receipt(existing, balance, true), nil
}

func (s *Service) transferReplay(ctx context.Context, out *ledgerdomain.CreditTransaction, reference string) (*billingdomain.TransferReceipt, error) {
	if out == nil {
		return nil, billingdomain.ErrAccountBusy
	}

	in, err := s.ledgerRepo.FindByReference(ctx, s.db, reference, ledgerdomain.KindTransferIn)
	if err != nil {
		return nil, err
	}
	if in == nil {
		return nil, billingdomain.ErrAccountBusy
	}

	fromBalance, err := s.ledgerRepo.BalanceOf(ctx, s.db, out.ClinicID)
	if err != nil {
		return nil, err
	}
	toBalance, err := s.ledgerRepo.BalanceOf(ctx, s.db, in.ClinicID)
	if err != nil {
		return nil, err
	}

	return &billingdomain.TransferReceipt{
		OutTransactionID: out.ID.String(),
		InTransactionID:  in.ID.String(),
		FromBalance:      fromBalance,
		ToBalance:        toBalance,
	}, nil
}

// withAccounts runs fn inside one storage transaction holding the guard
// and the row lock for every listed clinic. Accounts are locked in ID
// order so concurrent transfers cannot deadlock.
func (s *Service) withAccounts(ctx context.Context, clinicIDs []snowflake.ID, fn func(tx *gorm.DB) error) error {
	ids := make([]snowflake.ID, len(clinicIDs))
	copy(ids, clinicIDs)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	waitCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	defer cancel()

	for _, id := range ids {
		release, err := s.guard.acquire(waitCtx, id)
		if err != nil {
			if s.metrics != nil {
				s.metrics.LockTimeout()
			}
			return err
		}
		defer release()
	}

	if s.locker != nil {
		for _, id := range ids {
			key := "credit_account:" + id.String()
			token, err := s.locker.Lock(waitCtx, key, accountLockTTL)
			if err != nil {
				if s.metrics != nil {
					s.metrics.LockTimeout()
				}
				if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
					return billingdomain.ErrAccountBusy
				}
				return err
			}
			defer func(key, token string) {
				if err := s.locker.Release(context.Background(), key, token); err != nil {
					s.log.Warn("failed to release account lock", zap.String("key", key), zap.Error(err))
				}
			}(key, token)
		}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range ids {
			if err := s.ledgerRepo.LockAccount(ctx, tx, id); err != nil {
				return err
			}
		}
		return fn(tx)
	})
}

// afterCommit runs the advisory side effects of a committed posting.
// Failures here are logged only; the posting stands.
func (s *Service) afterCommit(ctx context.Context, posting *ledgerdomain.CreditTransaction, auditAction string) {
	if posting == nil {
		return
	}

	if s.metrics != nil {
		s.metrics.PostingCommitted(string(posting.Kind))
	}

	if s.dispatcher != nil {
		s.dispatcher.Enqueue(notificationdomain.Event{
			ClinicID:    posting.ClinicID.String(),
			Kind:        string(posting.Kind),
			Amount:      posting.Amount,
			Description: posting.Description,
		})
	}

	if auditAction == "" {
		return
	}
	metadata := map[string]any{
		"clinic_id": posting.ClinicID.String(),
		"kind":      string(posting.Kind),
		"amount":    posting.Amount,
	}
	if posting.ReferenceID != "" {
		metadata["reference_id"] = posting.ReferenceID
	}
	if err := s.auditSvc.AuditLog(ctx, posting.CreatedBy, auditAction, "credit_transaction", posting.ID.String(), metadata); err != nil {
		s.log.Warn("failed to write billing audit log", zap.Error(err))
	}
}

func receipt(posting *ledgerdomain.CreditTransaction, balance int64, replayed bool) *billingdomain.Receipt {
	return &billingdomain.Receipt{
		TransactionID: posting.ID.String(),
		ClinicID:      posting.ClinicID.String(),
		Kind:          string(posting.Kind),
		Amount:        posting.Amount,
		Balance:       balance,
		Replayed:      replayed,
		CreatedAt:     posting.CreatedAt,
	}
}

func parseClinicID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, billingdomain.ErrInvalidClinic
	}
	return id, nil
}
