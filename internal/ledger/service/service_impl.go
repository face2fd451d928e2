package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/medimarket/platform/internal/ledger/domain"
	"github.com/medimarket/platform/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo ledgerdomain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo ledgerdomain.Repository
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("ledger.service"),
		repo: p.Repo,
	}
}

func (s *Service) BalanceOf(ctx context.Context, clinicID string) (ledgerdomain.BalanceResponse, error) {
	id, err := parseClinicID(clinicID)
	if err != nil {
		return ledgerdomain.BalanceResponse{}, err
	}

	balance, err := s.repo.BalanceOf(ctx, s.db, id)
	if err != nil {
		return ledgerdomain.BalanceResponse{}, err
	}

	return ledgerdomain.BalanceResponse{
		ClinicID: id.String(),
		Balance:  balance,
	}, nil
}

func (s *Service) History(ctx context.Context, req ledgerdomain.HistoryRequest) (ledgerdomain.HistoryResponse, error) {
	id, err := parseClinicID(req.ClinicID)
	if err != nil {
		return ledgerdomain.HistoryResponse{}, err
	}

	limit := req.PageSize
	if limit <= 0 {
		limit = 20
	}

	filter := ledgerdomain.HistoryFilter{
		ClinicID: id,
		Limit:    limit,
	}

	if kind := strings.TrimSpace(req.Kind); kind != "" {
		typed := ledgerdomain.TransactionKind(kind)
		if !typed.Valid() {
			return ledgerdomain.HistoryResponse{}, ledgerdomain.ErrInvalidKind
		}
		filter.Kind = typed
	}

	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return ledgerdomain.HistoryResponse{}, ledgerdomain.ErrInvalidPageToken
		}
		filter.Cursor = cursor
	}

	postings, err := s.repo.History(ctx, s.db, filter)
	if err != nil {
		return ledgerdomain.HistoryResponse{}, err
	}

	resp := ledgerdomain.HistoryResponse{}
	hasMore := len(postings) > limit
	if hasMore {
		postings = postings[:limit]
	}
	resp.HasMore = hasMore

	for _, posting := range postings {
		resp.Transactions = append(resp.Transactions, ledgerdomain.HistoryEntry{
			ID:          posting.ID.String(),
			ClinicID:    posting.ClinicID.String(),
			Kind:        string(posting.Kind),
			Amount:      posting.Amount,
			Description: posting.Description,
			ReferenceID: posting.ReferenceID,
			Status:      string(posting.Status),
			CreatedBy:   posting.CreatedBy,
			CreatedAt:   posting.CreatedAt,
		})
	}

	if hasMore && len(postings) > 0 {
		last := postings[len(postings)-1]
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        last.ID.String(),
			CreatedAt: last.CreatedAt.UTC().Format("2006-01-02T15:04:05.999999Z07:00"),
		})
		if err == nil {
			resp.NextPageToken = token
		}
	}

	return resp, nil
}

func parseClinicID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, ledgerdomain.ErrInvalidClinic
	}
	return id, nil
}
