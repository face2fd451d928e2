package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/medimarket/platform/internal/actorcontext"
	auditdomain "github.com/medimarket/platform/internal/audit/domain"
	"github.com/medimarket/platform/internal/cache"
	"github.com/medimarket/platform/internal/clock"
	"github.com/medimarket/platform/internal/config"
	pricingdomain "github.com/medimarket/platform/internal/pricing/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	activeTiersKey = "active"
	activeTiersTTL = 5 * time.Minute
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       pricingdomain.Repository
	AuditSvc   auditdomain.Service
	PricingCfg *config.PricingConfigHolder
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     pricingdomain.Repository
	auditSvc auditdomain.Service
	cfg      *config.PricingConfigHolder
	tiers    cache.Cache[string, []pricingdomain.PricingTier]
}

func NewService(p Params) pricingdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("pricing.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
		cfg:      p.PricingCfg,
		tiers:    cache.NewTTLCache[string, []pricingdomain.PricingTier](),
	}
}

func (s *Service) Resolve(ctx context.Context, price int64) (int64, error) {
	tiers, err := s.activeTiers(ctx)
	if err != nil {
		return 0, err
	}

	cost, err := pricingdomain.ResolveCost(tiers, price)
	if err != nil {
		if err == pricingdomain.ErrPriceUnresolvable {
			// A gap slipped past configuration validation; operators
			// need to know before more leads go unbilled.
			s.log.Error("no pricing tier covers price",
				zap.Int64("price", price),
				zap.Int("active_tiers", len(tiers)),
			)
		}
		return 0, err
	}
	return cost, nil
}

func (s *Service) List(ctx context.Context) ([]pricingdomain.TierResponse, error) {
	tiers, err := s.activeTiers(ctx)
	if err != nil {
		return nil, err
	}

	resp := make([]pricingdomain.TierResponse, 0, len(tiers))
	for i := range tiers {
		resp = append(resp, toResponse(&tiers[i]))
	}
	return resp, nil
}

func (s *Service) Replace(ctx context.Context, req pricingdomain.ReplaceRequest) ([]pricingdomain.TierResponse, error) {
	now := s.clock.Now()
	replacement := make([]pricingdomain.PricingTier, 0, len(req.Tiers))
	for _, input := range req.Tiers {
		replacement = append(replacement, pricingdomain.PricingTier{
			ID:         s.genID.Generate(),
			MinPrice:   input.MinPrice,
			MaxPrice:   input.MaxPrice,
			CreditCost: input.CreditCost,
			Active:     true,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}

	if err := pricingdomain.ValidateTierSet(replacement); err != nil {
		return nil, err
	}

	previous, err := s.repo.ListActive(ctx, s.db)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.DeactivateAll(ctx, tx, now); err != nil {
			return err
		}
		for i := range replacement {
			if err := s.repo.Insert(ctx, tx, &replacement[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.tiers.Delete(activeTiersKey)

	actor, _ := actorcontext.ActorFromContext(ctx)
	metadata := map[string]any{
		"old_tiers": tierAuditValues(previous),
		"new_tiers": tierAuditValues(replacement),
	}
	if err := s.auditSvc.AuditLog(ctx, actor, "pricing.tiers_replaced", "pricing_tier_set", "", metadata); err != nil {
		s.log.Warn("failed to write pricing audit log", zap.Error(err))
	}

	resp := make([]pricingdomain.TierResponse, 0, len(replacement))
	for i := range replacement {
		resp = append(resp, toResponse(&replacement[i]))
	}
	return resp, nil
}

func (s *Service) Seed(ctx context.Context) error {
	existing, err := s.repo.ListActive(ctx, s.db)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	now := s.clock.Now()
	seeded := make([]pricingdomain.PricingTier, 0)
	for _, bootstrap := range s.cfg.Get().BootstrapTiers {
		seeded = append(seeded, pricingdomain.PricingTier{
			ID:         s.genID.Generate(),
			MinPrice:   bootstrap.MinPrice,
			MaxPrice:   bootstrap.MaxPrice,
			CreditCost: bootstrap.CreditCost,
			Active:     true,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}

	if err := pricingdomain.ValidateTierSet(seeded); err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range seeded {
			if err := s.repo.Insert(ctx, tx, &seeded[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info("seeded pricing tiers from bootstrap config", zap.Int("tiers", len(seeded)))
	return nil
}

func (s *Service) activeTiers(ctx context.Context) ([]pricingdomain.PricingTier, error) {
	if cached, ok := s.tiers.Get(activeTiersKey); ok {
		return cached, nil
	}

	tiers, err := s.repo.ListActive(ctx, s.db)
	if err != nil {
		return nil, err
	}

	s.tiers.Set(activeTiersKey, tiers, activeTiersTTL)
	return tiers, nil
}

func tierAuditValues(tiers []pricingdomain.PricingTier) []map[string]any {
	values := make([]map[string]any, 0, len(tiers))
	for _, tier := range tiers {
		value := map[string]any{
			"min_price":   tier.MinPrice,
			"credit_cost": tier.CreditCost,
		}
		if tier.MaxPrice != nil {
			value["max_price"] = *tier.MaxPrice
		}
		values = append(values, value)
	}
	return values
}

func toResponse(t *pricingdomain.PricingTier) pricingdomain.TierResponse {
	return pricingdomain.TierResponse{
		ID:         t.ID.String(),
		MinPrice:   t.MinPrice,
		MaxPrice:   t.MaxPrice,
		CreditCost: t.CreditCost,
		Active:     t.Active,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
	}
}
