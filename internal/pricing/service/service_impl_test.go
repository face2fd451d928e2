package service

import (
	"context"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditrepository "github.com/medimarket/platform/internal/audit/repository"
	auditservice "github.com/medimarket/platform/internal/audit/service"
	"github.com/medimarket/platform/internal/clock"
	"github.com/medimarket/platform/internal/config"
	pricingdomain "github.com/medimarket/platform/internal/pricing/domain"
	"github.com/medimarket/platform/internal/pricing/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

const pricingSchema = `
CREATE TABLE lead_pricing_tiers (
	id INTEGER PRIMARY KEY,
	min_price INTEGER NOT NULL,
	max_price INTEGER,
	credit_cost INTEGER NOT NULL,
	active BOOLEAN NOT NULL DEFAULT TRUE,
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

func newTestService(t *testing.T) (pricingdomain.Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	for _, stmt := range strings.Split(pricingSchema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		require.NoError(t, db.Exec(stmt).Error)
	}

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zaptest.NewLogger(t)

	holder, err := config.NewPricingConfigHolder(log)
	require.NoError(t, err)

	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: &clock.SystemClock{},
		Repo:  auditrepository.Provide(),
	})

	svc := NewService(Params{
		DB:         db,
		Log:        log,
		GenID:      node,
		Clock:      &clock.SystemClock{},
		Repo:       repository.Provide(),
		AuditSvc:   auditSvc,
		PricingCfg: holder,
	})
	return svc, db
}

func ptr(v int64) *int64 { return &v }

func TestSeedInstallsBootstrapTiers(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Seed(ctx))

	cost, err := svc.Resolve(ctx, 10_000)
	require.NoError(t, err)
	assert.Equal(t, int64(180), cost)

	tiers, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, tiers, 4)

	// Seeding again must not duplicate the set.
	require.NoError(t, svc.Seed(ctx))
	tiers, err = svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, tiers, 4)
}

func TestReplaceSwapsActiveSet(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.Seed(ctx))

	replaced, err := svc.Replace(ctx, pricingdomain.ReplaceRequest{
		Tiers: []pricingdomain.TierInput{
			{MinPrice: 0, MaxPrice: ptr(10_000), CreditCost: 120},
			{MinPrice: 10_000, MaxPrice: nil, CreditCost: 400},
		},
	})
	require.NoError(t, err)
	assert.Len(t, replaced, 2)

	// The cache is invalidated, so resolution follows the new set.
	cost, err := svc.Resolve(ctx, 10_000)
	require.NoError(t, err)
	assert.Equal(t, int64(400), cost)

	// Old tiers are retired, not deleted.
	var inactive int64
	db.Raw(`SELECT COUNT(*) FROM lead_pricing_tiers WHERE active = FALSE`).Scan(&inactive)
	assert.Equal(t, int64(4), inactive)

	var audited int64
	db.Raw(`SELECT COUNT(*) FROM audit_logs WHERE action = 'pricing.tiers_replaced'`).Scan(&audited)
	assert.Equal(t, int64(1), audited)
}

func TestReplaceRejectsBrokenCoverage(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.Seed(ctx))

	_, err := svc.Replace(ctx, pricingdomain.ReplaceRequest{
		Tiers: []pricingdomain.TierInput{
			{MinPrice: 0, MaxPrice: ptr(5_000), CreditCost: 100},
			{MinPrice: 6_000, MaxPrice: nil, CreditCost: 200},
		},
	})
	assert.ErrorIs(t, err, pricingdomain.ErrTierGap)

	_, err = svc.Replace(ctx, pricingdomain.ReplaceRequest{})
	assert.ErrorIs(t, err, pricingdomain.ErrEmptyTierSet)

	// The rejected replacement left the previous set untouched.
	cost, err := svc.Resolve(ctx, 1_000)
	require.NoError(t, err)
	assert.Equal(t, int64(100), cost)
}

func TestResolveRejectsNegativePrice(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.Seed(ctx))

	_, err := svc.Resolve(ctx, -1)
	assert.ErrorIs(t, err, pricingdomain.ErrInvalidPrice)
}
