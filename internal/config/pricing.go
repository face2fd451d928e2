package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// BootstrapTier is a pricing tier loaded from file configuration. Tiers in
// the database stay authoritative; this set only seeds an empty table.
type BootstrapTier struct {
	MinPrice   int64  `mapstructure:"minPrice"`
	MaxPrice   *int64 `mapstructure:"maxPrice"`
	CreditCost int64  `mapstructure:"creditCost"`
}

type PricingConfig struct {
	BootstrapTiers []BootstrapTier `mapstructure:"bootstrapTiers"`
}

func DefaultPricingConfig() PricingConfig {
	return PricingConfig{
		BootstrapTiers: []BootstrapTier{
			{MinPrice: 0, MaxPrice: int64Ptr(5_000), CreditCost: 100},
			{MinPrice: 5_000, MaxPrice: int64Ptr(15_000), CreditCost: 180},
			{MinPrice: 15_000, MaxPrice: int64Ptr(50_000), CreditCost: 300},
			{MinPrice: 50_000, MaxPrice: nil, CreditCost: 500},
		},
	}
}

func int64Ptr(v int64) *int64 { return &v }

// PricingConfigHolder exposes the current pricing bootstrap config and
// hot-reloads it when the file changes.
type PricingConfigHolder struct {
	current atomic.Value // holds PricingConfig
}

func NewPricingConfigHolder(log *zap.Logger) (*PricingConfigHolder, error) {
	log = log.Named("pricing.config")
	v := viper.New()

	v.SetConfigName("pricing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/medimarket/config") // Volume-mounted config
	v.AddConfigPath("/etc/medimarket")            // System config
	v.AddConfigPath(".")                          // Current directory (dev mode)

	v.SetEnvPrefix("MEDIMARKET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// if config file not found, use defaults
		defaults := DefaultPricingConfig()
		v.SetDefault("pricing.bootstrapTiers", defaults.BootstrapTiers)
	}

	var cfg PricingConfig
	if err := v.UnmarshalKey("pricing", &cfg); err != nil {
		return nil, err
	}
	if len(cfg.BootstrapTiers) == 0 {
		cfg = DefaultPricingConfig()
	}
	if err := validatePricingConfig(cfg); err != nil {
		return nil, err
	}

	holder := &PricingConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PricingConfig
		if err := v.UnmarshalKey("pricing", &updated); err != nil {
			log.Warn("pricing config reload failed", zap.Error(err))
			return
		}
		if err := validatePricingConfig(updated); err != nil {
			log.Warn("invalid pricing config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("pricing config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *PricingConfigHolder) Get() PricingConfig {
	return h.current.Load().(PricingConfig)
}

// validatePricingConfig rejects tier sets that leave a price without a
// cost or resolve one price to two costs. Ranges must be contiguous from
// zero with at most one open-ended tail.
func validatePricingConfig(cfg PricingConfig) error {
	tiers := cfg.BootstrapTiers
	if len(tiers) == 0 {
		return errors.New("pricing.bootstrapTiers cannot be empty")
	}

	next := int64(0)
	for i, tier := range tiers {
		if tier.CreditCost <= 0 {
			return errors.New("pricing tier credit cost must be positive")
		}
		if tier.MinPrice != next {
			return errors.New("pricing tiers must cover prices without gaps or overlaps")
		}
		if tier.MaxPrice == nil {
			if i != len(tiers)-1 {
				return errors.New("only the last pricing tier may be open-ended")
			}
			return nil
		}
		if *tier.MaxPrice <= tier.MinPrice {
			return errors.New("pricing tier max price must exceed min price")
		}
		next = *tier.MaxPrice
	}

	return errors.New("the last pricing tier must be open-ended")
}
