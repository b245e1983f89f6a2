package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/gozy-app/gozy/internal/domain/checkout"
	"github.com/gozy-app/gozy/internal/domain/offer"
	"github.com/gozy-app/gozy/internal/domain/settlement"
)

// Catalog sources.
const (
	CatalogBuiltin  = "builtin"
	CatalogPostgres = "postgres"
)

// Config holds the complete application configuration, loadable from
// environment variables (GOZY_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (GOZY_DATABASE_URL or DATABASE_URL); in-memory store when empty" flag:"database-url"`
	Redis       RedisConfig
	Catalog     CatalogConfig
	Offers      OffersConfig
	Settlement  SettlementConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// RedisConfig selects Redis as the profile store. It takes precedence over
// the PostgreSQL kv table.
type RedisConfig struct {
	Addr     string `usage:"Redis address (host:port); profiles stay in PostgreSQL or memory when empty" flag:"redis-addr"`
	Password string `usage:"Redis password" flag:"redis-password"`
	DB       int    `default:"0" usage:"Redis database number" flag:"redis-db"`
}

// CatalogConfig selects where offers are loaded from.
type CatalogConfig struct {
	Source string `default:"builtin" usage:"Offer catalog source: builtin or postgres" flag:"catalog-source"`
}

// OffersConfig holds the stacking and session rules.
type OffersConfig struct {
	StackCapPercent    int64         `default:"40" usage:"Maximum total discount as a percentage of the order"`
	WalletCashbackCode string        `default:"WALLET100" usage:"Offer stackable on top of another when paying by wallet"`
	PreferStackOnTie   bool          `default:"false" usage:"Prefer the two-code stack when it ties with the best single code"`
	NoticeTTL          time.Duration `default:"2s" usage:"How long checkout notices stay visible"`
	SessionTTL         time.Duration `default:"30m" usage:"Idle checkout sessions are dropped after this duration"`
}

// SettlementConfig holds the ledger rules.
type SettlementConfig struct {
	PayLaterLimit      int64 `default:"10000" usage:"Pay later credit limit in rupees"`
	RewardPointsPer100 int64 `default:"1" usage:"Loyalty points per full ₹100 paid"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, flags and YAML
// config files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(os.Args[1:])
}

func loadConfig(args []string) (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "GOZY",
		Args:      args,
		Files:     []string{"config.yaml", "/etc/gozy/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Catalog.Source {
	case CatalogBuiltin:
	case CatalogPostgres:
		if c.DatabaseURL == "" {
			return errors.New("catalog source postgres requires a database URL: set GOZY_DATABASE_URL or DATABASE_URL")
		}
	default:
		return errors.Errorf("unknown catalog source %q", c.Catalog.Source)
	}
	if c.Redis.DB < 0 {
		return errors.Errorf("redis db %d must not be negative", c.Redis.DB)
	}
	if c.Offers.StackCapPercent < 0 || c.Offers.StackCapPercent > 100 {
		return errors.Errorf("stack cap percent %d out of range [0, 100]", c.Offers.StackCapPercent)
	}
	if c.Settlement.PayLaterLimit < 0 || c.Settlement.RewardPointsPer100 < 0 {
		return errors.New("settlement limits must not be negative")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's GOZY_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}

// SelectorConfig returns the stacking rules.
func (c OffersConfig) SelectorConfig() offer.SelectorConfig {
	return offer.SelectorConfig{
		StackCapPercent:    c.StackCapPercent,
		WalletCashbackCode: c.WalletCashbackCode,
		PreferStackOnTie:   c.PreferStackOnTie,
	}
}

// CheckoutConfig returns the session rules.
func (c OffersConfig) CheckoutConfig() checkout.Config {
	return checkout.Config{
		Selector:  c.SelectorConfig(),
		NoticeTTL: c.NoticeTTL,
	}
}

// Ledger returns the settlement rules.
func (c SettlementConfig) Ledger() settlement.Config {
	return settlement.Config{
		PayLaterLimit:      decimal.NewFromInt(c.PayLaterLimit),
		RewardPointsPer100: c.RewardPointsPer100,
	}
}
