// Package config builds runtime configuration from environment variables so
// main stays lean.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Server captures everything cmd/server needs to wire the components.
type Server struct {
	Addr          string
	JWTSigningKey string

	DatabaseURL  string
	RedisURL     string
	KafkaBrokers []string

	// RootAdmin is seeded into the identity registry at startup so role
	// requests have an approver on a fresh deployment.
	RootAdmin RootAdmin

	License    License
	Auction    Auction
	Dispute    Dispute
	Settlement Settlement
}

type RootAdmin struct {
	UID     string
	Name    string
	GeoHash string
	Phone   string
}

type License struct {
	// MintPrice is the fixed fee attached to a publicMint call, in the
	// ledger's smallest unit.
	MintPrice uint64
	// MintOpen is the initial state of the minting window; admins toggle it
	// at runtime.
	MintOpen bool
	// ValidationCacheTTL bounds staleness of the redis-cached eligibility
	// predicate.
	ValidationCacheTTL time.Duration
}

type Auction struct {
	// DefaultWindow applies when an SR is created without an explicit
	// auction duration.
	DefaultWindow time.Duration
}

type Dispute struct {
	// Quorum is the minimum total vote count before an outcome is final.
	Quorum int
}

type Settlement struct {
	// ConditionalHoldbackPct of the driver's collateral stays escrowed on a
	// conditional acceptance.
	ConditionalHoldbackPct int
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv reads configuration with development defaults. Secrets must be
// overridden outside development.
func FromEnv() Server {
	cfg := Server{
		Addr:          getString("GEEKSHIP_ADDR", ":8080"),
		JWTSigningKey: getString("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisURL:      os.Getenv("REDIS_URL"),
		RootAdmin: RootAdmin{
			UID:     os.Getenv("ROOT_ADMIN_UID"),
			Name:    getString("ROOT_ADMIN_NAME", "root"),
			GeoHash: getString("ROOT_ADMIN_GEOHASH", "s00000"),
			Phone:   getString("ROOT_ADMIN_PHONE", "+10000000000"),
		},
		License: License{
			MintPrice:          cast.ToUint64(getString("LICENSE_MINT_PRICE", "10000000")),
			MintOpen:           cast.ToBool(getString("LICENSE_MINT_OPEN", "true")),
			ValidationCacheTTL: cast.ToDuration(getString("LICENSE_CACHE_TTL", "5m")),
		},
		Auction: Auction{
			DefaultWindow: cast.ToDuration(getString("AUCTION_DEFAULT_WINDOW", "4h")),
		},
		Dispute: Dispute{
			Quorum: cast.ToInt(getString("DISPUTE_QUORUM", "2")),
		},
		Settlement: Settlement{
			ConditionalHoldbackPct: cast.ToInt(getString("SETTLEMENT_CONDITIONAL_HOLDBACK_PCT", "25")),
		},
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	return cfg
}

// Redis builds the redis client settings from the top-level URL.
func (s Server) Redis() RedisConfig {
	return RedisConfig{
		URL:          s.RedisURL,
		PoolSize:     cast.ToInt(getString("REDIS_POOL_SIZE", "10")),
		MinIdleConns: cast.ToInt(getString("REDIS_MIN_IDLE_CONNS", "2")),
		DialTimeout:  cast.ToDuration(getString("REDIS_DIAL_TIMEOUT", "5s")),
		ReadTimeout:  cast.ToDuration(getString("REDIS_READ_TIMEOUT", "3s")),
		WriteTimeout: cast.ToDuration(getString("REDIS_WRITE_TIMEOUT", "3s")),
	}
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
