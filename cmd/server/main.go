package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	disputehandler "geekship/internal/dispute/handler"
	disputeservice "geekship/internal/dispute/service"
	disputestore "geekship/internal/dispute/store"
	identityhandler "geekship/internal/identity/handler"
	identitymodels "geekship/internal/identity/models"
	identityservice "geekship/internal/identity/service"
	identitystore "geekship/internal/identity/store"
	"geekship/internal/ledger"
	licensehandler "geekship/internal/license/handler"
	licenseservice "geekship/internal/license/service"
	licensestore "geekship/internal/license/store"
	"geekship/internal/platform/config"
	"geekship/internal/platform/httpserver"
	"geekship/internal/platform/logger"
	"geekship/internal/platform/metrics"
	"geekship/internal/platform/middleware"
	platformredis "geekship/internal/platform/redis"
	srhandler "geekship/internal/servicerequest/handler"
	srservice "geekship/internal/servicerequest/service"
	srstore "geekship/internal/servicerequest/store"
	httpapi "geekship/internal/transport/http"
	"geekship/pkg/audit"
	"geekship/pkg/domain"
)

// main wires the components and owns the process lifecycle. Business logic
// lives in the internal service packages.
func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

// licenseGate breaks the construction cycle between the registry (which
// gates driver applications on license validity) and the credential service
// (which gates admin operations on the registry). Bound after both exist.
type licenseGate struct {
	licenses *licenseservice.Service
}

func (g *licenseGate) Validate(ctx context.Context, uid domain.UserID) (bool, error) {
	return g.licenses.Validate(ctx, uid)
}

type adminChecker struct {
	identity *identityservice.Service
}

func (a adminChecker) IsAdmin(ctx context.Context, uid domain.UserID) (bool, error) {
	return a.identity.HasRole(ctx, uid, identitymodels.RoleAdmin)
}

type pgHealth struct {
	pool *pgxpool.Pool
}

func (h pgHealth) Health(ctx context.Context) error {
	return h.pool.Ping(ctx)
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	health := make(map[string]httpapi.HealthChecker)

	var auditStore audit.Store
	if len(cfg.KafkaBrokers) > 0 {
		sink, err := audit.NewKafkaSink(cfg.KafkaBrokers)
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		defer sink.Close()
		auditStore = sink
	} else {
		log.Warn("no kafka brokers configured, audit events stay in memory")
		auditStore = audit.NewInMemoryStore()
	}
	auditPub := audit.NewPublisher(auditStore, audit.WithAsyncBuffer(256))
	defer auditPub.Close()

	var (
		identityStore identityservice.Store = identitystore.NewMemory()
		srStore       srservice.Store       = srstore.NewMemory()
	)
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()
		identityStore = identitystore.NewPostgres(pool)
		srStore = srstore.NewPostgres(pool)
		health["postgres"] = pgHealth{pool: pool}
	} else {
		log.Warn("no database configured, state stays in memory")
	}

	rdb, err := platformredis.New(cfg.Redis())
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if rdb != nil {
		defer rdb.Close()
		health["redis"] = rdb
	}

	led := ledger.New()

	gate := &licenseGate{}
	identitySvc := identityservice.New(identityStore, gate,
		identityservice.WithLogger(log),
		identityservice.WithAuditPublisher(auditPub),
		identityservice.WithMetrics(m),
	)

	licenseOpts := []licenseservice.Option{
		licenseservice.WithLogger(log),
		licenseservice.WithAuditPublisher(auditPub),
		licenseservice.WithMetrics(m),
		licenseservice.WithMintOpen(cfg.License.MintOpen),
	}
	if rdb != nil {
		cache := licensestore.NewRedisValidationCache(rdb.Client, cfg.License.ValidationCacheTTL)
		licenseOpts = append(licenseOpts, licenseservice.WithValidationCache(cache))
	}
	licenseSvc := licenseservice.New(licensestore.NewMemory(), adminChecker{identity: identitySvc}, led, cfg.License.MintPrice, licenseOpts...)
	gate.licenses = licenseSvc

	policy := ledger.SettlementPolicy{ConditionalHoldbackPct: cfg.Settlement.ConditionalHoldbackPct}
	engineSvc := srservice.New(srStore, identitySvc, licenseSvc, led, policy,
		srservice.WithLogger(log),
		srservice.WithAuditPublisher(auditPub),
		srservice.WithMetrics(m),
		srservice.WithDefaultAuctionWindow(cfg.Auction.DefaultWindow),
	)

	disputeSvc := disputeservice.New(disputestore.NewMemory(), identitySvc, engineSvc, cfg.Dispute.Quorum,
		disputeservice.WithLogger(log),
		disputeservice.WithAuditPublisher(auditPub),
		disputeservice.WithMetrics(m),
	)
	engineSvc.BindDisputes(disputeSvc)

	if cfg.RootAdmin.UID != "" {
		uid, err := domain.ParseUserID(cfg.RootAdmin.UID)
		if err != nil {
			return fmt.Errorf("parse root admin uid: %w", err)
		}
		if err := identitySvc.SeedRootAdmin(ctx, uid, cfg.RootAdmin.Name, cfg.RootAdmin.GeoHash, cfg.RootAdmin.Phone); err != nil {
			return fmt.Errorf("seed root admin: %w", err)
		}
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Identity:        identityhandler.New(identitySvc, log),
		Licenses:        licensehandler.New(licenseSvc, log),
		ServiceRequests: srhandler.New(engineSvc, log),
		Disputes:        disputehandler.New(disputeSvc, log),
		Validator:       middleware.NewHMACValidator(cfg.JWTSigningKey),
		Logger:          log,
		Health:          health,
	})
	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting geekship", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
