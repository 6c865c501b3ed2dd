// Command server runs the consent and incentive issuance service.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"helixpass/internal/audit"
	"helixpass/internal/consent"
	"helixpass/internal/incentive"
	jwttoken "helixpass/internal/jwt_token"
	"helixpass/internal/ledger"
	"helixpass/internal/lifecycle"
	"helixpass/internal/platform/config"
	"helixpass/internal/platform/httpserver"
	"helixpass/internal/platform/logger"
	"helixpass/internal/platform/metrics"
	"helixpass/internal/platform/redis"
	"helixpass/internal/reconcile"
	"helixpass/internal/signing"
	transport "helixpass/internal/transport/http"
	"helixpass/internal/validity"
	id "helixpass/pkg/domain"
)

func main() {
	log := logger.New()
	if err := run(log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg := config.FromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		consentStore   consent.Store
		auditStore     audit.Store
		incentiveStore incentive.Store
	)
	if cfg.PostgresURL != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return err
		}
		defer pool.Close()

		cs := consent.NewPostgresStore(pool)
		as := audit.NewPostgresStore(pool)
		is := incentive.NewPostgresStore(pool)
		for _, ensure := range []func(context.Context) error{cs.EnsureSchema, as.EnsureSchema, is.EnsureSchema} {
			if err := ensure(ctx); err != nil {
				return err
			}
		}
		consentStore, auditStore, incentiveStore = cs, as, is
	} else {
		log.Warn("POSTGRES_URL not set, using in-memory stores")
		consentStore = consent.NewInMemoryStore()
		auditStore = audit.NewInMemoryStore()
		incentiveStore = incentive.NewInMemoryStore()
	}

	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var publisher audit.Publisher
	if kafkaPub, err := audit.NewKafkaPublisher(ctx, cfg.Kafka, log); err != nil {
		return err
	} else if kafkaPub != nil {
		defer kafkaPub.Close()
		publisher = kafkaPub
	}

	// No network adapter ships in this repo; the gateway runs against the
	// in-process sandbox ledger. Real deployments swap in an SDK-backed
	// ledger.Client and a wallet-backed signing.Channel here.
	sandbox := ledger.NewSandbox(id.SubjectID(cfg.Ledger.OperatorAccount))
	gateway := ledger.NewGateway(sandbox, signing.NewAutoApprove(), cfg.Ledger, log, ledger.NewMetrics())

	audits := audit.NewService(auditStore, publisher)
	incentives := incentive.NewService(gateway, incentiveStore, cfg.Ledger, log, incentive.NewMetrics())
	sagas := lifecycle.NewService(gateway, consentStore, audits, incentives, cfg, log, lifecycle.NewMetrics())
	resolver := validity.NewResolver(consentStore, gateway, redisClient, cfg.Redis.OwnershipCacheTTL, log, validity.NewMetrics())
	sweeper := reconcile.NewSweeper(gateway, consentStore, audits, cfg, log, reconcile.NewMetrics())

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, "helixpass", "helixpass-api")
	handler := transport.NewHandler(sagas, resolver, audits, consentStore, log)
	health := func() error {
		if redisClient != nil {
			return redisClient.Health(ctx)
		}
		return nil
	}
	router := transport.NewRouter(handler, jwtService, log, metrics.New(), health)
	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sweeper.Run(gctx)
		return nil
	})
	g.Go(func() error {
		log.Info("http server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
