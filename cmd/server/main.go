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

	"golang.org/x/sync/errgroup"

	"equilex/internal/compliance"
	"equilex/internal/dispatch"
	dispatchhandler "equilex/internal/dispatch/handler"
	dispatchmetrics "equilex/internal/dispatch/metrics"
	"equilex/internal/identity"
	"equilex/internal/ledger"
	"equilex/internal/market"
	marketmetrics "equilex/internal/market/metrics"
	"equilex/internal/outbox"
	outboxhandler "equilex/internal/outbox/handler"
	"equilex/internal/platform/config"
	"equilex/internal/platform/httpserver"
	"equilex/internal/platform/kafka"
	"equilex/internal/platform/logger"
	"equilex/internal/platform/postgres"
	platformredis "equilex/internal/platform/redis"
	"equilex/internal/platform/token"
	httptransport "equilex/internal/transport/http"
	id "equilex/pkg/domain"
)

// main wires dependencies and supervises the server and the outbox relay.
// Business logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Event log: durable in postgres when configured, in memory otherwise.
	var eventStore outbox.Store
	db, err := postgres.Open(cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		pgStore := outbox.NewPostgresStore(db)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			return err
		}
		eventStore = pgStore
		log.Info("event outbox using postgres")
	} else {
		eventStore = outbox.NewInMemoryStore()
		log.Info("event outbox using memory store")
	}
	publisher := outbox.NewPublisher(eventStore)

	// Domain stores and services.
	identityStore := identity.NewInMemoryStore()
	complianceStore := compliance.NewInMemoryStore()
	ledgerStore := ledger.NewInMemoryStore()
	marketStore := market.NewInMemoryStore()

	identitySvc := identity.NewService(identityStore, publisher)
	engine := compliance.NewEngine(identitySvc, complianceStore)
	ledgerSvc := ledger.NewService(ledgerStore, engine, publisher)
	marketSvc := market.NewService(
		marketStore, engine, ledgerSvc, publisher,
		id.AccountID(cfg.TreasuryAccount),
		market.WithMetrics(marketmetrics.New()),
		market.WithSettlementTimeout(cfg.SettlementTimeout),
	)

	roles := dispatch.NewRoleTable()
	roles.Grant(cfg.AdminPrincipal, dispatch.RoleAdmin)
	roles.Grant(cfg.OraclePrincipal, dispatch.RoleOracle)

	// Receipts: redis-backed when configured, in memory otherwise.
	var receipts dispatch.ReceiptStore = dispatch.NewInMemoryReceiptStore()
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		receipts = dispatch.NewRedisReceiptStore(redisClient.Client)
		log.Info("receipt store using redis")
	}

	dispatcher := dispatch.NewDispatcher(
		roles, identitySvc, engine, ledgerSvc, marketSvc, publisher,
		[]dispatch.Snapshotter{identityStore, complianceStore, ledgerStore, marketStore},
		dispatch.WithReceipts(receipts),
		dispatch.WithMetrics(dispatchmetrics.New()),
		dispatch.WithLogger(log),
	)

	jwtService := token.NewJWTService(cfg.JWTSigningKey, "equilex", "equilex")
	router := httptransport.NewRouter(httptransport.Config{
		Dispatch:       dispatchhandler.New(dispatcher, log),
		Events:         outboxhandler.New(eventStore, log),
		TokenValidator: jwtService,
		SecretVerifier: token.SecretVerifier{},
		SyncAPIKeyHash: cfg.SyncAPIKeyHash,
		SyncPrincipal:  "synchronizer",
		Logger:         log,
	})
	srv := httpserver.New(cfg.Addr, router)

	producer, err := kafka.NewProducer(cfg.Kafka)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if producer != nil {
		defer producer.Close()
		relay := outbox.NewRelay(eventStore, producer, log)
		g.Go(func() error {
			log.Info("starting outbox relay", "topic", cfg.Kafka.Topic)
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
