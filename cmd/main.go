package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cristianortiz/artAuction/internal/auction/application"
	"github.com/cristianortiz/artAuction/internal/auction/domain"
	"github.com/cristianortiz/artAuction/internal/auction/infra/fanout"
	"github.com/cristianortiz/artAuction/internal/auction/infra/repository/memory"
	auctionpg "github.com/cristianortiz/artAuction/internal/auction/infra/repository/postgres"
	"github.com/cristianortiz/artAuction/internal/auction/infra/rest"
	"github.com/cristianortiz/artAuction/internal/auction/infra/session"
	auctionws "github.com/cristianortiz/artAuction/internal/auction/infra/websocket"
	"github.com/cristianortiz/artAuction/internal/auth"
	"github.com/cristianortiz/artAuction/internal/shared/config"
	"github.com/cristianortiz/artAuction/internal/shared/db"
	"github.com/cristianortiz/artAuction/internal/shared/db/migrations"
	"github.com/cristianortiz/artAuction/internal/shared/events"
	"github.com/cristianortiz/artAuction/internal/shared/httpserver"
	"github.com/cristianortiz/artAuction/internal/shared/logger"
	redisclient "github.com/cristianortiz/artAuction/internal/shared/redis"
	"github.com/cristianortiz/artAuction/internal/shared/websocket"
	userdomain "github.com/cristianortiz/artAuction/internal/user/domain"
	userpg "github.com/cristianortiz/artAuction/internal/user/infra/repository/postgres"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Inicializa logger
	logger := logger.GetLogger()
	defer logger.Sync()

	logger.Info("Starting ArtAuction server...")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	clock := clockwork.NewRealClock()

	var (
		store domain.Store
		users userdomain.Repository
	)
	switch cfg.StorageDriver {
	case "memory":
		logger.Warn("Using in-memory storage, state is lost on restart")
		mem := memory.NewStore(clock)
		store, users = mem, mem.Users()
	default:
		// Ejecuta migraciones de base de datos
		logger.Info("Running database migrations...")
		if err := migrations.RunMigrations(cfg.MigrationsPath, cfg.DB.DSN()); err != nil {
			logger.Fatal("Database migration failed", zap.Error(err))
		}
		logger.Info("Database migrations completed successfully.")

		// Conexión a la base de datos (singleton)
		pool, err := db.GetPostgresDBPool(ctx, cfg.DB.DSN())
		if err != nil {
			logger.Fatal("Database connection failed", zap.Error(err))
		}
		defer pool.Close()
		store, users = auctionpg.NewStore(pool), userpg.NewUserRepository(pool)
	}

	rdb, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Redis connection failed", zap.Error(err))
	}
	defer rdb.Close()

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.NatsURL != "" {
		nats, err := events.NewNatsPublisher(cfg.NatsURL)
		if err != nil {
			logger.Fatal("NATS connection failed", zap.Error(err))
		}
		publisher = nats
	}
	defer publisher.Close()

	var fan fanout.Fanout = fanout.NewRedis(rdb)
	if cfg.FanoutDriver == "local" {
		fan = fanout.NewLocal()
	}

	location, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		logger.Fatal("Unknown scheduler timezone", zap.String("timezone", cfg.Scheduler.Timezone), zap.Error(err))
	}

	ledger := application.NewBidLedger(store, users)
	scheduler := application.NewRoomLifecycleScheduler(store, ledger, publisher, clock, application.SchedulerOptions{
		Interval:      cfg.Scheduler.Interval,
		Location:      location,
		AlignMidnight: cfg.Scheduler.AlignMidnight,
		RunOnStart:    cfg.Scheduler.RunOnStart,
	})
	orders := application.NewOrderTransaction(store, ledger, publisher, clock)
	service := application.NewAuctionService(ledger, scheduler, orders, publisher)

	hub := websocket.NewHub()
	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.JWTExpiration)
	gateway := auctionws.NewGateway(service, session.NewRedisStore(rdb, cfg.SessionTTL), fan, hub, tokens, users,
		auctionws.Options{BidTimeout: cfg.BidTimeout, SessionTTL: cfg.SessionTTL})

	server := httpserver.NewServer()
	rest.NewHandler(service).Register(server.App(), tokens, users)
	gateway.Register(server.App(), "/ws")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	if err := gateway.Listen(gctx); err != nil {
		logger.Fatal("Room fan-out subscription failed", zap.Error(err))
	}
	g.Go(func() error {
		return scheduler.Start(gctx)
	})
	g.Go(func() error {
		return server.Start(cfg.HTTPAddr)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Server stopped with error", zap.Error(err))
		return
	}
	logger.Info("Server stopped")
}
