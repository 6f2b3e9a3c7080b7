package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jmoiron/sqlx"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"ridedeck/internal/app"
	"ridedeck/internal/config"
	"ridedeck/internal/events"
	"ridedeck/internal/handler"
	"ridedeck/internal/maps"
	"ridedeck/internal/messaging"
	internalRedis "ridedeck/internal/redis"
	"ridedeck/internal/repository"
	"ridedeck/internal/repository/memory"
	"ridedeck/internal/repository/postgres"
	"ridedeck/internal/scheduler"
	"ridedeck/internal/service"
)

const releaseSweepLimit = 500

func main() {
	bootstrap := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		bootstrap.WithError(err).Fatal("failed to load configuration")
	}

	logger := app.NewLogger(cfg.Log)
	if cfg.Auth.JWTSecret == "" {
		logger.Fatal("AUTH_JWT_SECRET is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			logger.WithError(err).Warn("failed to initialize New Relic")
		} else {
			logger.WithField("app", cfg.NewRelic.AppName).Info("New Relic enabled")
		}
	}

	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to redis")
	}
	defer redisClient.Close()
	logger.Info("connected to Redis")

	stores, closeStores, err := openStores(ctx, cfg, nrApp, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to open stores")
	}
	defer closeStores()

	publisher, closePublisher, err := newPublisher(cfg, redisClient, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to create event publisher")
	}
	defer closePublisher()

	redisOpt := asynq.RedisClientOpt{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}
	taskClient := asynq.NewClient(redisOpt)
	defer taskClient.Close()

	coordinator, driverService, err := wireServices(ctx, cfg, stores, redisClient, publisher, scheduler.NewQueue(taskClient), logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to wire services")
	}

	var worker *asynq.Server
	if cfg.Scheduler.Enabled {
		worker = scheduler.NewServer(redisOpt, cfg.Scheduler.Concurrency, logger)
		if err := worker.Start(scheduler.NewMux(coordinator, logger)); err != nil {
			logger.WithError(err).Fatal("failed to start scheduler")
		}

		// Catch rides whose release task was lost while the worker was down.
		if n, err := coordinator.ReleaseDueRides(ctx, releaseSweepLimit); err != nil {
			logger.WithError(err).Warn("scheduled ride sweep failed")
		} else if n > 0 {
			logger.WithField("released", n).Info("released overdue scheduled rides")
		}
	}

	router := app.NewRouter(app.RouterDeps{
		RideHandler:   handler.NewRideHandler(coordinator),
		DriverHandler: handler.NewDriverHandler(driverService),
		JWTSecret:     []byte(cfg.Auth.JWTSecret),
		RedisClient:   redisClient,
		NewRelicApp:   nrApp,
		Logger:        logger,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server error")
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("server forced to shutdown")
	}
	if worker != nil {
		worker.Shutdown()
	}
	if nrApp != nil {
		nrApp.Shutdown(5 * time.Second)
	}

	logger.Info("server exited")
}

// stores groups the repositories behind the ride and wallet services.
type stores struct {
	rides     repository.RideRepository
	users     repository.UserRepository
	wallets   repository.WalletRepository
	txns      repository.TransactionRepository
	drivers   repository.DriverRepository
	campaigns repository.CampaignRepository
	ledger    repository.AtomicLedger
}

// openStores opens the configured backend. The memory backend keeps all state
// in process and is meant for local runs.
func openStores(ctx context.Context, cfg *config.Config, nrApp *newrelic.Application, logger logrus.FieldLogger) (*stores, func(), error) {
	if cfg.Store.Driver == "memory" {
		logger.Warn("using in-memory store, state is lost on restart")
		ledger := memory.NewLedger()
		return &stores{
			rides:     memory.NewRideRepository(),
			users:     ledger,
			wallets:   ledger,
			txns:      ledger,
			drivers:   memory.NewDriverRepository(),
			campaigns: memory.NewCampaignRepository(),
			ledger:    ledger,
		}, func() {}, nil
	}

	db, err := app.NewDatabase(ctx, cfg.Database, nrApp, logger)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("connected to PostgreSQL")

	users := postgres.NewUserRepository(db)
	return &stores{
		rides:     postgres.NewRideRepository(db),
		users:     users,
		wallets:   users,
		txns:      postgres.NewTransactionRepository(db),
		drivers:   postgres.NewDriverRepository(db),
		campaigns: postgres.NewCampaignRepository(db),
		ledger:    postgres.NewLedger(db),
	}, func() { closeDB(db, logger) }, nil
}

func closeDB(db *sqlx.DB, logger logrus.FieldLogger) {
	if err := db.Close(); err != nil {
		logger.WithError(err).Warn("failed to close database")
	}
}

// newPublisher fans events out over Redis pub/sub and, when enabled, Kafka.
func newPublisher(cfg *config.Config, client *redis.Client, logger logrus.FieldLogger) (events.Publisher, func(), error) {
	fanout := events.Fanout{internalRedis.NewPublisher(client)}
	if !cfg.Kafka.Enabled {
		return events.NewLoggingPublisher(fanout, logger), func() {}, nil
	}

	producer, err := app.NewKafkaProducer(cfg.Kafka)
	if err != nil {
		return nil, nil, err
	}
	kafka := messaging.NewKafkaPublisher(producer, cfg.Kafka.Topic)
	logger.WithField("topic", cfg.Kafka.Topic).Info("mirroring ride events to Kafka")

	return events.NewLoggingPublisher(append(fanout, kafka), logger), func() {
		if err := kafka.Close(); err != nil {
			logger.WithError(err).Warn("failed to close kafka producer")
		}
	}, nil
}

// wireServices builds the service graph.
func wireServices(
	ctx context.Context,
	cfg *config.Config,
	st *stores,
	redisClient *redis.Client,
	publisher events.Publisher,
	queue service.ScheduledRideQueue,
	logger logrus.FieldLogger,
) (*service.RideCoordinator, *service.DriverService, error) {
	locationStore := internalRedis.NewLocationStore(redisClient)
	cacheStore := internalRedis.NewCacheStore(redisClient, cfg.Dispatch.PresenceCacheTTL)
	lockStore := internalRedis.NewLockStore(redisClient)

	geo := service.NewGeoService(locationStore, cacheStore, st.drivers, st.campaigns, logger)
	if n, err := geo.IndexCampaigns(ctx); err != nil {
		logger.WithError(err).Warn("failed to index campaign zones")
	} else {
		logger.WithField("campaigns", n).Info("campaign zones indexed")
	}

	loc, err := time.LoadLocation(cfg.Pricing.Timezone)
	if err != nil {
		return nil, nil, err
	}
	surgeConfig := service.DefaultSurgeConfig()
	surgeConfig.RadiusKm = cfg.Dispatch.SurgeRadiusKm
	surge := service.NewSurgeService(geo, surgeConfig, loc, logger)

	// A nil *maps.RouteEstimator must not reach the engine as a non-nil interface.
	var routes service.RouteEstimator
	if cfg.Maps.APIKey != "" {
		estimator, err := maps.NewRouteEstimator(cfg.Maps.APIKey, cfg.Maps.Timeout)
		if err != nil {
			return nil, nil, err
		}
		routes = estimator
	}

	pricing := service.NewFarePricingEngine(surge, routes, service.SplitRates{
		CommissionRate: cfg.Pricing.CommissionRate,
		BrandSubsidy:   cfg.Pricing.BrandSubsidy,
		LoyaltyRate:    cfg.Pricing.LoyaltyRate,
	}, logger)

	bestEffort := service.NewBestEffortLedger(st.users, st.wallets, st.txns, logger)
	ledger, err := service.SelectLedger(ctx, cfg.Settlement.Mode, st.ledger, bestEffort, logger)
	if err != nil {
		return nil, nil, err
	}

	notifier := service.NewNotificationService(publisher, logger)
	dispatch := service.NewDispatchRouter(geo, notifier, service.DispatchConfig{
		RadiusKm:         cfg.Dispatch.RadiusKm,
		CandidateLimit:   cfg.Dispatch.CandidateLimit,
		TargetLimit:      cfg.Dispatch.TargetLimit,
		TieEpsilon:       cfg.Dispatch.TieEpsilon,
		PremierMinRating: cfg.Dispatch.PremierMinRating,
		CampaignRadiusKm: cfg.Dispatch.CampaignRadiusKm,
	}, logger)

	coordinator := service.NewRideCoordinator(service.RideCoordinatorDeps{
		Rides:       st.rides,
		Users:       st.users,
		Drivers:     st.drivers,
		Ledger:      service.NewNegotiationLedger(st.rides, cfg.Ride.MaxRetries, logger),
		Dispatch:    dispatch,
		Pricing:     pricing,
		Settlement:  service.NewSettlementService(ledger, pricing, logger),
		Notifier:    notifier,
		Geo:         geo,
		Locks:       lockStore,
		Queue:       queue,
		BookLockTTL: cfg.Ride.BookLockTTL,
		Logger:      logger,
	})

	drivers := service.NewDriverService(geo, cacheStore, st.drivers, st.rides, notifier, logger)
	return coordinator, drivers, nil
}
