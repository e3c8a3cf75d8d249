package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	libdb "swapstation/backend/libs/db"
	libhttp "swapstation/backend/libs/httpserver"
	libredis "swapstation/backend/libs/redis"
	"swapstation/backend/services/reservation-service/internal/clients"
	"swapstation/backend/services/reservation-service/internal/config"
	httpserver "swapstation/backend/services/reservation-service/internal/http"
	"swapstation/backend/services/reservation-service/internal/http/handlers"
	"swapstation/backend/services/reservation-service/internal/http/middleware"
	"swapstation/backend/services/reservation-service/internal/metrics"
	"swapstation/backend/services/reservation-service/internal/notify"
	"swapstation/backend/services/reservation-service/internal/quota"
	redisstore "swapstation/backend/services/reservation-service/internal/redis"
	"swapstation/backend/services/reservation-service/internal/repository"
	"swapstation/backend/services/reservation-service/internal/service"
	"swapstation/backend/services/reservation-service/internal/stations"
)

// App wires reservation-service dependencies.
type App struct {
	cfg         *config.Config
	server      *libhttp.Server
	directory   *stations.Directory
	hub         *notify.Hub
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger
}

// New constructs the application graph.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sqlDB, err := libdb.NewPostgresDB(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	a := &App{cfg: cfg, db: sqlDB, logger: logger}

	var store quota.Store
	switch cfg.Selection.Backend {
	case config.SelectionBackendMemory:
		logger.Warn("selections kept in memory, they are lost on restart")
		store = quota.NewMemoryStore()
	default:
		a.redisClient, err = libredis.NewRedisClient(libredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		store = redisstore.NewSelectionStore(a.redisClient, cfg.SelectionTTL())
	}

	m, err := metrics.New(prometheus.DefaultRegisterer)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	httpClient := clients.NewDefaultHTTPClient(cfg.HTTPTimeout())
	var geocoder stations.Geocoder
	if cfg.Services.GeocodeURL != "" {
		geocoder = clients.NewGeocodeClient(cfg.Services.GeocodeURL, cfg.Services.GeocodeUserAgent, httpClient)
	}
	a.directory = stations.NewDirectory(stations.Options{
		Fetcher:       clients.NewStationsClient(cfg.Services.StationsURL, httpClient),
		Geocoder:      geocoder,
		DefaultRadius: cfg.Directory.DefaultRadiusKm,
		Metrics:       m,
		Logger:        logger,
	})

	a.hub = notify.NewHub(cfg.Notifications.AllowedOrigins, m, logger)
	logNotifier := notify.NewLogNotifier(logger)
	metricsNotifier := notify.NewMetricsNotifier(m)

	reservationService := service.NewReservationService(service.Deps{
		Vehicles:  repository.NewVehicleRepository(sqlDB),
		Bookings:  repository.NewBookingRepository(sqlDB),
		Store:     store,
		Directory: a.directory,
		Notifiers: func(session string) notify.Notifier {
			return notify.Multi(logNotifier, metricsNotifier, a.hub.ForSession(session))
		},
		Metrics: m,
		Logger:  logger,
	})

	pingers := map[string]handlers.Pinger{"postgres": sqlDB}
	if a.redisClient != nil {
		pingers["redis"] = handlers.PingFunc(func(ctx context.Context) error {
			return a.redisClient.Ping(ctx).Err()
		})
	}

	router := httpserver.NewRouter(httpserver.RouterDeps{
		Reservations:  handlers.NewReservationsHandlers(reservationService, logger),
		Stations:      handlers.NewStationsHandlers(reservationService, logger),
		Vehicles:      handlers.NewVehiclesHandlers(reservationService, logger),
		Bookings:      handlers.NewBookingsHandlers(reservationService, logger),
		Notifications: handlers.NewNotificationsHandlers(a.hub),
		Health:        handlers.NewHealthHandler(pingers),
		Metrics:       metrics.Handler(prometheus.DefaultGatherer),
	}, middleware.AuthMiddleware(cfg.JWT.Secret))

	a.server = libhttp.New(
		libhttp.Config{Name: "reservation-service", Addr: cfg.HTTPAddress()},
		router,
		logger,
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
	)

	return a, nil
}

// Run serves HTTP traffic and prunes idle station snapshots until ctx is done.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.server.Run(gctx)
	})
	g.Go(func() error {
		return a.directory.Run(gctx, a.cfg.Directory.PruneInterval, a.cfg.Directory.SnapshotTTL)
	})
	g.Go(func() error {
		<-gctx.Done()
		a.hub.Close()
		return nil
	})

	return g.Wait()
}

// Close releases resources.
func (a *App) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}
