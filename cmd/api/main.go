package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/inkworks/studio-booking/internal/app"
	"github.com/inkworks/studio-booking/internal/clock"
	"github.com/inkworks/studio-booking/internal/config"
	"github.com/inkworks/studio-booking/internal/logging"
	"github.com/inkworks/studio-booking/internal/notify"
	"github.com/inkworks/studio-booking/internal/settings"
	"github.com/inkworks/studio-booking/internal/storage/postgres"
	transporthttp "github.com/inkworks/studio-booking/internal/transport/http"
	"github.com/inkworks/studio-booking/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	startupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(startupCtx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("connect to db", zap.Error(err))
	}
	defer pool.Close()

	if err := pool.Ping(startupCtx); err != nil {
		logger.Fatal("db ping", zap.Error(err))
	}
	if err := migrations.Apply(startupCtx, pool); err != nil {
		logger.Fatal("apply migrations", zap.Error(err))
	}

	slotRepo := postgres.NewSlotRepository(pool)
	resRepo := postgres.NewReservationRepository(pool)
	userRepo := postgres.NewUserRepository(pool)
	settingsRepo := postgres.NewSettingsRepository(pool)

	set := settings.New(settingsRepo, nil, logger)
	notifier := notify.New(cfg.NotifyProvider, cfg.NotifyWebhookURL, cfg.NotifyWebhookToken, cfg.NotifyTimeout(), logger)

	bookingSvc := app.NewBookingService(resRepo, slotRepo, userRepo, set, notifier, clock.NewSystem(), logger, app.BookingServiceConfig{
		AdminIDs:           cfg.AdminIDList(),
		HoldTimeoutMinutes: cfg.HoldTimeoutMinutes,
		NotifyTimeout:      cfg.NotifyTimeout(),
	})
	slotSvc := app.NewSlotService(slotRepo)
	sweeper := app.NewSweeper(resRepo, bookingSvc, slotRepo, set, notifier, clock.NewSystem(), logger, app.SweeperConfig{
		TimeoutMinutes: cfg.HoldTimeoutMinutes,
		WarningMinutes: cfg.ExpiryWarningMinutes,
		NotifyTimeout:  cfg.NotifyTimeout(),
	})

	mux := http.NewServeMux()
	mux.Handle("/health", transporthttp.HandleHealth(pool))
	mux.Handle("/slots", transporthttp.HandleSlots(slotSvc))
	mux.Handle("/slots/", transporthttp.HandleSlotsSub(slotSvc))
	mux.Handle("/reservations", transporthttp.HandleCreateReservation(bookingSvc))
	mux.Handle("/reservations/", transporthttp.HandleReservationSub(bookingSvc))
	mux.Handle("/", transporthttp.NotFoundHandler())

	handler := transporthttp.RequestLogger(transporthttp.CORS(cfg.CORSOriginList(), mux), logger)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	go sweeper.Start(sweepCtx, cfg.SweepInterval())

	logger.Info("api listening", zap.String("port", cfg.Port),
		zap.Duration("sweep_interval", cfg.SweepInterval()))

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
		}
	case <-stopCtx.Done():
		logger.Info("shutdown signal received, stopping server")
	}

	stopSweeper()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("server stopped")
}
