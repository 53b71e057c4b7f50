package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tradeguard/configs"
	"tradeguard/internal/adapter/dhan"
	"tradeguard/internal/adapter/paper"
	"tradeguard/internal/adapter/telegram"
	"tradeguard/internal/database"
	httpdelivery "tradeguard/internal/delivery/http"
	"tradeguard/internal/domain"
	"tradeguard/internal/infra"
	"tradeguard/internal/middleware"
	"tradeguard/internal/repository"
	"tradeguard/internal/service"
	"tradeguard/internal/utils"
)

const serviceName = "tradeguard"

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	cfg, err := configs.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := infra.NewLogger(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Exited with error", zap.Error(err))
	}
	logger.Info("[OK] Server exited")
}

func run(cfg *configs.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := utils.LoadLocation(cfg.Schedule.Timezone)
	if err != nil {
		return err
	}
	window, err := utils.NewTradingWindow(cfg.Schedule.StartTime, cfg.Schedule.EndTime, loc)
	if err != nil {
		return err
	}

	// Position store
	var (
		positions   domain.PositionRepository
		storeHealth func(ctx context.Context) error
	)
	switch cfg.Database.Driver {
	case "sqlite":
		store, err := repository.NewSQLitePositionRepository(cfg.Database.SQLitePath)
		if err != nil {
			return err
		}
		defer store.Close()
		logger.Info("[OK] SQLite store opened", zap.String("path", cfg.Database.SQLitePath))
		positions, storeHealth = store, store.Ping
	default:
		db, err := infra.NewDatabase(ctx, cfg.Database.PostgresDSN(), logger)
		if err != nil {
			return err
		}
		defer db.Close()
		if cfg.Database.RunMigrations {
			if err := database.RunMigrations(ctx, db, logger); err != nil {
				return err
			}
		}
		positions, storeHealth = repository.NewPositionRepository(db), db.Ping
	}

	prices := service.NewMarketPriceService(
		cfg.PriceFeed.PrimaryURL,
		cfg.PriceFeed.SecondaryURL,
		time.Duration(cfg.PriceFeed.TimeoutSeconds)*time.Second,
		logger.Named("prices"),
	)

	gateway := newGateway(ctx, cfg, logger)

	notifier, err := telegram.NewNotificationService(cfg.Telegram.BotToken, cfg.Telegram.ChatID, "", loc)
	if err != nil {
		logger.Warn("Telegram disabled", zap.Error(err))
		notifier = nil
	} else if notifier.Enabled() {
		logger.Info("[OK] Telegram notifications enabled")
	}

	var locker domain.PassLocker
	if cfg.Redis.Addr != "" {
		rdb, err := infra.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer rdb.Close()
		locker = infra.NewRedisPassLock(rdb)
		logger.Info("[OK] Redis pass lock enabled", zap.String("addr", cfg.Redis.Addr))
	} else {
		locker = infra.NewLocalPassLock()
	}

	var notifications domain.NotificationService
	if notifier != nil && notifier.Enabled() {
		notifications = notifier
	}

	engine := service.NewTriggerService(positions, prices, gateway, notifications, locker, service.TriggerConfig{
		ExchangeSegment:   cfg.Broker.ExchangeSegment,
		LookbackDays:      cfg.Monitor.LookbackDays,
		Location:          loc,
		ClosingGuard:      cfg.Monitor.ClosingGuard,
		StuckClosingAfter: cfg.Monitor.StuckClosingAfter,
		LockTTL:           cfg.Redis.LockTTL,
	}, logger.Named("trigger"))

	scheduler := infra.NewScheduler(engine, window, cfg.Schedule.Interval(), logger.Named("scheduler"))

	// HTTP server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	routes := &httpdelivery.RouterConfig{
		Logger:  logger.Named("http"),
		Service: serviceName,
	}
	if cfg.Auth.AdminUsername != "" {
		authn := middleware.NewAuthenticator(cfg.Auth.JWTSecret, 24*time.Hour)
		routes.Authenticator = authn
		routes.AuthHandler = httpdelivery.NewAuthHandler(cfg.Auth.AdminUsername, cfg.Auth.AdminPasswordHash, authn, 24*time.Hour)
		routes.AdminHandler = httpdelivery.NewAdminHandler(engine, scheduler, storeHealth, gateway.Name(), logger.Named("admin"))
	} else {
		logger.Warn("ADMIN_USERNAME not set; admin API disabled")
	}
	httpdelivery.SetupRoutes(e, routes)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		addr := ":" + cfg.Server.Port
		logger.Info("[OK] HTTP server listening", zap.String("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		scheduler.Start(gctx)
		<-gctx.Done()

		logger.Info("Shutting down...")
		scheduler.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// newGateway returns the paper broker in dry-run mode and the Dhan client
// otherwise. A failed credential check is logged, not fatal.
func newGateway(ctx context.Context, cfg *configs.Config, logger *zap.Logger) domain.ExecutionGateway {
	if cfg.Broker.DryRun {
		logger.Warn("DRY_RUN set; closing orders go to the paper broker")
		return paper.NewBroker(logger.Named("paper"))
	}

	gw := dhan.NewGateway(
		cfg.Broker.BaseURL,
		cfg.Broker.ClientID,
		cfg.Broker.AccessToken,
		time.Duration(cfg.Broker.TimeoutSeconds)*time.Second,
	)

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := gw.CheckCredentials(checkCtx); err != nil {
		logger.Warn("Dhan credential check failed; orders may be rejected", zap.Error(err))
	} else {
		logger.Info("[OK] Dhan credentials verified")
	}
	return gw
}
