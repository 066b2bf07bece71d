package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap"

	"github.com/example/pointpay/internal/config"
	"github.com/example/pointpay/internal/database"
	"github.com/example/pointpay/internal/ledger"
	"github.com/example/pointpay/internal/middleware"
	"github.com/example/pointpay/internal/routes"
	"github.com/example/pointpay/internal/services"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := newLogger(cfg.AppEnv)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	db, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseURL, log)
	if err != nil {
		return err
	}
	store := ledger.New(db)

	gateway, err := newGateway(cfg, log)
	if err != nil {
		_ = database.Close(db)
		return err
	}

	ids, err := services.NewOrderIDGenerator(cfg.SnowflakeNodeID)
	if err != nil {
		_ = database.Close(db)
		return err
	}

	var principals services.PrincipalResolver = services.NewDefaultUserResolver(store, cfg.DefaultUsername, cfg.DefaultUserEmail)
	if cfg.UserAuthEnabled {
		principals = services.NewContextUserResolver(store)
	}

	var limiterStorage fiber.Storage
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			_ = database.Close(db)
			return fmt.Errorf("connect to redis: %w", err)
		}
		limiterStorage = middleware.NewRedisStorage(client, "pointpay:limiter:")
		log.Info("rate limiter uses redis", zap.String("addr", cfg.RedisAddr))
	}

	alerter := newAlerter(cfg, log)

	app := routes.NewApp(cfg, routes.Dependencies{
		Store:          store,
		Recharge:       services.NewRechargeService(store, gateway, principals, ids, cfg.PointsExchangeRate, cfg.AlipayTimeout, log),
		Query:          services.NewQueryService(store, principals),
		Notify:         services.NewNotifyService(store, gateway, alerter, cfg.AlipayClosedMarksFailed, log),
		Admin:          services.NewAdminService(store),
		Points:         services.NewPointsService(store, log),
		GatewayReady:   gateway != nil,
		LimiterStorage: limiterStorage,
	}, log)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	listenErr := make(chan error, 1)
	go func() {
		log.Info("starting server",
			zap.String("port", cfg.AppPort),
			zap.String("env", cfg.AppEnv),
			zap.Bool("alipay_ready", gateway != nil),
		)
		listenErr <- app.Listen(":" + cfg.AppPort)
	}()

	select {
	case <-stop:
		log.Info("shutting down server")
	case err := <-listenErr:
		log.Error("server stopped", zap.Error(err))
	}

	if err := app.Shutdown(); err != nil {
		log.Error("server shutdown failed", zap.Error(err))
	}
	if limiterStorage != nil {
		if err := limiterStorage.Close(); err != nil {
			log.Warn("redis close failed", zap.Error(err))
		}
	}
	if err := database.Close(db); err != nil {
		log.Error("database close failed", zap.Error(err))
	}
	log.Info("server exited")
	return nil
}

// newGateway returns nil when credentials are missing so the server can
// still serve reads and report not_configured on /healthz.
func newGateway(cfg *config.Config, log *zap.Logger) (services.PaymentGateway, error) {
	if !cfg.AlipayConfigured() {
		log.Warn("alipay credentials incomplete, payments disabled")
		return nil, nil
	}
	client, err := services.NewAlipayClient(services.AlipayConfig{
		AppID:      cfg.AlipayAppID,
		PrivateKey: cfg.AlipayPrivateKey,
		PublicKey:  cfg.AlipayPublicKey,
		Production: cfg.AlipayProduction(),
		NotifyURL:  cfg.AlipayNotifyURL,
		ReturnURL:  cfg.AlipayReturnURL,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

func newAlerter(cfg *config.Config, log *zap.Logger) services.Alerter {
	alerters := services.MultiAlerter{
		services.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat, log),
	}
	if cfg.SendGridAPIKey != "" && cfg.AlertEmailFrom != "" && cfg.AlertEmailTo != "" {
		alerters = append(alerters, services.NewEmailAlerter(cfg.SendGridAPIKey, cfg.AlertEmailFrom, cfg.AlertEmailTo))
	}
	return alerters
}
