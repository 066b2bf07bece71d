package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/example/pointpay/internal/config"
	"github.com/example/pointpay/internal/handlers"
	"github.com/example/pointpay/internal/ledger"
	"github.com/example/pointpay/internal/middleware"
	"github.com/example/pointpay/internal/services"
)

const bodyLimit = 200 * 1024

// Dependencies are the process-scoped services the HTTP layer serves.
type Dependencies struct {
	Store          *ledger.Store
	Recharge       *services.RechargeService
	Query          *services.QueryService
	Notify         *services.NotifyService
	Admin          *services.AdminService
	Points         *services.PointsService
	GatewayReady   bool
	LimiterStorage fiber.Storage
}

// NewApp builds the fiber application with middleware and all routes.
func NewApp(cfg *config.Config, deps Dependencies, log *zap.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "pointpay",
		BodyLimit:    bodyLimit,
		ErrorHandler: handlers.ErrorHandler(log),
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(helmet.New(helmet.Config{
		HSTSMaxAge:         31536000,
		HSTSPreloadEnabled: true,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigin,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, Idempotency-Key",
		AllowMethods: "GET,POST,PUT,OPTIONS",
	}))

	Register(app, cfg, deps, log)

	app.Static("/", cfg.PublicDir)
	app.Use(handlers.NotFound)
	return app
}

// Register wires up all HTTP routes.
func Register(app *fiber.App, cfg *config.Config, deps Dependencies, log *zap.Logger) {
	pointsHandler := handlers.NewPointsHandler(deps.Recharge, deps.Query)
	paymentHandler := handlers.NewPaymentHandler(deps.Notify)
	healthHandler := handlers.NewHealthHandler(deps.Store, deps.GatewayReady)
	authHandler := handlers.NewAuthHandler(cfg, log)
	adminHandler := handlers.NewAdminHandler(deps.Admin, deps.Points)

	app.Get("/healthz", healthHandler.Health)
	app.Get("/payment/success", paymentHandler.Success)

	api := app.Group("/api")

	// Gateway callbacks are authenticated by signature, never by token.
	api.Post("/payment/gateway/notify",
		middleware.RateLimit(120, time.Minute, deps.LimiterStorage, "too many notifications"),
		paymentHandler.Notify,
	)

	var userAuth []fiber.Handler
	if cfg.UserAuthEnabled {
		userAuth = append(userAuth, middleware.UserAuth(cfg.JWTSecret))
	}
	asUser := func(chain ...fiber.Handler) []fiber.Handler {
		return append(append([]fiber.Handler{}, userAuth...), chain...)
	}

	api.Post("/points/recharge", asUser(
		middleware.RateLimit(30, time.Minute, deps.LimiterStorage, "too many requests, please try again later"),
		pointsHandler.Recharge,
	)...)
	api.Get("/points/balance", asUser(pointsHandler.Balance)...)
	api.Get("/orders/history", asUser(pointsHandler.History)...)

	admin := api.Group("/admin")
	admin.Post("/login",
		middleware.RateLimit(10, time.Minute, deps.LimiterStorage, "too many login attempts"),
		authHandler.AdminLogin,
	)

	protected := admin.Group("", middleware.AdminAuth(cfg.JWTSecret))
	protected.Get("/stats", adminHandler.DashboardStats)
	protected.Get("/real-time-data", adminHandler.RealTimeData)
	protected.Get("/users-enhanced", adminHandler.ListUsers)
	protected.Get("/user/:id", adminHandler.GetUser)
	protected.Put("/user/:id/points", adminHandler.AdjustPoints)
	protected.Get("/orders/flagged", adminHandler.FlaggedOrders)
}
