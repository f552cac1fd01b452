// Package server assembles the Fiber application from its dependencies.
package server

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/playforge/iap-emulator/internal/domain/ports"
	"github.com/playforge/iap-emulator/internal/engine"
	"github.com/playforge/iap-emulator/internal/events"
	"github.com/playforge/iap-emulator/internal/handlers/control"
	"github.com/playforge/iap-emulator/internal/handlers/googleplay"
	"github.com/playforge/iap-emulator/internal/purchases"
	"github.com/playforge/iap-emulator/internal/timectrl"
	"github.com/playforge/iap-emulator/pkg/observability"
)

// AppDependencies holds the collaborators required to build the application
type AppDependencies struct {
	Engine         *engine.Engine
	Purchases      *purchases.Manager
	Controller     *timectrl.Controller
	Catalog        ports.ProductCatalog
	SubsStore      ports.SubscriptionStore
	PurchStore     ports.PurchaseStore
	Dispatcher     *events.Dispatcher
	DefaultPackage string
	Logger         *zap.Logger
}

// NewApp creates and configures the Fiber application with the given dependencies
func NewApp(deps AppDependencies) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "iap-emulator",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(observability.HTTPMiddleware())

	googleplay.NewHandler(deps.Engine, deps.Purchases, deps.Logger).Register(app)
	control.NewHandler(
		deps.Engine,
		deps.Purchases,
		deps.Controller,
		deps.Catalog,
		deps.SubsStore,
		deps.PurchStore,
		deps.Dispatcher,
		deps.DefaultPackage,
		deps.Logger,
	).Register(app)

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	return app
}
